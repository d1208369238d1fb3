// Package storage persists search records and exposes the message store the search core reads.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/tegami/internal/models"
)

// ErrNotFound is returned when a record or message does not exist.
var ErrNotFound = errors.New("not found")

// RecordStore persists SearchRecords, one row per email id.
type RecordStore interface {
	// UpsertRecord inserts rec or overwrites the existing row for rec.EmailID.
	UpsertRecord(ctx context.Context, rec *models.SearchRecord) error
	GetRecord(ctx context.Context, emailID string) (*models.SearchRecord, error)
	// DeleteRecord removes the row; unknown ids are not an error.
	DeleteRecord(ctx context.Context, emailID string) error
	// DeleteRecordsByAccount removes every row for accountID and returns the deleted email ids.
	DeleteRecordsByAccount(ctx context.Context, accountID string) ([]string, error)
	ListRecords(ctx context.Context) ([]*models.SearchRecord, error)
	ListRecordsMissingAccount(ctx context.Context) ([]*models.SearchRecord, error)
	// SetRecordAccount sets the account only when the row's account is currently empty.
	// It reports whether a row was changed.
	SetRecordAccount(ctx context.Context, emailID, accountID string) (bool, error)
	// AccountsFor returns the account of each given email id that has a record.
	AccountsFor(ctx context.Context, emailIDs []string) (map[string]string, error)
	CountRecords(ctx context.Context) (int64, error)
	CountEmbeddings(ctx context.Context) (int64, error)
}

// MessageStore is the read-only view of synced messages.
type MessageStore interface {
	GetMessage(ctx context.Context, emailID string) (*models.Message, error)
	// GetMessages returns the messages that exist among emailIDs, keyed by id.
	GetMessages(ctx context.Context, emailIDs []string) (map[string]*models.Message, error)
	ListMessagesByAccount(ctx context.Context, accountID string) ([]*models.Message, error)
}
