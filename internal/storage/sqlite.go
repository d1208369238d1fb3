package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hyperjump/tegami/internal/models"
)

// maxInParams bounds the number of ids bound into one IN (...) clause.
const maxInParams = 500

// SQLiteStorage implements RecordStore and MessageStore on SQLite.
type SQLiteStorage struct {
	db *sqlx.DB
}

var (
	_ RecordStore  = (*SQLiteStorage)(nil)
	_ MessageStore = (*SQLiteStorage)(nil)
)

type recordRow struct {
	EmailID   string `db:"email_id"`
	AccountID string `db:"account_id"`
	Content   string `db:"content"`
	Embedding []byte `db:"embedding"`
	UpdatedAt int64  `db:"updated_at"`
}

type messageRow struct {
	ID            string `db:"id"`
	AccountID     string `db:"account_id"`
	Subject       string `db:"subject"`
	SenderName    string `db:"sender_name"`
	SenderAddress string `db:"sender_address"`
	BodyExcerpt   string `db:"body_excerpt"`
	ReceivedAt    int64  `db:"received_at"`
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a private in-memory database.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sqlx.Open(DriverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: writers are serialized by SQLite anyway, and an in-memory
	// database exists only for the connection that created it.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sqlx.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		sender_name TEXT NOT NULL DEFAULT '',
		sender_address TEXT NOT NULL DEFAULT '',
		body_excerpt TEXT NOT NULL DEFAULT '',
		received_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_messages_account_id ON messages(account_id);

	CREATE TABLE IF NOT EXISTS search_records (
		email_id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		embedding BLOB,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_search_records_account_id ON search_records(account_id);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// UpsertRecord inserts or overwrites the record for rec.EmailID. A zero UpdatedAt is set to now.
func (s *SQLiteStorage) UpsertRecord(ctx context.Context, rec *models.SearchRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	// A typed nil []byte is not NULL for every driver; bind an untyped nil instead.
	var embedding interface{}
	if blob := encodeEmbedding(rec.Embedding); blob != nil {
		embedding = blob
	}
	row := map[string]interface{}{
		"email_id":   rec.EmailID,
		"account_id": rec.AccountID,
		"content":    rec.Content,
		"embedding":  embedding,
		"updated_at": rec.UpdatedAt.UnixNano(),
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO search_records (email_id, account_id, content, embedding, updated_at)
		VALUES (:email_id, :account_id, :content, :embedding, :updated_at)
		ON CONFLICT(email_id) DO UPDATE SET
			account_id = excluded.account_id,
			content = excluded.content,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at`, row)
	if err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", rec.EmailID, err)
	}
	return nil
}

// GetRecord returns the record for emailID or ErrNotFound.
func (s *SQLiteStorage) GetRecord(ctx context.Context, emailID string) (*models.SearchRecord, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row,
		`SELECT email_id, account_id, content, embedding, updated_at FROM search_records WHERE email_id = ?`, emailID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", emailID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.toModel()
}

// DeleteRecord removes the record for emailID.
func (s *SQLiteStorage) DeleteRecord(ctx context.Context, emailID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM search_records WHERE email_id = ?`, emailID)
	return err
}

// DeleteRecordsByAccount removes every record of accountID and returns the removed email ids.
func (s *SQLiteStorage) DeleteRecordsByAccount(ctx context.Context, accountID string) ([]string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var ids []string
	if err := tx.SelectContext(ctx, &ids,
		`SELECT email_id FROM search_records WHERE account_id = ? ORDER BY email_id`, accountID); err != nil {
		return nil, fmt.Errorf("failed to list records for account %s: %w", accountID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM search_records WHERE account_id = ?`, accountID); err != nil {
		return nil, fmt.Errorf("failed to delete records for account %s: %w", accountID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// ListRecords returns every record ordered by email id.
func (s *SQLiteStorage) ListRecords(ctx context.Context) ([]*models.SearchRecord, error) {
	return s.selectRecords(ctx,
		`SELECT email_id, account_id, content, embedding, updated_at FROM search_records ORDER BY email_id`)
}

// ListRecordsMissingAccount returns records whose account id is empty.
func (s *SQLiteStorage) ListRecordsMissingAccount(ctx context.Context) ([]*models.SearchRecord, error) {
	return s.selectRecords(ctx,
		`SELECT email_id, account_id, content, embedding, updated_at FROM search_records WHERE account_id = '' ORDER BY email_id`)
}

func (s *SQLiteStorage) selectRecords(ctx context.Context, query string, args ...interface{}) ([]*models.SearchRecord, error) {
	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]*models.SearchRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// SetRecordAccount fills in the account of a record whose account is empty.
// Content, embedding and timestamp are left as they are.
func (s *SQLiteStorage) SetRecordAccount(ctx context.Context, emailID, accountID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE search_records SET account_id = ? WHERE email_id = ? AND account_id = ''`, accountID, emailID)
	if err != nil {
		return false, fmt.Errorf("failed to set account for %s: %w", emailID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AccountsFor maps each known email id among emailIDs to its record's account.
func (s *SQLiteStorage) AccountsFor(ctx context.Context, emailIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(emailIDs))
	type pair struct {
		EmailID   string `db:"email_id"`
		AccountID string `db:"account_id"`
	}
	err := s.forChunks(emailIDs, func(chunk []string) error {
		query, args, err := sqlx.In(`SELECT email_id, account_id FROM search_records WHERE email_id IN (?)`, chunk)
		if err != nil {
			return err
		}
		var pairs []pair
		if err := s.db.SelectContext(ctx, &pairs, s.db.Rebind(query), args...); err != nil {
			return err
		}
		for _, p := range pairs {
			out[p.EmailID] = p.AccountID
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up accounts: %w", err)
	}
	return out, nil
}

// CountRecords returns the number of records.
func (s *SQLiteStorage) CountRecords(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM search_records`)
	return n, err
}

// CountEmbeddings returns the number of records that carry an embedding.
func (s *SQLiteStorage) CountEmbeddings(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM search_records WHERE embedding IS NOT NULL`)
	return n, err
}

// PutMessage inserts or replaces a message. The search core never calls this;
// it is how imports and tests populate the message store.
func (s *SQLiteStorage) PutMessage(ctx context.Context, msg *models.Message) error {
	row := messageRow{
		ID:            msg.ID,
		AccountID:     msg.AccountID,
		Subject:       msg.Subject,
		SenderName:    msg.SenderName,
		SenderAddress: msg.SenderAddress,
		BodyExcerpt:   msg.BodyExcerpt,
	}
	if !msg.ReceivedAt.IsZero() {
		row.ReceivedAt = msg.ReceivedAt.UnixNano()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO messages (id, account_id, subject, sender_name, sender_address, body_excerpt, received_at)
		VALUES (:id, :account_id, :subject, :sender_name, :sender_address, :body_excerpt, :received_at)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			subject = excluded.subject,
			sender_name = excluded.sender_name,
			sender_address = excluded.sender_address,
			body_excerpt = excluded.body_excerpt,
			received_at = excluded.received_at`, row)
	if err != nil {
		return fmt.Errorf("failed to put message %s: %w", msg.ID, err)
	}
	return nil
}

// DeleteMessage removes a message.
func (s *SQLiteStorage) DeleteMessage(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	return err
}

// GetMessage returns the message with emailID or ErrNotFound.
func (s *SQLiteStorage) GetMessage(ctx context.Context, emailID string) (*models.Message, error) {
	var row messageRow
	err := s.db.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, emailID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", emailID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// GetMessages returns the messages that exist among emailIDs.
func (s *SQLiteStorage) GetMessages(ctx context.Context, emailIDs []string) (map[string]*models.Message, error) {
	out := make(map[string]*models.Message, len(emailIDs))
	err := s.forChunks(emailIDs, func(chunk []string) error {
		query, args, err := sqlx.In(`SELECT `+messageColumns+` FROM messages WHERE id IN (?)`, chunk)
		if err != nil {
			return err
		}
		var rows []messageRow
		if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
			return err
		}
		for i := range rows {
			out[rows[i].ID] = rows[i].toModel()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return out, nil
}

// ListMessagesByAccount returns the account's messages, newest first.
func (s *SQLiteStorage) ListMessagesByAccount(ctx context.Context, accountID string) ([]*models.Message, error) {
	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT `+messageColumns+` FROM messages WHERE account_id = ? ORDER BY received_at DESC, id`, accountID); err != nil {
		return nil, err
	}
	out := make([]*models.Message, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}

// CountMessages returns the number of stored messages.
func (s *SQLiteStorage) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM messages`)
	return n, err
}

const messageColumns = `id, account_id, subject, sender_name, sender_address, body_excerpt, received_at`

func (s *SQLiteStorage) forChunks(ids []string, fn func([]string) error) error {
	for start := 0; start < len(ids); start += maxInParams {
		end := start + maxInParams
		if end > len(ids) {
			end = len(ids)
		}
		if err := fn(ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *recordRow) toModel() (*models.SearchRecord, error) {
	emb, err := decodeEmbedding(r.Embedding)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", r.EmailID, err)
	}
	return &models.SearchRecord{
		EmailID:   r.EmailID,
		AccountID: r.AccountID,
		Content:   r.Content,
		Embedding: emb,
		UpdatedAt: time.Unix(0, r.UpdatedAt),
	}, nil
}

func (r *messageRow) toModel() *models.Message {
	msg := &models.Message{
		ID:            r.ID,
		AccountID:     r.AccountID,
		Subject:       r.Subject,
		SenderName:    r.SenderName,
		SenderAddress: r.SenderAddress,
		BodyExcerpt:   r.BodyExcerpt,
	}
	if r.ReceivedAt != 0 {
		msg.ReceivedAt = time.Unix(0, r.ReceivedAt)
	}
	return msg
}

// encodeEmbedding packs v as little-endian float32s; nil or empty encodes as NULL.
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("corrupt embedding blob of %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
