// Package indexer keeps the derived search corpus (record store, lexical index and
// in-memory vector index) in step with the message corpus.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/tegami/internal/embedding"
	"github.com/hyperjump/tegami/internal/keyword"
	"github.com/hyperjump/tegami/internal/models"
	"github.com/hyperjump/tegami/internal/storage"
	"github.com/hyperjump/tegami/internal/vector"
)

var (
	// ErrIndexClosed is returned by mutating operations before OpenIndex or after CloseIndex.
	ErrIndexClosed = errors.New("search index is closed")
	// ErrInvalidMessage is returned for a nil message or an empty email id.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrInvalidAccount is returned for an empty account id.
	ErrInvalidAccount = errors.New("invalid account id")
)

// DefaultWorkers is the IndexBatch concurrency when none is configured.
const DefaultWorkers = 4

// Manager mirrors every indexed email into three stores that can each fail on their own:
// the record store, the lexical index and the vector index. They are not updated
// transactionally. By default a failing store is logged and the operation carries on, since
// everything here can be rebuilt from the messages; WithStrictErrors returns the failures.
//
// Mutations are serialized by one gate. Embeddings are computed before the gate is taken.
type Manager struct {
	records  storage.RecordStore
	messages storage.MessageStore
	lexical  keyword.LexicalIndex
	vectors  *vector.MemoryIndex

	generator *embedding.Generator
	logger    *zap.Logger
	strict    bool
	workers   int

	gate sync.Mutex
	open atomic.Bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithStrictErrors makes store failures propagate (joined) instead of being logged and dropped.
func WithStrictErrors() Option {
	return func(m *Manager) { m.strict = true }
}

// WithGenerator sets the embedding generator.
func WithGenerator(g *embedding.Generator) Option {
	return func(m *Manager) { m.generator = g }
}

// WithWorkers sets how many emails IndexBatch processes concurrently.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// NewManager creates a closed Manager. Call OpenIndex before indexing.
func NewManager(
	records storage.RecordStore,
	messages storage.MessageStore,
	lexical keyword.LexicalIndex,
	vectors *vector.MemoryIndex,
	opts ...Option,
) *Manager {
	m := &Manager{
		records:  records,
		messages: messages,
		lexical:  lexical,
		vectors:  vectors,
		logger:   zap.NewNop(),
		workers:  DefaultWorkers,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.generator == nil {
		m.generator = embedding.NewGenerator(embedding.WithLogger(m.logger))
	}
	return m
}

// IsOpen reports whether the index is open.
func (m *Manager) IsOpen() bool {
	return m.open.Load()
}

// OpenIndex opens the lexical index and loads persisted embeddings into the vector index.
// Calling it on an open index does nothing.
func (m *Manager) OpenIndex(ctx context.Context) error {
	m.gate.Lock()
	defer m.gate.Unlock()
	if m.open.Load() {
		return nil
	}
	if err := m.lexical.Open(); err != nil {
		return fmt.Errorf("failed to open lexical index: %w", err)
	}

	var errs []error
	m.vectors.RemoveAll()
	recs, err := m.records.ListRecords(ctx)
	if err != nil {
		m.logger.Warn("vector rehydration failed; semantic search starts empty", zap.Error(err))
		errs = append(errs, fmt.Errorf("load embeddings: %w", err))
	} else {
		entries := make([]models.VectorEntry, 0, len(recs))
		for _, r := range recs {
			if r.HasEmbedding() {
				entries = append(entries, models.VectorEntry{EmailID: r.EmailID, Embedding: r.Embedding})
			}
		}
		m.vectors.Load(entries)
		m.logger.Debug("search index opened", zap.Int("records", len(recs)), zap.Int("vectors", len(entries)))
	}
	m.open.Store(true)
	return m.result(errs)
}

// CloseIndex closes the lexical index and clears the vector index.
// Calling it on a closed index does nothing.
func (m *Manager) CloseIndex() error {
	m.gate.Lock()
	defer m.gate.Unlock()
	if !m.open.Load() {
		return nil
	}
	m.open.Store(false)
	m.vectors.RemoveAll()
	if err := m.lexical.Close(); err != nil {
		return fmt.Errorf("failed to close lexical index: %w", err)
	}
	m.logger.Debug("search index closed")
	return nil
}

// IndexEmail upserts the search record and lexical entry for msg and, when provider yields
// an embedding, its vector. Re-indexing without an embedding evicts any stale vector.
// A nil provider indexes without an embedding.
func (m *Manager) IndexEmail(ctx context.Context, msg *models.Message, provider embedding.Provider) error {
	if msg == nil || msg.ID == "" {
		return ErrInvalidMessage
	}
	if !m.open.Load() {
		return ErrIndexClosed
	}

	content := BuildContent(msg)
	emb := m.generator.EmbedQuery(ctx, content, provider)

	m.gate.Lock()
	defer m.gate.Unlock()
	if !m.open.Load() {
		return ErrIndexClosed
	}

	log := m.logger.With(zap.String("email_id", msg.ID), zap.String("account_id", msg.AccountID))
	var errs []error
	rec := &models.SearchRecord{
		EmailID:   msg.ID,
		AccountID: msg.AccountID,
		Content:   content,
		Embedding: emb,
		UpdatedAt: time.Now(),
	}
	if err := m.records.UpsertRecord(ctx, rec); err != nil {
		log.Warn("record store upsert failed", zap.Error(err))
		errs = append(errs, err)
	}
	if err := m.lexical.Upsert(ctx, msg.ID, msg.AccountID, content); err != nil {
		log.Warn("lexical index upsert failed", zap.Error(err))
		errs = append(errs, err)
	}
	if emb != nil {
		m.vectors.Add(msg.ID, emb)
	} else {
		m.vectors.Remove(msg.ID)
		log.Debug("indexed without embedding")
	}
	return m.result(errs)
}

// IndexBatch indexes msgs with bounded concurrency and returns how many were indexed
// without error. A failure on one message does not stop the others.
func (m *Manager) IndexBatch(ctx context.Context, msgs []*models.Message, provider embedding.Provider) (int, error) {
	var (
		indexed atomic.Int64
		mu      sync.Mutex
		errs    []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, msg := range msgs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := m.IndexEmail(gctx, msg, provider); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			indexed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}
	return int(indexed.Load()), errors.Join(errs...)
}

// RemoveEmail deletes emailID from all three stores. Unknown ids are not an error.
func (m *Manager) RemoveEmail(ctx context.Context, emailID string) error {
	if emailID == "" {
		return ErrInvalidMessage
	}
	m.gate.Lock()
	defer m.gate.Unlock()
	if !m.open.Load() {
		return ErrIndexClosed
	}

	log := m.logger.With(zap.String("email_id", emailID))
	var errs []error
	if err := m.records.DeleteRecord(ctx, emailID); err != nil {
		log.Warn("record store delete failed", zap.Error(err))
		errs = append(errs, err)
	}
	if err := m.lexical.Delete(ctx, emailID); err != nil {
		log.Warn("lexical index delete failed", zap.Error(err))
		errs = append(errs, err)
	}
	m.vectors.Remove(emailID)
	return m.result(errs)
}

// RemoveAllForAccount deletes every entry of accountID from all three stores.
// Other accounts are untouched.
func (m *Manager) RemoveAllForAccount(ctx context.Context, accountID string) error {
	if accountID == "" {
		return ErrInvalidAccount
	}
	m.gate.Lock()
	defer m.gate.Unlock()
	if !m.open.Load() {
		return ErrIndexClosed
	}

	log := m.logger.With(zap.String("account_id", accountID))
	var errs []error
	ids, err := m.records.DeleteRecordsByAccount(ctx, accountID)
	if err != nil {
		log.Warn("record store account delete failed; vectors for the account are kept", zap.Error(err))
		errs = append(errs, err)
	}
	if err := m.lexical.DeleteAllForAccount(ctx, accountID); err != nil {
		log.Warn("lexical index account delete failed", zap.Error(err))
		errs = append(errs, err)
	}
	for _, id := range ids {
		m.vectors.Remove(id)
	}
	log.Debug("account removed from search index", zap.Int("records", len(ids)))
	return m.result(errs)
}

// BackfillReport summarizes a BackfillAccountIDs run.
type BackfillReport struct {
	// Scanned is the number of records that had no account.
	Scanned int `json:"scanned"`
	// Updated is the number of records that received an account.
	Updated int `json:"updated"`
	// Missing counts records whose message is gone or has no account itself.
	Missing int `json:"missing"`
	// Failed counts records that could not be repaired because a store failed.
	Failed int `json:"failed"`
}

// BackfillAccountIDs fills in the account of records that have none, using the owning message.
// Content and embedding are left untouched; records that already have an account are not visited.
// The lexical entry is rewritten with the same content so account-filtered search finds it.
func (m *Manager) BackfillAccountIDs(ctx context.Context) (BackfillReport, error) {
	var report BackfillReport
	if !m.open.Load() {
		return report, ErrIndexClosed
	}
	recs, err := m.records.ListRecordsMissingAccount(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list records without account: %w", err)
	}
	report.Scanned = len(recs)

	var errs []error
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		log := m.logger.With(zap.String("email_id", rec.EmailID))
		msg, err := m.messages.GetMessage(ctx, rec.EmailID)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && msg.AccountID == "") {
			report.Missing++
			continue
		}
		if err != nil {
			log.Warn("message lookup failed during backfill", zap.Error(err))
			report.Failed++
			errs = append(errs, err)
			continue
		}
		updated, err := m.assignAccount(ctx, rec.EmailID, msg.AccountID)
		if err != nil {
			log.Warn("backfill failed", zap.String("account_id", msg.AccountID), zap.Error(err))
			report.Failed++
			errs = append(errs, err)
		}
		if updated {
			report.Updated++
		}
	}
	m.logger.Info("account backfill finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("updated", report.Updated),
		zap.Int("missing", report.Missing),
		zap.Int("failed", report.Failed))
	return report, m.result(errs)
}

// assignAccount sets the account under the gate, re-reading the record so a concurrent
// re-index is never overwritten with stale content.
func (m *Manager) assignAccount(ctx context.Context, emailID, accountID string) (bool, error) {
	m.gate.Lock()
	defer m.gate.Unlock()
	if !m.open.Load() {
		return false, ErrIndexClosed
	}
	changed, err := m.records.SetRecordAccount(ctx, emailID, accountID)
	if err != nil || !changed {
		return false, err
	}
	current, err := m.records.GetRecord(ctx, emailID)
	if err != nil {
		return true, fmt.Errorf("reload record: %w", err)
	}
	if err := m.lexical.Upsert(ctx, emailID, accountID, current.Content); err != nil {
		return true, fmt.Errorf("lexical index upsert: %w", err)
	}
	return true, nil
}

// ReindexAccount re-indexes every message the message store lists for accountID.
func (m *Manager) ReindexAccount(ctx context.Context, accountID string, provider embedding.Provider) (int, error) {
	if accountID == "" {
		return 0, ErrInvalidAccount
	}
	if !m.open.Load() {
		return 0, ErrIndexClosed
	}
	msgs, err := m.messages.ListMessagesByAccount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to list messages for account %s: %w", accountID, err)
	}
	return m.IndexBatch(ctx, msgs, provider)
}

// Stats describes the current state of the three stores.
type Stats struct {
	Open        bool   `json:"open"`
	Records     int64  `json:"records"`
	Embeddings  int64  `json:"embeddings"`
	Vectors     int    `json:"vectors"`
	Dimensions  []int  `json:"dimensions"`
	LexicalDocs uint64 `json:"lexical_docs"`
}

// Stats collects counts from every store. Lexical counts are only available while open.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		Open:       m.open.Load(),
		Vectors:    m.vectors.Count(),
		Dimensions: m.vectors.Dimensions(),
	}
	var err error
	if st.Records, err = m.records.CountRecords(ctx); err != nil {
		return st, fmt.Errorf("count records: %w", err)
	}
	if st.Embeddings, err = m.records.CountEmbeddings(ctx); err != nil {
		return st, fmt.Errorf("count embeddings: %w", err)
	}
	if st.Open {
		if st.LexicalDocs, err = m.lexical.DocCount(); err != nil {
			return st, fmt.Errorf("count lexical documents: %w", err)
		}
	}
	return st, nil
}

func (m *Manager) result(errs []error) error {
	if !m.strict || len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
