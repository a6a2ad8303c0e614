package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// WebhookDedupStore records inbound webhook delivery IDs so a retried
// delivery is recognized and skipped rather than re-processed. Entries
// are pruned once older than a caller-supplied retention window.
type WebhookDedupStore interface {
	// Seen records key as delivered and reports whether it had already
	// been recorded (true = duplicate, skip processing).
	Seen(ctx context.Context, key string) (bool, error)
	// Prune removes records older than olderThan.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// MemoryWebhookDedupStore is an in-memory WebhookDedupStore.
type MemoryWebhookDedupStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemoryWebhookDedupStore returns an empty in-memory dedup store.
func NewMemoryWebhookDedupStore() *MemoryWebhookDedupStore {
	return &MemoryWebhookDedupStore{seen: make(map[string]time.Time)}
}

func (s *MemoryWebhookDedupStore) Seen(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, dup := s.seen[key]
	if !dup {
		s.seen[key] = time.Now()
	}
	return dup, nil
}

func (s *MemoryWebhookDedupStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var pruned int64
	for key, seenAt := range s.seen {
		if seenAt.Before(cutoff) {
			delete(s.seen, key)
			pruned++
		}
	}
	return pruned, nil
}

// SQLiteWebhookDedupStore is a WebhookDedupStore persisted to the
// shared SQLite file, grounded on internal/docstore/sqlite.go's
// Open*Store(path) idiom. Seen uses an INSERT ... ON CONFLICT DO
// NOTHING so the duplicate check and the record-keeping happen in a
// single round trip.
type SQLiteWebhookDedupStore struct {
	db *sql.DB
}

// OpenSQLiteWebhookDedupStore opens (creating if absent) a SQLite-backed
// WebhookDedupStore at path and ensures its schema exists.
func OpenSQLiteWebhookDedupStore(path string) (*SQLiteWebhookDedupStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(webhookDedupSchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("webhook dedup schema: %w", err)
	}
	return &SQLiteWebhookDedupStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteWebhookDedupStore) Close() error { return s.db.Close() }

const webhookDedupSchemaSQL = `
CREATE TABLE IF NOT EXISTS webhook_deliveries (
	delivery_key TEXT PRIMARY KEY,
	seen_at DATETIME NOT NULL
);
`

func (s *SQLiteWebhookDedupStore) Seen(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (delivery_key, seen_at)
		VALUES (?, ?)
		ON CONFLICT(delivery_key) DO NOTHING`, key, time.Now())
	if err != nil {
		return false, fmt.Errorf("record webhook delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record webhook delivery: %w", err)
	}
	return n == 0, nil // 0 rows affected means the key already existed
}

func (s *SQLiteWebhookDedupStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `DELETE FROM webhook_deliveries WHERE seen_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune webhook deliveries: %w", err)
	}
	return res.RowsAffected()
}
