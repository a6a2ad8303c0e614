package secrets

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ironclaw/core/internal/kerr"
)

// SQLiteStore is a Store persisted to a SQLite file, holding only
// ciphertext + nonce per secret, grounded on internal/docstore's
// SQLiteBackend raw-SQL CRUD idiom.
type SQLiteStore struct {
	db     *sql.DB
	crypto Crypto
}

// OpenSQLiteStore opens (creating if absent) a SQLite-backed Store at
// path and ensures its schema exists.
func OpenSQLiteStore(path string, crypto Crypto) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(secretsSchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("secrets schema: %w", err)
	}
	return &SQLiteStore{db: db, crypto: crypto}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

const secretsSchemaSQL = `
CREATE TABLE IF NOT EXISTS secrets (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	provider TEXT NOT NULL DEFAULT '',
	ciphertext BLOB NOT NULL,
	nonce BLOB NOT NULL,
	created_at DATETIME NOT NULL,
	expires_at DATETIME,
	usage_count INTEGER NOT NULL DEFAULT 0,
	UNIQUE(user_id, name)
);
`

func (s *SQLiteStore) Create(ctx context.Context, userID string, params CreateParams) (Metadata, error) {
	if params.Name == "" {
		return Metadata{}, kerr.New(kerr.Validation, "secret name is required")
	}

	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM secrets WHERE user_id = ? AND name = ?`, userID, params.Name).Scan(&exists)
	if err != nil {
		return Metadata{}, kerr.Wrap(kerr.Storage, err)
	}
	if exists > 0 {
		return Metadata{}, kerr.New(kerr.AlreadyExists, "secret already exists: %s", params.Name)
	}

	ciphertext, nonce, err := s.crypto.Seal(params.Value)
	if err != nil {
		return Metadata{}, kerr.Wrap(kerr.Storage, err)
	}

	meta := Metadata{
		ID:        uuid.NewString(),
		Name:      params.Name,
		Provider:  params.Provider,
		CreatedAt: time.Now(),
		ExpiresAt: params.ExpiresAt,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO secrets (id, user_id, name, provider, ciphertext, nonce, created_at, expires_at, usage_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		meta.ID, userID, meta.Name, meta.Provider, ciphertext, nonce, meta.CreatedAt, meta.ExpiresAt,
	)
	if err != nil {
		return Metadata{}, kerr.Wrap(kerr.Storage, err)
	}
	return meta, nil
}

func (s *SQLiteStore) Get(ctx context.Context, userID, name string) (Metadata, error) {
	meta, _, _, err := s.lookup(ctx, userID, name)
	return meta, err
}

// GetDecrypted decrypts the stored ciphertext and increments the
// row's usage counter in the same statement.
func (s *SQLiteStore) GetDecrypted(ctx context.Context, userID, name string) (Plaintext, error) {
	meta, ciphertext, nonce, err := s.lookup(ctx, userID, name)
	if err != nil {
		return Plaintext{}, err
	}
	plain, err := s.crypto.Open(ciphertext, nonce)
	if err != nil {
		return Plaintext{}, kerr.Wrap(kerr.Storage, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE secrets SET usage_count = usage_count + 1 WHERE id = ?`, meta.ID); err != nil {
		return Plaintext{}, kerr.Wrap(kerr.Storage, err)
	}
	return Plaintext{value: plain}, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, userID, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE user_id = ? AND name = ?`, userID, name)
	if err != nil {
		return kerr.Wrap(kerr.Storage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return kerr.Wrap(kerr.Storage, err)
	}
	if n == 0 {
		return kerr.New(kerr.SecretNotFound, "secret not found: %s", name)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, userID string) ([]Metadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, provider, created_at, expires_at, usage_count
		FROM secrets WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, kerr.Wrap(kerr.Storage, err)
	}
	defer rows.Close()

	var out []Metadata
	for rows.Next() {
		var m Metadata
		if err := rows.Scan(&m.ID, &m.Name, &m.Provider, &m.CreatedAt, &m.ExpiresAt, &m.UsageCount); err != nil {
			return nil, kerr.Wrap(kerr.Storage, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) lookup(ctx context.Context, userID, name string) (Metadata, []byte, []byte, error) {
	var m Metadata
	var ciphertext, nonce []byte
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, provider, created_at, expires_at, usage_count, ciphertext, nonce
		FROM secrets WHERE user_id = ? AND name = ?`, userID, name)
	err := row.Scan(&m.ID, &m.Name, &m.Provider, &m.CreatedAt, &m.ExpiresAt, &m.UsageCount, &ciphertext, &nonce)
	if err == sql.ErrNoRows {
		return Metadata{}, nil, nil, kerr.New(kerr.SecretNotFound, "secret not found: %s", name)
	}
	if err != nil {
		return Metadata{}, nil, nil, kerr.Wrap(kerr.Storage, err)
	}
	return m, ciphertext, nonce, nil
}
