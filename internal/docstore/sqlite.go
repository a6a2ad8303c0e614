package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteBackend is a Backend persisted to a single SQLite file (the
// "ironclaw.db" embedded store), grounded on the Backend interface's
// contract and the teacher's cockroachAgentStore's raw-SQL idiom.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLiteBackend opens (creating if absent) a SQLite-backed Backend
// at path and ensures its schema exists.
func OpenSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid lock contention

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("docstore schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteBackend) Close() error { return s.db.Close() }

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	scope TEXT NOT NULL,
	path TEXT NOT NULL,
	content TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	mime TEXT NOT NULL DEFAULT '',
	agent_owner TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE(scope, path)
);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	ordinal INTEGER NOT NULL,
	content TEXT NOT NULL,
	line_start INTEGER NOT NULL,
	line_end INTEGER NOT NULL,
	char_start INTEGER NOT NULL,
	char_end INTEGER NOT NULL,
	embedding TEXT
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
`

func (s *SQLiteBackend) Put(ctx context.Context, scope, path, content string) (*Document, error) {
	existing, err := s.Get(ctx, scope, path)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	doc := &Document{
		ID:          uuid.NewString(),
		Scope:       scope,
		Path:        path,
		Content:     content,
		ContentHash: hashContent(content),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing != nil {
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, scope, path, content, content_hash, mime, agent_owner, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, path) DO UPDATE SET
			content = excluded.content,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at`,
		doc.ID, doc.Scope, doc.Path, doc.Content, doc.ContentHash, doc.Mime, doc.AgentOwner, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("put document: %w", err)
	}
	return doc, nil
}

func (s *SQLiteBackend) Get(ctx context.Context, scope, path string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, scope, path, content, content_hash, mime, agent_owner, created_at, updated_at
		FROM documents WHERE scope = ? AND path = ?`, scope, path)

	var doc Document
	err := row.Scan(&doc.ID, &doc.Scope, &doc.Path, &doc.Content, &doc.ContentHash,
		&doc.Mime, &doc.AgentOwner, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, scope, path string) error {
	doc, err := s.Get(ctx, scope, path)
	if err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, doc.ID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) List(ctx context.Context, scope, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path FROM documents WHERE scope = ? AND path LIKE ? ESCAPE '\' ORDER BY path`,
		scope, likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// likePrefix escapes SQL LIKE metacharacters in prefix and appends a
// trailing wildcard.
func likePrefix(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "%"
}

func (s *SQLiteBackend) Append(ctx context.Context, scope, path, content string) (*Document, error) {
	existing, err := s.Get(ctx, scope, path)
	if err != nil {
		return nil, err
	}
	merged := content
	if existing != nil {
		merged = existing.Content + "\n\n" + content
	}
	return s.Put(ctx, scope, path, merged)
}

func (s *SQLiteBackend) InsertChunks(ctx context.Context, documentID string, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, ordinal, content, line_start, line_end, char_start, char_end, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert chunk: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		var embedding []byte
		if len(c.Embedding) > 0 {
			embedding, err = json.Marshal(c.Embedding)
			if err != nil {
				return fmt.Errorf("marshal embedding: %w", err)
			}
		}
		if _, err := stmt.ExecContext(ctx, id, documentID, i, c.Content, c.LineStart, c.LineEnd, c.CharStart, c.CharEnd, embedding); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteBackend) DeleteChunks(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) ChunksByDocument(ctx context.Context, documentID string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, ordinal, content, line_start, line_end, char_start, char_end, embedding
		FROM chunks WHERE document_id = ? ORDER BY ordinal`, documentID)
	if err != nil {
		return nil, fmt.Errorf("chunks by document: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var embedding []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Content,
			&c.LineStart, &c.LineEnd, &c.CharStart, &c.CharEnd, &embedding); err != nil {
			return nil, err
		}
		if len(embedding) > 0 {
			if err := json.Unmarshal(embedding, &c.Embedding); err != nil {
				return nil, fmt.Errorf("unmarshal embedding: %w", err)
			}
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
