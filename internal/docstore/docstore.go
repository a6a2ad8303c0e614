// Package docstore implements the document store and chunker: content
// addressed documents keyed by (scope, path), with a word-window
// chunker that tracks line and byte positions for citation.
package docstore

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ironclaw/core/internal/kerr"
)

// Document is a single stored piece of content, scoped and path-keyed.
type Document struct {
	ID          string
	Scope       string
	Path        string
	Content     string
	ContentHash string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Mime        string
	AgentOwner  string
}

// Chunk is a windowed slice of a Document's content, with positions
// recorded for citation and an optional embedding for vector search.
type Chunk struct {
	ID         string
	DocumentID string
	Ordinal    int
	Content    string
	LineStart  int
	LineEnd    int
	CharStart  int
	CharEnd    int
	Embedding  []float32
}

// Citation renders a chunk's position as "line N" or "lines N-M".
func (c Chunk) Citation() string {
	if c.LineStart == c.LineEnd {
		return "line " + itoa(c.LineStart)
	}
	return "lines " + itoa(c.LineStart) + "-" + itoa(c.LineEnd)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ChunkConfig controls the sliding-window chunker.
type ChunkConfig struct {
	ChunkSizeWords   int
	OverlapPercent   float64 // in [0,1]
	MinChunkSizeWords int
}

// DefaultChunkConfig matches the teacher's chunker defaults, adjusted to
// this package's word-window contract.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		ChunkSizeWords:    256,
		OverlapPercent:    0.15,
		MinChunkSizeWords: 32,
	}
}

// Backend is the storage contract a docstore implementation satisfies.
// sqlitestore and pgstore both implement it; an in-memory backend backs
// unit tests (see memory.go).
type Backend interface {
	Put(ctx context.Context, scope, path, content string) (*Document, error)
	Get(ctx context.Context, scope, path string) (*Document, error)
	Delete(ctx context.Context, scope, path string) error
	List(ctx context.Context, scope, prefix string) ([]string, error)
	Append(ctx context.Context, scope, path, content string) (*Document, error)
	InsertChunks(ctx context.Context, documentID string, chunks []Chunk) error
	DeleteChunks(ctx context.Context, documentID string) error
	ChunksByDocument(ctx context.Context, documentID string) ([]Chunk, error)
}

// Store wraps a Backend with the chunker, per spec.md §4.1.
type Store struct {
	backend Backend
}

// New wraps the given backend.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// NormalizePath rejects `..` segments, NUL bytes, and backslashes;
// strips leading slashes and collapses repeated slashes. Idempotent.
func NormalizePath(path string) (string, error) {
	if strings.ContainsRune(path, 0) {
		return "", kerr.New(kerr.Validation, "path contains NUL byte")
	}
	if strings.Contains(path, "\\") {
		return "", kerr.New(kerr.Validation, "path contains backslash")
	}
	segments := strings.Split(path, "/")
	cleaned := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == ".." {
			return "", kerr.New(kerr.Validation, "path contains '..' segment")
		}
		if seg == "" {
			continue
		}
		cleaned = append(cleaned, seg)
	}
	return strings.Join(cleaned, "/"), nil
}

// Put normalizes the path and stores content, failing with Validation on
// a bad path.
func (s *Store) Put(ctx context.Context, scope, path, content string) (*Document, error) {
	norm, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}
	doc, err := s.backend.Put(ctx, scope, norm, content)
	if err != nil {
		return nil, kerr.Wrap(kerr.Storage, err)
	}
	return doc, nil
}

// Get fails with NotFound if the (scope, path) pair is absent.
func (s *Store) Get(ctx context.Context, scope, path string) (*Document, error) {
	norm, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}
	doc, err := s.backend.Get(ctx, scope, norm)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, kerr.New(kerr.NotFound, "document not found: %s/%s", scope, norm)
	}
	return doc, nil
}

// Delete removes a document and its chunks.
func (s *Store) Delete(ctx context.Context, scope, path string) error {
	norm, err := NormalizePath(path)
	if err != nil {
		return err
	}
	return s.backend.Delete(ctx, scope, norm)
}

// List returns paths under a scope with the given prefix, in order.
func (s *Store) List(ctx context.Context, scope, prefix string) ([]string, error) {
	norm, _ := NormalizePath(prefix)
	return s.backend.List(ctx, scope, norm)
}

// Append concatenates new content onto the existing document with a
// blank-line separator, creating the document if absent.
func (s *Store) Append(ctx context.Context, scope, path, content string) (*Document, error) {
	norm, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}
	return s.backend.Append(ctx, scope, norm, content)
}

// InsertChunks persists pre-computed chunks (optionally with
// embeddings) for a document.
func (s *Store) InsertChunks(ctx context.Context, documentID string, chunks []Chunk) error {
	return s.backend.InsertChunks(ctx, documentID, chunks)
}

// DeleteChunks removes all chunks belonging to a document.
func (s *Store) DeleteChunks(ctx context.Context, documentID string) error {
	return s.backend.DeleteChunks(ctx, documentID)
}

// NewChunkID produces a fresh chunk identifier.
func NewChunkID() string {
	return uuid.NewString()
}
