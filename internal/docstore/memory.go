package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBackend is an in-memory Backend, grounded on the teacher's
// internal/storage/memory.go clone-on-read pattern: every read returns
// a copy so callers can't mutate shared state through a returned
// pointer.
type MemoryBackend struct {
	mu     sync.RWMutex
	docs   map[string]*Document // key: scope + "\x00" + path
	chunks map[string][]Chunk   // key: documentID
}

// NewMemoryBackend constructs an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		docs:   make(map[string]*Document),
		chunks: make(map[string][]Chunk),
	}
}

func docKey(scope, path string) string {
	return scope + "\x00" + path
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func (m *MemoryBackend) Put(ctx context.Context, scope, path, content string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := docKey(scope, path)
	now := time.Now()
	existing, ok := m.docs[key]
	doc := &Document{
		ID:          uuid.NewString(),
		Scope:       scope,
		Path:        path,
		Content:     content,
		ContentHash: hashContent(content),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if ok {
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
	}
	m.docs[key] = doc
	cp := *doc
	return &cp, nil
}

func (m *MemoryBackend) Get(ctx context.Context, scope, path string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[docKey(scope, path)]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (m *MemoryBackend) Delete(ctx context.Context, scope, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := docKey(scope, path)
	if doc, ok := m.docs[key]; ok {
		delete(m.chunks, doc.ID)
	}
	delete(m.docs, key)
	return nil
}

func (m *MemoryBackend) List(ctx context.Context, scope, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var paths []string
	for _, doc := range m.docs {
		if doc.Scope != scope {
			continue
		}
		if !strings.HasPrefix(doc.Path, prefix) {
			continue
		}
		paths = append(paths, doc.Path)
	}
	sort.Strings(paths)
	return paths, nil
}

func (m *MemoryBackend) Append(ctx context.Context, scope, path, content string) (*Document, error) {
	m.mu.Lock()
	existing, ok := m.docs[docKey(scope, path)]
	var merged string
	if ok {
		merged = existing.Content + "\n\n" + content
	} else {
		merged = content
	}
	m.mu.Unlock()
	return m.Put(ctx, scope, path, merged)
}

func (m *MemoryBackend) InsertChunks(ctx context.Context, documentID string, chunks []Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]Chunk, len(chunks))
	for i, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.DocumentID = documentID
		stored[i] = c
	}
	m.chunks[documentID] = stored
	return nil
}

func (m *MemoryBackend) DeleteChunks(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, documentID)
	return nil
}

func (m *MemoryBackend) ChunksByDocument(ctx context.Context, documentID string) ([]Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chunks := m.chunks[documentID]
	cp := make([]Chunk, len(chunks))
	copy(cp, chunks)
	return cp, nil
}
