package docstore

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestSQLiteBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ironclaw.db")
	backend, err := OpenSQLiteBackend(path)
	if err != nil {
		t.Fatalf("OpenSQLiteBackend() error = %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	return backend
}

func TestSQLiteBackendPutGet(t *testing.T) {
	ctx := context.Background()
	backend := newTestSQLiteBackend(t)

	doc, err := backend.Put(ctx, "alice", "notes/a.md", "hello world")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if doc.ContentHash == "" {
		t.Error("expected a non-empty content hash")
	}

	got, err := backend.Get(ctx, "alice", "notes/a.md")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || got.Content != "hello world" {
		t.Fatalf("unexpected document: %+v", got)
	}
	if got.ID != doc.ID {
		t.Errorf("ID changed across Get: %q vs %q", got.ID, doc.ID)
	}
}

func TestSQLiteBackendPutUpdatesExisting(t *testing.T) {
	ctx := context.Background()
	backend := newTestSQLiteBackend(t)

	first, err := backend.Put(ctx, "alice", "notes/a.md", "v1")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	second, err := backend.Put(ctx, "alice", "notes/a.md", "v2")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected the same document ID across updates")
	}
	if second.Content != "v2" {
		t.Errorf("content = %q, want v2", second.Content)
	}
}

func TestSQLiteBackendGetMissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	backend := newTestSQLiteBackend(t)

	doc, err := backend.Get(ctx, "alice", "missing.md")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if doc != nil {
		t.Errorf("expected nil for a missing document, got %+v", doc)
	}
}

func TestSQLiteBackendDeleteRemovesDocumentAndChunks(t *testing.T) {
	ctx := context.Background()
	backend := newTestSQLiteBackend(t)

	doc, err := backend.Put(ctx, "alice", "a.md", "content")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := backend.InsertChunks(ctx, doc.ID, []Chunk{{Content: "content", LineStart: 1, LineEnd: 1}}); err != nil {
		t.Fatalf("InsertChunks() error = %v", err)
	}

	if err := backend.Delete(ctx, "alice", "a.md"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	got, err := backend.Get(ctx, "alice", "a.md")
	if err != nil || got != nil {
		t.Fatalf("expected document gone after delete, got %+v, err %v", got, err)
	}
	chunks, err := backend.ChunksByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ChunksByDocument() error = %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks after delete, got %d", len(chunks))
	}
}

func TestSQLiteBackendListByPrefix(t *testing.T) {
	ctx := context.Background()
	backend := newTestSQLiteBackend(t)

	for _, p := range []string{"notes/a.md", "notes/b.md", "config/c.md"} {
		if _, err := backend.Put(ctx, "alice", p, "x"); err != nil {
			t.Fatalf("Put(%q) error = %v", p, err)
		}
	}

	paths, err := backend.List(ctx, "alice", "notes/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths under notes/, got %v", paths)
	}
}

func TestSQLiteBackendAppend(t *testing.T) {
	ctx := context.Background()
	backend := newTestSQLiteBackend(t)

	if _, err := backend.Append(ctx, "alice", "log.md", "first"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	doc, err := backend.Append(ctx, "alice", "log.md", "second")
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if doc.Content != "first\n\nsecond" {
		t.Errorf("content = %q", doc.Content)
	}
}

func TestSQLiteBackendChunksWithEmbedding(t *testing.T) {
	ctx := context.Background()
	backend := newTestSQLiteBackend(t)

	doc, err := backend.Put(ctx, "alice", "a.md", "one two three")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	chunks := []Chunk{
		{Content: "one two", LineStart: 1, LineEnd: 1, CharStart: 0, CharEnd: 7, Embedding: []float32{0.1, 0.2}},
	}
	if err := backend.InsertChunks(ctx, doc.ID, chunks); err != nil {
		t.Fatalf("InsertChunks() error = %v", err)
	}

	got, err := backend.ChunksByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ChunksByDocument() error = %v", err)
	}
	if len(got) != 1 || len(got[0].Embedding) != 2 {
		t.Fatalf("unexpected chunks: %+v", got)
	}
}
