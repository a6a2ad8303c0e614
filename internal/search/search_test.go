package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironclaw/core/internal/docstore"
)

type fakeLexical struct {
	byScope map[string][]Candidate
}

func (f *fakeLexical) SearchText(ctx context.Context, scope, query string, limit int) ([]Candidate, error) {
	return f.byScope[scope], nil
}

type fakeVector struct {
	byScope map[string][]Candidate
}

func (f *fakeVector) SearchVector(ctx context.Context, scope string, q []float32, limit int) ([]Candidate, error) {
	return f.byScope[scope], nil
}

func TestHybridSearchRRFFusion(t *testing.T) {
	lex := &fakeLexical{byScope: map[string][]Candidate{
		"ws": {
			{Chunk: docstore.Chunk{ID: "a"}, Rank: 1, Score: 0.9},
			{Chunk: docstore.Chunk{ID: "b"}, Rank: 2, Score: 0.5},
		},
	}}
	vec := &fakeVector{byScope: map[string][]Candidate{
		"ws": {
			{Chunk: docstore.Chunk{ID: "b"}, Rank: 1, Score: 0.99},
			{Chunk: docstore.Chunk{ID: "a"}, Rank: 2, Score: 0.2},
		},
	}}
	engine := New(lex, vec)
	results, err := engine.HybridSearch(context.Background(), []string{"ws"}, "query", []float32{0.1}, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, results, 2)
	// a: 1/61 + 1/62; b: 1/62 + 1/61 -- tied, broken by id ("a" < "b")
	assert.Equal(t, "a", results[0].Chunk.ID)
}

func TestHybridSearchWeightedFusion(t *testing.T) {
	lex := &fakeLexical{byScope: map[string][]Candidate{
		"ws": {{Chunk: docstore.Chunk{ID: "a"}, Rank: 1, Score: 1.0}},
	}}
	vec := &fakeVector{byScope: map[string][]Candidate{
		"ws": {{Chunk: docstore.Chunk{ID: "b"}, Rank: 1, Score: 1.0}},
	}}
	engine := New(lex, vec)
	cfg := DefaultConfig()
	cfg.Fusion = FusionWeighted
	cfg.FTSWeight = 0.8
	cfg.VectorWeight = 0.2
	results, err := engine.HybridSearch(context.Background(), []string{"ws"}, "q", nil, cfg)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Chunk.ID)
}

func TestHybridSearchEmptyIsNotError(t *testing.T) {
	engine := New(&fakeLexical{byScope: map[string][]Candidate{}}, &fakeVector{byScope: map[string][]Candidate{}})
	results, err := engine.HybridSearch(context.Background(), []string{"ws"}, "q", nil, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHybridSearchMultiScopeUnion(t *testing.T) {
	lex := &fakeLexical{byScope: map[string][]Candidate{
		"private": {{Chunk: docstore.Chunk{ID: "p1"}, Scope: "private", Rank: 1, Score: 1}},
		"shared":  {{Chunk: docstore.Chunk{ID: "s1"}, Scope: "shared", Rank: 1, Score: 1}},
	}}
	engine := New(lex, nil)
	cfg := DefaultConfig()
	cfg.Mode = ModeFTSOnly
	results, err := engine.HybridSearch(context.Background(), []string{"private", "shared"}, "q", nil, cfg)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestHybridSearchLimitApplied(t *testing.T) {
	var cands []Candidate
	for i := 0; i < 10; i++ {
		cands = append(cands, Candidate{Chunk: docstore.Chunk{ID: string(rune('a' + i))}, Rank: i + 1, Score: float64(10 - i)})
	}
	lex := &fakeLexical{byScope: map[string][]Candidate{"ws": cands}}
	engine := New(lex, nil)
	cfg := DefaultConfig()
	cfg.Mode = ModeFTSOnly
	cfg.Limit = 3
	results, err := engine.HybridSearch(context.Background(), []string{"ws"}, "q", nil, cfg)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}
