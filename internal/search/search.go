// Package search implements hybrid lexical+vector search over document
// chunks across one or more workspace scopes, fusing per-source rankings
// by Reciprocal Rank Fusion or a weighted-score blend.
package search

import (
	"context"
	"sort"

	"github.com/ironclaw/core/internal/docstore"
	"github.com/ironclaw/core/internal/kerr"
)

// FusionMode selects how per-source rankings are combined.
type FusionMode string

const (
	FusionRRF      FusionMode = "rrf"
	FusionWeighted FusionMode = "weighted"
)

// SearchMode controls which candidate sources are consulted.
type SearchMode string

const (
	ModeBoth       SearchMode = "both"
	ModeFTSOnly    SearchMode = "fts_only"
	ModeVectorOnly SearchMode = "vector_only"
)

// Config configures one hybrid_search call. Defaults: both sources on,
// RRF fusion with k=60.
type Config struct {
	Limit        int
	Mode         SearchMode
	Fusion       FusionMode
	RRFK         int
	FTSWeight    float64
	VectorWeight float64
}

// DefaultConfig returns spec.md §4.2's stated defaults.
func DefaultConfig() Config {
	return Config{
		Limit:        20,
		Mode:         ModeBoth,
		Fusion:       FusionRRF,
		RRFK:         60,
		FTSWeight:    0.5,
		VectorWeight: 0.5,
	}
}

// ScoredChunk is a chunk with its fused relevance score.
type ScoredChunk struct {
	Chunk docstore.Chunk
	Scope string
	Score float64
}

// Candidate is a single-source ranked hit, used internally to fuse
// across the lexical and vector subsystems.
type Candidate struct {
	Chunk docstore.Chunk
	Scope string
	Rank  int     // 1-based rank within its source
	Score float64 // raw source score, used by weighted fusion
}

// LexicalSource scores chunks in a scope by full-text match.
type LexicalSource interface {
	SearchText(ctx context.Context, scope, queryText string, limit int) ([]Candidate, error)
}

// VectorSource scores chunks in a scope by cosine distance.
type VectorSource interface {
	SearchVector(ctx context.Context, scope string, queryVector []float32, limit int) ([]Candidate, error)
}

// Engine performs hybrid_search across scopes using a lexical and/or
// vector source.
type Engine struct {
	Lexical LexicalSource
	Vector  VectorSource
}

// New constructs an Engine. Either source may be nil if unused by every
// call's Mode.
func New(lexical LexicalSource, vector VectorSource) *Engine {
	return &Engine{Lexical: lexical, Vector: vector}
}

// HybridSearch implements spec.md §4.2's contract: collect per-scope
// candidates from the requested sources, union across scopes preserving
// per-source rank, fuse, break ties by chunk id, and return the top
// Limit results.
func (e *Engine) HybridSearch(ctx context.Context, scopes []string, queryText string, queryVector []float32, cfg Config) ([]ScoredChunk, error) {
	if cfg.Limit <= 0 {
		cfg = DefaultConfig()
	}

	wantFTS := cfg.Mode == ModeBoth || cfg.Mode == ModeFTSOnly
	wantVector := cfg.Mode == ModeBoth || cfg.Mode == ModeVectorOnly

	if wantVector && len(queryVector) == 0 && e.Vector == nil {
		return nil, kerr.New(kerr.Validation, "vector_only mode requested but no embedding index is configured")
	}

	var ftsCandidates, vecCandidates []Candidate

	for _, scope := range scopes {
		if wantFTS && e.Lexical != nil {
			hits, err := e.Lexical.SearchText(ctx, scope, queryText, cfg.Limit)
			if err != nil {
				return nil, kerr.Wrap(kerr.Storage, err)
			}
			ftsCandidates = append(ftsCandidates, hits...)
		}
		if wantVector && e.Vector != nil {
			hits, err := e.Vector.SearchVector(ctx, scope, queryVector, cfg.Limit)
			if err != nil {
				return nil, kerr.Wrap(kerr.Storage, err)
			}
			vecCandidates = append(vecCandidates, hits...)
		}
	}

	if len(ftsCandidates) == 0 && len(vecCandidates) == 0 {
		return []ScoredChunk{}, nil
	}

	var fused []ScoredChunk
	switch cfg.Fusion {
	case FusionWeighted:
		fused = fuseWeighted(ftsCandidates, vecCandidates, cfg)
	default:
		fused = fuseRRF(ftsCandidates, vecCandidates, cfg.RRFK)
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].Chunk.ID < fused[j].Chunk.ID
	})

	if len(fused) > cfg.Limit {
		fused = fused[:cfg.Limit]
	}
	return fused, nil
}

func fuseRRF(fts, vec []Candidate, k int) []ScoredChunk {
	if k <= 0 {
		k = 60
	}
	scores := make(map[string]*ScoredChunk)
	add := func(cands []Candidate) {
		for _, c := range cands {
			sc, ok := scores[c.Chunk.ID]
			contribution := 1.0 / float64(k+c.Rank)
			if !ok {
				scores[c.Chunk.ID] = &ScoredChunk{Chunk: c.Chunk, Scope: c.Scope, Score: contribution}
			} else {
				sc.Score += contribution
			}
		}
	}
	add(fts)
	add(vec)
	return flatten(scores)
}

func fuseWeighted(fts, vec []Candidate, cfg Config) []ScoredChunk {
	normFTS := normalize(fts)
	normVec := normalize(vec)
	scores := make(map[string]*ScoredChunk)
	for id, s := range normFTS {
		scores[id] = &ScoredChunk{Chunk: s.Chunk, Scope: s.Scope, Score: cfg.FTSWeight * s.Score}
	}
	for id, s := range normVec {
		if existing, ok := scores[id]; ok {
			existing.Score += cfg.VectorWeight * s.Score
		} else {
			scores[id] = &ScoredChunk{Chunk: s.Chunk, Scope: s.Scope, Score: cfg.VectorWeight * s.Score}
		}
	}
	return flatten(scores)
}

func normalize(cands []Candidate) map[string]ScoredChunk {
	out := make(map[string]ScoredChunk, len(cands))
	if len(cands) == 0 {
		return out
	}
	min, max := cands[0].Score, cands[0].Score
	for _, c := range cands {
		if c.Score < min {
			min = c.Score
		}
		if c.Score > max {
			max = c.Score
		}
	}
	span := max - min
	for _, c := range cands {
		var norm float64
		if span == 0 {
			norm = 1
		} else {
			norm = (c.Score - min) / span
		}
		out[c.Chunk.ID] = ScoredChunk{Chunk: c.Chunk, Scope: c.Scope, Score: norm}
	}
	return out
}

func flatten(scores map[string]*ScoredChunk) []ScoredChunk {
	out := make([]ScoredChunk, 0, len(scores))
	for _, s := range scores {
		out = append(out, *s)
	}
	return out
}
