package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ironclaw/core/internal/docstore"
)

// PGVectorSource is a VectorSource backed by a Postgres table with a
// pgvector `vector` column, queried by cosine distance (`<=>`). It
// assumes a chunks table shaped like internal/docstore's SQLite schema,
// plus an `embedding vector(n)` column populated out of band.
type PGVectorSource struct {
	pool  *pgxpool.Pool
	table string
}

// PGVectorConfig configures a PGVectorSource.
type PGVectorConfig struct {
	// Table is the chunk table name, default "chunks".
	Table string
}

// NewPGVectorSource wraps an existing connection pool. The pool is not
// closed by this package; the caller owns its lifecycle.
func NewPGVectorSource(pool *pgxpool.Pool, cfg PGVectorConfig) *PGVectorSource {
	table := cfg.Table
	if table == "" {
		table = "chunks"
	}
	return &PGVectorSource{pool: pool, table: table}
}

// SearchVector implements search.VectorSource by ordering chunks in
// scope by cosine distance to queryVector and returning the nearest
// limit rows, each tagged with its 1-based rank and a similarity score
// (1 - distance, so higher is better like the lexical source's score).
func (s *PGVectorSource) SearchVector(ctx context.Context, scope string, queryVector []float32, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = 20
	}
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("pgvector: empty query vector")
	}

	query := fmt.Sprintf(`
		SELECT c.id, c.document_id, c.ordinal, c.content, c.line_start, c.line_end, c.char_start, c.char_end,
		       c.embedding <=> $1::vector AS distance
		FROM %s c
		JOIN documents d ON d.id = c.document_id
		WHERE d.scope = $2
		ORDER BY distance ASC
		LIMIT $3`, s.table)

	rows, err := s.pool.Query(ctx, query, vectorLiteral(queryVector), scope, limit)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	rank := 0
	for rows.Next() {
		rank++
		var c docstore.Chunk
		var distance float64
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Content,
			&c.LineStart, &c.LineEnd, &c.CharStart, &c.CharEnd, &distance); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		candidates = append(candidates, Candidate{
			Chunk: c,
			Scope: scope,
			Rank:  rank,
			Score: 1 - distance,
		})
	}
	return candidates, rows.Err()
}

// vectorLiteral renders a float32 slice as pgvector's text input
// format: "[v1,v2,...]".
func vectorLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
