// Package mock provides deterministic in-process implementations of the ai
// interfaces for tests and offline development.
package mock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"sync/atomic"

	"github.com/tofunori/obsidian-mcp/internal/ai"
)

// Embedder deterministically hashes text into unit vectors: the same input
// always yields the same embedding, and different inputs almost surely
// differ. Dim defaults to 8.
type Embedder struct {
	Dim   int
	Err   error
	calls atomic.Int64
}

// Calls reports how many embed requests were served.
func (e *Embedder) Calls() int64 { return e.calls.Load() }

func (e *Embedder) dim() int {
	if e.Dim <= 0 {
		return 8
	}
	return e.Dim
}

func (e *Embedder) vector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, e.dim())
	var norm float64
	for i := range vec {
		bits := binary.LittleEndian.Uint32(sum[(i*4)%(len(sum)-4):])
		v := float64(bits%2000)/1000.0 - 1.0 // [-1, 1)
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

// EmbedDocuments implements ai.Embedder.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	if len(texts) == 0 {
		return nil, ai.ErrEmptyInput
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

// EmbedQuery implements ai.Embedder.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	if text == "" {
		return nil, ai.ErrEmptyInput
	}
	return e.vector(text), nil
}

// Reranker scores documents by naive token overlap with the query, which is
// deterministic and good enough to exercise rerank plumbing in tests.
type Reranker struct {
	Err   error
	calls atomic.Int64
}

// Calls reports how many rerank requests were served.
func (r *Reranker) Calls() int64 { return r.calls.Load() }

// Rerank implements ai.Reranker.
func (r *Reranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]ai.RerankResult, error) {
	r.calls.Add(1)
	if r.Err != nil {
		return nil, r.Err
	}
	if query == "" || len(documents) == 0 {
		return nil, ai.ErrEmptyInput
	}
	if topN <= 0 || topN > len(documents) {
		topN = len(documents)
	}

	queryTokens := strings.Fields(strings.ToLower(query))
	results := make([]ai.RerankResult, len(documents))
	for i, doc := range documents {
		lower := strings.ToLower(doc)
		var hits float64
		for _, tok := range queryTokens {
			if strings.Contains(lower, tok) {
				hits++
			}
		}
		score := 0.0
		if len(queryTokens) > 0 {
			score = hits / float64(len(queryTokens))
		}
		results[i] = ai.RerankResult{Index: i, Score: score}
	}

	// Selection by score descending, index ascending on ties.
	for i := 0; i < topN; i++ {
		best := i
		for j := i + 1; j < len(results); j++ {
			if results[j].Score > results[best].Score {
				best = j
			}
		}
		results[i], results[best] = results[best], results[i]
	}
	return results[:topN], nil
}
