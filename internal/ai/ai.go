// Package ai defines the embedding and reranking provider interfaces and
// their HTTP implementations.
package ai

import (
	"context"
	"errors"
)

var (
	// ErrMissingAPIKey is returned at construction when a provider has no
	// credential to work with.
	ErrMissingAPIKey = errors.New("ai: missing api key")
	// ErrEmptyInput is returned when a request carries no text.
	ErrEmptyInput = errors.New("ai: empty input")
)

// Embedder turns text into dense vectors. Document and query embeddings go
// through separate methods because some providers encode the two sides of
// the retrieval asymmetrically.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Disabled is the Embedder used when no provider is configured. Every call
// fails with ErrMissingAPIKey so callers fall back to keyword-only search.
type Disabled struct{}

// EmbedDocuments always fails with ErrMissingAPIKey.
func (Disabled) EmbedDocuments(_ context.Context, _ []string) ([][]float32, error) {
	return nil, ErrMissingAPIKey
}

// EmbedQuery always fails with ErrMissingAPIKey.
func (Disabled) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return nil, ErrMissingAPIKey
}

// RerankResult scores one input document. Index refers to the position in
// the documents slice passed to Rerank.
type RerankResult struct {
	Index int
	Score float64
}

// Reranker reorders candidate documents by relevance to a query, returning
// at most topN results, best first.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error)
}
