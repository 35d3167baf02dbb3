package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedderDeterministic(t *testing.T) {
	e := &Embedder{}
	ctx := context.Background()

	a1, err := e.EmbedQuery(ctx, "hello world")
	require.NoError(t, err)
	a2, err := e.EmbedQuery(ctx, "hello world")
	require.NoError(t, err)
	b, err := e.EmbedQuery(ctx, "completely different")
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)
	assert.Len(t, a1, 8)
	assert.EqualValues(t, 3, e.Calls())
}

func TestEmbedderBatch(t *testing.T) {
	e := &Embedder{Dim: 4}
	vecs, err := e.EmbedDocuments(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 4)

	single, err := e.EmbedQuery(context.Background(), "one")
	require.NoError(t, err)
	assert.Equal(t, vecs[0], single)
}

func TestRerankerOverlapScoring(t *testing.T) {
	r := &Reranker{}
	docs := []string{
		"nothing relevant here",
		"kubernetes deployment guide",
		"notes about kubernetes",
	}

	got, err := r.Rerank(context.Background(), "kubernetes deployment", docs, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Index) // matches both query tokens
	assert.Equal(t, 2, got[1].Index)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestRerankerErrPassthrough(t *testing.T) {
	r := &Reranker{Err: assert.AnError}
	_, err := r.Rerank(context.Background(), "q", []string{"d"}, 1)
	assert.ErrorIs(t, err, assert.AnError)
}
