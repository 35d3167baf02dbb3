package vectorstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tofunori/obsidian-mcp/internal/fusion"
	"github.com/tofunori/obsidian-mcp/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(id, doc string, vec []float32, location string, tags ...string) Record {
	return Record{
		ID:        id,
		Document:  doc,
		Embedding: vec,
		Attrs: models.Attributes{
			Location: location,
			Title:    id,
			Tags:     tags,
		},
		Checksum:   "sum-" + id,
		ModifiedAt: time.Now().UTC(),
	}
}

func TestUpsertAndCount(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Upsert(ctx, record("a", "alpha text", []float32{1, 0}, "a.md")))
	require.NoError(t, s.Upsert(ctx, record("b", "beta text", []float32{0, 1}, "b.md")))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Upsert of an existing id replaces, not duplicates.
	require.NoError(t, s.Upsert(ctx, record("a", "alpha revised", []float32{1, 0}, "a.md")))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.Get(ctx, fusion.Equals{Attr: "title", Value: "a"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alpha revised", got[0].Document)
}

func TestQueryCosineOrdering(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Upsert(ctx, record("exact", "e", []float32{1, 0, 0}, "exact.md")))
	require.NoError(t, s.Upsert(ctx, record("close", "c", []float32{0.9, 0.1, 0}, "close.md")))
	require.NoError(t, s.Upsert(ctx, record("far", "f", []float32{0, 0, 1}, "far.md")))

	got, err := s.Query(ctx, []float32{1, 0, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "exact", got[0].ID)
	assert.Equal(t, "close", got[1].ID)
	assert.Equal(t, "far", got[2].ID)
	assert.InDelta(t, 0, got[0].Distance, 1e-6)
	assert.InDelta(t, 1, got[2].Distance, 1e-6)
}

func TestQueryRespectsFilterAndLimit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Upsert(ctx, record("p1", "d", []float32{1, 0}, "projects/p1.md", "work")))
	require.NoError(t, s.Upsert(ctx, record("p2", "d", []float32{1, 0}, "projects/p2.md", "work")))
	require.NoError(t, s.Upsert(ctx, record("d1", "d", []float32{1, 0}, "daily/d1.md", "log")))

	got, err := s.Query(ctx, []float32{1, 0}, 10, fusion.BuildFilter("projects", nil))
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = s.Query(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestQuerySkipsMissingEmbeddings(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Upsert(ctx, record("with", "d", []float32{1, 0}, "with.md")))
	require.NoError(t, s.Upsert(ctx, record("without", "d", nil, "without.md")))

	got, err := s.Query(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "with", got[0].ID)
}

func TestGetEmbedding(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Upsert(ctx, record("a", "d", []float32{0.25, -1.5}, "a.md")))
	require.NoError(t, s.Upsert(ctx, record("bare", "d", nil, "bare.md")))

	vec, ok, err := s.GetEmbedding(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{0.25, -1.5}, vec)

	_, ok, err = s.GetEmbedding(ctx, "bare")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.GetEmbedding(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteAndChecksums(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Upsert(ctx, record("a", "d", nil, "a.md")))
	require.NoError(t, s.Upsert(ctx, record("b", "d", nil, "b.md")))

	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "a")) // absent id is fine

	sums, err := s.Checksums(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b": "sum-b"}, sums)
}

func TestSnapshotRoundTripsAttributes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rec := record("notes/deep", "document text", []float32{1}, "notes/deep.md", "one", "two")
	rec.Attrs.Extra = map[string]string{"author": "me"}
	require.NoError(t, s.Upsert(ctx, rec))

	docs, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "notes/deep", docs[0].ID)
	assert.Equal(t, "document text", docs[0].Text)
	assert.Equal(t, []string{"one", "two"}, docs[0].Attrs.Tags)
	assert.Equal(t, "me", docs[0].Attrs.Extra["author"])
}

func TestVectorCodec(t *testing.T) {
	in := []float32{0, 1, -2.5, 3.75}
	assert.Equal(t, in, decodeVector(encodeVector(in)))
	assert.Nil(t, encodeVector(nil))
	assert.Nil(t, decodeVector(nil))
}
