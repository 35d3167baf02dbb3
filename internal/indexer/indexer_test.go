package indexer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tofunori/obsidian-mcp/internal/ai/mock"
	"github.com/tofunori/obsidian-mcp/internal/graph"
	"github.com/tofunori/obsidian-mcp/internal/storage"
	"github.com/tofunori/obsidian-mcp/internal/vectorstore"
)

type fixture struct {
	root    string
	vault   *storage.FS
	store   *vectorstore.Store
	graph   *graph.Graph
	ix      *Indexer
	changes atomic.Int64
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	root := t.TempDir()

	vault, err := storage.NewFS(root, nil)
	require.NoError(t, err)
	store, err := vectorstore.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{root: root, vault: vault, store: store, graph: graph.New()}
	opts = append(opts, WithOnChange(func() { f.changes.Add(1) }))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.ix = New(vault, store, f.graph, &mock.Embedder{}, logger, opts...)
	return f
}

func (f *fixture) write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, f.vault.Write(path, []byte(content)))
}

func TestIndexVault_FullScan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.write(t, "A.md", "# Alpha\n\nLinks to [[B]] and [[C]].")
	f.write(t, "B.md", "# Beta\n\nLinks to [[C]].")
	f.write(t, "sub/C.md", "# Gamma\n\nNo links.")

	stats, err := f.ix.IndexVault(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalNotes)
	assert.Equal(t, 3, stats.Indexed)
	assert.Zero(t, stats.Skipped)
	assert.Zero(t, stats.Errors)
	assert.Empty(t, stats.Warning)
	assert.False(t, stats.FinishedAt.Before(stats.StartedAt))

	count, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Graph was rebuilt from the scan; C resolves by title alias too.
	assert.Equal(t, []string{"A", "B"}, f.graph.Backlinks("sub/C"))
	assert.Positive(t, f.changes.Load())
}

func TestIndexVault_IncrementalSkipsUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.write(t, "A.md", "alpha body")
	f.write(t, "B.md", "beta body")
	_, err := f.ix.IndexVault(ctx, false)
	require.NoError(t, err)

	f.write(t, "B.md", "beta body revised")
	stats, err := f.ix.IndexVault(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 1, stats.Skipped)
}

func TestIndexVault_DetectsDeletions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.write(t, "keep.md", "kept")
	f.write(t, "gone.md", "going away")
	_, err := f.ix.IndexVault(ctx, false)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(f.root, "gone.md")))
	stats, err := f.ix.IndexVault(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deleted)

	sums, err := f.store.Checksums(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, keys(sums))
}

func TestIndexVault_SavesGraphSnapshot(t *testing.T) {
	ctx := context.Background()
	snapPath := filepath.Join(t.TempDir(), "graph.json")
	f := newFixture(t, WithGraphSnapshot(snapPath))

	f.write(t, "A.md", "[[B]]")
	f.write(t, "B.md", "plain")
	_, err := f.ix.IndexVault(ctx, false)
	require.NoError(t, err)

	loaded := graph.New()
	require.NoError(t, loaded.Load(snapPath))
	assert.Equal(t, []string{"A"}, loaded.Backlinks("B"))
}

func TestIndexNote_SingleFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.write(t, "solo.md", "---\ntitle: Solo Note\ntags: [one]\n---\n\nBody with [[target]].")
	require.NoError(t, f.ix.IndexNote(ctx, "solo.md"))

	sums, err := f.store.Checksums(ctx)
	require.NoError(t, err)
	assert.Contains(t, sums, "solo")
	assert.Equal(t, []string{"solo"}, f.graph.Backlinks("target"))

	vec, ok, err := f.store.GetEmbedding(ctx, "solo")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, vec)
}

func TestRemoveNote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.write(t, "doomed.md", "text")
	require.NoError(t, f.ix.IndexNote(ctx, "doomed.md"))
	require.NoError(t, f.ix.RemoveNote(ctx, "doomed.md"))

	count, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, f.graph.Notes())
}

func TestMoveNote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.write(t, "old.md", "movable body")
	require.NoError(t, f.ix.IndexNote(ctx, "old.md"))

	require.NoError(t, f.vault.Move("old.md", "archive/new.md"))
	require.NoError(t, f.ix.MoveNote(ctx, "old.md", "archive/new.md"))

	sums, err := f.store.Checksums(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"archive/new"}, keys(sums))
}

func TestEmbedText(t *testing.T) {
	assert.Equal(t, "[empty note]", EmbedText(""))
	assert.Equal(t, "short", EmbedText("short"))

	long := strings.Repeat("é", maxEmbedLen) // 2 bytes per rune
	got := EmbedText(long)
	assert.LessOrEqual(t, len(got), maxEmbedLen)
	assert.True(t, strings.HasSuffix(got, "é"), "must cut on a rune boundary")
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
