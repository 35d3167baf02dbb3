package rank

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tofunori/obsidian-mcp/internal/models"
)

type fakeSource struct {
	docs   []Document
	builds atomic.Int64
	delay  time.Duration
	err    error
}

func (f *fakeSource) Snapshot(ctx context.Context) ([]Document, error) {
	f.builds.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

func docs(pairs ...string) []Document {
	out := make([]Document, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Document{ID: pairs[i], Text: pairs[i+1]})
	}
	return out
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"Hello, World!", []string{"hello", "world"}},
		{"a an to the-quick-fox", []string{"the", "quick", "fox"}},
		{"C3PO & R2D2", []string{"c3po", "r2d2"}},
		{"", nil},
		{"!!! ??", nil},
	}
	for _, tt := range tests {
		got := Tokenize(tt.input)
		if len(got) == 0 {
			got = nil
		}
		assert.Equal(t, tt.want, got, "Tokenize(%q)", tt.input)
	}
}

func TestTokenize_Deterministic(t *testing.T) {
	input := "Retrieval-augmented generation over Obsidian vaults, 2024 edition!"
	first := Tokenize(input)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Tokenize(input))
	}
	for _, tok := range first {
		assert.GreaterOrEqual(t, len(tok), 3)
		assert.Equal(t, strings.ToLower(tok), tok)
	}
}

func TestTopN_BothDocsMatch(t *testing.T) {
	src := &fakeSource{docs: docs("n1", "apple banana", "n2", "banana cherry")}
	r := NewRanker(src)
	require.True(t, r.EnsureReady(context.Background(), true))

	got := r.TopN("banana", 2, nil)
	require.Len(t, got, 2)
	assert.NotZero(t, got[0].Score)
	assert.NotZero(t, got[1].Score)
	// Both documents contain "banana" once with equal lengths: scores tie
	// and corpus order breaks the tie.
	assert.InDelta(t, got[0].Score, got[1].Score, 1e-9)
	assert.Equal(t, "n1", got[0].ID)
	assert.Equal(t, "n2", got[1].ID)
	assert.Equal(t, 0, got[0].Rank)
	assert.Equal(t, 1, got[1].Rank)
}

func TestTopN_EligibleRestriction(t *testing.T) {
	src := &fakeSource{docs: docs("n1", "apple banana", "n2", "banana cherry", "n3", "banana banana")}
	r := NewRanker(src)
	require.True(t, r.EnsureReady(context.Background(), true))

	got := r.TopN("banana", 10, map[string]struct{}{"n2": {}})
	require.Len(t, got, 1)
	assert.Equal(t, "n2", got[0].ID)

	assert.Empty(t, r.TopN("banana", 10, map[string]struct{}{}))
}

func TestTopN_EmptyCorpus(t *testing.T) {
	r := NewRanker(&fakeSource{})
	require.True(t, r.EnsureReady(context.Background(), true))
	assert.Empty(t, r.TopN("anything", 5, nil))
}

func TestTopN_NoIndexYet(t *testing.T) {
	r := NewRanker(&fakeSource{docs: docs("n1", "text")})
	assert.Empty(t, r.TopN("text", 5, nil))
}

func TestEnsureReady_SingleBuildUnderConcurrency(t *testing.T) {
	src := &fakeSource{docs: docs("n1", "apple banana"), delay: 20 * time.Millisecond}
	r := NewRanker(src)

	const callers = 8
	results := make([]bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.EnsureReady(context.Background(), true)
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, src.builds.Load(), "exactly one build must run")
	for i, ok := range results {
		assert.True(t, ok, "caller %d", i)
	}
}

func TestEnsureReady_NonBlockingReturnsFalseThenTrue(t *testing.T) {
	src := &fakeSource{docs: docs("n1", "apple")}
	r := NewRanker(src)

	assert.False(t, r.EnsureReady(context.Background(), false))

	// The background build finishes eventually; a blocking call then
	// observes the published index without triggering a second build.
	require.Eventually(t, func() bool {
		return r.EnsureReady(context.Background(), true)
	}, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, src.builds.Load())
}

func TestEnsureReady_BuildFailureAllowsRetry(t *testing.T) {
	src := &fakeSource{err: assert.AnError}
	r := NewRanker(src)

	assert.False(t, r.EnsureReady(context.Background(), true))

	src.err = nil
	src.docs = docs("n1", "apple")
	assert.True(t, r.EnsureReady(context.Background(), true))
	assert.EqualValues(t, 2, src.builds.Load())
}

func TestRebuild_ReplacesSnapshot(t *testing.T) {
	src := &fakeSource{docs: docs("n1", "apple")}
	r := NewRanker(src)
	require.True(t, r.EnsureReady(context.Background(), true))
	require.Len(t, r.TopN("apple", 5, nil), 1)

	src.docs = docs("n1", "apple", "n2", "apple pie")
	require.NoError(t, r.Rebuild(context.Background()))
	assert.Len(t, r.TopN("apple", 5, nil), 2)
}

func TestBM25_IDFWeighting(t *testing.T) {
	// "rare" appears in one doc, "common" in all three: a query for both
	// must rank the rare-term document first.
	src := &fakeSource{docs: docs(
		"n1", "common words only here",
		"n2", "common rare words",
		"n3", "common words again here",
	)}
	r := NewRanker(src)
	require.True(t, r.EnsureReady(context.Background(), true))

	got := r.TopN("common rare", 3, nil)
	require.NotEmpty(t, got)
	assert.Equal(t, "n2", got[0].ID)
}

func TestLookup(t *testing.T) {
	src := &fakeSource{docs: []Document{{ID: "n1", Text: "apple", Attrs: models.Attributes{Title: "Apple"}}}}
	r := NewRanker(src)
	require.True(t, r.EnsureReady(context.Background(), true))

	doc, ok := r.Lookup("n1")
	require.True(t, ok)
	assert.Equal(t, "Apple", doc.Attrs.Title)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}
