package rank

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tofunori/obsidian-mcp/internal/models"
)

// CorpusSource supplies the corpus snapshot an index build reads from.
type CorpusSource interface {
	Snapshot(ctx context.Context) ([]Document, error)
}

type buildState int

const (
	stateEmpty buildState = iota
	stateBuilding
	stateReady
)

// Ranker owns the lazily built BM25 index.
//
// Construction follows an Empty -> Building -> Ready state machine: the
// Empty -> Building transition is the only lock-guarded step, and the
// finished index is published in a single atomic store so readers never
// observe a half-built structure. A failed build returns the state to Empty
// so a later caller may retry.
type Ranker struct {
	source CorpusSource

	mu    sync.Mutex
	cond  *sync.Cond
	state buildState

	idx atomic.Pointer[index]
}

// NewRanker creates a Ranker reading its corpus from source. No index is
// built until the first EnsureReady or Rebuild call.
func NewRanker(source CorpusSource) *Ranker {
	r := &Ranker{source: source}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// EnsureReady makes sure an index exists. If one is already published it
// returns true immediately. Otherwise, a blocking caller either performs the
// build itself or waits for the in-flight build, returning true on success;
// a non-blocking caller kicks off a background build if none is running and
// returns false without waiting. At most one build runs at a time.
func (r *Ranker) EnsureReady(ctx context.Context, blocking bool) bool {
	if r.idx.Load() != nil {
		return true
	}

	r.mu.Lock()
	for {
		switch r.state {
		case stateReady:
			r.mu.Unlock()
			return true
		case stateBuilding:
			if !blocking {
				r.mu.Unlock()
				return false
			}
			r.cond.Wait()
		case stateEmpty:
			r.state = stateBuilding
			r.mu.Unlock()
			if !blocking {
				go func() { _ = r.runBuild(context.Background()) }()
				return false
			}
			return r.runBuild(ctx) == nil
		}
	}
}

// Rebuild discards the current index and builds a fresh one synchronously,
// waiting out any build already in flight.
func (r *Ranker) Rebuild(ctx context.Context) error {
	r.mu.Lock()
	for r.state == stateBuilding {
		r.cond.Wait()
	}
	r.state = stateBuilding
	r.mu.Unlock()
	return r.runBuild(ctx)
}

// runBuild performs one index build and publishes the result. The caller
// must have transitioned the state to Building.
func (r *Ranker) runBuild(ctx context.Context) error {
	docs, err := r.source.Snapshot(ctx)

	r.mu.Lock()
	defer func() {
		r.cond.Broadcast()
		r.mu.Unlock()
	}()

	if err != nil {
		r.state = stateEmpty
		return fmt.Errorf("rank: build index: %w", err)
	}
	r.idx.Store(buildIndex(docs))
	r.state = stateReady
	return nil
}

// TopN tokenizes query and returns the n best matches among eligible ids
// (all documents when eligible is nil). Returns nil when no index is ready,
// the corpus is empty, or nothing is eligible — never an error.
func (r *Ranker) TopN(query string, n int, eligible map[string]struct{}) []models.RankedCandidate {
	idx := r.idx.Load()
	if idx == nil {
		return nil
	}
	return idx.topN(Tokenize(query), n, eligible)
}

// Documents returns the corpus snapshot of the published index, or nil when
// no index is ready.
func (r *Ranker) Documents() []Document {
	idx := r.idx.Load()
	if idx == nil {
		return nil
	}
	return idx.docs
}

// Lookup returns the snapshot document for id, when an index is ready.
func (r *Ranker) Lookup(id string) (Document, bool) {
	idx := r.idx.Load()
	if idx == nil {
		return Document{}, false
	}
	return idx.lookup(id)
}
