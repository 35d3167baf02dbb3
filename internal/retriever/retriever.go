// Package retriever is the search façade: it fans out to the lexical and
// semantic rankers, fuses the two lists, optionally reranks, and caches
// recent query results.
package retriever

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/tofunori/obsidian-mcp/internal/ai"
	"github.com/tofunori/obsidian-mcp/internal/fusion"
	"github.com/tofunori/obsidian-mcp/internal/models"
	"github.com/tofunori/obsidian-mcp/internal/rank"
	"github.com/tofunori/obsidian-mcp/internal/vectorstore"
)

const (
	// overFetch is how many candidates each sub-search contributes before
	// fusion; fetching well past topK keeps the fused ordering stable.
	overFetch = 100
	// rerankTruncate caps the document length sent to the reranker.
	rerankTruncate = 4000
	// defaultCacheSize is the query cache capacity.
	defaultCacheSize = 256
)

// Request holds one search invocation's parameters.
type Request struct {
	Query  string
	TopK   int
	Alpha  float64 // semantic weight: 0 = lexical only, 1 = semantic only
	Folder string
	Tags   []string
}

// Retriever wires the store, rankers and providers together. All
// dependencies come in through the constructor.
type Retriever struct {
	store    *vectorstore.Store
	ranker   *rank.Ranker
	embedder ai.Embedder
	reranker ai.Reranker // nil disables reranking
	logger   *slog.Logger
	rrfK     float64
	cache    *lru.Cache[string, []models.FusedResult]
}

// Option customizes a Retriever.
type Option func(*Retriever)

// WithReranker enables a second-stage reranker over the fused results.
func WithReranker(r ai.Reranker) Option {
	return func(rt *Retriever) { rt.reranker = r }
}

// WithRRFK overrides the reciprocal-rank-fusion constant.
func WithRRFK(k float64) Option {
	return func(rt *Retriever) { rt.rrfK = k }
}

// WithCacheSize overrides the query cache capacity.
func WithCacheSize(n int) Option {
	return func(rt *Retriever) {
		if n > 0 {
			rt.cache, _ = lru.New[string, []models.FusedResult](n)
		}
	}
}

// New creates a Retriever over the given store, ranker and embedder.
func New(store *vectorstore.Store, ranker *rank.Ranker, embedder ai.Embedder, logger *slog.Logger, opts ...Option) *Retriever {
	cache, _ := lru.New[string, []models.FusedResult](defaultCacheSize)
	rt := &Retriever{
		store:    store,
		ranker:   ranker,
		embedder: embedder,
		logger:   logger,
		rrfK:     fusion.DefaultRRFK,
		cache:    cache,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Search runs the hybrid query. The lexical and semantic sub-searches run
// concurrently; either may fail and be logged without failing the whole
// query, as long as the other side produced candidates.
func (rt *Retriever) Search(ctx context.Context, req Request) ([]models.FusedResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("retriever: empty query")
	}
	if req.TopK <= 0 {
		req.TopK = 10
	}
	if req.Alpha < 0 || req.Alpha > 1 {
		return nil, fmt.Errorf("retriever: alpha %v out of [0,1]", req.Alpha)
	}

	key := cacheKey(req)
	if cached, ok := rt.cache.Get(key); ok {
		return cached, nil
	}

	filter := fusion.BuildFilter(req.Folder, req.Tags)

	var (
		lexical  []models.RankedCandidate
		semantic []models.RankedCandidate
		payloads = make(map[string]fusion.Payload)
		semErr   error
	)

	g, gctx := errgroup.WithContext(ctx)

	if req.Alpha < 1 {
		// The lexical index builds lazily on first use; blocking here is
		// what makes cold-start queries correct instead of empty.
		rt.ranker.EnsureReady(ctx, true)
		g.Go(func() error {
			lexical = rt.ranker.TopN(req.Query, overFetch, rt.eligibleIDs(filter))
			return nil
		})
	}
	if req.Alpha > 0 {
		g.Go(func() error {
			candidates, err := rt.semanticSearch(gctx, req.Query, filter)
			if err != nil {
				semErr = err
				return nil // degrade, do not cancel the lexical side
			}
			for i, c := range candidates {
				semantic = append(semantic, models.RankedCandidate{ID: c.ID, Score: 1 - c.Distance, Rank: i})
				payloads[c.ID] = fusion.Payload{Text: c.Document, Attrs: c.Attrs}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if semErr != nil {
		rt.logger.Warn("semantic search failed, continuing lexical-only", "error", semErr)
		if req.Alpha == 1 {
			return nil, fmt.Errorf("retriever: semantic search: %w", semErr)
		}
	}

	results := fusion.Fuse(lexical, semantic, req.Alpha, rt.rrfK, payloads, rt.lookupPayload)
	results = rt.rerank(ctx, req.Query, req.TopK, results)

	if len(results) > req.TopK {
		results = results[:req.TopK]
	}
	rt.cache.Add(key, results)
	return results, nil
}

// FindSimilar returns the topK notes nearest to the stored embedding of the
// given note. A note that is unknown or has no embedding yields an empty
// result, not an error.
func (rt *Retriever) FindSimilar(ctx context.Context, identity string, topK int) ([]models.FusedResult, error) {
	if topK <= 0 {
		topK = 10
	}
	id := models.NormalizeIdentity(identity)

	vec, ok, err := rt.store.GetEmbedding(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("retriever: find similar: %w", err)
	}
	if !ok {
		return nil, nil
	}

	// One extra slot because the note itself comes back at distance zero.
	candidates, err := rt.store.Query(ctx, vec, topK+1, nil)
	if err != nil {
		return nil, fmt.Errorf("retriever: find similar: %w", err)
	}

	out := make([]models.FusedResult, 0, topK)
	for _, c := range candidates {
		if c.ID == id {
			continue
		}
		out = append(out, models.FusedResult{
			ID:            c.ID,
			Text:          c.Document,
			Attrs:         c.Attrs,
			Score:         1 - c.Distance,
			SemanticScore: 1 - c.Distance,
		})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// InvalidateCache drops all cached query results. Call it after any index
// mutation.
func (rt *Retriever) InvalidateCache() {
	rt.cache.Purge()
}

// Refresh rebuilds the lexical index from the store and clears the cache.
func (rt *Retriever) Refresh(ctx context.Context) error {
	rt.InvalidateCache()
	return rt.ranker.Rebuild(ctx)
}

func (rt *Retriever) semanticSearch(ctx context.Context, query string, filter fusion.Filter) ([]vectorstore.Candidate, error) {
	vec, err := rt.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return rt.store.Query(ctx, vec, overFetch, filter)
}

// eligibleIDs restricts the lexical search to identities matching the
// filter. Nil means unrestricted.
func (rt *Retriever) eligibleIDs(filter fusion.Filter) map[string]struct{} {
	if filter == nil {
		return nil
	}
	eligible := make(map[string]struct{})
	for _, doc := range rt.ranker.Documents() {
		if fusion.Evaluate(doc.Attrs, filter) {
			eligible[doc.ID] = struct{}{}
		}
	}
	return eligible
}

func (rt *Retriever) lookupPayload(id string) (fusion.Payload, bool) {
	if doc, ok := rt.ranker.Lookup(id); ok {
		return fusion.Payload{Text: doc.Text, Attrs: doc.Attrs}, true
	}
	return fusion.Payload{}, false
}

// rerank rescores the top fused results with the second-stage reranker.
// Any failure keeps the fusion order.
func (rt *Retriever) rerank(ctx context.Context, query string, topK int, results []models.FusedResult) []models.FusedResult {
	if rt.reranker == nil || len(results) == 0 {
		return results
	}

	window := 2 * topK
	if window > len(results) {
		window = len(results)
	}
	head := results[:window]

	docs := make([]string, len(head))
	for i, r := range head {
		text := r.Text
		if len(text) > rerankTruncate {
			text = text[:rerankTruncate]
		}
		docs[i] = text
	}

	scored, err := rt.reranker.Rerank(ctx, query, docs, window)
	if err != nil {
		rt.logger.Warn("rerank failed, keeping fusion order", "error", err)
		return results
	}

	reranked := make([]models.FusedResult, 0, len(head))
	seen := make(map[int]struct{}, len(scored))
	for _, s := range scored {
		if s.Index < 0 || s.Index >= len(head) {
			continue
		}
		r := head[s.Index]
		r.RerankScore = s.Score
		reranked = append(reranked, r)
		seen[s.Index] = struct{}{}
	}
	// Providers may return fewer than asked; keep the stragglers behind.
	for i, r := range head {
		if _, ok := seen[i]; !ok {
			reranked = append(reranked, r)
		}
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].RerankScore > reranked[j].RerankScore
	})
	return append(reranked, results[window:]...)
}

func cacheKey(req Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%.4f|%s|%s", req.Query, req.TopK, req.Alpha, req.Folder, strings.Join(req.Tags, ","))
	return hex.EncodeToString(h.Sum(nil))
}
