// Package indexer scans the vault, embeds note content, and keeps the
// vector store and link graph in sync with what is on disk.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"

	"github.com/tofunori/obsidian-mcp/internal/ai"
	"github.com/tofunori/obsidian-mcp/internal/checksum"
	"github.com/tofunori/obsidian-mcp/internal/graph"
	"github.com/tofunori/obsidian-mcp/internal/models"
	"github.com/tofunori/obsidian-mcp/internal/parser"
	"github.com/tofunori/obsidian-mcp/internal/storage"
	"github.com/tofunori/obsidian-mcp/internal/vectorstore"
)

const (
	// batchSize is how many notes go to the embedder per request.
	batchSize = 10
	// maxEmbedLen caps the text sent to the embedding provider.
	maxEmbedLen = 32000
	// emptyPlaceholder stands in for body-less notes, which most embedding
	// APIs reject outright.
	emptyPlaceholder = "[empty note]"

	defaultWorkers = 4
)

// Stats summarizes one indexing run.
type Stats struct {
	TotalNotes int       `json:"total_notes"`
	Indexed    int       `json:"indexed"`
	Skipped    int       `json:"skipped"`
	Deleted    int       `json:"deleted"`
	Errors     int       `json:"errors"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Warning    string    `json:"warning,omitempty"`
}

// Indexer drives vault scans and single-note updates.
type Indexer struct {
	vault    storage.Provider
	store    *vectorstore.Store
	graph    *graph.Graph
	embedder ai.Embedder
	logger   *slog.Logger

	graphPath string
	workers   int

	// onChange runs after any mutation so the owner can invalidate caches
	// and rebuild the lexical index.
	onChange func()

	mu sync.Mutex // serializes full vault scans
}

// Option customizes an Indexer.
type Option func(*Indexer)

// WithGraphSnapshot persists the link graph to path after each full scan.
func WithGraphSnapshot(path string) Option {
	return func(ix *Indexer) { ix.graphPath = path }
}

// WithWorkers sets the embedding worker pool size.
func WithWorkers(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.workers = n
		}
	}
}

// WithOnChange registers a hook invoked after every index mutation.
func WithOnChange(fn func()) Option {
	return func(ix *Indexer) { ix.onChange = fn }
}

// New creates an Indexer over the given vault, store and graph.
func New(vault storage.Provider, store *vectorstore.Store, g *graph.Graph, embedder ai.Embedder, logger *slog.Logger, opts ...Option) *Indexer {
	ix := &Indexer{
		vault:    vault,
		store:    store,
		graph:    g,
		embedder: embedder,
		logger:   logger,
		workers:  defaultWorkers,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// parsedNote couples a parse result with its source metadata.
type parsedNote struct {
	meta models.NoteMetadata
	res  *parser.Result
}

// IndexVault scans the whole vault. With incremental set, notes whose
// checksum matches the stored one are skipped; otherwise everything is
// re-embedded. Stale store entries whose files are gone are deleted either
// way. The link graph is always rebuilt from the full scan.
func (ix *Indexer) IndexVault(ctx context.Context, incremental bool) (Stats, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	stats := Stats{StartedAt: time.Now().UTC()}

	metas, err := ix.vault.List("")
	if err != nil {
		return stats, fmt.Errorf("indexer: list vault: %w", err)
	}
	stats.TotalNotes = len(metas)

	stored, err := ix.store.Checksums(ctx)
	if err != nil {
		return stats, fmt.Errorf("indexer: load checksums: %w", err)
	}

	var (
		all     []parsedNote
		changed []parsedNote
		errs    atomic.Int64
	)
	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		id := models.NormalizeIdentity(m.Path)
		disk[id] = struct{}{}

		data, err := ix.vault.Read(m.Path)
		if err != nil {
			ix.logger.Warn("scan: read failed", "path", m.Path, "error", err)
			errs.Add(1)
			continue
		}
		p := parsedNote{meta: m, res: parser.Parse(data, m.Path)}
		all = append(all, p)

		if incremental && stored[id] == m.Checksum {
			stats.Skipped++
			continue
		}
		changed = append(changed, p)
	}

	// Embed and upsert the changed notes, batchSize at a time, through a
	// bounded worker pool.
	pool, err := ants.NewPool(ix.workers)
	if err != nil {
		return stats, fmt.Errorf("indexer: create pool: %w", err)
	}
	defer pool.Release()

	var (
		wg      sync.WaitGroup
		indexed atomic.Int64
	)
	for start := 0; start < len(changed); start += batchSize {
		end := start + batchSize
		if end > len(changed) {
			end = len(changed)
		}
		batch := changed[start:end]

		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			n, failed := ix.indexBatch(ctx, batch)
			indexed.Add(int64(n))
			errs.Add(int64(failed))
		}); err != nil {
			wg.Done()
			errs.Add(int64(len(batch)))
			ix.logger.Warn("scan: submit batch failed", "error", err)
		}
	}
	wg.Wait()
	stats.Indexed = int(indexed.Load())

	// Drop store entries whose files are gone.
	for id := range stored {
		if _, ok := disk[id]; !ok {
			if err := ix.store.Delete(ctx, id); err != nil {
				ix.logger.Warn("scan: delete stale failed", "id", id, "error", err)
				errs.Add(1)
				continue
			}
			stats.Deleted++
		}
	}

	ix.rebuildGraph(all)
	stats.Errors = int(errs.Load())

	// Sanity check: the store should now mirror the vault exactly.
	if count, err := ix.store.Count(ctx); err == nil && count != len(disk) {
		stats.Warning = fmt.Sprintf("store holds %d notes but vault has %d", count, len(disk))
		ix.logger.Warn("scan: count mismatch", "store", count, "vault", len(disk))
	}

	stats.FinishedAt = time.Now().UTC()
	ix.logger.Info("scan: complete",
		"total", stats.TotalNotes, "indexed", stats.Indexed,
		"skipped", stats.Skipped, "deleted", stats.Deleted, "errors", stats.Errors,
		"took", stats.FinishedAt.Sub(stats.StartedAt))

	ix.notifyChange()
	return stats, nil
}

// indexBatch embeds one batch and upserts its records. Returns how many
// notes were stored and how many failed.
func (ix *Indexer) indexBatch(ctx context.Context, batch []parsedNote) (stored, failed int) {
	texts := make([]string, len(batch))
	for i, p := range batch {
		texts[i] = EmbedText(p.res.Body)
	}

	vecs, err := ix.embedder.EmbedDocuments(ctx, texts)
	if err != nil || len(vecs) != len(batch) {
		// Store the notes without embeddings so lexical search still sees
		// them; the next scan retries the vectors.
		ix.logger.Warn("embed batch failed, storing without vectors", "size", len(batch), "error", err)
		vecs = make([][]float32, len(batch))
		failed = len(batch)
	}

	for i, p := range batch {
		if err := ix.store.Upsert(ctx, recordFor(p, vecs[i])); err != nil {
			ix.logger.Warn("upsert failed", "path", p.meta.Path, "error", err)
			failed++
			continue
		}
		stored++
	}
	return stored, failed
}

// IndexNote (re)indexes a single file, for watcher and write paths.
func (ix *Indexer) IndexNote(ctx context.Context, path string) error {
	data, err := ix.vault.Read(path)
	if err != nil {
		return fmt.Errorf("indexer: read %s: %w", path, err)
	}
	res := parser.Parse(data, path)

	var vec []float32
	vecs, err := ix.embedder.EmbedDocuments(ctx, []string{EmbedText(res.Body)})
	if err != nil {
		ix.logger.Warn("embed failed, storing without vector", "path", path, "error", err)
	} else if len(vecs) == 1 {
		vec = vecs[0]
	}

	meta := models.NoteMetadata{Path: path, Checksum: checksum.Sum(data), ModifiedAt: time.Now().UTC()}
	if err := ix.store.Upsert(ctx, recordFor(parsedNote{meta: meta, res: res}, vec)); err != nil {
		return fmt.Errorf("indexer: upsert %s: %w", path, err)
	}
	ix.graph.AddNote(path, res.Title, res.Links)
	ix.notifyChange()
	return nil
}

// RemoveNote drops a note from the store and the graph.
func (ix *Indexer) RemoveNote(ctx context.Context, path string) error {
	if err := ix.store.Delete(ctx, models.NormalizeIdentity(path)); err != nil {
		return err
	}
	ix.graph.RemoveNote(path)
	ix.notifyChange()
	return nil
}

// MoveNote reindexes a note under its new path and removes the old entry.
// The file itself has already been moved by the caller.
func (ix *Indexer) MoveNote(ctx context.Context, oldPath, newPath string) error {
	if err := ix.RemoveNote(ctx, oldPath); err != nil {
		return err
	}
	return ix.IndexNote(ctx, newPath)
}

func (ix *Indexer) rebuildGraph(all []parsedNote) {
	refs := make([]graph.NoteRef, len(all))
	for i, p := range all {
		refs[i] = graph.NoteRef{Path: p.meta.Path, Title: p.res.Title, Links: p.res.Links}
	}
	ix.graph.RebuildFromNotes(refs)

	if ix.graphPath != "" {
		if err := ix.graph.Save(ix.graphPath); err != nil {
			ix.logger.Warn("graph snapshot failed", "path", ix.graphPath, "error", err)
		}
	}
}

func (ix *Indexer) notifyChange() {
	if ix.onChange != nil {
		ix.onChange()
	}
}

func recordFor(p parsedNote, vec []float32) vectorstore.Record {
	return vectorstore.Record{
		ID:        models.NormalizeIdentity(p.meta.Path),
		Document:  p.res.Body,
		Embedding: vec,
		Attrs: models.Attributes{
			Location: p.meta.Path,
			Title:    p.res.Title,
			Tags:     p.res.Tags,
		},
		Checksum:   p.meta.Checksum,
		ModifiedAt: p.meta.ModifiedAt,
	}
}

// EmbedText prepares a note body for the embedding provider: empty bodies
// become a placeholder, long ones are cut at a rune boundary.
func EmbedText(body string) string {
	if body == "" {
		return emptyPlaceholder
	}
	if len(body) <= maxEmbedLen {
		return body
	}
	cut := maxEmbedLen
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}
