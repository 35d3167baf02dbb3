// Package noteservice coordinates vault storage, the indexer, the link
// graph and the retriever behind one service API shared by the HTTP and MCP
// surfaces.
package noteservice

import (
	"context"
	"errors"
	"os"
	"sort"
	"time"

	"github.com/tofunori/obsidian-mcp/internal/apperr"
	"github.com/tofunori/obsidian-mcp/internal/checksum"
	"github.com/tofunori/obsidian-mcp/internal/fusion"
	"github.com/tofunori/obsidian-mcp/internal/graph"
	"github.com/tofunori/obsidian-mcp/internal/indexer"
	"github.com/tofunori/obsidian-mcp/internal/models"
	"github.com/tofunori/obsidian-mcp/internal/parser"
	"github.com/tofunori/obsidian-mcp/internal/retriever"
	"github.com/tofunori/obsidian-mcp/internal/storage"
	"github.com/tofunori/obsidian-mcp/internal/vectorstore"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Checksum    string         `json:"checksum"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Backlinks   []string       `json:"backlinks"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Path  string   `json:"path"`
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

// GraphView is the graph visualization payload.
type GraphView struct {
	Nodes []GraphNode  `json:"nodes"`
	Links []graph.Link `json:"links"`
	Stats graph.Stats  `json:"stats"`
}

// GraphNode is one node of the graph payload.
type GraphNode struct {
	ID        string `json:"id"`
	Backlinks int    `json:"backlinks"`
}

// Service coordinates storage, index and retrieval operations.
type Service struct {
	vault storage.Provider
	store *vectorstore.Store
	graph *graph.Graph
	ix    *indexer.Indexer
	ret   *retriever.Retriever
}

// NewService creates a new note service.
func NewService(vault storage.Provider, store *vectorstore.Store, g *graph.Graph, ix *indexer.Indexer, ret *retriever.Retriever) *Service {
	return &Service{vault: vault, store: store, graph: g, ix: ix, ret: ret}
}

// GetNote reads a note from storage, parses it, and enriches it with
// backlinks from the graph.
func (s *Service) GetNote(_ context.Context, path string) (*NoteDetail, error) {
	data, err := s.vault.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.buildNoteDetail(path, data), nil
}

// CreateNote writes a new note and indexes it.
func (s *Service) CreateNote(ctx context.Context, path string, content []byte) (*NoteDetail, error) {
	if _, err := s.vault.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.vault.Write(path, content); err != nil {
		return nil, err
	}
	if err := s.ix.IndexNote(ctx, path); err != nil {
		return nil, err
	}
	return s.buildNoteDetail(path, content), nil
}

// UpdateNote writes updated content with optimistic concurrency.
func (s *Service) UpdateNote(ctx context.Context, path string, content []byte, ifMatch string) (*NoteDetail, error) {
	existing, err := s.vault.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}
	if err := s.vault.Write(path, content); err != nil {
		return nil, err
	}
	if err := s.ix.IndexNote(ctx, path); err != nil {
		return nil, err
	}
	return s.buildNoteDetail(path, content), nil
}

// DeleteNote removes a note from storage, store and graph.
func (s *Service) DeleteNote(ctx context.Context, path string) error {
	if err := s.vault.Delete(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	return s.ix.RemoveNote(ctx, path)
}

// MoveNote renames a note on disk and reindexes it under the new path.
func (s *Service) MoveNote(ctx context.Context, oldPath, newPath string) (*NoteDetail, error) {
	if _, err := s.vault.Read(newPath); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.vault.Move(oldPath, newPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if err := s.ix.MoveNote(ctx, oldPath, newPath); err != nil {
		return nil, err
	}
	return s.GetNote(ctx, newPath)
}

// ListNotes returns indexed notes, optionally restricted to a folder prefix
// or tag, paginated and sorted by path.
func (s *Service) ListNotes(ctx context.Context, folder, tag string, limit, offset int) ([]NoteListItem, int, error) {
	var tags []string
	if tag != "" {
		tags = []string{tag}
	}
	candidates, err := s.store.Get(ctx, fusion.BuildFilter(folder, tags))
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	total := len(candidates)
	if offset > total {
		offset = total
	}
	candidates = candidates[offset:]
	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	items := make([]NoteListItem, len(candidates))
	for i, c := range candidates {
		items[i] = NoteListItem{
			Path:  c.Attrs.Location,
			Title: c.Attrs.Title,
			Tags:  nonNilSlice(c.Attrs.Tags),
		}
	}
	return items, total, nil
}

// Search runs the hybrid retrieval pipeline.
func (s *Service) Search(ctx context.Context, req retriever.Request) ([]models.FusedResult, error) {
	return s.ret.Search(ctx, req)
}

// FindSimilar returns notes nearest to the given note's embedding.
func (s *Service) FindSimilar(ctx context.Context, identity string, topK int) ([]models.FusedResult, error) {
	return s.ret.FindSimilar(ctx, identity, topK)
}

// Backlinks returns notes linking to the target (identity, path or title).
func (s *Service) Backlinks(_ context.Context, target string) []string {
	return nonNilSlice(s.graph.Backlinks(target))
}

// Graph returns the full graph payload for visualization.
func (s *Service) Graph(_ context.Context) GraphView {
	ids := s.graph.Notes()
	nodes := make([]GraphNode, len(ids))
	var links []graph.Link
	for i, id := range ids {
		nodes[i] = GraphNode{ID: id, Backlinks: len(s.graph.Backlinks(id))}
		for _, target := range s.graph.OutgoingLinks(id) {
			links = append(links, graph.Link{Source: id, Target: target})
		}
	}
	if links == nil {
		links = []graph.Link{}
	}
	return GraphView{Nodes: nodes, Links: links, Stats: s.graph.Stats()}
}

// Orphans returns notes no other note links to.
func (s *Service) Orphans(_ context.Context) []string {
	return nonNilSlice(s.graph.Orphans())
}

// BrokenLinks returns links whose target does not exist.
func (s *Service) BrokenLinks(_ context.Context) []graph.Link {
	return nonNilSlice(s.graph.BrokenLinks())
}

// Reindex runs a full or incremental vault scan.
func (s *Service) Reindex(ctx context.Context, incremental bool) (indexer.Stats, error) {
	return s.ix.IndexVault(ctx, incremental)
}

// VaultStats summarizes the index and graph.
func (s *Service) VaultStats(ctx context.Context) (map[string]any, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	gs := s.graph.Stats()
	return map[string]any{
		"indexed_notes": count,
		"graph":         gs,
	}, nil
}

// buildNoteDetail constructs a NoteDetail from raw data without re-reading
// the file.
func (s *Service) buildNoteDetail(path string, data []byte) *NoteDetail {
	res := parser.Parse(data, path)
	return &NoteDetail{
		Path:        path,
		Title:       res.Title,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Tags:        nonNilSlice(res.Tags),
		Frontmatter: res.Frontmatter,
		Backlinks:   nonNilSlice(s.graph.Backlinks(path)),
		UpdatedAt:   time.Now(),
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
