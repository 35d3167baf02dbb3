// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the vault's search and note tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tofunori/obsidian-mcp/internal/noteservice"
	"github.com/tofunori/obsidian-mcp/internal/retriever"
)

// Server wraps the MCP server with vault tools.
type Server struct {
	mcp          *server.MCPServer
	svc          *noteservice.Service
	defaultAlpha float64
}

// New creates a new MCP server with all vault tools registered.
// defaultAlpha is the semantic weight used when a search call omits it.
func New(svc *noteservice.Service, defaultAlpha float64) *Server {
	s := &Server{svc: svc, defaultAlpha: defaultAlpha}

	s.mcp = server.NewMCPServer(
		"obsidian-mcp",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search",
		mcp.WithDescription("Hybrid search over the vault: BM25 keyword matching fused with "+
			"semantic similarity. Supports folder and tag filtering."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("top_k", mcp.Description("Max results to return (default 10)")),
		mcp.WithNumber("alpha", mcp.Description("Semantic weight in [0,1]: 0 keyword-only, 1 semantic-only")),
		mcp.WithString("folder", mcp.Description("Restrict results to a folder prefix")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags; results must carry all of them")),
	), s.search)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a Markdown note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("write_note",
		mcp.WithDescription("Create or overwrite a Markdown note at the specified path and index it."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the note (must end with .md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content, optionally with YAML frontmatter and [[wikilinks]]")),
	), s.writeNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note from the vault and the index."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the note to delete")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("move_note",
		mcp.WithDescription("Move or rename a note, keeping the index in sync."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Current relative path")),
		mcp.WithString("to", mcp.Required(), mcp.Description("New relative path")),
	), s.moveNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List indexed notes, optionally restricted to a folder or tag."),
		mcp.WithString("folder", mcp.Description("Optional folder prefix (empty for all)")),
		mcp.WithString("tag", mcp.Description("Optional tag filter")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("backlinks",
		mcp.WithDescription("Find all notes that link to the specified note (by path or title)."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path or title of the note to find backlinks for")),
	), s.backlinks)

	s.mcp.AddTool(mcp.NewTool("find_similar",
		mcp.WithDescription("Find notes semantically similar to an existing note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the reference note")),
		mcp.WithNumber("top_k", mcp.Description("Max results to return (default 10)")),
	), s.findSimilar)

	s.mcp.AddTool(mcp.NewTool("vault_stats",
		mcp.WithDescription("Vault statistics: indexed note count, link totals, orphans and broken links."),
	), s.vaultStats)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sreq := retriever.Request{
		Query:  query,
		TopK:   int(req.GetFloat("top_k", 10)),
		Alpha:  req.GetFloat("alpha", s.defaultAlpha),
		Folder: req.GetString("folder", ""),
	}
	if tags := req.GetString("tags", ""); tags != "" {
		sreq.Tags = strings.Split(tags, ",")
	}

	results, err := s.svc.Search(ctx, sreq)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no results found for query: " + query), nil
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s (score %.4f)\n", i+1, r.Attrs.Location, r.Score)
		if r.Attrs.Title != "" {
			fmt.Fprintf(&b, "   title: %s\n", r.Attrs.Title)
		}
		if len(r.Attrs.Tags) > 0 {
			fmt.Fprintf(&b, "   tags: %s\n", strings.Join(r.Attrs.Tags, ", "))
		}
		fmt.Fprintf(&b, "   %s\n", snippet(r.Text, 200))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(note.Content), nil
}

func (s *Server) writeNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if _, getErr := s.svc.GetNote(ctx, path); getErr == nil {
		if _, updErr := s.svc.UpdateNote(ctx, path, []byte(content), ""); updErr != nil {
			return mcp.NewToolResultError(updErr.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("updated: %s", path)), nil
	}
	if _, createErr := s.svc.CreateNote(ctx, path, []byte(content)); createErr != nil {
		return mcp.NewToolResultError(createErr.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", path)), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.DeleteNote(ctx, path); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("delete failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", path)), nil
}

func (s *Server) moveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := req.RequireString("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := req.RequireString("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.svc.MoveNote(ctx, from, to); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("move failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved: %s -> %s", from, to)), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := req.GetString("folder", "")
	tag := req.GetString("tag", "")

	items, total, err := s.svc.ListNotes(ctx, folder, tag, 0, 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if total == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}

	var paths []string
	for _, item := range items {
		paths = append(paths, item.Path)
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) backlinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl := s.svc.Backlinks(ctx, path)
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func (s *Server) findSimilar(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	topK := int(req.GetFloat("top_k", 10))

	results, err := s.svc.FindSimilar(ctx, path, topK)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no similar notes found (note missing or not embedded): " + path), nil
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s (similarity %.4f)\n", i+1, r.Attrs.Location, r.Score)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) vaultStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.svc.VaultStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(stats, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

// snippet trims text to max characters on a rune-safe boundary for display.
func snippet(text string, max int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
