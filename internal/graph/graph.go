// Package graph maintains the bidirectional wikilink graph between notes.
//
// Notes are keyed by identity: the vault-relative path without extension,
// with forward-slash separators. Titles and path variants resolve to
// identities through a case-insensitive alias index.
package graph

import (
	"sort"
	"strings"
	"sync"

	"github.com/tofunori/obsidian-mcp/internal/models"
)

// NoteRef is the graph-relevant slice of a parsed note.
type NoteRef struct {
	Path  string   // vault-relative path, extension allowed
	Title string
	Links []string // raw wikilink targets as written in the body
}

// Link is a directed edge between two identities.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Stats summarizes the graph.
type Stats struct {
	TotalNotes      int     `json:"total_notes"`
	TotalLinks      int     `json:"total_links"`
	OrphanNotes     int     `json:"orphan_notes"`
	BrokenLinks     int     `json:"broken_links"`
	AvgLinksPerNote float64 `json:"avg_links_per_note"`
}

// Graph holds the outgoing/incoming adjacency maps and the alias index.
// The two adjacency maps are kept as exact inverses at all times.
// All methods are safe for concurrent use.
type Graph struct {
	mu       sync.RWMutex
	outgoing map[string]map[string]struct{}
	incoming map[string]map[string]struct{}
	aliases  map[string]string // lowercased alias -> identity
}

// New creates an empty graph.
func New() *Graph {
	g := &Graph{}
	g.reset()
	return g
}

func (g *Graph) reset() {
	g.outgoing = make(map[string]map[string]struct{})
	g.incoming = make(map[string]map[string]struct{})
	g.aliases = make(map[string]string)
}

// resolve maps a link string to an identity: alias lookup first, falling
// back to the normalized string itself. Callers must hold the lock.
func (g *Graph) resolve(link string) string {
	normalized := models.NormalizeIdentity(link)
	if id, ok := g.aliases[strings.ToLower(normalized)]; ok {
		return id
	}
	return normalized
}

// AddNote registers (or replaces) a note and its outgoing links. The title
// and the identity itself become aliases for the note. Calling AddNote again
// for the same identity replaces its previous outgoing set entirely.
func (g *Graph) AddNote(path, title string, links []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNoteLocked(path, title, links)
}

func (g *Graph) addNoteLocked(path, title string, links []string) {
	id := g.registerLocked(path, title)
	g.linkLocked(id, links)
}

// registerLocked records the note's aliases (identity, title, and bare file
// name, so folder-less wikilinks resolve) and returns its identity.
func (g *Graph) registerLocked(path, title string) string {
	id := models.NormalizeIdentity(path)

	if title != "" {
		g.aliases[strings.ToLower(title)] = id
	}
	if i := strings.LastIndex(id, "/"); i >= 0 {
		g.aliases[strings.ToLower(id[i+1:])] = id
	}
	g.aliases[strings.ToLower(id)] = id
	if g.outgoing[id] == nil {
		g.outgoing[id] = make(map[string]struct{})
	}
	return id
}

func (g *Graph) linkLocked(id string, links []string) {
	// Replace, not append: drop this note from the incoming sets of its
	// previous targets before applying the new link set.
	for oldTarget := range g.outgoing[id] {
		delete(g.incoming[oldTarget], id)
	}
	g.outgoing[id] = make(map[string]struct{})

	for _, link := range links {
		target := g.resolve(link)
		g.outgoing[id][target] = struct{}{}
		if g.incoming[target] == nil {
			g.incoming[target] = make(map[string]struct{})
		}
		g.incoming[target][id] = struct{}{}
	}
}

// RemoveNote deletes a note from both adjacency maps and scrubs every
// reference to it from neighboring entries. Aliases that pointed at the
// removed identity are left in place; resolving one afterwards yields an
// identity no note owns, which then surfaces through BrokenLinks.
func (g *Graph) RemoveNote(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := models.NormalizeIdentity(path)
	for target := range g.outgoing[id] {
		delete(g.incoming[target], id)
	}
	for source := range g.incoming[id] {
		delete(g.outgoing[source], id)
	}
	delete(g.outgoing, id)
	delete(g.incoming, id)
}

// Backlinks resolves the argument (identity or alias) and returns the
// sorted identities linking to it. Empty when none.
func (g *Graph) Backlinks(pathOrAlias string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	id := g.resolve(pathOrAlias)
	return sortedKeys(g.incoming[id])
}

// OutgoingLinks returns the sorted identities the note links to.
func (g *Graph) OutgoingLinks(path string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	id := models.NormalizeIdentity(path)
	return sortedKeys(g.outgoing[id])
}

// Orphans returns the sorted identities of notes with no incoming links.
func (g *Graph) Orphans() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for id := range g.outgoing {
		if len(g.incoming[id]) == 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// BrokenLinks returns every (source, target) pair whose target identity is
// owned by no note, sorted by source then target.
func (g *Graph) BrokenLinks() []Link {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Link
	for source, targets := range g.outgoing {
		for target := range targets {
			if _, exists := g.outgoing[target]; !exists {
				out = append(out, Link{Source: source, Target: target})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})
	return out
}

// Notes returns all known note identities, sorted.
func (g *Graph) Notes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.outgoing)
}

// RebuildFromNotes clears all state and repopulates it from a full note
// list under one lock, so readers on other goroutines never observe the
// graph mid-teardown. All notes are registered before any link is resolved;
// a link can therefore reach a note that appears later in the list.
func (g *Graph) RebuildFromNotes(notes []NoteRef) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.reset()
	ids := make([]string, len(notes))
	for i, n := range notes {
		ids[i] = g.registerLocked(n.Path, n.Title)
	}
	for i, n := range notes {
		g.linkLocked(ids[i], n.Links)
	}
}

// Stats returns aggregate counts over the graph.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	totalNotes := len(g.outgoing)
	totalLinks := 0
	for _, targets := range g.outgoing {
		totalLinks += len(targets)
	}
	g.mu.RUnlock()

	s := Stats{
		TotalNotes:  totalNotes,
		TotalLinks:  totalLinks,
		OrphanNotes: len(g.Orphans()),
		BrokenLinks: len(g.BrokenLinks()),
	}
	if totalNotes > 0 {
		s.AvgLinksPerNote = float64(totalLinks) / float64(totalNotes)
	}
	return s
}

func sortedKeys[V any](set map[string]V) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
