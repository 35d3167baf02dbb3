package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// snapshot is the on-disk JSON form of the graph.
type snapshot struct {
	Outgoing map[string][]string `json:"outgoing"`
	Incoming map[string][]string `json:"incoming"`
	Aliases  map[string]string   `json:"aliases"`
}

// Save writes the graph to path as JSON, creating parent directories as
// needed. The write goes through a temp file and rename so a crash never
// leaves a truncated snapshot behind.
func (g *Graph) Save(path string) error {
	g.mu.RLock()
	snap := snapshot{
		Outgoing: make(map[string][]string, len(g.outgoing)),
		Incoming: make(map[string][]string, len(g.incoming)),
		Aliases:  make(map[string]string, len(g.aliases)),
	}
	for id, targets := range g.outgoing {
		snap.Outgoing[id] = orEmpty(sortedKeys(targets))
	}
	for id, sources := range g.incoming {
		snap.Incoming[id] = orEmpty(sortedKeys(sources))
	}
	for alias, id := range g.aliases {
		snap.Aliases[alias] = id
	}
	g.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("graph: marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("graph: create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".graph-tmp-*")
	if err != nil {
		return fmt.Errorf("graph: create temp snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("graph: write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("graph: close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("graph: publish snapshot: %w", err)
	}
	return nil
}

// Load replaces the graph contents with the snapshot at path. On any error
// the previous in-memory state is left untouched.
func (g *Graph) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("graph: read snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("graph: decode snapshot: %w", err)
	}

	outgoing := make(map[string]map[string]struct{}, len(snap.Outgoing))
	for id, targets := range snap.Outgoing {
		outgoing[id] = toSet(targets)
	}
	incoming := make(map[string]map[string]struct{}, len(snap.Incoming))
	for id, sources := range snap.Incoming {
		incoming[id] = toSet(sources)
	}
	aliases := snap.Aliases
	if aliases == nil {
		aliases = make(map[string]string)
	}

	g.mu.Lock()
	g.outgoing = outgoing
	g.incoming = incoming
	g.aliases = aliases
	g.mu.Unlock()
	return nil
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

func orEmpty(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
