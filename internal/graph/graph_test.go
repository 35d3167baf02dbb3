package graph

import (
	"reflect"
	"testing"
)

func buildSample() *Graph {
	g := New()
	g.AddNote("A.md", "Alpha", []string{"B", "C"})
	g.AddNote("B.md", "Beta", []string{"C"})
	g.AddNote("C.md", "Gamma", nil)
	return g
}

func TestBacklinksOrphansBroken(t *testing.T) {
	g := buildSample()

	if got := g.Backlinks("C"); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Fatalf("backlinks(C) = %v, want [A B]", got)
	}
	if got := g.Orphans(); !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("orphans = %v, want [A]", got)
	}
	if got := g.BrokenLinks(); len(got) != 0 {
		t.Fatalf("broken links = %v, want none", got)
	}
}

func TestBacklinksViaAliasAndPath(t *testing.T) {
	g := buildSample()

	cases := []string{"C", "C.md", "Gamma", "gamma", "c"}
	for _, query := range cases {
		if got := g.Backlinks(query); !reflect.DeepEqual(got, []string{"A", "B"}) {
			t.Errorf("backlinks(%q) = %v, want [A B]", query, got)
		}
	}
}

func TestInverseInvariant(t *testing.T) {
	g := buildSample()
	g.AddNote("notes/D.md", "Delta", []string{"A", "Missing"})

	g.mu.RLock()
	defer g.mu.RUnlock()
	for source, targets := range g.outgoing {
		for target := range targets {
			if _, ok := g.incoming[target][source]; !ok {
				t.Errorf("edge %s -> %s missing from incoming", source, target)
			}
		}
	}
	for target, sources := range g.incoming {
		for source := range sources {
			if _, ok := g.outgoing[source][target]; !ok {
				t.Errorf("edge %s -> %s missing from outgoing", source, target)
			}
		}
	}
}

func TestAddNoteReplacesLinks(t *testing.T) {
	g := buildSample()

	g.AddNote("A.md", "Alpha", []string{"B"})
	if got := g.Backlinks("C"); !reflect.DeepEqual(got, []string{"B"}) {
		t.Fatalf("backlinks(C) after re-add = %v, want [B]", got)
	}
	if got := g.OutgoingLinks("A"); !reflect.DeepEqual(got, []string{"B"}) {
		t.Fatalf("outgoing(A) = %v, want [B]", got)
	}
}

func TestAddNoteIdempotent(t *testing.T) {
	g := buildSample()
	before := g.Stats()

	g.AddNote("B.md", "Beta", []string{"C"})
	g.AddNote("B.md", "Beta", []string{"C"})

	if after := g.Stats(); after != before {
		t.Fatalf("stats changed on idempotent add: %+v -> %+v", before, after)
	}
}

func TestLinkResolutionByTitle(t *testing.T) {
	g := New()
	g.AddNote("notes/long path.md", "Short Title", nil)
	g.AddNote("other.md", "Other", []string{"Short Title"})

	want := []string{"other"}
	if got := g.Backlinks("notes/long path"); !reflect.DeepEqual(got, want) {
		t.Fatalf("backlinks = %v, want %v", got, want)
	}
}

func TestBrokenLinks(t *testing.T) {
	g := New()
	g.AddNote("A.md", "Alpha", []string{"Nowhere", "B", "Also/Gone"})
	g.AddNote("B.md", "Beta", []string{"Also/Gone"})

	want := []Link{
		{Source: "A", Target: "Also/Gone"},
		{Source: "A", Target: "Nowhere"},
		{Source: "B", Target: "Also/Gone"},
	}
	if got := g.BrokenLinks(); !reflect.DeepEqual(got, want) {
		t.Fatalf("broken links = %v, want %v", got, want)
	}
}

func TestRemoveNote(t *testing.T) {
	g := buildSample()
	g.RemoveNote("B.md")

	if got := g.Backlinks("C"); !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("backlinks(C) = %v, want [A]", got)
	}
	if got := g.Notes(); !reflect.DeepEqual(got, []string{"A", "C"}) {
		t.Fatalf("notes = %v, want [A C]", got)
	}
	// A's link to B is now dangling.
	want := []Link{{Source: "A", Target: "B"}}
	if got := g.BrokenLinks(); !reflect.DeepEqual(got, want) {
		t.Fatalf("broken links = %v, want %v", got, want)
	}
}

func TestRebuildFromNotes(t *testing.T) {
	g := buildSample()
	g.RebuildFromNotes([]NoteRef{
		{Path: "X.md", Title: "Ex", Links: []string{"Y"}},
		{Path: "Y.md", Title: "Why", Links: nil},
	})

	if got := g.Notes(); !reflect.DeepEqual(got, []string{"X", "Y"}) {
		t.Fatalf("notes = %v, want [X Y]", got)
	}
	if got := g.Backlinks("Y"); !reflect.DeepEqual(got, []string{"X"}) {
		t.Fatalf("backlinks(Y) = %v, want [X]", got)
	}
	if got := g.Backlinks("C"); got != nil {
		t.Fatalf("stale backlinks survived rebuild: %v", got)
	}
}

func TestStats(t *testing.T) {
	g := buildSample()
	got := g.Stats()
	want := Stats{TotalNotes: 3, TotalLinks: 3, OrphanNotes: 1, BrokenLinks: 0, AvgLinksPerNote: 1}
	if got != want {
		t.Fatalf("stats = %+v, want %+v", got, want)
	}
}
