package parser

import (
	"reflect"
	"testing"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\ntitle: Hello\ntags:\n  - go\n  - vault\n---\n# Hello\nBody text with [[Other Note]].\n")
	r := Parse(input, "hello.md")

	if r.Title != "Hello" {
		t.Errorf("title = %q, want %q", r.Title, "Hello")
	}
	if !reflect.DeepEqual(r.Tags, []string{"go", "vault"}) {
		t.Errorf("tags = %v, want [go vault]", r.Tags)
	}
	if r.Body != "# Hello\nBody text with [[Other Note]].\n" {
		t.Errorf("body = %q", r.Body)
	}
	if !reflect.DeepEqual(r.Links, []string{"Other Note"}) {
		t.Errorf("links = %v", r.Links)
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	r := Parse([]byte("# Just a heading\nSome text.\n"), "x.md")
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter, got %v", r.Frontmatter)
	}
	if r.Title != "Just a heading" {
		t.Errorf("title = %q, want %q", r.Title, "Just a heading")
	}
}

func TestParse_InvalidYAMLFallsBackToBody(t *testing.T) {
	input := []byte("---\n: bad: yaml: {{{\n---\nBody\n")
	r := Parse(input, "")
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter on invalid YAML, got %v", r.Frontmatter)
	}
	if r.Body != string(input) {
		t.Errorf("body should be the whole content, got %q", r.Body)
	}
}

func TestParse_TitleFallbackToFilename(t *testing.T) {
	r := Parse([]byte("no heading here"), "projects/roadmap.md")
	if r.Title != "roadmap" {
		t.Errorf("title = %q, want %q", r.Title, "roadmap")
	}
}

func TestExtractWikilinks(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"dedup and alias", "See [[Note A]] and [[Note B|alias]].\nAlso [[Note A]].", []string{"Note A", "Note B"}},
		{"md extension stripped", "Link to [[folder/note.md]]", []string{"folder/note"}},
		{"empty targets skipped", "see [[ ]] and [[|alias]]", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractWikilinks(tt.body)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("extractWikilinks(%q) = %v, want %v", tt.body, got, tt.want)
			}
		})
	}
}

func TestExtractTags_FrontmatterFormsAndInline(t *testing.T) {
	fm := map[string]interface{}{"tags": []interface{}{"alpha"}}
	got := extractTags("Some text #beta and #alpha again, but not ##heading.", fm)
	if !reflect.DeepEqual(got, []string{"alpha", "beta"}) {
		t.Errorf("tags = %v, want [alpha beta]", got)
	}

	fmScalar := map[string]interface{}{"tags": "solo"}
	got = extractTags("", fmScalar)
	if !reflect.DeepEqual(got, []string{"solo"}) {
		t.Errorf("tags = %v, want [solo]", got)
	}
}

func TestDeriveTitle_FrontmatterWinsOverH1(t *testing.T) {
	fm := map[string]interface{}{"title": "FM Title"}
	if got := deriveTitle("# H1 Title\nbody", fm, "file.md"); got != "FM Title" {
		t.Errorf("title = %q, want %q", got, "FM Title")
	}
}
