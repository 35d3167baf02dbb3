// Package models defines the domain types shared across the vault indexer
// and the retrieval engine.
package models

import (
	"strings"
	"time"
)

// Note represents a parsed Markdown file in the vault.
type Note struct {
	// VaultPath is the path relative to the vault root, including the
	// .md extension (e.g. "projects/roadmap.md").
	VaultPath   string                 `json:"vault_path"`
	Title       string                 `json:"title,omitempty"`
	Body        string                 `json:"body"`
	Frontmatter map[string]interface{} `json:"frontmatter,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	Links       []string               `json:"links,omitempty"`
	Checksum    string                 `json:"checksum"`
	ModifiedAt  time.Time              `json:"modified_at"`
}

// Identity returns the canonical note key: the vault path without its
// extension, with forward-slash separators.
func (n Note) Identity() string {
	return NormalizeIdentity(n.VaultPath)
}

// NormalizeIdentity strips a trailing .md extension and converts
// backslashes to forward slashes.
func NormalizeIdentity(path string) string {
	path = strings.ReplaceAll(path, `\`, "/")
	return strings.TrimSuffix(path, ".md")
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path       string    `json:"path"`
	Checksum   string    `json:"checksum"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Attributes is the metadata attached to an indexed note. The known fields
// are explicit; anything unrecognized goes into Extra.
type Attributes struct {
	// Location is the vault-relative display path, extension included.
	Location string            `json:"location"`
	Title    string            `json:"title"`
	Tags     []string          `json:"tags"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// TagString returns the tag list serialized as a comma-delimited string,
// the convention used by the vector store and the tag containment filter.
func (a Attributes) TagString() string {
	return strings.Join(a.Tags, ",")
}

// Field returns the attribute value for a filter field name. Unknown fields
// fall through to Extra; a missing key yields the empty string.
func (a Attributes) Field(name string) string {
	switch name {
	case "location":
		return a.Location
	case "title":
		return a.Title
	case "tags":
		return a.TagString()
	default:
		return a.Extra[name]
	}
}

// RankedCandidate is one entry of a single ranking list. Rank is the
// 0-based position within that list; Score is the list's own raw score and
// is not comparable across lists.
type RankedCandidate struct {
	ID    string
	Score float64
	Rank  int
}

// FusedResult is one entry of the final fused result list.
type FusedResult struct {
	ID            string     `json:"id"`
	Text          string     `json:"text"`
	Attrs         Attributes `json:"attributes"`
	Score         float64    `json:"score"`
	LexicalScore  float64    `json:"lexical_score"`
	SemanticScore float64    `json:"semantic_score"`
	RerankScore   float64    `json:"rerank_score,omitempty"`
}
