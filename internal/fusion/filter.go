// Package fusion combines lexical and semantic candidate lists with
// reciprocal rank fusion and evaluates metadata filters over candidates.
package fusion

import (
	"strings"

	"github.com/tofunori/obsidian-mcp/internal/models"
)

// Filter is a metadata predicate over note attributes. A nil Filter matches
// everything. The concrete variants are And, Or, Contains and Equals.
type Filter interface {
	Match(attrs models.Attributes) bool
}

// And matches when every child matches. An empty And matches everything.
type And []Filter

// Match implements Filter.
func (a And) Match(attrs models.Attributes) bool {
	for _, f := range a {
		if f != nil && !f.Match(attrs) {
			return false
		}
	}
	return true
}

// Or matches when at least one child matches. An empty Or matches nothing.
type Or []Filter

// Match implements Filter.
func (o Or) Match(attrs models.Attributes) bool {
	for _, f := range o {
		if f != nil && f.Match(attrs) {
			return true
		}
	}
	return false
}

// Contains matches when the named attribute contains Value as a substring,
// case-insensitively. A missing attribute reads as the empty string and can
// only match an empty Value.
type Contains struct {
	Attr  string
	Value string
}

// Match implements Filter.
func (c Contains) Match(attrs models.Attributes) bool {
	return strings.Contains(strings.ToLower(attrs.Field(c.Attr)), strings.ToLower(c.Value))
}

// Equals matches when the named attribute equals Value exactly,
// case-insensitively.
type Equals struct {
	Attr  string
	Value string
}

// Match implements Filter.
func (e Equals) Match(attrs models.Attributes) bool {
	return strings.EqualFold(attrs.Field(e.Attr), e.Value)
}

// Evaluate applies f to attrs, treating a nil filter as match-all.
func Evaluate(attrs models.Attributes, f Filter) bool {
	if f == nil {
		return true
	}
	return f.Match(attrs)
}

// BuildFilter assembles the standard search filter: an optional folder
// prefix constraint AND-ed with one Contains clause per requested tag.
// Returns nil when neither is requested.
func BuildFilter(folder string, tags []string) Filter {
	var clauses And
	if folder != "" {
		clauses = append(clauses, Contains{Attr: "location", Value: folder})
	}
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		clauses = append(clauses, Contains{Attr: "tags", Value: tag})
	}
	if len(clauses) == 0 {
		return nil
	}
	return clauses
}
