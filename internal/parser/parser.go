// Package parser extracts YAML frontmatter, wikilinks, and tags from
// Obsidian-style Markdown notes.
package parser

import (
	"bytes"
	"path"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// [[target]] and [[target|alias]]; the alias part is display-only.
	wikilinkRe = regexp.MustCompile(`\[\[([^\]|]+)(?:\|[^\]]+)?\]\]`)
	// #tag but not ##heading; tags start with a letter.
	tagRe = regexp.MustCompile(`(?:^|[^#\w])#([A-Za-z][A-Za-z0-9_/-]*)`)
	h1Re  = regexp.MustCompile(`(?m)^#\s+(.+)$`)
)

// Result holds the output of parsing one Markdown note.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	Title       string
	Tags        []string
	Links       []string
}

// Parse extracts frontmatter, body, title, wikilinks, and tags from raw
// Markdown bytes. filename (may be empty) is used as the last-resort title.
// Malformed frontmatter is not an error: the whole content becomes the body.
func Parse(data []byte, filename string) *Result {
	fm, body := splitFrontmatter(data)

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Title:       deriveTitle(body, fm, filename),
		Tags:        extractTags(body, fm),
		Links:       extractWikilinks(body),
	}
}

// splitFrontmatter separates the YAML block between leading --- fences from
// the Markdown body. Missing or invalid frontmatter yields a nil map and the
// full content as body.
func splitFrontmatter(data []byte) (map[string]interface{}, string) {
	const fence = "---"
	trimmed := bytes.TrimLeft(data, "\r\n")
	if !bytes.HasPrefix(trimmed, []byte(fence)) {
		return nil, string(data)
	}

	rest := trimmed[len(fence):]
	end := bytes.Index(rest, []byte("\n"+fence))
	if end < 0 {
		return nil, string(data)
	}

	var fm map[string]interface{}
	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return nil, string(data)
	}

	body := rest[end+1+len(fence):]
	return fm, strings.TrimLeft(string(body), "\r\n")
}

// extractWikilinks returns deduplicated link targets in order of first
// appearance, with any .md extension stripped.
func extractWikilinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target := strings.TrimSuffix(strings.TrimSpace(m[1]), ".md")
		if target == "" {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// extractTags merges frontmatter tags (list or single string) with inline
// #tags from the body and returns them sorted.
func extractTags(body string, fm map[string]interface{}) []string {
	seen := make(map[string]struct{})

	if fm != nil {
		switch v := fm["tags"].(type) {
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					if s = strings.TrimSpace(s); s != "" {
						seen[s] = struct{}{}
					}
				}
			}
		case string:
			if s := strings.TrimSpace(v); s != "" {
				seen[s] = struct{}{}
			}
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		seen[m[1]] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// deriveTitle picks the frontmatter "title", else the first H1 heading,
// else the file name stem.
func deriveTitle(body string, fm map[string]interface{}, filename string) string {
	if fm != nil {
		if s, ok := fm["title"].(string); ok && s != "" {
			return s
		}
	}
	if m := h1Re.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	if filename != "" {
		base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
		return strings.TrimSuffix(base, path.Ext(base))
	}
	return ""
}
