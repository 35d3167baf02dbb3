package fusion

import (
	"sort"

	"github.com/tofunori/obsidian-mcp/internal/models"
)

// DefaultRRFK is the standard reciprocal-rank-fusion smoothing constant.
const DefaultRRFK = 60

// Payload carries the displayable content for a candidate identity, so the
// fused results do not have to be re-fetched from storage.
type Payload struct {
	Text  string
	Attrs models.Attributes
}

// LookupFunc resolves an identity to its payload when the payload map has no
// entry for it. The bool reports whether the identity could be resolved.
type LookupFunc func(id string) (Payload, bool)

// Fuse merges a lexical and a semantic ranking with weighted reciprocal rank
// fusion. Each list contributes weight/(k+rank+1) per candidate, where the
// semantic list is weighted alpha and the lexical list (1-alpha). Results are
// ordered by fused score descending; exact ties are broken by identity,
// ascending, so the output is deterministic regardless of input order.
// Candidates whose text cannot be resolved from payloads or lookup are
// dropped.
func Fuse(lexical, semantic []models.RankedCandidate, alpha float64, k float64, payloads map[string]Payload, lookup LookupFunc) []models.FusedResult {
	merged := make(map[string]*models.FusedResult)

	get := func(id string) *models.FusedResult {
		if r, ok := merged[id]; ok {
			return r
		}
		r := &models.FusedResult{ID: id}
		merged[id] = r
		return r
	}

	for _, c := range lexical {
		r := get(c.ID)
		r.Score += (1 - alpha) / (k + float64(c.Rank) + 1)
		r.LexicalScore = c.Score
	}
	for _, c := range semantic {
		r := get(c.ID)
		r.Score += alpha / (k + float64(c.Rank) + 1)
		r.SemanticScore = c.Score
	}

	out := make([]models.FusedResult, 0, len(merged))
	for id, r := range merged {
		p, ok := payloads[id]
		if !ok && lookup != nil {
			p, ok = lookup(id)
		}
		if !ok {
			continue
		}
		r.Text = p.Text
		r.Attrs = p.Attrs
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}
