package rank

import (
	"math"
	"sort"

	"github.com/tofunori/obsidian-mcp/internal/models"
)

// BM25 Okapi parameters.
const (
	k1      = 1.5
	b       = 0.75
	epsilon = 0.25 // floor factor applied to negative idf values
)

// Document is one entry of the corpus snapshot the index is built from.
type Document struct {
	ID    string
	Text  string
	Attrs models.Attributes
}

// index is an immutable BM25 index over one corpus snapshot. It is built
// once and then published atomically; it is never mutated afterwards.
type index struct {
	docs      []Document
	idToPos   map[string]int
	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
}

// buildIndex tokenizes the corpus and precomputes term statistics.
func buildIndex(docs []Document) *index {
	idx := &index{
		docs:      docs,
		idToPos:   make(map[string]int, len(docs)),
		termFreqs: make([]map[string]int, len(docs)),
		docLens:   make([]int, len(docs)),
		idf:       make(map[string]float64),
	}

	docFreq := make(map[string]int)
	totalLen := 0
	for i, doc := range docs {
		idx.idToPos[doc.ID] = i
		tokens := Tokenize(doc.Text)
		idx.docLens[i] = len(tokens)
		totalLen += len(tokens)

		freqs := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freqs[tok]++
		}
		idx.termFreqs[i] = freqs
		for term := range freqs {
			docFreq[term]++
		}
	}

	n := len(docs)
	if n == 0 {
		return idx
	}
	idx.avgDocLen = float64(totalLen) / float64(n)

	// Okapi idf can go negative for terms in more than half the corpus;
	// such values are floored at epsilon times the average idf.
	var idfSum float64
	var negative []string
	for term, df := range docFreq {
		v := math.Log(float64(n-df)+0.5) - math.Log(float64(df)+0.5)
		idx.idf[term] = v
		idfSum += v
		if v < 0 {
			negative = append(negative, term)
		}
	}
	if len(idx.idf) > 0 {
		floor := epsilon * idfSum / float64(len(idx.idf))
		for _, term := range negative {
			idx.idf[term] = floor
		}
	}

	return idx
}

// score computes the BM25 score of the document at position pos for the
// given tokenized query.
func (idx *index) score(queryTokens []string, pos int) float64 {
	if idx.avgDocLen == 0 {
		return 0
	}
	freqs := idx.termFreqs[pos]
	docLen := float64(idx.docLens[pos])
	norm := k1 * (1 - b + b*docLen/idx.avgDocLen)

	var total float64
	for _, term := range queryTokens {
		f := float64(freqs[term])
		if f == 0 {
			continue
		}
		total += idx.idf[term] * (f * (k1 + 1)) / (f + norm)
	}
	return total
}

// topN scores the eligible documents (all when eligible is nil) against the
// query tokens and returns the n best in descending score order. Ties keep
// corpus order (stable sort). Rank is the 0-based output position.
func (idx *index) topN(queryTokens []string, n int, eligible map[string]struct{}) []models.RankedCandidate {
	if len(idx.docs) == 0 || n <= 0 {
		return nil
	}

	type scored struct {
		pos   int
		score float64
	}
	candidates := make([]scored, 0, len(idx.docs))
	for pos, doc := range idx.docs {
		if eligible != nil {
			if _, ok := eligible[doc.ID]; !ok {
				continue
			}
		}
		candidates = append(candidates, scored{pos: pos, score: idx.score(queryTokens, pos)})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if n > len(candidates) {
		n = len(candidates)
	}

	out := make([]models.RankedCandidate, n)
	for rank := 0; rank < n; rank++ {
		out[rank] = models.RankedCandidate{
			ID:    idx.docs[candidates[rank].pos].ID,
			Score: candidates[rank].score,
			Rank:  rank,
		}
	}
	return out
}

// lookup returns the document for id, if present in the snapshot.
func (idx *index) lookup(id string) (Document, bool) {
	pos, ok := idx.idToPos[id]
	if !ok {
		return Document{}, false
	}
	return idx.docs[pos], true
}
