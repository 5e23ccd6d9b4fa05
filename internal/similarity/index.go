// Package similarity builds a per-corpus TF-IDF vector index over chapter
// texts and computes pairwise cosine similarity for cross-book linking.
//
// The index is purely statistical: it is built once from the corpus and never
// consults a model or the network. Term weights are scaled by corpus-wide
// rarity so shared technical boilerplate does not dominate the scores.
package similarity

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/marginalia/internal/corpus"
)

// Method tags the links this index produces.
const Method = "tfidf_cosine"

// Document is one corpus entry: a chapter and its text.
type Document struct {
	ID   corpus.ChapterID
	Text string
}

// Index holds L2-normalized TF-IDF vectors for a fixed corpus.
type Index struct {
	ids     []corpus.ChapterID
	byID    map[corpus.ChapterID]int
	vectors []map[string]float64
}

// Build constructs the index from an ordered corpus. Document order is
// preserved so identical corpora produce identical indexes.
func Build(docs []Document) *Index {
	idx := &Index{
		ids:     make([]corpus.ChapterID, 0, len(docs)),
		byID:    make(map[corpus.ChapterID]int, len(docs)),
		vectors: make([]map[string]float64, 0, len(docs)),
	}

	// Term frequencies per document, document frequencies per term.
	termCounts := make([]map[string]int, len(docs))
	docFreq := make(map[string]int)
	for i, doc := range docs {
		counts := make(map[string]int)
		for _, tok := range tokenize(doc.Text) {
			counts[tok]++
		}
		termCounts[i] = counts
		for term := range counts {
			docFreq[term]++
		}
	}

	n := float64(len(docs))
	for i, doc := range docs {
		vec := make(map[string]float64, len(termCounts[i]))
		for term, count := range termCounts[i] {
			// Smoothed IDF keeps ubiquitous terms small without zeroing them.
			idf := math.Log((n+1)/(float64(docFreq[term])+1)) + 1
			vec[term] = float64(count) * idf
		}
		normalize(vec)

		idx.byID[doc.ID] = len(idx.ids)
		idx.ids = append(idx.ids, doc.ID)
		idx.vectors = append(idx.vectors, vec)
	}
	return idx
}

// Size returns the number of indexed documents.
func (x *Index) Size() int {
	return len(x.ids)
}

// Similarity returns the cosine similarity between two chapters, and whether
// both are present in the index. Symmetric; self-similarity is 1.0.
func (x *Index) Similarity(a, b corpus.ChapterID) (float64, bool) {
	ai, aok := x.byID[a]
	bi, bok := x.byID[b]
	if !aok || !bok {
		return 0, false
	}
	return dot(x.vectors[ai], x.vectors[bi]), true
}

// Related returns chapters similar to the given one, most-similar first,
// filtered by threshold and capped at topK (topK <= 0 means no cap).
// Self-links are never returned. A corpus of fewer than two documents yields
// an empty list.
func (x *Index) Related(id corpus.ChapterID, threshold float64, topK int) []corpus.RelatedChapterLink {
	self, ok := x.byID[id]
	if !ok || len(x.ids) < 2 {
		return nil
	}

	links := make([]corpus.RelatedChapterLink, 0, len(x.ids)-1)
	for i, other := range x.ids {
		if i == self {
			continue
		}
		score := dot(x.vectors[self], x.vectors[i])
		if score < threshold {
			continue
		}
		links = append(links, corpus.RelatedChapterLink{
			Book:            other.Book,
			Chapter:         other.Chapter,
			SimilarityScore: score,
			Method:          Method,
		})
	}

	sort.SliceStable(links, func(i, j int) bool {
		if links[i].SimilarityScore != links[j].SimilarityScore {
			return links[i].SimilarityScore > links[j].SimilarityScore
		}
		if links[i].Book != links[j].Book {
			return links[i].Book < links[j].Book
		}
		return links[i].Chapter < links[j].Chapter
	})

	if topK > 0 && len(links) > topK {
		links = links[:topK]
	}
	return links
}

// tokenize lowercases and splits on non-alphanumeric runes, dropping
// single-character tokens.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func normalize(vec map[string]float64) {
	var sum float64
	for _, w := range vec {
		sum += w * w
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for term, w := range vec {
		vec[term] = w / norm
	}
}

func dot(a, b map[string]float64) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for term, w := range a {
		sum += w * b[term]
	}
	return sum
}
