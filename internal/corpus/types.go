// Package corpus defines the value types shared across the enrichment and
// analysis pipelines, and the store collaborator that serves book text.
package corpus

import (
	"fmt"
	"time"
)

// PageRange is an inclusive page span within a book.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Validate checks the range is non-empty and monotonic.
func (p PageRange) Validate() error {
	if p.Start <= 0 {
		return fmt.Errorf("page range start %d must be positive", p.Start)
	}
	if p.End < p.Start {
		return fmt.Errorf("page range [%d,%d] is not monotonic", p.Start, p.End)
	}
	return nil
}

// Pages expands the range into an ordered page list.
func (p PageRange) Pages() []int {
	if p.End < p.Start {
		return nil
	}
	pages := make([]int, 0, p.End-p.Start+1)
	for i := p.Start; i <= p.End; i++ {
		pages = append(pages, i)
	}
	return pages
}

// ChapterRecord is a single chapter's extracted metadata. Records are created
// by upstream extraction and treated as immutable here; enrichment produces a
// new EnrichedChapter rather than mutating the input.
type ChapterRecord struct {
	BookID   string    `json:"book"`
	Number   int       `json:"chapter_number"`
	Title    string    `json:"title"`
	Pages    PageRange `json:"pages"`
	Summary  string    `json:"summary,omitempty"`
	Keywords []string  `json:"keywords,omitempty"`
	Concepts []string  `json:"concepts,omitempty"`
}

// Validate checks the chapter invariants.
func (c ChapterRecord) Validate() error {
	if c.BookID == "" {
		return fmt.Errorf("chapter %d has no book", c.Number)
	}
	if c.Number <= 0 {
		return fmt.Errorf("chapter number %d must be positive", c.Number)
	}
	if err := c.Pages.Validate(); err != nil {
		return fmt.Errorf("chapter %d: %w", c.Number, err)
	}
	return nil
}

// ID returns the chapter's corpus-wide identifier.
func (c ChapterRecord) ID() ChapterID {
	return ChapterID{Book: c.BookID, Chapter: c.Number}
}

// ChapterID identifies a chapter across books.
type ChapterID struct {
	Book    string `json:"book"`
	Chapter int    `json:"chapter"`
}

// String renders the ID as book#chapter.
func (id ChapterID) String() string {
	return fmt.Sprintf("%s#%d", id.Book, id.Chapter)
}

// RelatedChapterLink is a scored cross-book relationship. Immutable once
// attached to an enriched chapter.
type RelatedChapterLink struct {
	Book            string  `json:"book"`
	Chapter         int     `json:"chapter"`
	SimilarityScore float64 `json:"similarity_score"`
	Method          string  `json:"method"`
}

// EnrichedChapter is a ChapterRecord plus the fields the statistical
// enrichment pipeline appends.
type EnrichedChapter struct {
	ChapterRecord
	RelatedChapters  []RelatedChapterLink `json:"related_chapters"`
	KeywordsEnriched []string             `json:"keywords_enriched"`
	ConceptsEnriched []string             `json:"concepts_enriched"`
}

// EnrichmentMetadata records which method produced an enriched document, for
// auditability and reproducibility.
type EnrichmentMetadata struct {
	Generated             time.Time `json:"generated"`
	Method                string    `json:"method"`
	Libraries             []string  `json:"libraries"`
	CorpusSize            int       `json:"corpus_size"`
	TotalChaptersAnalyzed int       `json:"total_chapters_analyzed"`
}

// EnrichedDocument is the per-book artifact produced by the enrichment
// pipeline.
type EnrichedDocument struct {
	Book               string             `json:"book"`
	EnrichmentMetadata EnrichmentMetadata `json:"enrichment_metadata"`
	Chapters           []EnrichedChapter  `json:"chapters"`
}

// BookProfile is a taxonomy entry: a book, its tier, concept set, relevance
// weight, and the books it recommends when selected. Owned by the taxonomy
// source; read-only here.
type BookProfile struct {
	ID           string   `json:"id"`
	Tier         string   `json:"tier"`
	TierPriority int      `json:"tier_priority"`
	Concepts     []string `json:"concepts"`
	Weight       float64  `json:"weight"`
	CascadesTo   []string `json:"cascades_to,omitempty"`
}

// ContentRequest is a structured ask emitted by the Phase-1 model response:
// supplementary material to retrieve before Phase 2. Immutable value object.
type ContentRequest struct {
	Book      string `json:"book"`
	Pages     []int  `json:"pages"`
	Rationale string `json:"rationale"`
	Priority  int    `json:"priority"`
}

// ScholarlyAnnotation is the final Phase-2 artifact for one chapter. Never
// mutated after creation.
type ScholarlyAnnotation struct {
	ChapterNumber     int               `json:"chapter_number"`
	ChapterTitle      string            `json:"chapter_title"`
	Annotation        string            `json:"annotation"`
	CitedSources      []string          `json:"cited_sources"`
	ValidatedConcepts []string          `json:"validated_concepts"`
	GapsIdentified    []string          `json:"gaps_identified"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}
