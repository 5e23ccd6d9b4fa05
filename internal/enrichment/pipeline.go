// Package enrichment composes the similarity index and keyword normalizer
// into per-chapter enriched metadata.
//
// The pipeline is data-in/data-out: it performs no network I/O and never
// calls a language model. Its output envelope is tagged method="statistical"
// and downstream validators rely on that tag, so nothing model-derived may
// flow through here.
package enrichment

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/marginalia/internal/corpus"
	"github.com/fyrsmithlabs/marginalia/internal/keywords"
	"github.com/fyrsmithlabs/marginalia/internal/similarity"
)

// Method tags enriched documents as statistically produced.
const Method = "statistical"

// libraries records the techniques behind an enriched document, for the
// reproducibility envelope.
var libraries = []string{"tfidf_cosine", "suffix_stemmer"}

// Config controls enrichment policy.
type Config struct {
	// SimilarityThreshold filters related-chapter links. Cross-book linking
	// of short excerpts wants a low threshold.
	SimilarityThreshold float64 `koanf:"similarity_threshold"`

	// TopK caps related chapters per chapter. 0 means no cap.
	TopK int `koanf:"top_k"`

	// MaxKeywords caps enriched keywords per chapter. 0 means no cap.
	MaxKeywords int `koanf:"max_keywords"`
}

// DefaultConfig returns the default enrichment policy.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.15,
		TopK:                5,
		MaxKeywords:         15,
	}
}

// Pipeline enriches chapter records for one book at a time.
type Pipeline struct {
	config Config
	logger *zap.Logger
}

// New creates a pipeline.
func New(cfg Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{config: cfg, logger: logger}
}

// Enrich populates relationship, keyword, and concept fields for every
// chapter of a book, using a prebuilt corpus index. Input records are not
// mutated.
func (p *Pipeline) Enrich(bookID string, chapters []corpus.ChapterRecord, idx *similarity.Index) (corpus.EnrichedDocument, error) {
	if idx == nil {
		return corpus.EnrichedDocument{}, fmt.Errorf("similarity index is required")
	}

	seen := make(map[int]bool, len(chapters))
	for _, ch := range chapters {
		if err := ch.Validate(); err != nil {
			return corpus.EnrichedDocument{}, fmt.Errorf("book %s: %w", bookID, err)
		}
		if seen[ch.Number] {
			return corpus.EnrichedDocument{}, fmt.Errorf("book %s: duplicate chapter number %d", bookID, ch.Number)
		}
		seen[ch.Number] = true
	}

	enriched := make([]corpus.EnrichedChapter, 0, len(chapters))
	for _, ch := range chapters {
		related := idx.Related(ch.ID(), p.config.SimilarityThreshold, p.config.TopK)

		enriched = append(enriched, corpus.EnrichedChapter{
			ChapterRecord:    ch,
			RelatedChapters:  related,
			KeywordsEnriched: p.normalizeTerms(ch.Keywords, p.config.MaxKeywords),
			ConceptsEnriched: p.normalizeTerms(ch.Concepts, 0),
		})

		p.logger.Debug("chapter enriched",
			zap.String("book", bookID),
			zap.Int("chapter", ch.Number),
			zap.Int("related", len(related)))
	}

	return corpus.EnrichedDocument{
		Book: bookID,
		EnrichmentMetadata: corpus.EnrichmentMetadata{
			Generated:             time.Now().UTC(),
			Method:                Method,
			Libraries:             libraries,
			CorpusSize:            idx.Size(),
			TotalChaptersAnalyzed: len(chapters),
		},
		Chapters: enriched,
	}, nil
}

// normalizeTerms runs the keyword normalizer over a ranked term list. Rank
// order is the input order; scores decay with position so deduplication
// keeps each group at its best member's slot.
func (p *Pipeline) normalizeTerms(terms []string, cap int) []string {
	ranked := make([]keywords.Keyword, 0, len(terms))
	for i, t := range terms {
		ranked = append(ranked, keywords.Keyword{Term: t, Score: 1 / float64(i+1)})
	}

	cleaned := keywords.Deduplicate(keywords.CleanNgramDuplicates(ranked))
	if cap > 0 && len(cleaned) > cap {
		cleaned = cleaned[:cap]
	}

	out := make([]string, 0, len(cleaned))
	for _, kw := range cleaned {
		out = append(out, kw.Term)
	}
	return out
}
