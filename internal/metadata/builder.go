// Package metadata assembles the candidate-book package sent to the model in
// Phase 1: ranked companion books, concept-to-book matches, cascade
// relationships, and aggregate totals.
package metadata

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/marginalia/internal/taxonomy"
)

// Config controls relevance boosting policy.
type Config struct {
	// TierBoostStep is the increment between tier boosts: priority-1 books
	// get two steps, priority-2 books one step, everything below none.
	TierBoostStep float64 `koanf:"tier_boost_step"`

	// CascadeBonus is the flat bonus for books reached via cascade from an
	// already-selected book.
	CascadeBonus float64 `koanf:"cascade_bonus"`

	// CascadeDepth bounds cascade expansion.
	CascadeDepth int `koanf:"cascade_depth"`

	// MatchesPerConcept caps per-concept book matches.
	MatchesPerConcept int `koanf:"matches_per_concept"`
}

// DefaultConfig returns the default boost policy.
func DefaultConfig() Config {
	return Config{
		TierBoostStep:     1.0,
		CascadeBonus:      0.5,
		CascadeDepth:      2,
		MatchesPerConcept: 3,
	}
}

// CandidateBook is one ranked candidate in the package.
type CandidateBook struct {
	Book         string  `json:"book"`
	Relevance    float64 `json:"relevance"`
	ConceptScore float64 `json:"concept_score"`
	Tier         string  `json:"tier,omitempty"`
	TierPriority int     `json:"tier_priority"`
	ViaCascade   bool    `json:"via_cascade,omitempty"`
	PageCount    int     `json:"page_count,omitempty"`
}

// ConceptMatch maps one concept to its best-matching books.
type ConceptMatch struct {
	Concept string   `json:"concept"`
	Books   []string `json:"books"`
}

// Package is the Phase-1 metadata package.
type Package struct {
	Candidates     []CandidateBook     `json:"candidates"`
	ConceptMatches []ConceptMatch      `json:"concept_matches"`
	Cascades       map[string][]string `json:"cascades,omitempty"`
	TotalBooks     int                 `json:"total_books"`
	TotalPages     int                 `json:"total_pages"`
}

// Builder builds metadata packages from a taxonomy scorer.
type Builder struct {
	config Config
	scorer *taxonomy.Scorer
	logger *zap.Logger

	// pageCounts maps book id to total page count, supplied from the corpus
	// inventory; missing entries contribute zero to totals.
	pageCounts map[string]int
}

// NewBuilder creates a builder over the given scorer.
func NewBuilder(cfg Config, scorer *taxonomy.Scorer, pageCounts map[string]int, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		config:     cfg,
		scorer:     scorer,
		logger:     logger,
		pageCounts: pageCounts,
	}
}

// Build assembles the package for an ordered concept list. Identical inputs
// produce identical packages: ordering is descending relevance with book-id
// tie breaks.
func (b *Builder) Build(concepts []string) Package {
	scores := b.scorer.Score(concepts)

	type entry struct {
		score      float64
		tier       string
		priority   int
		viaCascade bool
	}
	candidates := make(map[string]*entry, len(scores))
	for _, s := range scores {
		candidates[s.Book] = &entry{score: s.Score, tier: s.Tier, priority: s.TierPriority}
	}

	// Cascade expansion: books recommended by already-selected books join
	// the candidate set with a flat bonus.
	cascades := make(map[string][]string)
	for _, s := range scores {
		reached := b.scorer.Cascade(s.Book, b.config.CascadeDepth)
		if len(reached) > 0 {
			cascades[s.Book] = reached
		}
		for _, target := range reached {
			e, ok := candidates[target]
			if !ok {
				profile, known := b.scorer.Profile(target)
				if !known {
					continue
				}
				e = &entry{tier: profile.Tier, priority: profile.TierPriority}
				candidates[target] = e
			}
			e.viaCascade = true
		}
	}

	ranked := make([]CandidateBook, 0, len(candidates))
	totalPages := 0
	for book, e := range candidates {
		relevance := e.score + b.tierBoost(e.priority)
		if e.viaCascade {
			relevance += b.config.CascadeBonus
		}
		pages := b.pageCounts[book]
		totalPages += pages
		ranked = append(ranked, CandidateBook{
			Book:         book,
			Relevance:    relevance,
			ConceptScore: e.score,
			Tier:         e.tier,
			TierPriority: e.priority,
			ViaCascade:   e.viaCascade,
			PageCount:    pages,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Relevance != ranked[j].Relevance {
			return ranked[i].Relevance > ranked[j].Relevance
		}
		return ranked[i].Book < ranked[j].Book
	})

	return Package{
		Candidates:     ranked,
		ConceptMatches: b.conceptMatches(concepts),
		Cascades:       cascades,
		TotalBooks:     len(ranked),
		TotalPages:     totalPages,
	}
}

// tierBoost implements the fixed-increment policy: the top tier
// (architecture) outranks the second (implementation), which outranks the
// rest (practices and untiered books).
func (b *Builder) tierBoost(priority int) float64 {
	switch priority {
	case 1:
		return 2 * b.config.TierBoostStep
	case 2:
		return b.config.TierBoostStep
	default:
		return 0
	}
}

// conceptMatches maps each input concept to its top matching books,
// preserving input order and skipping duplicates.
func (b *Builder) conceptMatches(concepts []string) []ConceptMatch {
	seen := make(map[string]bool, len(concepts))
	matches := make([]ConceptMatch, 0, len(concepts))
	for _, concept := range concepts {
		key := strings.ToLower(strings.TrimSpace(concept))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		scores := b.scorer.Score([]string{concept})
		limit := b.config.MatchesPerConcept
		if limit <= 0 {
			limit = len(scores)
		}
		books := make([]string, 0, limit)
		for _, s := range scores {
			if len(books) == limit {
				break
			}
			books = append(books, s.Book)
		}
		matches = append(matches, ConceptMatch{Concept: key, Books: books})
	}
	return matches
}
