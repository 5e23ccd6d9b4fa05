// Package taxonomy loads the tiered book registry and scores companion books
// against concept sets.
//
// The registry is externally authored JSON; authoring mistakes (dangling
// cascade references, circular cascades) are reported as data-integrity
// warnings and never abort processing. A Scorer is an injected instance, not
// a package-level singleton, so tests and callers control its lifetime.
package taxonomy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/marginalia/internal/corpus"
)

const instrumentationName = "github.com/fyrsmithlabs/marginalia/internal/taxonomy"

// BookScore is one ranked scoring result.
type BookScore struct {
	Book         string  `json:"book"`
	Score        float64 `json:"score"`
	Tier         string  `json:"tier"`
	TierPriority int     `json:"tier_priority"`
}

// registry is an immutable snapshot of the loaded taxonomy. Reload swaps the
// whole snapshot under the scorer's lock; readers never observe a partial
// load.
type registry struct {
	books map[string]corpus.BookProfile
	// ordered book ids for deterministic iteration
	order []string
}

// Scorer ranks books against concept sets and expands cascade edges.
type Scorer struct {
	logger *zap.Logger

	meter          metric.Meter
	warningCounter metric.Int64Counter

	mu  sync.RWMutex
	reg *registry
}

// NewScorer creates an empty scorer. Load or LoadFile must be called before
// scoring; an unloaded scorer scores everything to an empty result.
func NewScorer(logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scorer{
		logger: logger,
		meter:  otel.Meter(instrumentationName),
		reg:    &registry{books: map[string]corpus.BookProfile{}},
	}

	var err error
	s.warningCounter, err = s.meter.Int64Counter(
		"marginalia.taxonomy.integrity_warnings_total",
		metric.WithDescription("Total taxonomy data-integrity warnings"),
		metric.WithUnit("{warning}"),
	)
	if err != nil {
		s.logger.Warn("failed to create warning counter", zap.Error(err))
	}

	return s
}

// Profile returns the profile for a book.
func (s *Scorer) Profile(bookID string) (corpus.BookProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.reg.books[bookID]
	return p, ok
}

// Books returns all profiles in deterministic (book id) order.
func (s *Scorer) Books() []corpus.BookProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]corpus.BookProfile, 0, len(s.reg.order))
	for _, id := range s.reg.order {
		out = append(out, s.reg.books[id])
	}
	return out
}

// Score ranks books by the weighted overlap between the given concepts and
// each book's concept set, descending. Ties break by tier priority (lower
// ordinal wins), then book id.
func (s *Scorer) Score(concepts []string) []BookScore {
	wanted := make(map[string]bool, len(concepts))
	for _, c := range concepts {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			wanted[c] = true
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	s.mu.RLock()
	reg := s.reg
	s.mu.RUnlock()

	scores := make([]BookScore, 0, len(reg.order))
	for _, id := range reg.order {
		book := reg.books[id]
		var overlap int
		for _, c := range book.Concepts {
			if wanted[strings.ToLower(c)] {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		weight := book.Weight
		if weight == 0 {
			weight = 1
		}
		scores = append(scores, BookScore{
			Book:         id,
			Score:        float64(overlap) * weight,
			Tier:         book.Tier,
			TierPriority: book.TierPriority,
		})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		if scores[i].TierPriority != scores[j].TierPriority {
			return scores[i].TierPriority < scores[j].TierPriority
		}
		return scores[i].Book < scores[j].Book
	})
	return scores
}

// Cascade follows cascades_to edges from a book up to depth hops and returns
// the reached set (excluding the origin). Traversal carries a visited set so
// circular cascade graphs terminate; unknown targets are warnings, not
// errors.
func (s *Scorer) Cascade(bookID string, depth int) []string {
	s.mu.RLock()
	reg := s.reg
	s.mu.RUnlock()

	if _, ok := reg.books[bookID]; !ok || depth <= 0 {
		return nil
	}

	visited := map[string]bool{bookID: true}
	frontier := []string{bookID}
	var reached []string

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			for _, target := range reg.books[id].CascadesTo {
				if visited[target] {
					continue
				}
				if _, ok := reg.books[target]; !ok {
					s.warn(fmt.Sprintf("cascade edge %s -> %s targets unknown book", id, target))
					continue
				}
				visited[target] = true
				reached = append(reached, target)
				next = append(next, target)
			}
		}
		frontier = next
	}

	sort.Strings(reached)
	return reached
}

func (s *Scorer) warn(msg string) {
	s.logger.Warn("taxonomy data-integrity warning", zap.String("detail", msg))
	if s.warningCounter != nil {
		s.warningCounter.Add(context.Background(), 1)
	}
}
