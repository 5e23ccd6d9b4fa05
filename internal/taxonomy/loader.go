package taxonomy

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/marginalia/internal/corpus"
)

// document is the on-disk taxonomy shape: a tiers map plus per-book entries.
type document struct {
	Tiers map[string]tierEntry `json:"tiers"`
	Books map[string]bookEntry `json:"books"`
}

type tierEntry struct {
	Priority int      `json:"priority"`
	Concepts []string `json:"concepts"`
	Books    []string `json:"books"`
}

type bookEntry struct {
	Concepts   []string `json:"concepts"`
	CascadesTo []string `json:"cascades_to"`
	Weight     float64  `json:"weight"`
}

// LoadFile loads the taxonomy document from a JSON file and swaps it in.
func (s *Scorer) LoadFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read taxonomy: %w", err)
	}
	if err := s.Load(content); err != nil {
		return fmt.Errorf("taxonomy %s: %w", path, err)
	}
	return nil
}

// Load parses a taxonomy document and atomically replaces the current
// registry. Structural problems (unparseable JSON) are errors; authoring
// problems (dangling references, cycles) are warnings and the remaining
// valid data is kept.
func (s *Scorer) Load(content []byte) error {
	var doc document
	if err := json.Unmarshal(content, &doc); err != nil {
		return fmt.Errorf("failed to parse taxonomy document: %w", err)
	}

	books := make(map[string]corpus.BookProfile)

	for tierName, tier := range doc.Tiers {
		for _, bookID := range tier.Books {
			entry := doc.Books[bookID]
			profile := corpus.BookProfile{
				ID:           bookID,
				Tier:         tierName,
				TierPriority: tier.Priority,
				Concepts:     mergeConcepts(tier.Concepts, entry.Concepts),
				Weight:       entry.Weight,
				CascadesTo:   entry.CascadesTo,
			}
			if prev, dup := books[bookID]; dup {
				s.warn(fmt.Sprintf("book %s listed in tiers %s and %s; keeping %s",
					bookID, prev.Tier, tierName, prev.Tier))
				continue
			}
			books[bookID] = profile
		}
	}

	// Books declared outside any tier still participate, at lowest priority.
	for bookID, entry := range doc.Books {
		if _, ok := books[bookID]; ok {
			continue
		}
		books[bookID] = corpus.BookProfile{
			ID:           bookID,
			TierPriority: untieredPriority,
			Concepts:     mergeConcepts(nil, entry.Concepts),
			Weight:       entry.Weight,
			CascadesTo:   entry.CascadesTo,
		}
	}

	order := make([]string, 0, len(books))
	for id := range books {
		order = append(order, id)
	}
	sort.Strings(order)

	reg := &registry{books: books, order: order}
	s.lint(reg)

	s.mu.Lock()
	s.reg = reg
	s.mu.Unlock()

	s.logger.Info("taxonomy loaded",
		zap.Int("books", len(books)),
		zap.Int("tiers", len(doc.Tiers)))
	return nil
}

// untieredPriority sorts books without a tier after every declared tier.
const untieredPriority = 1 << 20

func mergeConcepts(tierConcepts, bookConcepts []string) []string {
	seen := make(map[string]bool, len(tierConcepts)+len(bookConcepts))
	out := make([]string, 0, len(tierConcepts)+len(bookConcepts))
	for _, c := range append(append([]string{}, bookConcepts...), tierConcepts...) {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// lint reports authoring problems: dangling cascade targets and circular
// cascade chains. Cycles are permitted at runtime (traversal is bounded by a
// visited set); they are surfaced here so taxonomy authors can fix them.
func (s *Scorer) lint(reg *registry) {
	for _, id := range reg.order {
		for _, target := range reg.books[id].CascadesTo {
			if _, ok := reg.books[target]; !ok {
				s.warn(fmt.Sprintf("book %s cascades to unknown book %s", id, target))
			}
		}
	}

	for _, id := range reg.order {
		if inCycle(reg, id) {
			s.warn(fmt.Sprintf("book %s participates in a circular cascade", id))
		}
	}
}

func inCycle(reg *registry, start string) bool {
	visited := map[string]bool{}
	frontier := reg.books[start].CascadesTo
	for len(frontier) > 0 {
		var next []string
		for _, id := range frontier {
			if id == start {
				return true
			}
			if visited[id] {
				continue
			}
			visited[id] = true
			next = append(next, reg.books[id].CascadesTo...)
		}
		frontier = next
	}
	return false
}
