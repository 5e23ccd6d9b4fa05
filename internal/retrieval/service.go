// Package retrieval resolves the content requests emitted by a Phase-1 model
// response into citation-annotated excerpts from the corpus store.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/marginalia/internal/corpus"
)

// Excerpt is one resolved content request. Found mirrors the store's answer;
// unresolved requests are carried through so callers can report partial
// failures.
type Excerpt struct {
	Request  corpus.ContentRequest `json:"request"`
	Text     string                `json:"text,omitempty"`
	Citation string                `json:"citation,omitempty"`
	Found    bool                  `json:"found"`
}

// Config controls retrieval policy.
type Config struct {
	// MaxExcerptChars truncates each excerpt to keep Phase-2 prompts
	// bounded. 0 means no truncation.
	MaxExcerptChars int `koanf:"max_excerpt_chars"`
}

// DefaultConfig returns the default retrieval policy.
func DefaultConfig() Config {
	return Config{MaxExcerptChars: 6000}
}

// Service resolves content requests against a corpus store.
type Service struct {
	config Config
	store  corpus.Store
	logger *zap.Logger
}

// NewService creates a retrieval service.
func NewService(cfg Config, store corpus.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("corpus store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{config: cfg, store: store, logger: logger}, nil
}

// Order sorts requests by priority descending, preserving the original order
// of equal priorities.
func Order(requests []corpus.ContentRequest) []corpus.ContentRequest {
	ordered := make([]corpus.ContentRequest, len(requests))
	copy(ordered, requests)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})
	return ordered
}

// Resolve fetches each request's text, highest priority first. Missing books
// or pages yield Found=false excerpts; only store I/O failures and context
// cancellation return an error.
func (s *Service) Resolve(ctx context.Context, requests []corpus.ContentRequest) ([]Excerpt, error) {
	ordered := Order(requests)
	excerpts := make([]Excerpt, 0, len(ordered))

	for _, req := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		passage, err := s.store.PageText(ctx, req.Book, req.Pages)
		if err != nil {
			return nil, fmt.Errorf("retrieving %s pages %v: %w", req.Book, req.Pages, err)
		}
		if !passage.Found {
			s.logger.Warn("content request unresolved",
				zap.String("book", req.Book),
				zap.Ints("pages", req.Pages))
			excerpts = append(excerpts, Excerpt{Request: req, Found: false})
			continue
		}

		excerpts = append(excerpts, Excerpt{
			Request:  req,
			Text:     truncate(passage.Text, s.config.MaxExcerptChars),
			Citation: passage.Citation(),
			Found:    true,
		})
	}
	return excerpts, nil
}

// truncate cuts text to at most max bytes without splitting a rune. 0 means
// no truncation.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
