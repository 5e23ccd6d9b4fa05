package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// bookDocument is the on-disk shape of one book: <dir>/<book_id>.json.
type bookDocument struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Author   string            `json:"author,omitempty"`
	Chapters []chapterDocument `json:"chapters"`
}

type chapterDocument struct {
	Number   int       `json:"chapter_number"`
	Title    string    `json:"title"`
	Pages    PageRange `json:"pages"`
	Summary  string    `json:"summary,omitempty"`
	Keywords []string  `json:"keywords,omitempty"`
	Concepts []string  `json:"concepts,omitempty"`
	Text     string    `json:"text"`
}

// DirStore is a Store backed by a directory of per-book JSON documents.
// Documents are parsed lazily and held for the lifetime of the store.
type DirStore struct {
	dir    string
	logger *zap.Logger

	mu    sync.RWMutex
	books map[string]*bookDocument
}

// NewDirStore creates a store over the given directory.
func NewDirStore(dir string, logger *zap.Logger) (*DirStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("corpus directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirStore{
		dir:    dir,
		logger: logger,
		books:  make(map[string]*bookDocument),
	}, nil
}

// PageText implements Store.
func (s *DirStore) PageText(ctx context.Context, bookID string, pages []int) (Passage, error) {
	book, err := s.load(ctx, bookID)
	if err != nil {
		return Passage{}, err
	}
	if book == nil {
		return Passage{BookID: bookID, Found: false}, nil
	}

	wanted := make(map[int]bool, len(pages))
	for _, p := range pages {
		wanted[p] = true
	}

	var parts []string
	var covered []int
	for _, ch := range book.Chapters {
		if overlaps(ch.Pages, wanted) {
			parts = append(parts, ch.Text)
			for p := ch.Pages.Start; p <= ch.Pages.End; p++ {
				if wanted[p] {
					covered = append(covered, p)
				}
			}
		}
	}
	if len(parts) == 0 {
		s.logger.Warn("pages not found in corpus",
			zap.String("book", bookID), zap.Ints("pages", pages))
		return Passage{BookID: bookID, Found: false}, nil
	}
	sort.Ints(covered)

	return Passage{
		BookID: bookID,
		Title:  book.Title,
		Author: book.Author,
		Pages:  covered,
		Text:   strings.Join(parts, "\n\n"),
		Found:  true,
	}, nil
}

// ChapterText implements Store.
func (s *DirStore) ChapterText(ctx context.Context, bookID string, chapter int) (Passage, error) {
	book, err := s.load(ctx, bookID)
	if err != nil {
		return Passage{}, err
	}
	if book == nil {
		return Passage{BookID: bookID, Found: false}, nil
	}

	for _, ch := range book.Chapters {
		if ch.Number == chapter {
			return Passage{
				BookID: bookID,
				Title:  book.Title,
				Author: book.Author,
				Pages:  ch.Pages.Pages(),
				Text:   ch.Text,
				Found:  true,
			}, nil
		}
	}
	return Passage{BookID: bookID, Found: false}, nil
}

// Books lists the book ids present in the corpus directory, sorted.
func (s *DirStore) Books(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus directory: %w", err)
	}

	var books []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		books = append(books, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(books)
	return books, nil
}

// Chapters returns one book's chapter records, or nil if no such book exists.
func (s *DirStore) Chapters(ctx context.Context, bookID string) ([]ChapterRecord, error) {
	book, err := s.load(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, nil
	}

	records := make([]ChapterRecord, 0, len(book.Chapters))
	for _, ch := range book.Chapters {
		records = append(records, ChapterRecord{
			BookID:   book.ID,
			Number:   ch.Number,
			Title:    ch.Title,
			Pages:    ch.Pages,
			Summary:  ch.Summary,
			Keywords: ch.Keywords,
			Concepts: ch.Concepts,
		})
	}
	return records, nil
}

// PageCounts totals each book's chapter page spans across the corpus.
func (s *DirStore) PageCounts(ctx context.Context) (map[string]int, error) {
	books, err := s.Books(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(books))
	for _, id := range books {
		book, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if book == nil {
			continue
		}
		total := 0
		for _, ch := range book.Chapters {
			total += len(ch.Pages.Pages())
		}
		counts[id] = total
	}
	return counts, nil
}

// load returns the parsed book document, or nil if no such book exists.
func (s *DirStore) load(ctx context.Context, bookID string) (*bookDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	book, ok := s.books[bookID]
	s.mu.RUnlock()
	if ok {
		return book, nil
	}

	path := filepath.Join(s.dir, bookID+".json")
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read book %s: %w", bookID, err)
	}

	var doc bookDocument
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse book %s: %w", bookID, err)
	}
	if doc.ID == "" {
		doc.ID = bookID
	}

	s.mu.Lock()
	s.books[bookID] = &doc
	s.mu.Unlock()

	return &doc, nil
}

func overlaps(r PageRange, wanted map[int]bool) bool {
	for p := r.Start; p <= r.End; p++ {
		if wanted[p] {
			return true
		}
	}
	return false
}
