package corpus

import (
	"context"
	"strconv"
)

// Passage is text returned by a Store, with citation metadata. A missing
// book or page span is reported with Found=false rather than an error so
// callers can record partial failures per request.
type Passage struct {
	BookID string `json:"book"`
	Title  string `json:"title,omitempty"`
	Author string `json:"author,omitempty"`
	Pages  []int  `json:"pages,omitempty"`
	Text   string `json:"text,omitempty"`
	Found  bool   `json:"found"`
}

// Citation renders an author/title/page citation for the passage.
func (p Passage) Citation() string {
	if !p.Found {
		return ""
	}
	cite := p.Title
	if p.Author != "" {
		cite = p.Author + ", " + cite
	}
	if len(p.Pages) > 0 {
		if len(p.Pages) == 1 {
			return cite + ", p. " + strconv.Itoa(p.Pages[0])
		}
		return cite + ", pp. " + strconv.Itoa(p.Pages[0]) + "-" + strconv.Itoa(p.Pages[len(p.Pages)-1])
	}
	return cite
}

// Store serves raw book text with citation metadata. Implementations must
// report missing material via Passage.Found, reserving errors for I/O
// failures.
type Store interface {
	// PageText returns the text covering the given pages of a book.
	PageText(ctx context.Context, bookID string, pages []int) (Passage, error)

	// ChapterText returns the full text of one chapter.
	ChapterText(ctx context.Context, bookID string, chapter int) (Passage, error)
}
