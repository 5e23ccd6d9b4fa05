package enrichment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/marginalia/internal/corpus"
	"github.com/fyrsmithlabs/marginalia/internal/similarity"
)

func testIndex() *similarity.Index {
	return similarity.Build([]similarity.Document{
		{ID: corpus.ChapterID{Book: "ddd", Chapter: 1}, Text: "domain modeling entities aggregates"},
		{ID: corpus.ChapterID{Book: "iddd", Chapter: 1}, Text: "domain driven design entities value objects"},
		{ID: corpus.ChapterID{Book: "async", Chapter: 1}, Text: "async programming event loop"},
	})
}

func testChapters() []corpus.ChapterRecord {
	return []corpus.ChapterRecord{
		{
			BookID:   "ddd",
			Number:   1,
			Title:    "Modeling the Domain",
			Pages:    corpus.PageRange{Start: 1, End: 30},
			Keywords: []string{"models models", "domain model", "entities", "entity"},
			Concepts: []string{"aggregates", "aggregate"},
		},
	}
}

func TestEnrich(t *testing.T) {
	p := New(DefaultConfig(), nil)

	doc, err := p.Enrich("ddd", testChapters(), testIndex())
	require.NoError(t, err)

	assert.Equal(t, "ddd", doc.Book)
	assert.Equal(t, Method, doc.EnrichmentMetadata.Method)
	assert.Equal(t, 3, doc.EnrichmentMetadata.CorpusSize)
	assert.Equal(t, 1, doc.EnrichmentMetadata.TotalChaptersAnalyzed)
	assert.NotEmpty(t, doc.EnrichmentMetadata.Libraries)
	assert.False(t, doc.EnrichmentMetadata.Generated.IsZero())

	require.Len(t, doc.Chapters, 1)
	ch := doc.Chapters[0]

	// Related: iddd#1 crosses the 0.15 threshold, async#1 does not.
	require.Len(t, ch.RelatedChapters, 1)
	assert.Equal(t, "iddd", ch.RelatedChapters[0].Book)
	assert.Equal(t, similarity.Method, ch.RelatedChapters[0].Method)

	// "models models" dropped (repeated stem); variant groups collapse to
	// their shortest surface form.
	assert.Equal(t, []string{"domain model", "entity"}, ch.KeywordsEnriched)
	assert.Equal(t, []string{"aggregate"}, ch.ConceptsEnriched)
}

func TestEnrichRejectsInvalidChapters(t *testing.T) {
	p := New(DefaultConfig(), nil)
	idx := testIndex()

	t.Run("bad page range", func(t *testing.T) {
		chapters := []corpus.ChapterRecord{{BookID: "ddd", Number: 1, Pages: corpus.PageRange{Start: 9, End: 2}}}
		_, err := p.Enrich("ddd", chapters, idx)
		assert.Error(t, err)
	})

	t.Run("duplicate chapter number", func(t *testing.T) {
		chapters := []corpus.ChapterRecord{
			{BookID: "ddd", Number: 1, Pages: corpus.PageRange{Start: 1, End: 2}},
			{BookID: "ddd", Number: 1, Pages: corpus.PageRange{Start: 3, End: 4}},
		}
		_, err := p.Enrich("ddd", chapters, idx)
		assert.Error(t, err)
	})

	t.Run("nil index", func(t *testing.T) {
		_, err := p.Enrich("ddd", testChapters(), nil)
		assert.Error(t, err)
	})
}

func TestEnrichKeywordCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxKeywords = 1
	p := New(cfg, nil)

	doc, err := p.Enrich("ddd", testChapters(), testIndex())
	require.NoError(t, err)
	assert.Len(t, doc.Chapters[0].KeywordsEnriched, 1)
}
