package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/marginalia/internal/corpus"
)

func chID(book string, ch int) corpus.ChapterID {
	return corpus.ChapterID{Book: book, Chapter: ch}
}

func testCorpus() []Document {
	return []Document{
		{ID: chID("ddd", 1), Text: "domain modeling entities aggregates"},
		{ID: chID("iddd", 1), Text: "domain driven design entities value objects"},
		{ID: chID("async", 1), Text: "async programming event loop"},
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	idx := Build(testCorpus())

	ab, ok := idx.Similarity(chID("ddd", 1), chID("iddd", 1))
	require.True(t, ok)
	ba, ok := idx.Similarity(chID("iddd", 1), chID("ddd", 1))
	require.True(t, ok)
	assert.InDelta(t, ab, ba, 1e-12)
}

func TestSelfSimilarityIsMaximal(t *testing.T) {
	idx := Build(testCorpus())
	for _, id := range []corpus.ChapterID{chID("ddd", 1), chID("iddd", 1), chID("async", 1)} {
		s, ok := idx.Similarity(id, id)
		require.True(t, ok)
		assert.InDelta(t, 1.0, s, 1e-9)
	}
}

func TestRelatedOrderingAndThreshold(t *testing.T) {
	idx := Build(testCorpus())

	simNear, _ := idx.Similarity(chID("ddd", 1), chID("iddd", 1))
	simFar, _ := idx.Similarity(chID("ddd", 1), chID("async", 1))
	assert.Greater(t, simNear, simFar)

	links := idx.Related(chID("ddd", 1), 0.15, 0)
	require.Len(t, links, 1)
	assert.Equal(t, "iddd", links[0].Book)
	assert.Equal(t, Method, links[0].Method)
	assert.GreaterOrEqual(t, links[0].SimilarityScore, 0.15)
}

func TestRelatedNeverSelfLinks(t *testing.T) {
	idx := Build(testCorpus())
	for _, link := range idx.Related(chID("ddd", 1), 0, 0) {
		assert.False(t, link.Book == "ddd" && link.Chapter == 1)
	}
}

func TestRelatedTopK(t *testing.T) {
	idx := Build(testCorpus())
	links := idx.Related(chID("ddd", 1), 0, 1)
	require.Len(t, links, 1)
	assert.Equal(t, "iddd", links[0].Book)
}

func TestTinyCorpus(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		idx := Build(nil)
		assert.Equal(t, 0, idx.Size())
		assert.Empty(t, idx.Related(chID("ddd", 1), 0, 0))
	})

	t.Run("single document", func(t *testing.T) {
		idx := Build([]Document{{ID: chID("ddd", 1), Text: "domain model"}})
		assert.Empty(t, idx.Related(chID("ddd", 1), 0, 0))
	})
}

func TestUnknownChapter(t *testing.T) {
	idx := Build(testCorpus())
	_, ok := idx.Similarity(chID("ghost", 1), chID("ddd", 1))
	assert.False(t, ok)
	assert.Empty(t, idx.Related(chID("ghost", 1), 0, 0))
}

func TestDeterministicBuild(t *testing.T) {
	a := Build(testCorpus())
	b := Build(testCorpus())
	la := a.Related(chID("ddd", 1), 0, 0)
	lb := b.Related(chID("ddd", 1), 0, 0)
	assert.Equal(t, la, lb)
}
