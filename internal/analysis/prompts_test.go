package analysis

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/marginalia/internal/corpus"
	"github.com/fyrsmithlabs/marginalia/internal/metadata"
	"github.com/fyrsmithlabs/marginalia/internal/retrieval"
)

func TestBuildPhase2User(t *testing.T) {
	chapter := corpus.EnrichedChapter{
		ChapterRecord: corpus.ChapterRecord{BookID: "iddd", Number: 5, Title: "Aggregates"},
		RelatedChapters: []corpus.RelatedChapterLink{
			{Book: "ddd", Chapter: 6, SimilarityScore: 0.42, Method: "tfidf_cosine"},
		},
	}
	phase1 := &Phase1Result{
		Mode:        ParseStrict,
		GapAnalysis: "thin on invariants",
	}
	excerpts := []retrieval.Excerpt{
		{Request: corpus.ContentRequest{Book: "ddd", Pages: []int{125}}, Text: "aggregate rules", Citation: "Evans, DDD, p. 125", Found: true},
		{Request: corpus.ContentRequest{Book: "ghost", Pages: []int{1}}, Found: false},
	}
	pkg := metadata.Package{
		Candidates: []metadata.CandidateBook{
			{Book: "ddd", Relevance: 3.0, Tier: "architecture"},
			{Book: "fluent-python", Relevance: 0.5},
		},
		Cascades: map[string][]string{
			"iddd": {"ddd"},
			"ddd":  {"iddd"},
		},
	}

	prompt := buildPhase2User(chapter, "chapter body", phase1, excerpts, pkg, 0)

	assert.Contains(t, prompt, "chapter body")
	assert.Contains(t, prompt, "Gap analysis: thin on invariants")
	assert.Contains(t, prompt, "Evans, DDD, p. 125")
	assert.Contains(t, prompt, "[unavailable] ghost pages [1]")

	// Taxonomy context: candidates with tiers, cascades in stable order.
	assert.Contains(t, prompt, "- ddd (tier architecture, relevance 3.00)")
	assert.Contains(t, prompt, "- fluent-python (relevance 0.50)")
	assert.Contains(t, prompt, "- ddd -> iddd\n- iddd -> ddd")

	assert.Contains(t, prompt, "- ddd chapter 6 (similarity 0.42)")
}

func TestBuildPhase2UserWithoutPackage(t *testing.T) {
	chapter := corpus.EnrichedChapter{
		ChapterRecord: corpus.ChapterRecord{BookID: "iddd", Number: 5},
	}
	prompt := buildPhase2User(chapter, "body", &Phase1Result{Mode: ParseEmpty}, nil, metadata.Package{}, 0)

	assert.NotContains(t, prompt, "Candidate companion books")
	assert.Contains(t, prompt, "(no supplementary material retrieved)")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abcd", truncate("abcdef", 4))
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "abc", truncate("abc", 0))

	// Never splits a rune: é is two bytes, cutting inside it backs off.
	got := truncate("aé", 2)
	assert.Equal(t, "a", got)
	assert.True(t, utf8.ValidString(got))

	got = truncate("日本語", 5)
	assert.Equal(t, "日", got)
	assert.True(t, utf8.ValidString(got))
}
