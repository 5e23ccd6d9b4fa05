package keywords

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStem(t *testing.T) {
	tests := []struct {
		word string
		want string
	}{
		{"model", "model"},
		{"models", "model"},
		{"modeling", "model"},
		{"Modeling", "model"},
		{"entities", "entity"},
		{"entity", "entity"},
		{"classes", "class"},
		{"class", "class"},
		{"aggregates", "aggregate"},
		{"mapping", "map"},
		{"mapped", "map"},
		{"optimization", "optimize"},
		{"optimizations", "optimize"},
		{"status", "status"},
		{"api", "api"},
		{"  Events ", "event"},
	}
	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			assert.Equal(t, tt.want, Stem(tt.word))
		})
	}
}

func TestStemGroupsVariants(t *testing.T) {
	base := Stem("model")
	assert.Equal(t, base, Stem("models"))
	assert.Equal(t, base, Stem("modeling"))
}

func TestDeduplicate(t *testing.T) {
	in := []Keyword{
		{Term: "models", Score: 0.9},
		{Term: "event loop", Score: 0.8},
		{Term: "model", Score: 0.7},
		{Term: "modeling", Score: 0.6},
		{Term: "event loops", Score: 0.5},
	}

	out := Deduplicate(in)
	require.Len(t, out, 2)

	// Group representative is the shortest surface form, at the best
	// member's rank with the best member's score.
	assert.Equal(t, Keyword{Term: "model", Score: 0.9}, out[0])
	assert.Equal(t, Keyword{Term: "event loop", Score: 0.8}, out[1])
}

func TestDeduplicateIdempotent(t *testing.T) {
	in := []Keyword{
		{Term: "entities", Score: 1.0},
		{Term: "entity", Score: 0.4},
		{Term: "value objects", Score: 0.3},
	}
	once := Deduplicate(in)
	twice := Deduplicate(once)
	assert.Equal(t, once, twice)
}

func TestDeduplicateEmpty(t *testing.T) {
	assert.Empty(t, Deduplicate(nil))
}

func TestCleanNgramDuplicates(t *testing.T) {
	in := []Keyword{
		{Term: "models models", Score: 0.9},
		{Term: "domain model", Score: 0.8},
		{Term: "modeling models", Score: 0.7},
		{Term: "model", Score: 0.6},
	}

	out := CleanNgramDuplicates(in)
	require.Len(t, out, 2)
	assert.Equal(t, "domain model", out[0].Term)
	assert.Equal(t, "model", out[1].Term)
}
