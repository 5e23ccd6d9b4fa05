package taxonomy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/marginalia/internal/logging"
)

const testDoc = `{
  "tiers": {
    "architecture": {
      "priority": 1,
      "concepts": ["bounded context"],
      "books": ["ddd"]
    },
    "implementation": {
      "priority": 2,
      "concepts": [],
      "books": ["fluent-python", "effective-python"]
    },
    "practices": {
      "priority": 3,
      "concepts": [],
      "books": ["clean-code"]
    }
  },
  "books": {
    "ddd": {"concepts": ["decorator", "generator", "aggregate"], "cascades_to": ["fluent-python"]},
    "fluent-python": {"concepts": ["decorator", "generator"], "cascades_to": ["effective-python"]},
    "effective-python": {"concepts": ["generator"], "cascades_to": ["fluent-python"]},
    "clean-code": {"concepts": ["naming"], "cascades_to": ["missing-book"]}
  }
}`

func loadedScorer(t *testing.T) (*Scorer, *logging.TestLogger) {
	t.Helper()
	tl := logging.NewTestLogger()
	s := NewScorer(tl.Logger)
	require.NoError(t, s.Load([]byte(testDoc)))
	return s, tl
}

func TestLoad(t *testing.T) {
	s, tl := loadedScorer(t)

	p, ok := s.Profile("ddd")
	require.True(t, ok)
	assert.Equal(t, "architecture", p.Tier)
	assert.Equal(t, 1, p.TierPriority)
	assert.Contains(t, p.Concepts, "bounded context")
	assert.Contains(t, p.Concepts, "decorator")

	assert.Len(t, s.Books(), 4)

	// Dangling cascade and the fluent/effective cycle surface as warnings.
	assert.True(t, tl.Contains("data-integrity"))
}

func TestLoadRejectsMalformedDocument(t *testing.T) {
	s := NewScorer(nil)
	assert.Error(t, s.Load([]byte("not json")))
}

func TestScoreTierTieBreak(t *testing.T) {
	s, _ := loadedScorer(t)

	// ddd (architecture) and fluent-python (implementation) both overlap on
	// both concepts; the architecture-tier book must rank first.
	scores := s.Score([]string{"decorator", "generator"})
	require.NotEmpty(t, scores)
	assert.Equal(t, "ddd", scores[0].Book)
	assert.Equal(t, "fluent-python", scores[1].Book)
	assert.Equal(t, "effective-python", scores[2].Book)
	assert.Greater(t, scores[1].Score, scores[2].Score)
}

func TestScoreDeterministicOrder(t *testing.T) {
	s, _ := loadedScorer(t)
	a := s.Score([]string{"generator", "decorator"})
	b := s.Score([]string{"decorator", "generator"})
	assert.Equal(t, a, b)
}

func TestScoreEmptyConcepts(t *testing.T) {
	s, _ := loadedScorer(t)
	assert.Empty(t, s.Score(nil))
	assert.Empty(t, s.Score([]string{" ", ""}))
}

func TestCascade(t *testing.T) {
	s, _ := loadedScorer(t)

	t.Run("single hop", func(t *testing.T) {
		assert.Equal(t, []string{"fluent-python"}, s.Cascade("ddd", 1))
	})

	t.Run("two hops", func(t *testing.T) {
		assert.Equal(t, []string{"effective-python", "fluent-python"}, s.Cascade("ddd", 2))
	})

	t.Run("cycle terminates", func(t *testing.T) {
		reached := s.Cascade("fluent-python", 10)
		assert.Equal(t, []string{"effective-python"}, reached)
	})

	t.Run("dangling target skipped with warning", func(t *testing.T) {
		assert.Empty(t, s.Cascade("clean-code", 3))
	})

	t.Run("unknown origin", func(t *testing.T) {
		assert.Empty(t, s.Cascade("ghost", 2))
	})

	t.Run("zero depth", func(t *testing.T) {
		assert.Empty(t, s.Cascade("ddd", 0))
	})
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxonomy.json")
	require.NoError(t, os.WriteFile(path, []byte(testDoc), 0o600))

	s := NewScorer(nil)
	require.NoError(t, s.LoadFile(path))

	w, err := NewWatcher(s, path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Start(ctx)
	}()

	updated := `{"tiers": {"architecture": {"priority": 1, "books": ["solo"]}}, "books": {"solo": {"concepts": ["decorator"]}}}`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	require.Eventually(t, func() bool {
		return len(s.Books()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
