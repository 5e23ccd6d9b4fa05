package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/marginalia/internal/analysis"
	"github.com/fyrsmithlabs/marginalia/internal/corpus"
)

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, writeJSON(path, map[string]int{"chapters": 3}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"chapters": 3}`, string(content))

	// Overwrite replaces atomically rather than appending.
	require.NoError(t, writeJSON(path, map[string]int{"chapters": 4}))
	content, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"chapters": 4}`, string(content))
}

func TestIndexText(t *testing.T) {
	ch := corpus.ChapterRecord{
		Title:    "Aggregates",
		Summary:  "Designing consistency boundaries",
		Keywords: []string{"aggregate", "invariant"},
		Concepts: []string{"domain model"},
	}
	text := indexText(ch, "body text")
	assert.Contains(t, text, "Aggregates")
	assert.Contains(t, text, "aggregate invariant")
	assert.Contains(t, text, "domain model")
	assert.Contains(t, text, "body text")
}

func TestFailureFrom(t *testing.T) {
	sessionErr := &analysis.SessionError{
		SessionID: "s1",
		Phase:     analysis.PhaseFailed,
		Reason:    analysis.ReasonPhase2Failed,
		Err:       errors.New("api down"),
	}
	f := failureFrom(7, sessionErr)
	assert.Equal(t, 7, f.Chapter)
	assert.Equal(t, string(analysis.PhaseFailed), f.Phase)
	assert.Equal(t, analysis.ReasonPhase2Failed, f.Reason)

	f = failureFrom(2, errors.New("plain failure"))
	assert.Equal(t, "plain failure", f.Reason)
	assert.Empty(t, f.Phase)
}

func TestReadEnrichedDocumentMissing(t *testing.T) {
	_, err := readEnrichedDocument(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
