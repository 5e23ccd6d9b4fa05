// Package analysis drives the two-phase annotation pipeline: Phase 1 asks
// the model what supplementary material it needs, retrieval fetches it, and
// Phase 2 synthesizes the scholarly annotation.
package analysis

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/marginalia/internal/corpus"
	"github.com/fyrsmithlabs/marginalia/internal/retrieval"
)

// Phase is the session state.
type Phase string

const (
	PhaseInitial          Phase = "INITIAL"
	PhaseMetadataSent     Phase = "METADATA_SENT"
	PhaseContentRequested Phase = "CONTENT_REQUESTED"
	PhaseComplete         Phase = "ANALYSIS_COMPLETE"
	PhaseFailed           Phase = "FAILED"
)

// Failure reasons reported on FAILED sessions.
const (
	ReasonPhase1Failed = "phase1_request_failed"
	ReasonPhase2Failed = "phase2_request_failed"
	ReasonCancelled    = "cancelled"
)

// Terminal reports whether the phase ends a session.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// legal enumerates allowed forward transitions. FAILED is reachable from any
// non-terminal state.
var legal = map[Phase]Phase{
	PhaseInitial:          PhaseMetadataSent,
	PhaseMetadataSent:     PhaseContentRequested,
	PhaseContentRequested: PhaseComplete,
}

// Session tracks one chapter's journey through the state machine. Sessions
// are single-goroutine; concurrent chapters get independent sessions.
type Session struct {
	ID        string
	Chapter   corpus.EnrichedChapter
	Phase     Phase
	Reason    string
	Requests  []corpus.ContentRequest
	Excerpts  []retrieval.Excerpt
	Phase1    *Phase1Result
	CreatedAt time.Time
}

// NewSession starts a session in INITIAL for the given chapter.
func NewSession(chapter corpus.EnrichedChapter) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Chapter:   chapter,
		Phase:     PhaseInitial,
		CreatedAt: time.Now().UTC(),
	}
}

// advance moves the session to the next phase, rejecting illegal jumps.
func (s *Session) advance(to Phase) error {
	if s.Phase.Terminal() {
		return fmt.Errorf("session %s is terminal in %s", s.ID, s.Phase)
	}
	if to == PhaseFailed {
		s.Phase = PhaseFailed
		return nil
	}
	if legal[s.Phase] != to {
		return fmt.Errorf("illegal transition %s -> %s", s.Phase, to)
	}
	s.Phase = to
	return nil
}

// fail marks the session FAILED with a reason.
func (s *Session) fail(reason string) {
	_ = s.advance(PhaseFailed)
	s.Reason = reason
}

// SessionError reports a failed session: the phase it failed in and the
// reason string.
type SessionError struct {
	SessionID string
	Phase     Phase
	Reason    string
	Err       error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session %s failed in %s (%s): %v", e.SessionID, e.Phase, e.Reason, e.Err)
	}
	return fmt.Sprintf("session %s failed in %s (%s)", e.SessionID, e.Phase, e.Reason)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// ParseMode tags how a Phase-1 response was understood.
type ParseMode string

const (
	// ParseStrict means the response was well-formed JSON.
	ParseStrict ParseMode = "strict"
	// ParseFallback means recognizable section headers were scraped from
	// free text.
	ParseFallback ParseMode = "fallback"
	// ParseEmpty means nothing was recognizable; the raw text is preserved
	// in the gap-analysis field.
	ParseEmpty ParseMode = "empty"
)

// Phase1Result is the structured reading of a Phase-1 model response.
type Phase1Result struct {
	Mode              ParseMode               `json:"mode"`
	ValidationSummary string                  `json:"validation_summary"`
	GapAnalysis       string                  `json:"gap_analysis"`
	Strategy          string                  `json:"analysis_strategy"`
	Requests          []corpus.ContentRequest `json:"content_requests"`
}
