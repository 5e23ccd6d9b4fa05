package analysis

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/marginalia/internal/cache"
	"github.com/fyrsmithlabs/marginalia/internal/corpus"
	"github.com/fyrsmithlabs/marginalia/internal/llm"
	"github.com/fyrsmithlabs/marginalia/internal/logging"
	"github.com/fyrsmithlabs/marginalia/internal/metadata"
	"github.com/fyrsmithlabs/marginalia/internal/retrieval"
)

const instrumentationName = "github.com/fyrsmithlabs/marginalia/internal/analysis"

// Cache phase tags. Each phase carries its own TTL.
const (
	cachePhase1 = "phase1"
	cachePhase2 = "phase2"
)

// Config controls orchestration policy.
type Config struct {
	// MaxChapterChars truncates chapter text in prompts. 0 means no cap.
	MaxChapterChars int `koanf:"max_chapter_chars"`
}

// DefaultConfig returns the default orchestration policy.
func DefaultConfig() Config {
	return Config{MaxChapterChars: 12000}
}

// Orchestrator drives one chapter at a time through the two-phase state
// machine. Independent chapters may run on separate goroutines; the only
// shared state is the content-addressed cache, which tolerates concurrent
// identical writes.
type Orchestrator struct {
	config    Config
	builder   *metadata.Builder
	cache     *cache.Cache
	client    llm.Client
	retriever *retrieval.Service
	logger    *zap.Logger

	tracer           trace.Tracer
	meter            metric.Meter
	completedCounter metric.Int64Counter
	failedCounter    metric.Int64Counter
}

// NewOrchestrator wires the orchestrator's collaborators.
func NewOrchestrator(cfg Config, builder *metadata.Builder, responseCache *cache.Cache, client llm.Client, retriever *retrieval.Service, logger *zap.Logger) (*Orchestrator, error) {
	if builder == nil {
		return nil, errors.New("metadata builder is required")
	}
	if responseCache == nil {
		return nil, errors.New("response cache is required")
	}
	if client == nil {
		return nil, errors.New("llm client is required")
	}
	if retriever == nil {
		return nil, errors.New("retrieval service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		config:    cfg,
		builder:   builder,
		cache:     responseCache,
		client:    client,
		retriever: retriever,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}
	o.initMetrics()
	return o, nil
}

func (o *Orchestrator) initMetrics() {
	var err error
	o.completedCounter, err = o.meter.Int64Counter(
		"marginalia.analysis.sessions_completed_total",
		metric.WithDescription("Sessions reaching ANALYSIS_COMPLETE"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		o.logger.Warn("failed to create completed counter", zap.Error(err))
	}
	o.failedCounter, err = o.meter.Int64Counter(
		"marginalia.analysis.sessions_failed_total",
		metric.WithDescription("Sessions reaching FAILED"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		o.logger.Warn("failed to create failed counter", zap.Error(err))
	}
}

// Annotate runs one chapter through both phases and returns the annotation
// together with the session record. On failure the session reports the phase
// and reason; the returned error wraps them. Statistical enrichment already
// attached to the chapter is never touched, so a failed LLM phase loses no
// prior work.
func (o *Orchestrator) Annotate(ctx context.Context, chapter corpus.EnrichedChapter, chapterText string) (*corpus.ScholarlyAnnotation, *Session, error) {
	ctx, span := o.tracer.Start(ctx, "analysis.annotate")
	defer span.End()

	session := NewSession(chapter)
	ctx = logging.WithSessionID(logging.WithBookID(ctx, chapter.BookID), session.ID)
	log := o.logger.With(logging.ContextFields(ctx)...).With(zap.Int("chapter", chapter.Number))

	// Phase 1: build the metadata package and ask the model what it needs.
	if err := o.checkCancel(ctx, session); err != nil {
		return nil, session, err
	}

	pkg := o.builder.Build(conceptsFor(chapter))

	user1, err := buildPhase1User(chapter, chapterText, pkg, o.config.MaxChapterChars)
	if err != nil {
		return nil, session, o.fail(session, ReasonPhase1Failed, err)
	}

	raw1, err := o.complete(ctx, cachePhase1, phase1System, user1)
	if err != nil {
		return nil, session, o.fail(session, reasonFor(err, ReasonPhase1Failed), err)
	}
	if err := session.advance(PhaseMetadataSent); err != nil {
		return nil, session, o.fail(session, ReasonPhase1Failed, err)
	}

	// Parsing never fails: malformed output degrades to an empty request
	// list with the raw text kept for the Phase-2 prompt.
	p1 := ParsePhase1(raw1)
	session.Phase1 = &p1
	session.Requests = p1.Requests
	if err := session.advance(PhaseContentRequested); err != nil {
		return nil, session, o.fail(session, ReasonPhase1Failed, err)
	}
	log.Info("phase 1 complete",
		zap.String("parse_mode", string(p1.Mode)),
		zap.Int("content_requests", len(p1.Requests)))

	// Phase 2: retrieve requested material and synthesize the annotation.
	if err := o.checkCancel(ctx, session); err != nil {
		return nil, session, err
	}

	excerpts, err := o.retriever.Resolve(ctx, session.Requests)
	if err != nil {
		return nil, session, o.fail(session, reasonFor(err, ReasonPhase2Failed), err)
	}
	session.Excerpts = excerpts

	user2 := buildPhase2User(chapter, chapterText, &p1, excerpts, pkg, o.config.MaxChapterChars)
	raw2, err := o.complete(ctx, cachePhase2, phase2System, user2)
	if err != nil {
		return nil, session, o.fail(session, reasonFor(err, ReasonPhase2Failed), err)
	}

	annotation := o.assemble(session, raw2)
	if err := session.advance(PhaseComplete); err != nil {
		return nil, session, o.fail(session, ReasonPhase2Failed, err)
	}

	if o.completedCounter != nil {
		o.completedCounter.Add(ctx, 1)
	}
	log.Info("annotation complete",
		zap.Int("cited_sources", len(annotation.CitedSources)))
	return annotation, session, nil
}

// complete runs one cached model call. A result arriving after cancellation
// is discarded.
func (o *Orchestrator) complete(ctx context.Context, phase, system, user string) (string, error) {
	params := map[string]string{"system": system}

	if payload, ok := o.cache.Get(ctx, user, phase, params); ok {
		return payload, nil
	}

	raw, err := o.client.Complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := o.cache.Set(ctx, user, phase, raw, params); err != nil {
		o.logger.Warn("failed to cache response", zap.String("phase", phase), zap.Error(err))
	}
	return raw, nil
}

// assemble folds the Phase-2 sections, citations, and Phase-1 findings into
// the final annotation. Missing sections become empty strings.
func (o *Orchestrator) assemble(session *Session, raw string) *corpus.ScholarlyAnnotation {
	sections := parsePhase2(raw)

	annotationText := sections.EnhancedSummary
	if annotationText == "" {
		annotationText = strings.TrimSpace(raw)
	}

	var cited []string
	for _, ex := range session.Excerpts {
		if ex.Found && ex.Citation != "" {
			cited = append(cited, ex.Citation)
		}
	}

	lowered := strings.ToLower(raw)
	var validated []string
	for _, concept := range conceptsFor(session.Chapter) {
		if strings.Contains(lowered, strings.ToLower(concept)) {
			validated = append(validated, concept)
		}
	}

	var gaps []string
	if session.Phase1 != nil && session.Phase1.GapAnalysis != "" {
		gaps = append(gaps, session.Phase1.GapAnalysis)
	}

	meta := map[string]string{
		"session_id":        session.ID,
		"phase1_parse_mode": string(session.Phase1.Mode),
		"key_takeaways":     sections.KeyTakeaways,
		"best_practices":    sections.BestPractices,
		"common_pitfalls":   sections.CommonPitfalls,
	}

	return &corpus.ScholarlyAnnotation{
		ChapterNumber:     session.Chapter.Number,
		ChapterTitle:      session.Chapter.Title,
		Annotation:        annotationText,
		CitedSources:      cited,
		ValidatedConcepts: validated,
		GapsIdentified:    gaps,
		Metadata:          meta,
	}
}

// checkCancel enforces the cancellation contract: checked before each phase
// transition.
func (o *Orchestrator) checkCancel(ctx context.Context, session *Session) error {
	if err := ctx.Err(); err != nil {
		return o.fail(session, ReasonCancelled, err)
	}
	return nil
}

// fail moves the session to FAILED and wraps the cause. The error reports
// the phase the session was in when it failed, not the terminal state.
func (o *Orchestrator) fail(session *Session, reason string, cause error) error {
	phase := session.Phase
	session.fail(reason)
	if o.failedCounter != nil {
		o.failedCounter.Add(context.Background(), 1)
	}
	o.logger.Warn("session failed",
		zap.String("session", session.ID),
		zap.String("phase", string(phase)),
		zap.String("reason", reason),
		zap.Error(cause))
	return &SessionError{
		SessionID: session.ID,
		Phase:     phase,
		Reason:    reason,
		Err:       cause,
	}
}

// conceptsFor prefers enriched concepts, falling back to the raw chapter
// concepts when enrichment has not run.
func conceptsFor(chapter corpus.EnrichedChapter) []string {
	if len(chapter.ConceptsEnriched) > 0 {
		return chapter.ConceptsEnriched
	}
	return chapter.Concepts
}

// reasonFor classifies an error: external cancellation maps to "cancelled",
// everything else (timeouts included) to the phase's failure reason.
func reasonFor(err error, phaseReason string) string {
	if errors.Is(err, context.Canceled) {
		return ReasonCancelled
	}
	return phaseReason
}
