package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/marginalia/internal/analysis"
	"github.com/fyrsmithlabs/marginalia/internal/cache"
	"github.com/fyrsmithlabs/marginalia/internal/corpus"
	"github.com/fyrsmithlabs/marginalia/internal/llm"
	"github.com/fyrsmithlabs/marginalia/internal/metadata"
	"github.com/fyrsmithlabs/marginalia/internal/retrieval"
	"github.com/fyrsmithlabs/marginalia/internal/taxonomy"
)

var annotateChapter int

var annotateCmd = &cobra.Command{
	Use:   "annotate <book>",
	Short: "Produce scholarly annotations for an enriched book",
	Long: `Annotate runs each chapter of an enriched book through the
two-phase model conversation: Phase 1 sends the chapter and a ranked package
of companion books and asks what supplementary material the model needs;
Phase 2 sends the retrieved excerpts and synthesizes the annotation.

Requires "marginalia enrich" to have been run first. A failed chapter is
reported and skipped; the enriched document is never modified.

Examples:
  # Annotate every chapter of a book
  marginalia annotate ddd --config config.yaml

  # Annotate a single chapter
  marginalia annotate ddd --chapter 5`,
	Args: cobra.ExactArgs(1),
	RunE: runAnnotate,
}

func init() {
	annotateCmd.Flags().IntVar(&annotateChapter, "chapter", 0, "annotate a single chapter (default: all)")
}

// annotationReport is the per-book output artifact.
type annotationReport struct {
	Book        string                        `json:"book"`
	Generated   time.Time                     `json:"generated"`
	Annotations []*corpus.ScholarlyAnnotation `json:"annotations"`
	Failures    []annotationFailure           `json:"failures,omitempty"`
}

type annotationFailure struct {
	Chapter int    `json:"chapter"`
	Phase   string `json:"phase"`
	Reason  string `json:"reason"`
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	book := args[0]
	doc, err := readEnrichedDocument(filepath.Join(cfg.Output.Dir, book+".enriched.json"))
	if err != nil {
		return err
	}

	store, err := corpus.NewDirStore(cfg.Corpus.Dir, logger)
	if err != nil {
		return err
	}

	scorer := taxonomy.NewScorer(logger)
	if err := scorer.LoadFile(cfg.Taxonomy.Path); err != nil {
		return err
	}
	if cfg.Taxonomy.Watch {
		watcher, err := taxonomy.NewWatcher(scorer, cfg.Taxonomy.Path, logger)
		if err != nil {
			return err
		}
		go func() {
			if err := watcher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("taxonomy watcher stopped", zap.Error(err))
			}
		}()
	}

	pageCounts, err := store.PageCounts(ctx)
	if err != nil {
		return err
	}
	builder := metadata.NewBuilder(cfg.Metadata, scorer, pageCounts, logger)

	responseCache, err := cache.New(cfg.Cache, logger)
	if err != nil {
		return err
	}
	client, err := llm.New(cfg.LLM)
	if err != nil {
		return err
	}
	retriever, err := retrieval.NewService(cfg.Retrieval, store, logger)
	if err != nil {
		return err
	}
	orch, err := analysis.NewOrchestrator(cfg.Analysis, builder, responseCache, client, retriever, logger)
	if err != nil {
		return err
	}

	report := annotationReport{Book: book, Generated: time.Now().UTC()}
	for _, chapter := range doc.Chapters {
		if annotateChapter != 0 && chapter.Number != annotateChapter {
			continue
		}

		passage, err := store.ChapterText(ctx, book, chapter.Number)
		if err != nil {
			return err
		}

		annotation, _, err := orch.Annotate(ctx, chapter, passage.Text)
		if err != nil {
			report.Failures = append(report.Failures, failureFrom(chapter.Number, err))
			if errors.Is(err, context.Canceled) {
				break
			}
			continue
		}
		report.Annotations = append(report.Annotations, annotation)
	}

	if annotateChapter != 0 && len(report.Annotations) == 0 && len(report.Failures) == 0 {
		return fmt.Errorf("book %s has no chapter %d", book, annotateChapter)
	}

	path := filepath.Join(cfg.Output.Dir, book+".annotations.json")
	if err := writeJSON(path, report); err != nil {
		return err
	}
	logger.Info("annotation run finished",
		zap.String("book", book),
		zap.Int("annotated", len(report.Annotations)),
		zap.Int("failed", len(report.Failures)),
		zap.String("path", path))

	if len(report.Annotations) == 0 && len(report.Failures) > 0 {
		return fmt.Errorf("all %d chapters failed", len(report.Failures))
	}
	return nil
}

func failureFrom(chapter int, err error) annotationFailure {
	f := annotationFailure{Chapter: chapter, Reason: err.Error()}
	var sessionErr *analysis.SessionError
	if errors.As(err, &sessionErr) {
		f.Phase = string(sessionErr.Phase)
		f.Reason = sessionErr.Reason
	}
	return f
}

func readEnrichedDocument(path string) (corpus.EnrichedDocument, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return corpus.EnrichedDocument{}, fmt.Errorf("failed to read enriched document (run \"marginalia enrich\" first): %w", err)
	}
	var doc corpus.EnrichedDocument
	if err := json.Unmarshal(content, &doc); err != nil {
		return corpus.EnrichedDocument{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, nil
}
