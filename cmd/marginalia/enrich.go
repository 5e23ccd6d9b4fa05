package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/marginalia/internal/corpus"
	"github.com/fyrsmithlabs/marginalia/internal/enrichment"
	"github.com/fyrsmithlabs/marginalia/internal/similarity"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich [book...]",
	Short: "Statistically enrich chapter metadata",
	Long: `Enrich builds a TF-IDF similarity index over every chapter in the
corpus, then writes one enriched document per book: related chapters across
books, deduplicated keywords, and normalized concepts. No model calls are
made.

Examples:
  # Enrich every book in the corpus
  marginalia enrich --config config.yaml

  # Enrich selected books (the index still spans the whole corpus)
  marginalia enrich ddd iddd`,
	RunE: runEnrich,
}

func runEnrich(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := corpus.NewDirStore(cfg.Corpus.Dir, logger)
	if err != nil {
		return err
	}
	books, err := store.Books(ctx)
	if err != nil {
		return err
	}
	if len(books) == 0 {
		return fmt.Errorf("no books found in %s", cfg.Corpus.Dir)
	}

	// The index always spans the whole corpus so cross-book links stay
	// stable no matter which books are being written.
	chaptersByBook := make(map[string][]corpus.ChapterRecord, len(books))
	var docs []similarity.Document
	for _, book := range books {
		chapters, err := store.Chapters(ctx, book)
		if err != nil {
			return err
		}
		chaptersByBook[book] = chapters
		for _, ch := range chapters {
			passage, err := store.ChapterText(ctx, book, ch.Number)
			if err != nil {
				return err
			}
			docs = append(docs, similarity.Document{ID: ch.ID(), Text: indexText(ch, passage.Text)})
		}
	}
	idx := similarity.Build(docs)
	logger.Info("similarity index built",
		zap.Int("books", len(books)), zap.Int("chapters", len(docs)))

	targets := books
	if len(args) > 0 {
		targets = args
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	pipeline := enrichment.New(cfg.Enrichment, logger)
	for _, book := range targets {
		chapters, ok := chaptersByBook[book]
		if !ok {
			return fmt.Errorf("book %s not found in corpus", book)
		}
		doc, err := pipeline.Enrich(book, chapters, idx)
		if err != nil {
			return err
		}
		path := filepath.Join(cfg.Output.Dir, book+".enriched.json")
		if err := writeJSON(path, doc); err != nil {
			return err
		}
		logger.Info("book enriched",
			zap.String("book", book),
			zap.Int("chapters", len(doc.Chapters)),
			zap.String("path", path))
	}
	return nil
}

// indexText combines a chapter's metadata and body into the text indexed for
// similarity.
func indexText(ch corpus.ChapterRecord, body string) string {
	parts := []string{ch.Title, ch.Summary,
		strings.Join(ch.Keywords, " "), strings.Join(ch.Concepts, " "), body}
	return strings.Join(parts, "\n")
}
