package analysis

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/marginalia/internal/corpus"
	"github.com/fyrsmithlabs/marginalia/internal/metadata"
	"github.com/fyrsmithlabs/marginalia/internal/retrieval"
)

// phase1System instructs the model to perform gap analysis and name the
// source material it wants before writing the annotation.
const phase1System = `You are a scholarly reviewer of technical books. You are given one chapter's text and a package of candidate companion books with the concepts they cover.

Assess the chapter, then decide what additional source material you need before writing a scholarly annotation.

Respond with a JSON object containing:
- "validation_summary": which of the chapter's claimed concepts the candidate books corroborate (1-3 sentences)
- "gap_analysis": what the chapter glosses over or omits (1-3 sentences)
- "analysis_strategy": how you would use the companion material (1-2 sentences)
- "content_requests": array of {"book": <book id>, "pages": [<page numbers>], "rationale": <why>, "priority": <integer, higher = more urgent>}

Request only material you genuinely need; an empty content_requests array is a valid answer.

Respond ONLY with the JSON object, no additional text.`

// phase2System instructs the model to synthesize the final annotation.
const phase2System = `You are a scholarly annotator of technical books. Using the chapter text, your earlier findings, and the retrieved excerpts with citations, write the final annotation.

Structure your markdown response with exactly these sections:

## Enhanced Summary
## Key Takeaways
## Best Practices
## Common Pitfalls

Cite retrieved sources inline where they support a point.`

// buildPhase1User formats the Phase-1 request: a chapter excerpt plus the
// candidate-book package.
func buildPhase1User(chapter corpus.EnrichedChapter, chapterText string, pkg metadata.Package, maxChars int) (string, error) {
	pkgJSON, err := json.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata package: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Chapter %d: %s (%s)\n", chapter.Number, chapter.Title, chapter.BookID)
	if len(chapter.ConceptsEnriched) > 0 {
		fmt.Fprintf(&b, "Concepts: %s\n", strings.Join(chapter.ConceptsEnriched, ", "))
	}
	b.WriteString("\nChapter text:\n")
	b.WriteString(truncate(chapterText, maxChars))
	b.WriteString("\n\nCandidate companion books:\n")
	b.Write(pkgJSON)
	return b.String(), nil
}

// buildPhase2User formats the Phase-2 request: chapter text, Phase-1
// findings, retrieved excerpts with citations, and taxonomy context.
func buildPhase2User(chapter corpus.EnrichedChapter, chapterText string, phase1 *Phase1Result, excerpts []retrieval.Excerpt, pkg metadata.Package, maxChars int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Chapter %d: %s (%s)\n", chapter.Number, chapter.Title, chapter.BookID)
	b.WriteString("\nChapter text:\n")
	b.WriteString(truncate(chapterText, maxChars))

	b.WriteString("\n\nPhase-1 findings:\n")
	if phase1.ValidationSummary != "" {
		fmt.Fprintf(&b, "Validation summary: %s\n", phase1.ValidationSummary)
	}
	if phase1.GapAnalysis != "" {
		fmt.Fprintf(&b, "Gap analysis: %s\n", phase1.GapAnalysis)
	}
	if phase1.Strategy != "" {
		fmt.Fprintf(&b, "Analysis strategy: %s\n", phase1.Strategy)
	}

	b.WriteString("\nRetrieved excerpts:\n")
	found := 0
	for _, ex := range excerpts {
		if !ex.Found {
			fmt.Fprintf(&b, "[unavailable] %s pages %v\n", ex.Request.Book, ex.Request.Pages)
			continue
		}
		found++
		fmt.Fprintf(&b, "--- %s ---\n%s\n", ex.Citation, ex.Text)
	}
	if found == 0 {
		b.WriteString("(no supplementary material retrieved)\n")
	}

	if len(pkg.Candidates) > 0 {
		b.WriteString("\nCandidate companion books:\n")
		for _, cand := range pkg.Candidates {
			if cand.Tier != "" {
				fmt.Fprintf(&b, "- %s (tier %s, relevance %.2f)\n", cand.Book, cand.Tier, cand.Relevance)
			} else {
				fmt.Fprintf(&b, "- %s (relevance %.2f)\n", cand.Book, cand.Relevance)
			}
		}
	}
	if len(pkg.Cascades) > 0 {
		b.WriteString("\nCascade relationships:\n")
		books := make([]string, 0, len(pkg.Cascades))
		for book := range pkg.Cascades {
			books = append(books, book)
		}
		sort.Strings(books)
		for _, book := range books {
			fmt.Fprintf(&b, "- %s -> %s\n", book, strings.Join(pkg.Cascades[book], ", "))
		}
	}

	if len(chapter.RelatedChapters) > 0 {
		b.WriteString("\nStatistically related chapters:\n")
		for _, rel := range chapter.RelatedChapters {
			fmt.Fprintf(&b, "- %s chapter %d (similarity %.2f)\n", rel.Book, rel.Chapter, rel.SimilarityScore)
		}
	}
	return b.String()
}

// truncate cuts s to at most maxChars bytes without splitting a rune.
func truncate(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
