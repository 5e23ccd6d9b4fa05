package analysis

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/marginalia/internal/corpus"
)

// phase1Document is the preferred JSON shape of a Phase-1 response.
type phase1Document struct {
	ValidationSummary string          `json:"validation_summary"`
	GapAnalysis       string          `json:"gap_analysis"`
	AnalysisStrategy  string          `json:"analysis_strategy"`
	ContentRequests   []phase1Request `json:"content_requests"`
}

type phase1Request struct {
	Book      string `json:"book"`
	Pages     []int  `json:"pages"`
	Rationale string `json:"rationale"`
	Priority  int    `json:"priority"`
}

// ParsePhase1 reads a Phase-1 model response. It never fails: well-formed
// JSON parses strictly, free text with recognizable section headers parses
// by fallback scraping, and anything else yields an empty result with the
// raw text preserved in the gap-analysis field.
func ParsePhase1(raw string) Phase1Result {
	if doc, ok := parsePhase1JSON(raw); ok {
		return Phase1Result{
			Mode:              ParseStrict,
			ValidationSummary: doc.ValidationSummary,
			GapAnalysis:       doc.GapAnalysis,
			Strategy:          doc.AnalysisStrategy,
			Requests:          convertRequests(doc.ContentRequests),
		}
	}

	if result, ok := parsePhase1Sections(raw); ok {
		return result
	}

	return Phase1Result{
		Mode:        ParseEmpty,
		GapAnalysis: strings.TrimSpace(raw),
	}
}

// parsePhase1JSON tries the strict path, tolerating markdown code fences
// around the object.
func parsePhase1JSON(raw string) (phase1Document, bool) {
	text := stripCodeFence(raw)

	// Models sometimes preface the object with prose; start at the brace.
	if i := strings.Index(text, "{"); i > 0 {
		text = text[i:]
	}

	var doc phase1Document
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return phase1Document{}, false
	}
	// An object with none of our fields is not a phase-1 document.
	if doc.ValidationSummary == "" && doc.GapAnalysis == "" &&
		doc.AnalysisStrategy == "" && len(doc.ContentRequests) == 0 {
		return phase1Document{}, false
	}
	return doc, true
}

func convertRequests(in []phase1Request) []corpus.ContentRequest {
	out := make([]corpus.ContentRequest, 0, len(in))
	for _, r := range in {
		if r.Book == "" {
			continue
		}
		out = append(out, corpus.ContentRequest{
			Book:      r.Book,
			Pages:     r.Pages,
			Rationale: strings.TrimSpace(r.Rationale),
			Priority:  r.Priority,
		})
	}
	return out
}

// Fallback section headers, matched case-insensitively at line starts.
var (
	sectionPattern = regexp.MustCompile(`(?im)^\s*(?:#+\s*)?(validation summary|gap analysis|analysis strategy|content requests)\s*:?\s*$`)

	// requestPattern scrapes lines like:
	//   - Book: fluent-python, Pages: 120-125, Priority: 3, Rationale: generator internals
	requestPattern = regexp.MustCompile(`(?i)book\s*:\s*([^,]+),\s*pages?\s*:\s*([0-9,\s-]+)(?:,\s*priority\s*:\s*(\d+))?(?:,\s*rationale\s*:\s*(.+))?`)
)

// parsePhase1Sections scrapes free text by section header. Returns ok=false
// when no recognizable header exists.
func parsePhase1Sections(raw string) (Phase1Result, bool) {
	locs := sectionPattern.FindAllStringSubmatchIndex(raw, -1)
	if len(locs) == 0 {
		return Phase1Result{}, false
	}

	result := Phase1Result{Mode: ParseFallback}
	for i, loc := range locs {
		name := strings.ToLower(raw[loc[2]:loc[3]])
		bodyStart := loc[1]
		bodyEnd := len(raw)
		if i+1 < len(locs) {
			bodyEnd = locs[i+1][0]
		}
		body := strings.TrimSpace(raw[bodyStart:bodyEnd])

		switch name {
		case "validation summary":
			result.ValidationSummary = body
		case "gap analysis":
			result.GapAnalysis = body
		case "analysis strategy":
			result.Strategy = body
		case "content requests":
			result.Requests = scrapeRequests(body)
		}
	}
	return result, true
}

func scrapeRequests(body string) []corpus.ContentRequest {
	var requests []corpus.ContentRequest
	for _, line := range strings.Split(body, "\n") {
		m := requestPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		req := corpus.ContentRequest{
			Book:  strings.TrimSpace(m[1]),
			Pages: parsePageList(m[2]),
		}
		if m[3] != "" {
			req.Priority, _ = strconv.Atoi(m[3])
		}
		if m[4] != "" {
			req.Rationale = strings.TrimSpace(m[4])
		}
		requests = append(requests, req)
	}
	return requests
}

// parsePageList reads "12, 14, 20-22" into an expanded page slice.
func parsePageList(s string) []int {
	var pages []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err1 := strconv.Atoi(strings.TrimSpace(lo))
			end, err2 := strconv.Atoi(strings.TrimSpace(hi))
			if err1 != nil || err2 != nil || end < start {
				continue
			}
			for p := start; p <= end; p++ {
				pages = append(pages, p)
			}
			continue
		}
		if p, err := strconv.Atoi(part); err == nil {
			pages = append(pages, p)
		}
	}
	return pages
}

// stripCodeFence removes a surrounding markdown code fence, if any.
func stripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	if i := strings.LastIndex(text, "```"); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

// Annotation sections located in Phase-2 markdown. Missing sections come
// back as empty strings, never as errors.
type annotationSections struct {
	EnhancedSummary string
	KeyTakeaways    string
	BestPractices   string
	CommonPitfalls  string
}

var annotationPattern = regexp.MustCompile(`(?im)^\s*#+\s*(enhanced summary|key takeaways|best practices|common pitfalls)\s*$`)

// parsePhase2 locates the labeled sections of a Phase-2 markdown response.
func parsePhase2(raw string) annotationSections {
	var sections annotationSections

	locs := annotationPattern.FindAllStringSubmatchIndex(raw, -1)
	for i, loc := range locs {
		name := strings.ToLower(raw[loc[2]:loc[3]])
		bodyStart := loc[1]
		bodyEnd := len(raw)
		if i+1 < len(locs) {
			bodyEnd = locs[i+1][0]
		}
		body := strings.TrimSpace(raw[bodyStart:bodyEnd])

		switch name {
		case "enhanced summary":
			sections.EnhancedSummary = body
		case "key takeaways":
			sections.KeyTakeaways = body
		case "best practices":
			sections.BestPractices = body
		case "common pitfalls":
			sections.CommonPitfalls = body
		}
	}
	return sections
}
