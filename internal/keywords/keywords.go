// Package keywords normalizes ranked keyword and concept lists: suffix-rule
// stemming, stem-group deduplication, and n-gram duplicate cleaning.
//
// Everything here is a pure function. Stemming is rule-based only, with no
// term dictionary, so it generalizes across subject domains.
package keywords

import "strings"

// Keyword is one ranked term.
type Keyword struct {
	Term  string  `json:"term"`
	Score float64 `json:"score"`
}

// suffixRule rewrites a trailing suffix. Rules are applied in order; the
// first match wins. Replacement may be empty (plain strip).
type suffixRule struct {
	suffix  string
	replace string
	minStem int
}

// rules are ordered longest-suffix-first so "izations" is not mangled by the
// bare plural rule.
var rules = []suffixRule{
	{"izations", "ize", 3},
	{"ization", "ize", 3},
	{"ations", "ate", 3},
	{"ation", "ate", 3},
	{"iveness", "ive", 3},
	{"fulness", "ful", 3},
	{"ities", "ity", 3},
	{"ingly", "", 3},
	{"edly", "", 3},
	{"ing", "", 3},
	{"ies", "y", 2},
	{"ed", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"s", "", 3},
}

// Stem reduces a word to a normalized root by stripping common suffixes.
// Words of three letters or fewer pass through unchanged.
func Stem(word string) string {
	w := strings.ToLower(strings.TrimSpace(word))
	if len(w) <= 3 {
		return w
	}

	for _, r := range rules {
		if !strings.HasSuffix(w, r.suffix) {
			continue
		}
		stem := w[:len(w)-len(r.suffix)] + r.replace
		if len(stem) < r.minStem {
			continue
		}
		// "ss" and "us" endings are not plurals (class, status).
		if r.suffix == "s" && (strings.HasSuffix(w, "ss") || strings.HasSuffix(w, "us")) {
			continue
		}
		// "es" only follows sibilants (classes, boxes); "aggregates" is the
		// plain plural rule's business.
		if r.suffix == "es" && !isSibilantEnd(stem) {
			continue
		}
		// Undouble the consonant left by verb suffix strips: mapping -> map.
		if (r.suffix == "ing" || r.suffix == "ed") && len(stem) >= 4 {
			last := stem[len(stem)-1]
			if stem[len(stem)-2] == last && !isVowel(last) {
				stem = stem[:len(stem)-1]
			}
		}
		return stem
	}
	return w
}

func isSibilantEnd(stem string) bool {
	return strings.HasSuffix(stem, "s") || strings.HasSuffix(stem, "x") ||
		strings.HasSuffix(stem, "z") || strings.HasSuffix(stem, "ch") ||
		strings.HasSuffix(stem, "sh")
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

// stemKey produces the grouping key for a possibly multi-word term.
func stemKey(term string) string {
	words := strings.Fields(strings.ToLower(term))
	stems := make([]string, len(words))
	for i, w := range words {
		stems[i] = Stem(w)
	}
	return strings.Join(stems, " ")
}

// Deduplicate collapses keywords that share a stem group, keeping one
// representative per group: the shortest surface form, placed at the rank of
// the group's best-scoring member and carrying that member's score.
func Deduplicate(ranked []Keyword) []Keyword {
	type group struct {
		index   int
		surface string
		score   float64
	}

	groups := make(map[string]*group)
	order := make([]string, 0, len(ranked))

	for _, kw := range ranked {
		key := stemKey(kw.Term)
		g, seen := groups[key]
		if !seen {
			groups[key] = &group{index: len(order), surface: kw.Term, score: kw.Score}
			order = append(order, key)
			continue
		}
		// Input order is rank order, so the first member already holds the
		// group's best rank and score; later members only compete on brevity.
		if len(kw.Term) < len(g.surface) {
			g.surface = kw.Term
		}
	}

	out := make([]Keyword, 0, len(order))
	for _, key := range order {
		g := groups[key]
		out = append(out, Keyword{Term: g.surface, Score: g.score})
	}
	return out
}

// CleanNgramDuplicates removes multi-word keywords whose constituent words
// collapse to the same stem ("models models", "modeling models").
func CleanNgramDuplicates(ranked []Keyword) []Keyword {
	out := make([]Keyword, 0, len(ranked))
	for _, kw := range ranked {
		if hasRepeatedStem(kw.Term) {
			continue
		}
		out = append(out, kw)
	}
	return out
}

func hasRepeatedStem(term string) bool {
	words := strings.Fields(strings.ToLower(term))
	if len(words) < 2 {
		return false
	}
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		stem := Stem(w)
		if seen[stem] {
			return true
		}
		seen[stem] = true
	}
	return false
}
