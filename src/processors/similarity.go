package processors

import (
	"strings"
)

// SimilarityScorer scores how likely two transaction descriptions refer to the
// same counterparty, on a 0.0–1.0 scale. The merchant-matching strategy is
// pluggable so a better classifier can be swapped in without touching cadence
// classification or scoring.
type SimilarityScorer interface {
	Score(a, b string) float64
}

// ContainmentScorer is the default scorer: normalized token containment. Two
// descriptions score by the fraction of the smaller token set contained in the
// larger one, so "ACME CORP PAYROLL" and "ACME CORP PAYROLL 0142" still match.
type ContainmentScorer struct{}

func (ContainmentScorer) Score(a, b string) float64 {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	if len(tb) < len(ta) {
		ta, tb = tb, ta
	}
	larger := make(map[string]bool, len(tb))
	for _, tok := range tb {
		larger[tok] = true
	}
	matched := 0
	for _, tok := range ta {
		if larger[tok] {
			matched++
		}
	}
	return float64(matched) / float64(len(ta))
}

func tokenize(s string) []string {
	var tokens []string
	for _, tok := range strings.Fields(normalizeDescription(s)) {
		if isNoiseToken(tok) {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// normalizeDescription lowercases and strips punctuation so bank-formatted
// descriptors compare cleanly.
func normalizeDescription(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// isNoiseToken drops pure-numeric reference tokens (batch IDs, trace numbers)
// that vary per deposit of the same payer.
func isNoiseToken(tok string) bool {
	if len(tok) < 3 {
		return false
	}
	for _, r := range tok {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CandidatePredicate decides whether a transaction may be an income candidate
// at all. Pluggable: the bank-aggregation layer can supply a trained
// classifier; the default is keyword-based.
type CandidatePredicate func(category, merchant, description string) bool

var payrollKeywords = []string{"transfer", "payroll", "deposit", "salary", "wages", "income"}

var internalTransferCategories = map[string]bool{
	"internal transfer": true,
	"own transfer":      true,
	"account transfer":  true,
}

// DefaultCandidatePredicate includes payroll-like inflows by keyword and
// excludes exact-match internal-transfer categories, which would otherwise be
// misread as income.
func DefaultCandidatePredicate(category, merchant, description string) bool {
	if internalTransferCategories[normalizeDescription(category)] {
		return false
	}
	haystack := normalizeDescription(category) + " " + normalizeDescription(merchant) + " " + normalizeDescription(description)
	for _, kw := range payrollKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}
