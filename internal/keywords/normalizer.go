// Package keywords turns raw product names into normalized text and the keyword
// views used to gate and filter recommendation candidates.
package keywords

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/lexicon"
)

var (
	bracketRe = regexp.MustCompile(`\[[^\]]*\]`)
	parenRe   = regexp.MustCompile(`\([^)]*\)`)
	// quantity with optional unit and multiplier: 500g, 1.5L, 3x2, 500g x 3
	measureRe = regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*(?:g|kg|ml|l)?\s*(?:[x×*]\s*\d+)?`)
	unitRe    = regexp.MustCompile(`\b\d+[a-zA-Z]+\b`)
	numberRe  = regexp.MustCompile(`\b\d+\b`)
	noiseRe   = regexp.MustCompile(`[^\p{L}\p{N}_]+`)
	spaceRe   = regexp.MustCompile(`\s+`)
	hangulRe  = regexp.MustCompile(`^[가-힣]{2,}$`)
)

// MinTermLength is the shortest keyword, in runes, the pipeline will use.
const MinTermLength = 2

// Normalizer cleans product names and splits them into tokens.
type Normalizer struct {
	lex *lexicon.Lexicon
}

// NewNormalizer creates a normalizer that drops the lexicon's stopwords when tokenizing.
func NewNormalizer(lex *lexicon.Lexicon) *Normalizer {
	if lex == nil {
		lex = lexicon.Default()
	}
	return &Normalizer{lex: lex}
}

// Normalize strips bracketed segments, quantities, bare numbers and punctuation,
// then collapses whitespace. Full-width characters are folded first so that
// "５００ｇ" is treated like "500g".
func (n *Normalizer) Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	s := norm.NFC.String(width.Fold.String(raw))
	s = bracketRe.ReplaceAllString(s, " ")
	s = parenRe.ReplaceAllString(s, " ")
	s = measureRe.ReplaceAllString(s, " ")
	s = unitRe.ReplaceAllString(s, " ")
	s = numberRe.ReplaceAllString(s, " ")
	s = noiseRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Tokenize normalizes raw and returns its usable tokens.
func (n *Normalizer) Tokenize(raw string) []string {
	return n.tokens(n.Normalize(raw))
}

// tokens splits already-normalized text, keeping tokens of at least two runes that
// are neither numeric nor stopwords.
func (n *Normalizer) tokens(normalized string) []string {
	fields := strings.Fields(normalized)
	out := make([]string, 0, len(fields))
	for _, t := range fields {
		if utf8.RuneCountInString(t) < MinTermLength || isNumeric(t) || n.lex.IsStopword(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Usable reports whether term may appear in a keyword list.
func (n *Normalizer) Usable(term string) bool {
	return utf8.RuneCountInString(term) >= MinTermLength && !n.lex.IsStopword(term)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsNumber(r) {
			return false
		}
	}
	return true
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func isHangulTerm(s string) bool {
	return hangulRe.MatchString(s)
}
