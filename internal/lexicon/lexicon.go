// Package lexicon provides the immutable dictionaries used by keyword extraction:
// stopwords, domain root terms, strong n-grams and spelling variants.
package lexicon

import (
	"sort"
	"unicode/utf8"
)

// Dictionary is a set of entries merged into the default lexicon.
type Dictionary struct {
	Roots        []string            `yaml:"roots"`
	StrongNgrams []string            `yaml:"strong_ngrams"`
	Stopwords    []string            `yaml:"stopwords"`
	Variants     map[string][]string `yaml:"variants"`
}

// Lexicon is read-only after construction and safe for concurrent use.
type Lexicon struct {
	stopwords map[string]struct{}
	roots     []string
	strong    []string
	variants  map[string][]string
}

// Default returns the built-in lexicon.
func Default() *Lexicon {
	return New()
}

// New builds a lexicon from the built-in entries plus dicts, in order.
func New(dicts ...Dictionary) *Lexicon {
	stop := make(map[string]struct{}, len(defaultStopwords))
	for _, w := range defaultStopwords {
		stop[w] = struct{}{}
	}

	roots := append([]string(nil), defaultRoots...)
	strong := append([]string(nil), defaultStrongNgrams...)

	variants := make(map[string][]string, len(defaultVariants))
	for k, vs := range defaultVariants {
		variants[k] = append([]string(nil), vs...)
	}

	for _, d := range dicts {
		roots = append(roots, d.Roots...)
		strong = append(strong, d.StrongNgrams...)
		for _, w := range d.Stopwords {
			if w != "" {
				stop[w] = struct{}{}
			}
		}
		for k, vs := range d.Variants {
			merged := variants[k]
			for _, v := range vs {
				if v != "" && !contains(merged, v) {
					merged = append(merged, v)
				}
			}
			variants[k] = merged
		}
	}

	return &Lexicon{
		stopwords: stop,
		roots:     longestFirst(roots),
		strong:    longestFirst(strong),
		variants:  variants,
	}
}

// IsStopword reports whether term is a stopword.
func (l *Lexicon) IsStopword(term string) bool {
	_, ok := l.stopwords[term]
	return ok
}

// Roots returns the root terms, longest first. Callers must not modify the slice.
func (l *Lexicon) Roots() []string {
	return l.roots
}

// StrongNgrams returns the strong n-grams, longest first. Callers must not modify the slice.
func (l *Lexicon) StrongNgrams() []string {
	return l.strong
}

// Variants returns the known alternative spellings of term.
func (l *Lexicon) Variants(term string) []string {
	return l.variants[term]
}

// Stats reports entry counts.
func (l *Lexicon) Stats() map[string]int {
	return map[string]int{
		"stopwords":     len(l.stopwords),
		"roots":         len(l.roots),
		"strong_ngrams": len(l.strong),
		"variants":      len(l.variants),
	}
}

// longestFirst dedupes terms, drops empties and sorts by rune length descending.
// Equal lengths sort lexicographically so ordering does not depend on input order.
func longestFirst(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(out[i]), utf8.RuneCountInString(out[j])
		if li != lj {
			return li > lj
		}
		return out[i] < out[j]
	})
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
