package keywords

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/lexicon"
)

// Options bounds the size of each keyword view.
type Options struct {
	CoreMax       int
	TailMax       int
	RootsMax      int
	NgramMin      int
	NgramMax      int
	NgramMaxTerms int
}

// DefaultOptions returns the production caps.
func DefaultOptions() Options {
	return Options{
		CoreMax:       3,
		TailMax:       2,
		RootsMax:      5,
		NgramMin:      2,
		NgramMax:      4,
		NgramMaxTerms: 32,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.CoreMax <= 0 {
		o.CoreMax = d.CoreMax
	}
	if o.TailMax <= 0 {
		o.TailMax = d.TailMax
	}
	if o.RootsMax <= 0 {
		o.RootsMax = d.RootsMax
	}
	if o.NgramMin < MinTermLength {
		o.NgramMin = d.NgramMin
	}
	if o.NgramMax < o.NgramMin {
		o.NgramMax = o.NgramMin
	}
	if o.NgramMaxTerms <= 0 {
		o.NgramMaxTerms = d.NgramMaxTerms
	}
	return o
}

// Extractor produces keyword views of product names. It holds no mutable state.
type Extractor struct {
	lex  *lexicon.Lexicon
	norm *Normalizer
	opts Options
}

// NewExtractor creates an extractor over lex. Zero option fields take defaults.
func NewExtractor(lex *lexicon.Lexicon, opts Options) *Extractor {
	if lex == nil {
		lex = lexicon.Default()
	}
	return &Extractor{
		lex:  lex,
		norm: NewNormalizer(lex),
		opts: opts.withDefaults(),
	}
}

// Normalizer returns the normalizer the extractor tokenizes with.
func (e *Extractor) Normalizer() *Normalizer {
	return e.norm
}

// Options returns the effective caps.
func (e *Extractor) Options() Options {
	return e.opts
}

// Core returns strong n-grams, their roots and the name's tokens (each preceded by
// its roots), truncated, expanded with spelling variants and truncated again.
func (e *Extractor) Core(name string) []string {
	s := e.norm.Normalize(name)

	var ordered []string
	for _, ng := range e.lex.StrongNgrams() {
		if !strings.Contains(s, ng) || !e.norm.Usable(ng) {
			continue
		}
		ordered = append(ordered, ng)
		ordered = append(ordered, e.splitByRoots(ng)...)
	}
	for _, t := range e.norm.tokens(s) {
		ordered = append(ordered, e.splitByRoots(t)...)
		ordered = append(ordered, t)
	}

	core := domain.Dedupe(ordered, e.opts.CoreMax)
	return domain.Dedupe(e.expandVariants(core), e.opts.CoreMax)
}

// Tail returns the last TailMax distinct digit-free tokens of the name. Variants and
// root splits of those tokens are added only when the name has fewer than TailMax
// distinct tokens; otherwise the cap keeps the tokens alone.
func (e *Extractor) Tail(name string) []string {
	var toks []string
	for _, t := range e.norm.tokens(e.norm.Normalize(name)) {
		if !hasDigit(t) {
			toks = append(toks, t)
		}
	}

	var base []string
	seen := make(map[string]struct{})
	for i := len(toks) - 1; i >= 0 && len(base) < e.opts.TailMax; i-- {
		if _, ok := seen[toks[i]]; ok {
			continue
		}
		seen[toks[i]] = struct{}{}
		base = append(base, toks[i])
	}
	for i, j := 0, len(base)-1; i < j; i, j = i+1, j-1 {
		base[i], base[j] = base[j], base[i]
	}

	expanded := append([]string(nil), base...)
	for _, t := range base {
		expanded = append(expanded, e.usableVariants(t)...)
	}
	for _, t := range base {
		expanded = append(expanded, e.splitByRoots(t)...)
	}
	return domain.Dedupe(expanded, e.opts.TailMax)
}

// Roots returns lexicon root terms found in the normalized name, longest first.
func (e *Extractor) Roots(name string) []string {
	s := e.norm.Normalize(name)
	var hits []string
	for _, r := range e.lex.Roots() {
		if e.norm.Usable(r) && strings.Contains(s, r) {
			hits = append(hits, r)
		}
	}
	return domain.Dedupe(hits, e.opts.RootsMax)
}

// Ngrams returns windowed character n-grams of the name's Hangul tokens followed by
// the whole tokens, for recall on compounds no dictionary knows.
func (e *Extractor) Ngrams(name string) []string {
	var toks []string
	for _, t := range e.norm.Tokenize(name) {
		if isHangulTerm(t) {
			toks = append(toks, t)
		}
	}

	var cand []string
	for _, t := range toks {
		cand = append(cand, windowedNgrams(t, e.opts.NgramMin, e.opts.NgramMax)...)
	}
	for _, t := range toks {
		if runeLen(t) >= e.opts.NgramMin {
			cand = append(cand, t)
		}
	}

	filtered := cand[:0]
	for _, c := range cand {
		if isHangulTerm(c) && !e.lex.IsStopword(c) {
			filtered = append(filtered, c)
		}
	}
	return domain.Dedupe(filtered, e.opts.NgramMaxTerms)
}

// Extract computes all four views concurrently.
func (e *Extractor) Extract(ctx context.Context, name string) (domain.KeywordSet, error) {
	var ks domain.KeywordSet
	if err := ctx.Err(); err != nil {
		return ks, fmt.Errorf("extract keywords: %w", err)
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		ks.Core = e.Core(name)
		return nil
	})
	g.Go(func() error {
		ks.Tail = e.Tail(name)
		return nil
	})
	g.Go(func() error {
		ks.Roots = e.Roots(name)
		return nil
	})
	g.Go(func() error {
		ks.Ngrams = e.Ngrams(name)
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.KeywordSet{}, fmt.Errorf("extract keywords: %w", err)
	}
	return ks, nil
}

// splitByRoots returns the usable roots strictly contained in token.
func (e *Extractor) splitByRoots(token string) []string {
	var out []string
	for _, r := range e.lex.Roots() {
		if r != token && strings.Contains(token, r) && e.norm.Usable(r) {
			out = append(out, r)
		}
	}
	return out
}

func (e *Extractor) usableVariants(term string) []string {
	var out []string
	for _, v := range e.lex.Variants(term) {
		if e.norm.Usable(v) {
			out = append(out, v)
		}
	}
	return out
}

func (e *Extractor) expandVariants(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		out = append(out, t)
		out = append(out, e.usableVariants(t)...)
	}
	return out
}

func windowedNgrams(token string, lo, hi int) []string {
	runes := []rune(token)
	var out []string
	for n := lo; n <= hi && n <= len(runes); n++ {
		for i := 0; i+n <= len(runes); i++ {
			out = append(out, string(runes[i:i+n]))
		}
	}
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}
