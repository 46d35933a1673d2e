// Package overlap drops ranked candidates that share too little text with the source product.
package overlap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/keywords"
)

// Hits counts the lexical agreement between the source and one candidate.
type Hits struct {
	// Tail is the number of dynamic tail terms found among the candidate's tokens.
	Tail int
	// Ngram is the number of distinct character n-grams the two names share.
	Ngram int
}

// Policy decides whether a candidate with the given hits is kept.
type Policy func(Hits) bool

// RequireBoth keeps candidates with at least one tail hit and one n-gram hit.
func RequireBoth(h Hits) bool {
	return h.Tail >= 1 && h.Ngram >= 1
}

// RequireEither keeps candidates with at least one tail hit or one n-gram hit.
func RequireEither(h Hits) bool {
	return h.Tail >= 1 || h.Ngram >= 1
}

// ParsePolicy maps "and" to RequireBoth and "or" to RequireEither.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "and", "both":
		return RequireBoth, nil
	case "or", "either":
		return RequireEither, nil
	default:
		return nil, fmt.Errorf("unknown filter policy %q", name)
	}
}

// Options configures a Filter.
type Options struct {
	// MaxDFRatio is the highest share of candidates a source token may appear in
	// and still count as a tail term.
	MaxDFRatio float64
	// MaxTailTerms caps the dynamic tail set.
	MaxTailTerms int
	// NgramN is the character n-gram width.
	NgramN int
	Policy Policy
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxDFRatio:   0.35,
		MaxTailTerms: 3,
		NgramN:       2,
		Policy:       RequireBoth,
	}
}

// Filter applies the lexical overlap check to a ranked candidate list.
type Filter struct {
	normalizer *keywords.Normalizer
	opts       Options
}

// NewFilter creates a filter. Zero option fields take their defaults.
func NewFilter(normalizer *keywords.Normalizer, opts Options) *Filter {
	def := DefaultOptions()
	if opts.MaxDFRatio <= 0 {
		opts.MaxDFRatio = def.MaxDFRatio
	}
	if opts.MaxTailTerms < 1 {
		opts.MaxTailTerms = def.MaxTailTerms
	}
	if opts.NgramN < 1 {
		opts.NgramN = def.NgramN
	}
	if opts.Policy == nil {
		opts.Policy = def.Policy
	}
	if normalizer == nil {
		normalizer = keywords.NewNormalizer(nil)
	}
	return &Filter{normalizer: normalizer, opts: opts}
}

// Apply returns the records that satisfy the policy, in input order.
func (f *Filter) Apply(source string, records []domain.DisplayRecord) []domain.DisplayRecord {
	if len(records) == 0 {
		return []domain.DisplayRecord{}
	}

	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.FullName()
	}
	tails := toSet(f.TailTerms(source, names))
	sourceGrams := f.ngrams(source)

	out := make([]domain.DisplayRecord, 0, len(records))
	for i, r := range records {
		hits := Hits{
			Tail:  countIn(toSet(f.normalizer.Tokenize(names[i])), tails),
			Ngram: countIn(f.ngrams(names[i]), sourceGrams),
		}
		if f.opts.Policy(hits) {
			out = append(out, r)
		}
	}
	return out
}

// TailTerms picks the source tokens that are rare across candidateNames, rarest first.
// Ties keep source order. When no token is rare enough, the first source token is used.
func (f *Filter) TailTerms(source string, candidateNames []string) []string {
	tokens := domain.Dedupe(f.normalizer.Tokenize(source), 0)
	if len(tokens) == 0 {
		return []string{}
	}
	if len(candidateNames) == 0 {
		return tokens[:1]
	}

	df := make(map[string]int, len(tokens))
	for _, name := range candidateNames {
		for tok := range toSet(f.normalizer.Tokenize(name)) {
			df[tok]++
		}
	}

	total := float64(len(candidateNames))
	tail := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if float64(df[t])/total <= f.opts.MaxDFRatio {
			tail = append(tail, t)
		}
	}
	if len(tail) == 0 {
		return tokens[:1]
	}

	sort.SliceStable(tail, func(i, j int) bool {
		return df[tail[i]] < df[tail[j]]
	})
	if len(tail) > f.opts.MaxTailTerms {
		tail = tail[:f.opts.MaxTailTerms]
	}
	return tail
}

// ngrams returns the distinct character n-grams of the normalized name with spaces removed.
func (f *Filter) ngrams(name string) map[string]struct{} {
	runes := []rune(strings.ReplaceAll(f.normalizer.Normalize(name), " ", ""))
	n := f.opts.NgramN
	out := make(map[string]struct{})
	for i := 0; i+n <= len(runes); i++ {
		out[string(runes[i:i+n])] = struct{}{}
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, s := range items {
		out[s] = struct{}{}
	}
	return out
}

func countIn(items, set map[string]struct{}) int {
	n := 0
	for s := range items {
		if _, ok := set[s]; ok {
			n++
		}
	}
	return n
}
