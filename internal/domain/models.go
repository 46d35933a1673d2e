// Package domain holds the value types passed between recommendation stages.
package domain

import (
	"strconv"
	"time"
)

// ProductID identifies a product in either catalog.
type ProductID int64

// String returns the decimal form of the id.
func (id ProductID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseProductID parses a decimal product id.
func ParseProductID(s string) (ProductID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, InvalidInput("product id must be an integer", err)
	}
	return ProductID(v), nil
}

// DisplayRecord is a read-only snapshot of a candidate product.
type DisplayRecord struct {
	ID              ProductID `json:"id"`
	Name            string    `json:"name"`
	StoreName       string    `json:"store_name"`
	Thumbnail       string    `json:"thumbnail"`
	Price           int       `json:"price"`
	DiscountedPrice int       `json:"discounted_price"`
	DiscountRate    int       `json:"discount_rate"`
	ReviewCount     int       `json:"review_count"`
	// Distance is set when the record passed through similarity ranking.
	Distance *float64 `json:"distance,omitempty"`
}

// FullName is the name used for lexical comparison: product name plus store.
func (r DisplayRecord) FullName() string {
	return r.Name + " " + r.StoreName
}

// KeywordSet is the output of keyword extraction for one product name.
type KeywordSet struct {
	Core   []string `json:"core"`
	Tail   []string `json:"tail"`
	Roots  []string `json:"roots"`
	Ngrams []string `json:"ngrams"`
}

// Must returns the deduplicated tail, core and root terms, capped at limit.
func (k KeywordSet) Must(limit int) []string {
	return Dedupe(concat(k.Tail, k.Core, k.Roots), limit)
}

// Optional returns the deduplicated dynamic n-grams, capped at limit.
func (k KeywordSet) Optional(limit int) []string {
	return Dedupe(k.Ngrams, limit)
}

// CandidateList is the ordered, deduplicated output of the candidate gate.
type CandidateList []ProductID

// Scored is a candidate with its similarity distance. Lower is closer.
type Scored struct {
	ID       ProductID `json:"id"`
	Distance float64   `json:"distance"`
}

// Ranking is an ordered list of scored candidates.
type Ranking []Scored

// IDs returns the candidate ids in rank order.
func (r Ranking) IDs() []ProductID {
	ids := make([]ProductID, len(r))
	for i, s := range r {
		ids[i] = s.ID
	}
	return ids
}

// SimilarityMap returns id -> distance for the ranking.
func (r Ranking) SimilarityMap() SimilarityMap {
	m := make(SimilarityMap, len(r))
	for _, s := range r {
		m[s.ID] = s.Distance
	}
	return m
}

// SimilarityMap maps candidate ids to their distance from the query.
type SimilarityMap map[ProductID]float64

// CachedRecommendation is the payload stored in the result cache.
type CachedRecommendation struct {
	Products  []DisplayRecord `json:"products"`
	CachedAt  time.Time       `json:"cached_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Dedupe removes repeated strings keeping first-seen order. A limit <= 0 means no cap.
func Dedupe(in []string, limit int) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// DedupeIDs removes repeated ids keeping first-seen order. A limit <= 0 means no cap.
func DedupeIDs(in []ProductID, limit int) []ProductID {
	seen := make(map[ProductID]struct{}, len(in))
	out := make([]ProductID, 0, len(in))
	for _, id := range in {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func concat(parts ...[]string) []string {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]string, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
