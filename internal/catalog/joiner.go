package catalog

import (
	"context"
	"fmt"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
)

// Joiner resolves ranked candidate ids to display records.
type Joiner struct {
	records RecordSource
}

// NewJoiner creates a joiner over records.
func NewJoiner(records RecordSource) *Joiner {
	return &Joiner{records: records}
}

// Resolve returns one record per known id in input order. Unknown ids are dropped,
// repeated ids appear once and missing price fields are defaulted.
func (j *Joiner) Resolve(ctx context.Context, ids []domain.ProductID) ([]domain.DisplayRecord, error) {
	ids = domain.DedupeIDs(ids, 0)
	if len(ids) == 0 {
		return nil, nil
	}

	records, err := j.records.RecordsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve records: %w", err)
	}

	out := orderByIDs(records, ids)
	for i := range out {
		out[i] = fillDefaults(out[i])
	}
	return out, nil
}
