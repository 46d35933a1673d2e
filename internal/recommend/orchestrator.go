// Package recommend sequences the recommendation pipeline and caches its results.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/gate"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/keywords"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/overlap"
)

// CandidateGate narrows the candidate catalog by keywords.
type CandidateGate interface {
	Candidates(ctx context.Context, must, optional []string, limit, minFloor int) (domain.CandidateList, error)
}

// Ranker orders candidates by similarity to a text.
type Ranker interface {
	Rank(ctx context.Context, text string, ids []domain.ProductID, k int) (domain.Ranking, error)
}

// Joiner resolves ids to display records in input order.
type Joiner interface {
	Resolve(ctx context.Context, ids []domain.ProductID) ([]domain.DisplayRecord, error)
}

// Deps are the pipeline stages. Metrics and Logger may be nil.
type Deps struct {
	Names     catalog.NameSource
	Popular   catalog.PopularSource
	Extractor *keywords.Extractor
	Gate      CandidateGate
	Ranker    Ranker
	Joiner    Joiner
	Filter    *overlap.Filter
	Metrics   *observability.Metrics
	Logger    *observability.Logger
}

// Options sizes the pipeline.
type Options struct {
	// CandidateN is the base candidate budget for gating and ranking.
	CandidateN int
	// MinFloor is the must-any result count below which the must-all tier runs.
	MinFloor int
	// MustMax and OptionalMax cap the keyword sets handed to the gate.
	MustMax     int
	OptionalMax int
	// MaxK clamps the requested result count.
	MaxK int
}

// DefaultOptions returns the production sizing.
func DefaultOptions() Options {
	return Options{
		CandidateN:  150,
		MinFloor:    30,
		MustMax:     12,
		OptionalMax: 32,
		MaxK:        20,
	}
}

// Result is the outcome of one recommendation request.
type Result struct {
	SourceID       domain.ProductID       `json:"source_id"`
	SourceName     string                 `json:"source_name"`
	Products       []domain.DisplayRecord `json:"products"`
	State          State                  `json:"state"`
	FallbackReason string                 `json:"fallback_reason,omitempty"`
	Keywords       domain.KeywordSet      `json:"keywords"`
	// Path lists every state the request passed through.
	Path   []State `json:"path"`
	Cached bool    `json:"cached,omitempty"`
}

// Orchestrator runs the recommendation state machine.
type Orchestrator struct {
	deps Deps
	opts Options
}

// NewOrchestrator creates an orchestrator. Zero option fields take their defaults.
func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	def := DefaultOptions()
	if opts.CandidateN <= 0 {
		opts.CandidateN = def.CandidateN
	}
	if opts.MinFloor <= 0 {
		opts.MinFloor = def.MinFloor
	}
	if opts.MustMax <= 0 {
		opts.MustMax = def.MustMax
	}
	if opts.OptionalMax <= 0 {
		opts.OptionalMax = def.OptionalMax
	}
	if opts.MaxK <= 0 {
		opts.MaxK = def.MaxK
	}
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if deps.Extractor == nil {
		deps.Extractor = keywords.NewExtractor(nil, keywords.Options{})
	}
	if deps.Filter == nil {
		deps.Filter = overlap.NewFilter(deps.Extractor.Normalizer(), overlap.Options{})
	}
	return &Orchestrator{deps: deps, opts: opts}
}

// NormalizeK rejects non-positive k and clamps k to the configured maximum.
func (o *Orchestrator) NormalizeK(k int) (int, error) {
	if k <= 0 {
		return 0, domain.InvalidInput(fmt.Sprintf("k must be positive, got %d", k), nil)
	}
	return min(k, o.opts.MaxK), nil
}

// Recommend looks up the source product's name and recommends for it. Only invalid
// input is returned as an error; an unknown id wraps catalog.ErrNotFound.
func (o *Orchestrator) Recommend(ctx context.Context, id domain.ProductID, k int) (*Result, error) {
	k, err := o.NormalizeK(k)
	if err != nil {
		return nil, err
	}

	name, err := o.lookupName(ctx, id)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return nil, domain.InvalidInput(fmt.Sprintf("source product %d not found", id), err)
	case err != nil:
		return o.newRun(ctx, id, "", k).fallback(domain.UpstreamUnavailable("source name lookup failed", err).AtStage("lookup")), nil
	case strings.TrimSpace(name) == "":
		return nil, domain.InvalidInput(fmt.Sprintf("source product %d has no name", id), nil)
	}

	return o.newRun(ctx, id, name, k).execute(), nil
}

// lookupName resolves the source name. A panic in the name source is returned as an error.
func (o *Orchestrator) lookupName(ctx context.Context, id domain.ProductID) (name string, err error) {
	defer func() {
		if p := recover(); p != nil {
			name, err = "", fmt.Errorf("name lookup panicked: %v", p)
		}
	}()
	return o.deps.Names.NameByID(ctx, id)
}

// RecommendName recommends for a free-text source name.
func (o *Orchestrator) RecommendName(ctx context.Context, name string, k int) (*Result, error) {
	k, err := o.NormalizeK(k)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, domain.InvalidInput("source name is blank", nil)
	}
	return o.newRun(ctx, 0, name, k).execute(), nil
}

// run carries the state of one request through the pipeline.
type run struct {
	*Orchestrator
	ctx    context.Context
	k      int
	result *Result
	logger *observability.Logger
}

func (o *Orchestrator) newRun(ctx context.Context, id domain.ProductID, name string, k int) *run {
	return &run{
		Orchestrator: o,
		ctx:          ctx,
		k:            k,
		result: &Result{
			SourceID:   id,
			SourceName: name,
			Products:   []domain.DisplayRecord{},
			State:      StateIdle,
			Path:       []State{StateIdle},
		},
		logger: o.deps.Logger.WithContext(ctx).WithOperation("recommend").WithProduct(int64(id)),
	}
}

func (r *run) enter(s State) {
	r.result.State = s
	r.result.Path = append(r.result.Path, s)
}

// execute walks the pipeline. A panic in any stage is treated like a stage failure.
func (r *run) execute() (res *Result) {
	defer func() {
		if p := recover(); p != nil {
			stage := r.result.State.String()
			res = r.fallback(domain.UpstreamUnavailable(fmt.Sprintf("stage panicked: %v", p), nil).AtStage(stage))
		}
	}()

	name := r.result.SourceName

	r.enter(StateExtractingKeywords)
	started := time.Now()
	kw, err := r.deps.Extractor.Extract(r.ctx, name)
	if err != nil {
		return r.fallback(domain.UpstreamUnavailable("keyword extraction interrupted", err).AtStage(observability.StageExtract))
	}
	r.result.Keywords = kw
	must := kw.Must(r.opts.MustMax)
	optional := kw.Optional(r.opts.OptionalMax)
	r.deps.Metrics.ObserveStage(observability.StageExtract, time.Since(started), len(must)+len(optional))

	r.enter(StateGating)
	started = time.Now()
	limit := gate.Limit(r.opts.CandidateN, len(must))
	ids, err := r.deps.Gate.Candidates(r.ctx, must, optional, limit, gate.MinFloor(r.opts.MinFloor, r.k))
	r.deps.Metrics.ObserveStage(observability.StageGate, time.Since(started), len(ids))
	if err != nil {
		return r.fallback(domain.UpstreamUnavailable("candidate search failed", err).AtStage(observability.StageGate))
	}
	if len(ids) == 0 {
		return r.fallback(domain.EmptyIntermediate("no candidates passed the gate").AtStage(observability.StageGate))
	}

	r.enter(StateRanking)
	started = time.Now()
	ranking, err := r.deps.Ranker.Rank(r.ctx, name, ids, max(r.k, r.opts.CandidateN))
	r.deps.Metrics.ObserveStage(observability.StageRank, time.Since(started), len(ranking))
	if err != nil {
		return r.fallback(domain.UpstreamUnavailable("similarity ranking failed", err).AtStage(observability.StageRank))
	}
	if len(ranking) == 0 {
		return r.fallback(domain.EmptyIntermediate("no candidates were ranked").AtStage(observability.StageRank))
	}

	r.enter(StateJoining)
	started = time.Now()
	records, err := r.deps.Joiner.Resolve(r.ctx, ranking.IDs())
	r.deps.Metrics.ObserveStage(observability.StageJoin, time.Since(started), len(records))
	if err != nil {
		return r.fallback(domain.UpstreamUnavailable("record lookup failed", err).AtStage(observability.StageJoin))
	}
	if len(records) == 0 {
		return r.fallback(domain.EmptyIntermediate("no ranked candidate has a record").AtStage(observability.StageJoin))
	}
	records = sortByDistance(records, ranking.SimilarityMap())

	r.enter(StateFiltering)
	started = time.Now()
	kept := r.deps.Filter.Apply(name, records)
	r.deps.Metrics.ObserveStage(observability.StageFilter, time.Since(started), len(kept))

	r.enter(StateTruncating)
	if len(kept) > r.k {
		kept = kept[:r.k]
	}
	r.result.Products = kept

	r.enter(StateDone)
	r.deps.Metrics.RecordOutcome(StateDone.String())
	r.logger.Debug().
		Int("k", r.k).
		Int("gated", len(ids)).
		Int("ranked", len(ranking)).
		Int("joined", len(records)).
		Int("returned", len(kept)).
		Msg("Recommendation finished")
	return r.result
}

// fallback ends the run with the popularity substitute, or nothing if that fails too.
func (r *run) fallback(cause *domain.Error) *Result {
	r.logger.Warn().
		Err(cause).
		Stage(cause.Stage).
		Str("source_name", r.result.SourceName).
		Strs("tail", r.result.Keywords.Tail).
		Strs("core", r.result.Keywords.Core).
		Strs("roots", r.result.Keywords.Roots).
		Strs("ngrams", r.result.Keywords.Ngrams).
		Msg("Recommendation falling back")

	r.enter(StateFallback)
	r.result.FallbackReason = cause.Error()
	r.result.Products = []domain.DisplayRecord{}

	if r.deps.Popular != nil {
		popular, err := r.popular()
		if err != nil {
			r.logger.Error().Err(err).Msg("Popular fallback unavailable")
		} else {
			r.result.Products = popular
		}
	}

	r.deps.Metrics.RecordOutcome(StateFallback.String())
	return r.result
}

func (r *run) popular() (out []domain.DisplayRecord, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fmt.Errorf("popular source panicked: %v", p)
		}
	}()
	records, err := r.deps.Popular.Popular(r.ctx, r.k)
	if err != nil {
		return nil, err
	}
	if len(records) > r.k {
		records = records[:r.k]
	}
	if records == nil {
		records = []domain.DisplayRecord{}
	}
	return records, nil
}

// sortByDistance annotates records with their distance and orders them nearest first.
// Records without a distance keep their relative order after the ranked ones.
func sortByDistance(records []domain.DisplayRecord, distances domain.SimilarityMap) []domain.DisplayRecord {
	for i := range records {
		if d, ok := distances[records[i].ID]; ok {
			records[i].Distance = &d
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].Distance, records[j].Distance
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
	return records
}
