// Package app wires configuration into a ready-to-serve recommendation service.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/gate"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/keywords"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/lexicon"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/overlap"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/rank"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/recommend"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/vector"
)

// MockEmbeddingURL selects the deterministic in-process embedder instead of the ML service.
const MockEmbeddingURL = "mock"

// ErrNoDatabase is returned by operations that need the SQL catalog when the app
// was built over an injected catalog.
var ErrNoDatabase = errors.New("no catalog database configured")

// App holds every long-lived dependency of the recommendation service.
type App struct {
	Config    *config.Config
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	DB        *sql.DB
	Catalog   catalog.Catalog
	Lexicon   *lexicon.Lexicon
	Extractor *keywords.Extractor
	Embedder  embedding.Embedder
	Vectors   vector.Store
	Cache     cache.Client
	Service   *recommend.Service

	pool    *pgxpool.Pool
	closers []func() error
}

// Option overrides a dependency New would otherwise build from config.
type Option func(*App)

// WithCatalog uses c instead of opening the configured database.
func WithCatalog(c catalog.Catalog) Option {
	return func(a *App) { a.Catalog = c }
}

// WithEmbedder uses e instead of the configured embedding client.
func WithEmbedder(e embedding.Embedder) Option {
	return func(a *App) { a.Embedder = e }
}

// WithVectorStore uses s instead of the configured vector adapter.
func WithVectorStore(s vector.Store) Option {
	return func(a *App) { a.Vectors = s }
}

// WithCacheClient uses c instead of the configured cache driver.
func WithCacheClient(c cache.Client) Option {
	return func(a *App) { a.Cache = c }
}

// WithMetrics uses m instead of a fresh registry.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *App) { a.Metrics = m }
}

// New builds the app. On error every resource opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	a := &App{Config: cfg, Logger: logger}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	logger.Info().
		Str("database", a.describeCatalog()).
		Str("vector", cfg.Vector.Adapter).
		Str("cache", cfg.Cache.Driver).
		Str("embedding_model", a.Embedder.Model()).
		Int("embedding_dim", a.Embedder.Dimension()).
		Msg("Recommendation engine initialized")
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	if a.Metrics == nil {
		a.Metrics = observability.NewMetrics(cfg.Observability.MetricsNamespace)
	}

	lex, err := lexicon.LoadFiles(cfg.Lexicon.KeywordsPath, cfg.Lexicon.CategoryPath)
	if err != nil {
		return fmt.Errorf("load lexicon: %w", err)
	}
	a.Lexicon = lex
	a.Extractor = keywords.NewExtractor(lex, keywords.Options{
		CoreMax:       cfg.Keywords.CoreMax,
		TailMax:       cfg.Keywords.TailMax,
		RootsMax:      cfg.Keywords.RootsMax,
		NgramMin:      cfg.Keywords.NgramMin,
		NgramMax:      cfg.Keywords.NgramMax,
		NgramMaxTerms: cfg.Keywords.NgramMaxTerms,
	})

	if a.Catalog == nil {
		db, err := storage.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("open catalog: %w", err)
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)
		a.Catalog = catalog.NewSQLStore(db)
	}

	if a.Embedder == nil {
		embedder, err := newEmbedder(cfg.Embedding)
		if err != nil {
			return fmt.Errorf("create embedding client: %w", err)
		}
		a.Embedder = embedder
	}

	if a.Vectors == nil {
		store, err := a.newVectorStore(ctx)
		if err != nil {
			return err
		}
		a.Vectors = store
	}
	a.closers = append(a.closers, a.Vectors.Close)

	if a.Cache == nil {
		client, err := newCacheClient(cfg.Cache)
		if err != nil {
			return fmt.Errorf("create cache client: %w", err)
		}
		a.Cache = client
	}
	a.closers = append(a.closers, a.Cache.Close)

	policy, err := overlap.ParsePolicy(cfg.Filter.Policy)
	if err != nil {
		return fmt.Errorf("filter policy: %w", err)
	}

	orchestrator := recommend.NewOrchestrator(recommend.Deps{
		Names:     a.Catalog,
		Popular:   a.Catalog,
		Extractor: a.Extractor,
		Gate:      gate.New(a.Catalog, gate.Options{CompareStore: cfg.Gate.CompareStore}, a.Logger),
		Ranker:    rank.NewRanker(a.Embedder, a.Vectors, a.Metrics, a.Logger),
		Joiner:    catalog.NewJoiner(a.Catalog),
		Filter: overlap.NewFilter(a.Extractor.Normalizer(), overlap.Options{
			MaxDFRatio:   cfg.Filter.TailMaxDF,
			MaxTailTerms: cfg.Filter.TailMaxTerms,
			NgramN:       cfg.Filter.NgramN,
			Policy:       policy,
		}),
		Metrics: a.Metrics,
		Logger:  a.Logger,
	}, recommend.Options{
		CandidateN:  cfg.Gate.CandidateN,
		MinFloor:    cfg.Gate.MinFloor,
		MustMax:     cfg.Keywords.MustMax,
		OptionalMax: cfg.Keywords.NgramMaxTerms,
		MaxK:        cfg.Recommend.MaxK,
	})

	resultCache := recommend.NewResultCache(a.Cache, recommend.ResultCacheConfig{
		TTL:     cfg.Recommend.CacheTTL,
		Logger:  a.Logger,
		Metrics: a.Metrics,
	})
	a.Service = recommend.NewService(orchestrator, resultCache, a.Logger)
	return nil
}

func newEmbedder(cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	if strings.EqualFold(cfg.BaseURL, MockEmbeddingURL) {
		return embedding.NewMockClient(cfg.Dimension), nil
	}
	return embedding.NewClient(embedding.Config{
		BaseURL:         cfg.BaseURL,
		Model:           cfg.Model,
		Dimension:       cfg.Dimension,
		Timeout:         cfg.Timeout,
		MaxRetries:      cfg.MaxRetries,
		RatePerSecond:   cfg.RatePerSecond,
		Burst:           cfg.Burst,
		BreakerFailures: cfg.BreakerFailures,
		BreakerTimeout:  cfg.BreakerTimeout,
	})
}

func (a *App) newVectorStore(ctx context.Context) (vector.Store, error) {
	cfg := a.Config
	switch cfg.Vector.Adapter {
	case "pgvector":
		pool, err := vector.NewPool(ctx, cfg.Vector.PGVector)
		if err != nil {
			return nil, fmt.Errorf("connect pgvector: %w", err)
		}
		store, err := vector.NewPGVectorStore(pool, cfg.Vector.PGVector.Table, a.Embedder.Dimension())
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		a.pool = pool
		return store, nil
	default:
		return vector.NewMemoryStore(a.Embedder.Dimension()), nil
	}
}

func newCacheClient(cfg config.CacheConfig) (cache.Client, error) {
	if cfg.Driver == "redis" {
		return cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Prefix:   cfg.Redis.Prefix,
		})
	}
	return cache.NewMemoryClient(cfg.MaxEntries), nil
}

func (a *App) describeCatalog() string {
	if a.DB == nil {
		return "injected"
	}
	return a.Config.Database.Driver
}

// NeedsIndex reports whether the vector store starts empty and must be built from
// the catalog before serving.
func (a *App) NeedsIndex() bool {
	_, ok := a.Vectors.(*vector.MemoryStore)
	return ok
}

// Warmer returns a cache warmer sized from config.
func (a *App) Warmer() *recommend.Warmer {
	return recommend.NewWarmer(a.Service, a.Config.Recommend.WarmWorkers, 0, a.Logger)
}

// Migrate applies the catalog schema.
func (a *App) Migrate(ctx context.Context) ([]string, error) {
	if a.DB == nil {
		return nil, ErrNoDatabase
	}
	return storage.Migrate(ctx, a.DB)
}

// Ready checks every backing service that can be probed.
func (a *App) Ready(ctx context.Context) error {
	if a.DB != nil {
		if err := a.DB.PingContext(ctx); err != nil {
			return fmt.Errorf("catalog database: %w", err)
		}
	}
	if a.pool != nil {
		if err := a.pool.Ping(ctx); err != nil {
			return fmt.Errorf("vector database: %w", err)
		}
	}
	if p, ok := a.Cache.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	if h, ok := a.Embedder.(interface{ Health(context.Context) error }); ok {
		if err := h.Health(ctx); err != nil {
			return fmt.Errorf("embedding service: %w", err)
		}
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
