// Package config provides unified configuration loading for the Recommendation Engine.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the Recommendation Engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Vector        VectorConfig        `yaml:"vector"`
	Cache         CacheConfig         `yaml:"cache"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Lexicon       LexiconConfig       `yaml:"lexicon"`
	Keywords      KeywordsConfig      `yaml:"keywords"`
	Gate          GateConfig          `yaml:"gate"`
	Filter        FilterConfig        `yaml:"filter"`
	Recommend     RecommendConfig     `yaml:"recommend"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// DatabaseConfig holds catalog database settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// VectorConfig holds vector store settings.
type VectorConfig struct {
	Adapter  string         `yaml:"adapter"` // memory or pgvector
	PGVector PGVectorConfig `yaml:"pgvector"`
}

// PGVectorConfig holds pgvector-specific settings.
type PGVectorConfig struct {
	DSN      string `yaml:"dsn"`
	Table    string `yaml:"table"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Driver     string      `yaml:"driver"` // memory or redis
	MaxEntries int         `yaml:"max_entries"`
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// EmbeddingConfig holds embedding service settings.
type EmbeddingConfig struct {
	BaseURL         string        `yaml:"base_url"`
	Model           string        `yaml:"model"`
	Dimension       int           `yaml:"dimension"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	RatePerSecond   float64       `yaml:"rate_per_second"`
	Burst           int           `yaml:"burst"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

// LexiconConfig points at optional dictionary files merged into the built-in lexicon.
type LexiconConfig struct {
	KeywordsPath string `yaml:"keywords_path"`
	CategoryPath string `yaml:"category_path"`
}

// KeywordsConfig bounds each keyword view.
type KeywordsConfig struct {
	CoreMax       int `yaml:"core_max"`
	TailMax       int `yaml:"tail_max"`
	RootsMax      int `yaml:"roots_max"`
	NgramMin      int `yaml:"ngram_min"`
	NgramMax      int `yaml:"ngram_max"`
	NgramMaxTerms int `yaml:"ngram_max_terms"`
	MustMax       int `yaml:"must_max"`
}

// GateConfig holds candidate gate settings.
type GateConfig struct {
	CompareStore bool `yaml:"compare_store"`
	CandidateN   int  `yaml:"candidate_n"`
	MinFloor     int  `yaml:"min_floor"`
}

// FilterConfig holds overlap filter settings.
type FilterConfig struct {
	Policy       string  `yaml:"policy"` // and or or
	TailMaxDF    float64 `yaml:"tail_max_df_ratio"`
	TailMaxTerms int     `yaml:"tail_max_terms"`
	NgramN       int     `yaml:"ngram_n"`
}

// RecommendConfig holds request-level settings.
type RecommendConfig struct {
	DefaultK    int           `yaml:"default_k"`
	MaxK        int           `yaml:"max_k"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	WarmWorkers int           `yaml:"warm_workers"`
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel         string `yaml:"log_level"`
	LogFormat        string `yaml:"log_format"`
	ServiceName      string `yaml:"service_name"`
	MetricsNamespace string `yaml:"metrics_namespace"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8086,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   30 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/recommendation-engine.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Vector: VectorConfig{
			Adapter: "memory",
			PGVector: PGVectorConfig{
				Table:    "kok_product_embedding",
				MaxConns: 10,
				MinConns: 2,
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Embedding: EmbeddingConfig{
			BaseURL:         "http://localhost:8001",
			Model:           "paraphrase-multilingual-MiniLM-L12-v2",
			Dimension:       384,
			Timeout:         10 * time.Second,
			MaxRetries:      2,
			RatePerSecond:   50,
			Burst:           10,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Keywords: KeywordsConfig{
			CoreMax:       3,
			TailMax:       2,
			RootsMax:      5,
			NgramMin:      2,
			NgramMax:      4,
			NgramMaxTerms: 32,
			MustMax:       12,
		},
		Gate: GateConfig{
			CompareStore: false,
			CandidateN:   150,
			MinFloor:     30,
		},
		Filter: FilterConfig{
			Policy:       "and",
			TailMaxDF:    0.35,
			TailMaxTerms: 3,
			NgramN:       2,
		},
		Recommend: RecommendConfig{
			DefaultK:    5,
			MaxK:        20,
			CacheTTL:    time.Hour,
			WarmWorkers: 4,
		},
		Observability: ObservabilityConfig{
			LogLevel:         "debug",
			LogFormat:        "json",
			ServiceName:      "recommendation-engine",
			MetricsNamespace: "recommendation",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Vector.Adapter != "memory" && c.Vector.Adapter != "pgvector" {
		return fmt.Errorf("invalid vector adapter: %s", c.Vector.Adapter)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Embedding.Dimension < 1 {
		return fmt.Errorf("invalid embedding dimension: %d", c.Embedding.Dimension)
	}

	if c.Keywords.NgramMin < 1 || c.Keywords.NgramMax < c.Keywords.NgramMin {
		return fmt.Errorf("invalid ngram window: [%d,%d]", c.Keywords.NgramMin, c.Keywords.NgramMax)
	}

	if c.Filter.TailMaxDF <= 0 || c.Filter.TailMaxDF > 1 {
		return fmt.Errorf("tail_max_df_ratio must be in (0,1]: %v", c.Filter.TailMaxDF)
	}

	if c.Filter.Policy != "and" && c.Filter.Policy != "or" {
		return fmt.Errorf("invalid filter policy: %s", c.Filter.Policy)
	}

	if c.Filter.NgramN < 1 {
		return fmt.Errorf("invalid ngram_n: %d", c.Filter.NgramN)
	}

	if c.Gate.CandidateN < 1 || c.Gate.MinFloor < 0 {
		return fmt.Errorf("invalid gate sizing: candidate_n=%d min_floor=%d", c.Gate.CandidateN, c.Gate.MinFloor)
	}

	if c.Recommend.MaxK < 1 || c.Recommend.DefaultK < 1 || c.Recommend.DefaultK > c.Recommend.MaxK {
		return fmt.Errorf("default_k must be between 1 and max_k")
	}

	return nil
}

// IsDevelopment returns true if running against local stores.
func (c *Config) IsDevelopment() bool {
	return c.Database.Driver == "sqlite" && c.Vector.Adapter == "memory"
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	setInt("SERVER_PORT", &cfg.Server.Port)

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("VECTOR_DATABASE_URL"); v != "" {
		cfg.Vector.PGVector.DSN = v
		cfg.Vector.Adapter = "pgvector"
	}

	if v := os.Getenv("VECTOR_ADAPTER"); v != "" {
		cfg.Vector.Adapter = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		// Parse redis://host:port format
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("ML_INFERENCE_URL"); v != "" {
		cfg.Embedding.BaseURL = strings.TrimRight(v, "/")
	}

	if v := os.Getenv("ML_TIMEOUT"); v != "" {
		if d, err := parseSeconds(v); err == nil {
			cfg.Embedding.Timeout = d
		}
	}

	setInt("ML_RETRIES", &cfg.Embedding.MaxRetries)

	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}

	if v := os.Getenv("KEYWORDS_DICT_PATH"); v != "" {
		cfg.Lexicon.KeywordsPath = v
	}

	if v := os.Getenv("CATEGORY_DICT_PATH"); v != "" {
		cfg.Lexicon.CategoryPath = v
	}

	if v := os.Getenv("GATE_COMPARE_STORE"); v != "" {
		cfg.Gate.CompareStore = parseBool(v)
	}

	setInt("DYN_NGRAM_MIN", &cfg.Keywords.NgramMin)
	setInt("DYN_NGRAM_MAX", &cfg.Keywords.NgramMax)
	setInt("DYN_MAX_TERMS", &cfg.Keywords.NgramMaxTerms)

	if v := os.Getenv("TAIL_MAX_DF_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Filter.TailMaxDF = f
		}
	}

	setInt("TAIL_MAX_TERMS", &cfg.Filter.TailMaxTerms)
	setInt("NGRAM_N", &cfg.Filter.NgramN)
	setInt("CANDIDATE_N", &cfg.Gate.CandidateN)
	setInt("CANDIDATE_MIN_FLOOR", &cfg.Gate.MinFloor)

	if v := os.Getenv("FILTER_POLICY"); v != "" {
		cfg.Filter.Policy = strings.ToLower(v)
	}

	if v := os.Getenv("RECOMMEND_CACHE_TTL"); v != "" {
		if d, err := parseSeconds(v); err == nil {
			cfg.Recommend.CacheTTL = d
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

// parseSeconds accepts a Go duration ("1h") or a bare number of seconds ("3600").
func parseSeconds(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(time.Second)), nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if targetPath == "" || filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
