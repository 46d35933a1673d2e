package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 150, cfg.Gate.CandidateN)
	assert.Equal(t, 30, cfg.Gate.MinFloor)
	assert.Equal(t, 0.35, cfg.Filter.TailMaxDF)
	assert.Equal(t, time.Hour, cfg.Recommend.CacheTTL)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
gate:
  candidate_n: 80
filter:
  policy: or
recommend:
  cache_ttl: 10m
`), 0o644))

	t.Setenv("CANDIDATE_N", "200")
	t.Setenv("DATABASE_URL", "postgres://user:pw@db:5432/catalog?sslmode=disable")
	t.Setenv("REDIS_URL", "redis://cache:6379")
	t.Setenv("ML_TIMEOUT", "2.5")
	t.Setenv("GATE_COMPARE_STORE", "1")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 200, cfg.Gate.CandidateN, "env wins over file")
	assert.Equal(t, "or", cfg.Filter.Policy)
	assert.Equal(t, 10*time.Minute, cfg.Recommend.CacheTTL)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://user:pw@db:5432/catalog?sslmode=disable", cfg.DatabaseDSN())
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "cache:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, 2500*time.Millisecond, cfg.Embedding.Timeout)
	assert.True(t, cfg.Gate.CompareStore)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("server: [1,2"), 0o644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "parse config file")

	t.Setenv("FILTER_POLICY", "xor")
	_, err = Load("")
	assert.ErrorContains(t, err, "invalid filter policy")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"db driver", func(c *Config) { c.Database.Driver = "mysql" }, "invalid database driver"},
		{"vector adapter", func(c *Config) { c.Vector.Adapter = "faiss" }, "invalid vector adapter"},
		{"cache driver", func(c *Config) { c.Cache.Driver = "disk" }, "invalid cache driver"},
		{"ngram window", func(c *Config) { c.Keywords.NgramMax = 1 }, "invalid ngram window"},
		{"df ratio", func(c *Config) { c.Filter.TailMaxDF = 0 }, "tail_max_df_ratio"},
		{"k bounds", func(c *Config) { c.Recommend.DefaultK = 30 }, "default_k"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}

func TestResolveRelativePath(t *testing.T) {
	assert.Equal(t, "/etc/reco/dict.yaml", ResolveRelativePath("/etc/reco/config.yaml", "dict.yaml"))
	assert.Equal(t, "/abs/dict.yaml", ResolveRelativePath("/etc/reco/config.yaml", "/abs/dict.yaml"))
	assert.Empty(t, ResolveRelativePath("/etc/reco/config.yaml", ""))
}
