package core_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	brain "github.com/odiumxp/ai-brain/pkg/core"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := brain.DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite", cfg.Store.Provider)
	assert.Equal(t, "none", cfg.LLM.Provider)
	assert.Equal(t, "hash", cfg.Embedder.Provider)
	assert.Equal(t, 64, cfg.Queue.Capacity)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*brain.Config)
		field  string
	}{
		{"unknown store", func(c *brain.Config) { c.Store.Provider = "oracle" }, "Config.Store.Provider"},
		{"node id out of range", func(c *brain.Config) { c.Store.NodeID = 2048 }, "Config.Store.NodeID"},
		{"sqlite without path", func(c *brain.Config) { c.Store.SQLite.Path = "" }, "Config.Store.SQLite.Path"},
		{"postgres without host", func(c *brain.Config) {
			c.Store.Provider = "postgres"
			c.Store.Postgres.Host = ""
		}, "Config.Store.Postgres.Host"},
		{"openai without key", func(c *brain.Config) { c.LLM.Provider = "openai" }, "Config.LLM.APIKey"},
		{"qwen embedder without key", func(c *brain.Config) { c.Embedder.Provider = "qwen" }, "Config.Embedder.APIKey"},
		{"no workers", func(c *brain.Config) { c.Queue.Workers = 0 }, "Config.Queue.Workers"},
		{"negative store timeout", func(c *brain.Config) { c.Store.Timeout = -time.Second }, "Config.Store.Timeout"},
		{"zero oracle timeout", func(c *brain.Config) { c.Oracle.Timeout = 0 }, "Config.Oracle.Timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := brain.DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, brain.ErrInvalidConfig)

			var verrs brain.ValidationErrors
			require.True(t, errors.As(err, &verrs))
			fields := make([]string, 0, len(verrs))
			for _, e := range verrs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestLoadConfig_Layers(t *testing.T) {
	path := writeFile(t, "aibrain.yaml", `
store:
  provider: sqlite
  sqlite:
    path: /var/lib/aibrain/brain.db
queue:
  workers: 4
  task_timeout: 2m
retrieval:
  default_limit: 7
metrics:
  job_duration_buckets: [1, 10]
`)
	t.Setenv("AIBRAIN_QUEUE__WORKERS", "6")
	t.Setenv("AIBRAIN_LOG__LEVEL", "debug")

	cfg, err := brain.LoadConfig(path, map[string]interface{}{
		"queue.capacity": 16,
	})
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/aibrain/brain.db", cfg.Store.SQLite.Path)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, 6, cfg.Queue.Workers)
	assert.Equal(t, 16, cfg.Queue.Capacity)
	assert.Equal(t, 2*time.Minute, cfg.Queue.TaskTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 7, cfg.Retrieval.DefaultLimit)
	assert.Equal(t, []float64{1, 10}, cfg.Metrics.JobDurationBuckets)

	defaults := brain.DefaultConfig()
	assert.Equal(t, defaults.Chains, cfg.Chains)
	assert.Equal(t, defaults.Metrics.OracleDurationBuckets, cfg.Metrics.OracleDurationBuckets)
}

func TestLoadConfig_JSON(t *testing.T) {
	path := writeFile(t, "aibrain.json", `{"store": {"provider": "mysql", "mysql": {"host": "db", "database": "brain"}}}`)

	cfg, err := brain.LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Store.Provider)
	assert.Equal(t, "db", cfg.Store.MySQL.Host)
	assert.Equal(t, 3306, cfg.Store.MySQL.Port)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := brain.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorContains(t, err, "config file not found")

	_, err = brain.LoadConfig(writeFile(t, "aibrain.toml", "x = 1"), nil)
	assert.ErrorContains(t, err, "unsupported config file format")

	_, err = brain.LoadConfig("", map[string]interface{}{"store.provider": "oracle"})
	assert.ErrorIs(t, err, brain.ErrInvalidConfig)
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	path := writeFile(t, ".env", `
DATABASE_PROVIDER=postgres
POSTGRES_HOST=pg.internal
POSTGRES_DATABASE=brain
LLM_API_KEY=sk-test
LLM_PROVIDER=deepseek
EMBEDDING_DIMS=512
SCHEDULER_ENABLED=false
`)
	for _, key := range []string{"DATABASE_PROVIDER", "POSTGRES_HOST", "POSTGRES_DATABASE",
		"LLM_API_KEY", "LLM_PROVIDER", "EMBEDDING_DIMS", "SCHEDULER_ENABLED"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := brain.LoadConfigFromEnvFile(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Provider)
	assert.Equal(t, "pg.internal", cfg.Store.Postgres.Host)
	assert.Equal(t, "deepseek", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "hash", cfg.Embedder.Provider)
	assert.Equal(t, 512, cfg.Embedder.Dimensions)
	assert.False(t, cfg.Scheduler.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFromEnvFile_Missing(t *testing.T) {
	_, err := brain.LoadConfigFromEnvFile(filepath.Join(t.TempDir(), ".env"))
	assert.Error(t, err)
}
