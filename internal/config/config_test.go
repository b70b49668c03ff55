package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "chromem", cfg.Storage.Engine)
	assert.Equal(t, "./data", cfg.Storage.DataPath)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, 1000, cfg.Embedding.CacheSize)
	assert.False(t, cfg.LLM.Enabled)
	assert.Equal(t, "./data/reflections", cfg.Reflection.Dir)
	assert.Equal(t, 0.85, cfg.Consolidate.SimilarityThreshold)
	assert.Equal(t, 0.92, cfg.Consolidate.MergeThreshold)
	assert.Equal(t, "./backups", cfg.Backup.Dir)
	assert.True(t, cfg.Backup.Compress)
	assert.Equal(t, 30, cfg.Backup.RetentionDays["daily"])
	assert.Equal(t, 90, cfg.Backup.RetentionDays["weekly"])
	assert.Equal(t, 365, cfg.Backup.RetentionDays["monthly"])
	assert.Equal(t, 730, cfg.Backup.RetentionDays["yearly"])
	assert.Equal(t, 0.5, cfg.Retrieval.ImportanceThreshold)
	assert.Equal(t, 10, cfg.Retrieval.MaxResults)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("STRATA_STORAGE_ENGINE", "pgvector")
	t.Setenv("STRATA_POSTGRES_DSN", "postgres://localhost/strata")
	t.Setenv("STRATA_EMBEDDING_DIMENSION", "768")
	t.Setenv("STRATA_LLM_ENABLED", "true")
	t.Setenv("STRATA_LLM_PROVIDER", "openai")
	t.Setenv("STRATA_BACKUP_INTERVAL", "6h")
	t.Setenv("STRATA_RETENTION_DAILY", "7")
	t.Setenv("STRATA_RETRIEVAL_RECENCY_WEIGHT", "0.4")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "pgvector", cfg.Storage.Engine)
	assert.Equal(t, "postgres://localhost/strata", cfg.Storage.PostgresDSN)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.True(t, cfg.LLM.Enabled)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 6*time.Hour, cfg.Backup.IntervalDuration())
	assert.Equal(t, 7, cfg.Backup.RetentionDays["daily"])
	assert.Equal(t, 0.4, cfg.Retrieval.RecencyWeight)
}

func TestLoadConfigInvalidEnvValuesFallBack(t *testing.T) {
	t.Setenv("STRATA_EMBEDDING_DIMENSION", "not-a-number")
	t.Setenv("STRATA_BACKUP_COMPRESS", "maybe")
	t.Setenv("STRATA_SIMILARITY_THRESHOLD", "high")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.True(t, cfg.Backup.Compress)
	assert.Equal(t, 0.85, cfg.Consolidate.SimilarityThreshold)
}

func TestLoadConfigFileOverlaysEnvironment(t *testing.T) {
	t.Setenv("STRATA_DATA_PATH", "/env/data")

	path := filepath.Join(t.TempDir(), "strata.yaml")
	yaml := `
storage:
  data_path: /yaml/data
embedding:
  dimension: 512
backup:
  interval: 12h
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/yaml/data", cfg.Storage.DataPath, "file should win over environment")
	assert.Equal(t, 512, cfg.Embedding.Dimension)
	assert.Equal(t, 12*time.Hour, cfg.Backup.IntervalDuration())
	// Untouched sections keep their env/default values.
	assert.Equal(t, "chromem", cfg.Storage.Engine)
}

func TestLoadConfigViaEnvPointer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strata.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  data_path: /overlay\n"), 0o644))
	t.Setenv("STRATA_CONFIG", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/overlay", cfg.Storage.DataPath)
}

func TestLoadConfigFileMissing(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, buildBaseConfig().Validate())
	})

	t.Run("unknown storage engine", func(t *testing.T) {
		cfg := buildBaseConfig()
		cfg.Storage.Engine = "etcd"
		assert.Error(t, cfg.Validate())
	})

	t.Run("pgvector requires DSN", func(t *testing.T) {
		cfg := buildBaseConfig()
		cfg.Storage.Engine = "pgvector"
		cfg.Storage.PostgresDSN = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown embedding provider", func(t *testing.T) {
		cfg := buildBaseConfig()
		cfg.Embedding.Provider = "huggingface"
		assert.Error(t, cfg.Validate())
	})

	t.Run("non-positive dimension", func(t *testing.T) {
		cfg := buildBaseConfig()
		cfg.Embedding.Dimension = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown LLM provider only matters when enabled", func(t *testing.T) {
		cfg := buildBaseConfig()
		cfg.LLM.Provider = "bedrock"
		assert.NoError(t, cfg.Validate())
		cfg.LLM.Enabled = true
		assert.Error(t, cfg.Validate())
	})

	t.Run("merge threshold below similarity threshold", func(t *testing.T) {
		cfg := buildBaseConfig()
		cfg.Consolidate.MergeThreshold = 0.8
		assert.Error(t, cfg.Validate())
	})

	t.Run("retention under one day", func(t *testing.T) {
		cfg := buildBaseConfig()
		cfg.Backup.RetentionDays["daily"] = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestIntervalDurationFallback(t *testing.T) {
	assert.Equal(t, 24*time.Hour, BackupConfig{Interval: ""}.IntervalDuration())
	assert.Equal(t, 24*time.Hour, BackupConfig{Interval: "soon"}.IntervalDuration())
	assert.Equal(t, 24*time.Hour, BackupConfig{Interval: "-1h"}.IntervalDuration())
	assert.Equal(t, 30*time.Minute, BackupConfig{Interval: "30m"}.IntervalDuration())
}
