// Package config provides configuration management for the strata memory
// subsystem. Settings load from environment variables with the STRATA_
// prefix, with sensible defaults for every option; an optional YAML file
// overlays the environment when supplied.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the memory subsystem.
type Config struct {
	Storage     StorageConfig     `yaml:"storage"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	Reflection  ReflectionConfig  `yaml:"reflection"`
	Consolidate ConsolidateConfig `yaml:"consolidate"`
	Backup      BackupConfig      `yaml:"backup"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
}

// StorageConfig selects and configures the vector store backend.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // Storage engine: chromem or pgvector (default: chromem)
	DataPath    string `yaml:"data_path"`    // Data directory for the embedded backend (default: ./data)
	PostgresDSN string `yaml:"postgres_dsn"` // Connection string for the pgvector backend
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`     // Embedding provider: local or ollama (default: local)
	Dimension int    `yaml:"dimension"`    // Vector dimension (default: 384)
	OllamaURL string `yaml:"ollama_url"`   // Ollama API URL (default: http://localhost:11434)
	Model     string `yaml:"ollama_model"` // Ollama embedding model (default: nomic-embed-text)
	CacheSize int    `yaml:"cache_size"`   // LRU cache capacity, 0 disables caching (default: 1000)
}

// LLMConfig configures the optional reflection summarizer.
type LLMConfig struct {
	Enabled           bool    `yaml:"enabled"`             // Enable LLM summarization (default: false)
	Provider          string  `yaml:"provider"`            // LLM provider: ollama or openai (default: ollama)
	BaseURL           string  `yaml:"base_url"`            // Provider API URL (provider default when empty)
	Model             string  `yaml:"model"`               // Model name (provider default when empty)
	APIKey            string  `yaml:"api_key"`             // API key for hosted providers
	TimeoutSeconds    int     `yaml:"timeout_seconds"`     // Request timeout (default: 60)
	RequestsPerMinute float64 `yaml:"requests_per_minute"` // Client-side rate limit, 0 disables (default: 30)
	Burst             int     `yaml:"burst"`               // Rate limit burst (default: 5)
}

// ReflectionConfig configures the reflection document store.
type ReflectionConfig struct {
	Dir string `yaml:"dir"` // Reflection document directory (default: ./data/reflections)
}

// ConsolidateConfig holds the consolidation thresholds. These are tunable
// policy; the defaults reproduce the standard merge/archive behavior.
type ConsolidateConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"` // Clustering bound (default: 0.85)
	MergeThreshold      float64 `yaml:"merge_threshold"`      // Merge bound (default: 0.92)
	MergeBoostStep      float64 `yaml:"merge_boost_step"`     // Importance boost per merge (default: 0.05)
	MergeBoostCap       float64 `yaml:"merge_boost_cap"`      // Maximum boost per run (default: 0.2)
	ArchiveMinMerges    int     `yaml:"archive_min_merges"`   // Merges required before archiving (default: 2)
	ArchiveFactor       float64 `yaml:"archive_factor"`       // Importance multiplier on archive (default: 0.7)
	ArchiveFloor        float64 `yaml:"archive_floor"`        // Minimum archived importance (default: 0.1)
	ConceptThreshold    float64 `yaml:"concept_threshold"`    // Concept clustering bound (default: 0.75)
	MaxCandidates       int     `yaml:"max_candidates"`       // Records examined per collection (default: 300)
}

// BackupConfig configures the backup manager.
type BackupConfig struct {
	Enabled       bool           `yaml:"enabled"`        // Enable the scheduled loop (default: false)
	Dir           string         `yaml:"dir"`            // Backup directory (default: ./backups)
	Interval      string         `yaml:"interval"`       // Scheduled cycle length (default: 24h)
	Compress      bool           `yaml:"compress"`       // Zip snapshots (default: true)
	RetentionDays map[string]int `yaml:"retention_days"` // Per-backup-type retention (default: 30 each)
}

// IntervalDuration parses the configured interval, falling back to 24h.
func (b BackupConfig) IntervalDuration() time.Duration {
	if d, err := time.ParseDuration(b.Interval); err == nil && d > 0 {
		return d
	}
	return 24 * time.Hour
}

// RetrievalConfig tunes weighted context retrieval.
type RetrievalConfig struct {
	ImportanceThreshold float64 `yaml:"importance_threshold"` // Candidate pool cut (default: 0.5)
	RelevanceWeight     float64 `yaml:"relevance_weight"`     // Similarity weight (default: 0.5)
	RecencyWeight       float64 `yaml:"recency_weight"`       // Recency weight (default: 0.3)
	ImportanceWeight    float64 `yaml:"importance_weight"`    // Importance weight (default: 0.2)
	MaxResults          int     `yaml:"max_results"`          // Default result cap (default: 10)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. When STRATA_CONFIG names a YAML file, its values overlay the
// environment-derived configuration.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()
	if path := os.Getenv("STRATA_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile loads configuration from environment variables, then
// overlays the YAML file at path.
func LoadConfigFile(path string) (*Config, error) {
	cfg := buildBaseConfig()
	if err := cfg.overlayFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.Storage.Engine {
	case "chromem":
	case "pgvector":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: pgvector engine requires a postgres DSN")
		}
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}

	switch c.Embedding.Provider {
	case "local", "ollama":
	default:
		return fmt.Errorf("config: unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 1 {
		return fmt.Errorf("config: embedding dimension must be positive")
	}

	if c.LLM.Enabled {
		switch c.LLM.Provider {
		case "ollama", "openai":
		default:
			return fmt.Errorf("config: unknown LLM provider %q", c.LLM.Provider)
		}
	}

	if c.Consolidate.MergeThreshold < c.Consolidate.SimilarityThreshold {
		return fmt.Errorf("config: merge threshold must not be below the similarity threshold")
	}

	for backupType, days := range c.Backup.RetentionDays {
		if days < 1 {
			return fmt.Errorf("config: retention for %s backups must be at least 1 day", backupType)
		}
	}
	return nil
}

// buildBaseConfig constructs a Config from environment variables and
// defaults.
func buildBaseConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:      getEnv("STRATA_STORAGE_ENGINE", "chromem"),
			DataPath:    getEnv("STRATA_DATA_PATH", "./data"),
			PostgresDSN: getEnv("STRATA_POSTGRES_DSN", ""),
		},
		Embedding: EmbeddingConfig{
			Provider:  getEnv("STRATA_EMBEDDING_PROVIDER", "local"),
			Dimension: getEnvInt("STRATA_EMBEDDING_DIMENSION", 384),
			OllamaURL: getEnv("STRATA_OLLAMA_URL", "http://localhost:11434"),
			Model:     getEnv("STRATA_EMBEDDING_MODEL", "nomic-embed-text"),
			CacheSize: getEnvInt("STRATA_EMBEDDING_CACHE_SIZE", 1000),
		},
		LLM: LLMConfig{
			Enabled:           getEnvBool("STRATA_LLM_ENABLED", false),
			Provider:          getEnv("STRATA_LLM_PROVIDER", "ollama"),
			BaseURL:           getEnv("STRATA_LLM_BASE_URL", ""),
			Model:             getEnv("STRATA_LLM_MODEL", ""),
			APIKey:            getEnv("STRATA_LLM_API_KEY", ""),
			TimeoutSeconds:    getEnvInt("STRATA_LLM_TIMEOUT_SECONDS", 60),
			RequestsPerMinute: getEnvFloat("STRATA_LLM_REQUESTS_PER_MINUTE", 30),
			Burst:             getEnvInt("STRATA_LLM_BURST", 5),
		},
		Reflection: ReflectionConfig{
			Dir: getEnv("STRATA_REFLECTION_DIR", "./data/reflections"),
		},
		Consolidate: ConsolidateConfig{
			SimilarityThreshold: getEnvFloat("STRATA_SIMILARITY_THRESHOLD", 0.85),
			MergeThreshold:      getEnvFloat("STRATA_MERGE_THRESHOLD", 0.92),
			MergeBoostStep:      getEnvFloat("STRATA_MERGE_BOOST_STEP", 0.05),
			MergeBoostCap:       getEnvFloat("STRATA_MERGE_BOOST_CAP", 0.2),
			ArchiveMinMerges:    getEnvInt("STRATA_ARCHIVE_MIN_MERGES", 2),
			ArchiveFactor:       getEnvFloat("STRATA_ARCHIVE_FACTOR", 0.7),
			ArchiveFloor:        getEnvFloat("STRATA_ARCHIVE_FLOOR", 0.1),
			ConceptThreshold:    getEnvFloat("STRATA_CONCEPT_THRESHOLD", 0.75),
			MaxCandidates:       getEnvInt("STRATA_MAX_CANDIDATES", 300),
		},
		Backup: BackupConfig{
			Enabled:  getEnvBool("STRATA_BACKUP_ENABLED", false),
			Dir:      getEnv("STRATA_BACKUP_DIR", "./backups"),
			Interval: getEnv("STRATA_BACKUP_INTERVAL", "24h"),
			Compress: getEnvBool("STRATA_BACKUP_COMPRESS", true),
			RetentionDays: map[string]int{
				"daily":     getEnvInt("STRATA_RETENTION_DAILY", 30),
				"weekly":    getEnvInt("STRATA_RETENTION_WEEKLY", 90),
				"monthly":   getEnvInt("STRATA_RETENTION_MONTHLY", 365),
				"yearly":    getEnvInt("STRATA_RETENTION_YEARLY", 730),
				"manual":    getEnvInt("STRATA_RETENTION_MANUAL", 30),
				"scheduled": getEnvInt("STRATA_RETENTION_SCHEDULED", 30),
			},
		},
		Retrieval: RetrievalConfig{
			ImportanceThreshold: getEnvFloat("STRATA_RETRIEVAL_IMPORTANCE_THRESHOLD", 0.5),
			RelevanceWeight:     getEnvFloat("STRATA_RETRIEVAL_RELEVANCE_WEIGHT", 0.5),
			RecencyWeight:       getEnvFloat("STRATA_RETRIEVAL_RECENCY_WEIGHT", 0.3),
			ImportanceWeight:    getEnvFloat("STRATA_RETRIEVAL_IMPORTANCE_WEIGHT", 0.2),
			MaxResults:          getEnvInt("STRATA_RETRIEVAL_MAX_RESULTS", 10),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. It recognizes "true", "1", "yes" as true and "false", "0", "no" as
// false (case-insensitive). Unparseable values fall back to the default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
