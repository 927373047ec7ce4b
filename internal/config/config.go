package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the unisearch server configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Auth      AuthConfig      `yaml:"auth"`
	Search    SearchConfig    `yaml:"search"`
	Index     IndexConfig     `yaml:"index"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the redis connection used for source records, caches and coordination.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds the embedding provider. An empty APIKey disables semantic features.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	Workers    int    `yaml:"workers"`
	CacheTTLH  int    `yaml:"cache_ttl_hours"`
}

// Enabled reports whether an embedding provider is configured.
func (e EmbeddingConfig) Enabled() bool { return e.APIKey != "" }

// SearchConfig tunes the query path.
type SearchConfig struct {
	CacheTTLSec        int     `yaml:"cache_ttl_sec"`
	AdapterTimeoutMs   int     `yaml:"adapter_timeout_ms"`
	DefaultLimit       int     `yaml:"default_limit"`
	SemanticWeight     float64 `yaml:"semantic_weight"`
	SemanticCandidates int     `yaml:"semantic_candidates"`
	SuggestCacheTTLSec int     `yaml:"suggest_cache_ttl_sec"`
}

// IndexConfig tunes the index builder.
type IndexConfig struct {
	DataDir               string `yaml:"data_dir"`
	ManifestPath          string `yaml:"manifest_path"`
	MaxDocsPerModule      int    `yaml:"max_docs_per_module"`
	FullRebuildTimeoutMin int    `yaml:"full_rebuild_timeout_min"`
	LockTTLSec            int    `yaml:"lock_ttl_sec"`
	IdempotencyTTLSec     int    `yaml:"idempotency_ttl_sec"`
	KeepArtifacts         int    `yaml:"keep_artifacts"`
}

// ScheduleConfig drives the in-process index scheduler.
type ScheduleConfig struct {
	Enabled             bool   `yaml:"enabled"`
	FullInterval        string `yaml:"full_interval"`
	IncrementalInterval string `yaml:"incremental_interval"`
}

// FullEvery parses FullInterval. Validate guarantees it parses.
func (s ScheduleConfig) FullEvery() time.Duration {
	d, _ := time.ParseDuration(s.FullInterval)
	return d
}

// IncrementalEvery parses IncrementalInterval. Validate guarantees it parses.
func (s ScheduleConfig) IncrementalEvery() time.Duration {
	d, _ := time.ParseDuration(s.IncrementalInterval)
	return d
}

// AnalyticsConfig sizes the analytics writer.
type AnalyticsConfig struct {
	Workers      int `yaml:"workers"`
	EventTTLDays int `yaml:"event_ttl_days"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	c.applyEmbeddingDefaults()
	c.applySearchDefaults()
	c.applyIndexDefaults()
	if c.Schedule.FullInterval == "" {
		c.Schedule.FullInterval = "168h"
	}
	if c.Schedule.IncrementalInterval == "" {
		c.Schedule.IncrementalInterval = "15m"
	}
	if c.Analytics.Workers <= 0 {
		c.Analytics.Workers = 4
	}
	if c.Analytics.EventTTLDays <= 0 {
		c.Analytics.EventTTLDays = 30
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "unisearch:"
	}
}

func (c *Config) applyEmbeddingDefaults() {
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 64
	}
	if c.Embedding.Workers <= 0 {
		c.Embedding.Workers = 4
	}
	if c.Embedding.CacheTTLH <= 0 {
		c.Embedding.CacheTTLH = 720
	}
}

func (c *Config) applySearchDefaults() {
	if c.Search.CacheTTLSec <= 0 {
		c.Search.CacheTTLSec = 300
	}
	if c.Search.AdapterTimeoutMs <= 0 {
		c.Search.AdapterTimeoutMs = 2500
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 20
	}
	if c.Search.SemanticCandidates <= 0 {
		c.Search.SemanticCandidates = 20
	}
	if c.Search.SuggestCacheTTLSec <= 0 {
		c.Search.SuggestCacheTTLSec = 3600
	}
}

func (c *Config) applyIndexDefaults() {
	if c.Index.DataDir == "" {
		c.Index.DataDir = "data/index"
	}
	if c.Index.ManifestPath == "" {
		c.Index.ManifestPath = filepath.Join(c.Index.DataDir, "manifests.db")
	}
	if c.Index.MaxDocsPerModule <= 0 {
		c.Index.MaxDocsPerModule = 10000
	}
	if c.Index.FullRebuildTimeoutMin <= 0 {
		c.Index.FullRebuildTimeoutMin = 60
	}
	if c.Index.LockTTLSec <= 0 {
		c.Index.LockTTLSec = 3900
	}
	if c.Index.IdempotencyTTLSec <= 0 {
		c.Index.IdempotencyTTLSec = 86400
	}
	if c.Index.KeepArtifacts <= 0 {
		c.Index.KeepArtifacts = 2
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Database.DB < 0 || c.Database.DB > 15 {
		return fmt.Errorf("database.db must be between 0 and 15, got %d", c.Database.DB)
	}
	if c.Search.DefaultLimit > 100 {
		return fmt.Errorf("search.default_limit must be at most 100, got %d", c.Search.DefaultLimit)
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("search.semantic_weight must be between 0 and 1, got %g", c.Search.SemanticWeight)
	}
	if c.Search.SemanticWeight > 0 && !c.Embedding.Enabled() {
		return fmt.Errorf("search.semantic_weight requires embedding.api_key")
	}
	if c.Index.MaxDocsPerModule > 10000 {
		return fmt.Errorf("index.max_docs_per_module must be at most 10000, got %d", c.Index.MaxDocsPerModule)
	}
	if c.Index.LockTTLSec < c.Index.FullRebuildTimeoutMin*60 {
		return fmt.Errorf(
			"index.lock_ttl_sec (%d) must cover index.full_rebuild_timeout_min (%d)",
			c.Index.LockTTLSec, c.Index.FullRebuildTimeoutMin,
		)
	}
	for name, v := range map[string]string{
		"schedule.full_interval":        c.Schedule.FullInterval,
		"schedule.incremental_interval": c.Schedule.IncrementalInterval,
	} {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("%s must be a positive duration, got %q", name, v)
		}
	}
	if c.Schedule.Enabled && !c.Embedding.Enabled() {
		return fmt.Errorf("schedule.enabled requires embedding.api_key")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
