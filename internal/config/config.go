package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the retriever configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Index     IndexConfig     `yaml:"index"`
	Query     QueryConfig     `yaml:"query"`
	Registry  RegistryConfig  `yaml:"registry"`
	Loader    LoaderConfig    `yaml:"loader"`
	Cache     CacheConfig     `yaml:"cache"`
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
	WriteTimeoutSec int `yaml:"write_timeout_sec"` // covers synchronous rebuilds
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// Embedding providers.
const (
	ProviderOpenAI  = "openai"
	ProviderHashing = "hashing"
)

// EmbeddingConfig holds embedding provider and batching settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // openai, hashing (default: openai)
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"` // 0 = model default; hashing width
	TimeoutSec int    `yaml:"timeout_sec"`

	BatchSize         int `yaml:"batch_size"`
	InterBatchDelayMs int `yaml:"inter_batch_delay_ms"` // -1 disables pacing
	MaxRetries        int `yaml:"max_retries"`          // -1 disables retries
	BackoffUnitMs     int `yaml:"backoff_unit_ms"`
	MaxInputChars     int `yaml:"max_input_chars"`
	MaxInputTokens    int `yaml:"max_input_tokens"`
}

// ChunkingConfig holds chunker settings.
type ChunkingConfig struct {
	Encoding      string `yaml:"encoding"` // tiktoken encoding or "words"
	MaxTokens     int    `yaml:"max_tokens"`
	OverlapTokens int    `yaml:"overlap_tokens"`
	MinChars      int    `yaml:"min_chars"`
	MaxUnitChars  int    `yaml:"max_unit_chars"`
}

// IndexConfig holds index storage and build settings.
type IndexConfig struct {
	Dir               string `yaml:"dir"`
	BatchSize         int    `yaml:"batch_size"`
	RebuildTimeoutSec int    `yaml:"rebuild_timeout_sec"` // 0 = no deadline
}

// QueryConfig holds ranking settings.
type QueryConfig struct {
	K             int                 `yaml:"k"`
	Threshold     *float64            `yaml:"threshold"`
	OverFetch     int                 `yaml:"over_fetch"`
	NeighborBoost float64             `yaml:"neighbor_boost"`
	FusionGap     int                 `yaml:"fusion_gap"`
	TimeoutSec    int                 `yaml:"timeout_sec"`
	Synonyms      map[string][]string `yaml:"synonyms"` // nil = built-in facility table
}

const defaultThreshold = 0.35

// MinSimilarity returns the default similarity threshold. An explicit 0 is kept.
func (q QueryConfig) MinSimilarity() float64 {
	if q.Threshold == nil {
		return defaultThreshold
	}
	return *q.Threshold
}

// Registry drivers.
const (
	RegistryFile   = "file"
	RegistrySQLite = "sqlite"
)

// RegistryConfig selects the source registry.
type RegistryConfig struct {
	Driver string `yaml:"driver"` // file, sqlite (default: file)
	Path   string `yaml:"path"`
}

// LoaderConfig holds document fetching settings.
type LoaderConfig struct {
	TimeoutSec int    `yaml:"timeout_sec"`
	MaxBytes   int64  `yaml:"max_bytes"`
	UserAgent  string `yaml:"user_agent"`
}

// CacheConfig holds the optional Redis/Valkey embedding cache settings.
type CacheConfig struct {
	Addrs            []string `yaml:"addrs"` // empty disables the cache
	Password         string   `yaml:"password"`
	TTLSec           int      `yaml:"ttl_sec"` // 0 = no expiry
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Enabled reports whether the embedding cache is configured.
func (c CacheConfig) Enabled() bool { return len(c.Addrs) > 0 }

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit YAML file path.
func LoadFile(configPath string) (Config, error) {
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
		c.HTTP.WriteTimeoutSec = 600
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderOpenAI
	}
	if c.Embedding.Model == "" && c.Embedding.Provider == ProviderOpenAI {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 32
	}
	if c.Embedding.InterBatchDelayMs == 0 {
		c.Embedding.InterBatchDelayMs = 2000
	}
	if c.Embedding.MaxRetries == 0 {
		c.Embedding.MaxRetries = 5
	}
	if c.Embedding.BackoffUnitMs <= 0 {
		c.Embedding.BackoffUnitMs = 1000
	}
	if c.Embedding.MaxInputChars <= 0 {
		c.Embedding.MaxInputChars = 24000
	}
	if c.Embedding.MaxInputTokens <= 0 {
		c.Embedding.MaxInputTokens = 8000
	}

	if c.Chunking.Encoding == "" {
		c.Chunking.Encoding = "cl100k_base"
	}
	if c.Chunking.MaxTokens == 0 {
		c.Chunking.MaxTokens = 500
	}
	if c.Chunking.OverlapTokens == 0 {
		c.Chunking.OverlapTokens = 50
	}
	if c.Chunking.MinChars <= 0 {
		c.Chunking.MinChars = 20
	}
	if c.Chunking.MaxUnitChars <= 0 {
		c.Chunking.MaxUnitChars = 2000
	}

	if c.Index.Dir == "" {
		c.Index.Dir = "data/index"
	}
	if c.Index.BatchSize <= 0 {
		c.Index.BatchSize = 8
	}

	if c.Query.K <= 0 {
		c.Query.K = 3
	}
	if c.Query.Threshold == nil {
		t := defaultThreshold
		c.Query.Threshold = &t
	}
	if c.Query.OverFetch <= 0 {
		c.Query.OverFetch = 3
	}
	if c.Query.NeighborBoost <= 0 {
		c.Query.NeighborBoost = 0.05
	}
	if c.Query.FusionGap <= 0 {
		c.Query.FusionGap = 2
	}
	if c.Query.TimeoutSec <= 0 {
		c.Query.TimeoutSec = 30
	}

	if c.Registry.Driver == "" {
		c.Registry.Driver = RegistryFile
	}
	if c.Registry.Path == "" {
		if c.Registry.Driver == RegistrySQLite {
			c.Registry.Path = "data/sources.db"
		} else {
			c.Registry.Path = "config/sources.yaml"
		}
	}

	if c.Loader.TimeoutSec <= 0 {
		c.Loader.TimeoutSec = 30
	}
	if c.Loader.MaxBytes <= 0 {
		c.Loader.MaxBytes = 50 << 20
	}
	if c.Loader.UserAgent == "" {
		c.Loader.UserAgent = "retriever/1.0"
	}

	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Embedding.Provider {
	case ProviderOpenAI:
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("embedding.api_key is required for provider %q", ProviderOpenAI)
		}
	case ProviderHashing:
	default:
		return fmt.Errorf("embedding.provider must be %q or %q, got %q",
			ProviderOpenAI, ProviderHashing, c.Embedding.Provider)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions)
	}

	if c.Chunking.MaxTokens <= 0 {
		return fmt.Errorf("chunking.max_tokens must be positive, got %d", c.Chunking.MaxTokens)
	}
	if c.Chunking.OverlapTokens < 0 || c.Chunking.OverlapTokens >= c.Chunking.MaxTokens {
		return fmt.Errorf("chunking.overlap_tokens must be in [0, max_tokens), got %d with max_tokens %d",
			c.Chunking.OverlapTokens, c.Chunking.MaxTokens)
	}

	if t := c.Query.MinSimilarity(); t < 0 || t > 1 {
		return fmt.Errorf("query.threshold must be between 0 and 1, got %g", t)
	}

	switch c.Registry.Driver {
	case RegistryFile, RegistrySQLite:
	default:
		return fmt.Errorf("registry.driver must be %q or %q, got %q",
			RegistryFile, RegistrySQLite, c.Registry.Driver)
	}

	if c.Cache.TTLSec < 0 {
		return fmt.Errorf("cache.ttl_sec must not be negative, got %d", c.Cache.TTLSec)
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
