package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		HTTP:      HTTPConfig{Port: 8080},
		Embedding: EmbeddingConfig{Provider: ProviderHashing},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_OpenAIRequiresKey(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Provider = ProviderOpenAI

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing api key")
	}
	expected := `embedding.api_key is required for provider "openai"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}

	cfg.Embedding.APIKey = "sk-test"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error with key: %v", err)
	}
}

func TestValidate_UnknownProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Provider = "cohere"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestValidate_Chunking(t *testing.T) {
	tests := []struct {
		name    string
		max     int
		overlap int
	}{
		{"negative max", -1, 0},
		{"overlap equals max", 100, 100},
		{"overlap above max", 100, 150},
		{"negative overlap", 100, -5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Chunking.MaxTokens = tt.max
			cfg.Chunking.OverlapTokens = tt.overlap
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected chunking error")
			}
		})
	}
}

func TestValidate_Threshold(t *testing.T) {
	for _, v := range []float64{-0.1, 1.5} {
		cfg := validConfig()
		cfg.Query.Threshold = &v
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected error for threshold %g", v)
		}
	}
}

func TestValidate_RegistryDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Registry.Driver = "postgres"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown registry driver")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Embedding.Provider != ProviderOpenAI {
		t.Errorf("expected provider openai, got %q", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("expected default model, got %q", cfg.Embedding.Model)
	}
	if cfg.Embedding.BatchSize != 32 || cfg.Embedding.InterBatchDelayMs != 2000 || cfg.Embedding.MaxRetries != 5 {
		t.Errorf("unexpected batching defaults: %+v", cfg.Embedding)
	}
	if cfg.Chunking.MaxTokens != 500 || cfg.Chunking.OverlapTokens != 50 {
		t.Errorf("unexpected chunking defaults: %+v", cfg.Chunking)
	}
	if cfg.Index.Dir != "data/index" || cfg.Index.BatchSize != 8 {
		t.Errorf("unexpected index defaults: %+v", cfg.Index)
	}
	if cfg.Query.K != 3 || cfg.Query.MinSimilarity() != 0.35 || cfg.Query.FusionGap != 2 {
		t.Errorf("unexpected query defaults: k=%d threshold=%g gap=%d",
			cfg.Query.K, cfg.Query.MinSimilarity(), cfg.Query.FusionGap)
	}
	if cfg.Registry.Driver != RegistryFile || cfg.Registry.Path != "config/sources.yaml" {
		t.Errorf("unexpected registry defaults: %+v", cfg.Registry)
	}
	if cfg.Cache.Enabled() {
		t.Error("cache must be disabled without addrs")
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	zero := 0.0
	cfg := Config{
		HTTP:      HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Embedding: EmbeddingConfig{Provider: ProviderHashing, InterBatchDelayMs: -1, MaxRetries: -1},
		Query:     QueryConfig{K: 5, Threshold: &zero},
		Registry:  RegistryConfig{Driver: RegistrySQLite},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Embedding.Model != "" {
		t.Errorf("hashing provider needs no model, got %q", cfg.Embedding.Model)
	}
	if cfg.Embedding.InterBatchDelayMs != -1 || cfg.Embedding.MaxRetries != -1 {
		t.Errorf("explicit disables must be kept: %+v", cfg.Embedding)
	}
	if cfg.Query.K != 5 || cfg.Query.MinSimilarity() != 0 {
		t.Errorf("expected k=5 threshold=0, got k=%d threshold=%g", cfg.Query.K, cfg.Query.MinSimilarity())
	}
	if cfg.Registry.Path != "data/sources.db" {
		t.Errorf("expected sqlite default path, got %q", cfg.Registry.Path)
	}
}

func TestLoadFile_ExpandsEnv(t *testing.T) {
	t.Setenv("RETRIEVER_TEST_PORT", "9090")
	path := filepath.Join(t.TempDir(), "test.yaml")
	body := `
http:
  port: ${RETRIEVER_TEST_PORT}
embedding:
  provider: ${RETRIEVER_TEST_PROVIDER:-hashing}
  dimensions: 128
query:
  threshold: 0.5
  synonyms:
    lobby: [entrance, reception]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Embedding.Provider != ProviderHashing || cfg.Embedding.Dimensions != 128 {
		t.Errorf("unexpected embedding config: %+v", cfg.Embedding)
	}
	if cfg.Query.MinSimilarity() != 0.5 {
		t.Errorf("expected threshold 0.5, got %g", cfg.Query.MinSimilarity())
	}
	if got := cfg.Query.Synonyms["lobby"]; len(got) != 2 || got[0] != "entrance" {
		t.Errorf("unexpected synonyms: %v", cfg.Query.Synonyms)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("RETRIEVER_SET", "value")
	got := string(expandEnvVars([]byte("a=${RETRIEVER_SET} b=${RETRIEVER_UNSET:-fallback} c=${RETRIEVER_UNSET}")))
	if got != "a=value b=fallback c=" {
		t.Errorf("unexpected expansion: %q", got)
	}
}
