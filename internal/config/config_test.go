package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/ratelimit"
)

func TestLoadAppliesDefaults(t *testing.T) {
	for _, k := range []string{
		"EMBEDDING_DIMENSION", "USE_HALF_VEC", "KNOWLEDGE_BASE_SEARCH_BATCH_SIZE",
		"SEARCH_MAX_RETRIES", "SEARCH_RETRY_DELAY", "RATE_LIMIT_CONFIG",
		"LLM_ENDPOINT", "LLM_MODEL",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg := Load()

	if cfg.EmbeddingDimension != 768 {
		t.Errorf("EmbeddingDimension = %d, want 768", cfg.EmbeddingDimension)
	}
	if !cfg.UseHalfVec {
		t.Errorf("UseHalfVec = false, want true")
	}
	if cfg.SearchBatchSize != DefaultSearchBatchSize {
		t.Errorf("SearchBatchSize = %d, want %d", cfg.SearchBatchSize, DefaultSearchBatchSize)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("Retry.MaxRetries = %d, want 3", cfg.Retry.MaxRetries)
	}
	if cfg.Endpoints.LLMModel != "llama3.2:1b" {
		t.Errorf("Endpoints.LLMModel = %q, want llama3.2:1b", cfg.Endpoints.LLMModel)
	}
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("EMBEDDING_DIMENSION", "1536")
	t.Setenv("USE_HALF_VEC", "false")
	t.Setenv("LLM_ENDPOINT", "http://example.com/generate")
	t.Setenv("LLM_RATE_LIMIT", "10")
	t.Setenv("LLM_RATE_LIMIT_TIME_UNIT", "minute")
	t.Setenv("LLM_RATE_LIMIT_MIN_INTERVAL_SECONDS", "0.5")

	cfg := Load()

	if cfg.EmbeddingDimension != 1536 {
		t.Errorf("EmbeddingDimension = %d, want 1536", cfg.EmbeddingDimension)
	}
	if cfg.UseHalfVec {
		t.Errorf("UseHalfVec = true, want false")
	}
	if cfg.Endpoints.LLMEndpoint != "http://example.com/generate" {
		t.Errorf("LLMEndpoint = %q", cfg.Endpoints.LLMEndpoint)
	}
	policy := cfg.RateLimits["llm"]
	if policy.N != 10 || policy.Unit != ratelimit.Minute {
		t.Errorf("llm policy = %+v, want N=10 Unit=minute", policy)
	}
	if policy.MinInterval != 500*time.Millisecond {
		t.Errorf("llm MinInterval = %v, want 500ms", policy.MinInterval)
	}
}

func TestLoadInvalidEnvValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("EMBEDDING_DIMENSION", "not-a-number")
	t.Setenv("USE_HALF_VEC", "not-a-bool")

	cfg := Load()

	if cfg.EmbeddingDimension != 768 {
		t.Errorf("EmbeddingDimension = %d, want fallback 768", cfg.EmbeddingDimension)
	}
	if !cfg.UseHalfVec {
		t.Errorf("UseHalfVec = false, want fallback true")
	}
}

func TestLoadRateLimitFileOverridesNamedChannels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rate_limits.yaml")
	contents := `
llm:
  n: 20
  unit: hour
  min_interval_seconds: 2
embedding:
  n: 5
  unit: second
  min_interval_seconds: 0.1
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	into := map[string]ratelimit.Policy{
		"llm":      {N: 1, Unit: ratelimit.Second},
		"reranker": {N: 2, Unit: ratelimit.Second},
	}
	if err := LoadRateLimitFile(path, into); err != nil {
		t.Fatalf("LoadRateLimitFile: %v", err)
	}

	if into["llm"].N != 20 || into["llm"].Unit != ratelimit.Hour {
		t.Errorf("llm = %+v, want N=20 Unit=hour", into["llm"])
	}
	if into["embedding"].N != 5 {
		t.Errorf("embedding = %+v, want N=5", into["embedding"])
	}
	if into["reranker"].N != 2 {
		t.Errorf("reranker entry absent from the file must be left untouched, got %+v", into["reranker"])
	}
}

func TestLoadRateLimitFileInvalidUnitFallsBackToSecond(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rate_limits.yaml")
	contents := "llm:\n  n: 3\n  unit: fortnight\n  min_interval_seconds: 0\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	into := map[string]ratelimit.Policy{}
	if err := LoadRateLimitFile(path, into); err != nil {
		t.Fatalf("LoadRateLimitFile: %v", err)
	}
	if into["llm"].Unit != ratelimit.Second {
		t.Errorf("Unit = %v, want the second fallback for an unrecognized unit", into["llm"].Unit)
	}
}

func TestLoadRateLimitFileMissingFileErrors(t *testing.T) {
	if err := LoadRateLimitFile("/nonexistent/rate_limits.yaml", map[string]ratelimit.Policy{}); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}

func TestLoadRateLimitFileMalformedYAMLErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rate_limits.yaml")
	if err := os.WriteFile(path, []byte("not: [valid: yaml"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := LoadRateLimitFile(path, map[string]ratelimit.Policy{}); err == nil {
		t.Fatalf("expected a parse error for malformed YAML")
	}
}
