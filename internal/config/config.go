// Package config reads the environment keys the search engine
// recognizes. There is no file-backed user configuration: every knob the
// engine needs is an environment variable read once at process start,
// plus an optional YAML rate-limit policy table.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amanmcp/internal/ratelimit"
)

// DefaultSearchBatchSize is KNOWLEDGE_BASE_SEARCH_BATCH_SIZE's fallback:
// a full, non-UI scan page size.
const DefaultSearchBatchSize = 10000

// Config is the process-wide configuration read from the environment.
type Config struct {
	// EmbeddingDimension is the global embedding dimension every stored
	// and query vector must match.
	EmbeddingDimension int

	// UseHalfVec selects half-precision vector storage.
	UseHalfVec bool

	// SearchBatchSize is KNOWLEDGE_BASE_SEARCH_BATCH_SIZE: the page size
	// used for a full, non-UI scan. Smaller page sizes are passed
	// explicitly by UI callers.
	SearchBatchSize int

	// RateLimits is the per-channel policy table for llm/embedding/
	// reranker/translator.
	RateLimits map[string]ratelimit.Policy

	// Retry is the global retry/backoff configuration: max retries, base
	// delay, exponential factor 2^attempt.
	Retry RetryConfig

	// Endpoints holds the four service channels' addresses, read from
	// environment keys this package does not interpret further.
	Endpoints ChannelEndpoints
}

// RetryConfig is the global retry/backoff policy.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// ChannelEndpoints is the set of service addresses for the four
// external channels the search core calls through. The concrete
// services live elsewhere; only their addresses are configuration.
type ChannelEndpoints struct {
	LLMEndpoint        string
	LLMModel           string
	EmbeddingEndpoint  string
	EmbeddingModel     string
	RerankerEndpoint   string
	RerankerModel      string
	TranslatorEndpoint string
}

// Load reads Config from the process environment, applying defaults for
// any key that is unset or unparsable. If
// RATE_LIMIT_CONFIG names a readable YAML file, its per-channel entries
// override the environment-derived rate limits; a missing or malformed
// file is ignored and the environment values stand.
func Load() Config {
	rateLimits := loadRateLimits()
	if path := envString("RATE_LIMIT_CONFIG", ""); path != "" {
		_ = LoadRateLimitFile(path, rateLimits)
	}
	return Config{
		EmbeddingDimension: envInt("EMBEDDING_DIMENSION", 768),
		UseHalfVec:         envBool("USE_HALF_VEC", true),
		SearchBatchSize:    envInt("KNOWLEDGE_BASE_SEARCH_BATCH_SIZE", DefaultSearchBatchSize),
		RateLimits:         rateLimits,
		Retry: RetryConfig{
			MaxRetries: envInt("SEARCH_MAX_RETRIES", 3),
			BaseDelay:  envDuration("SEARCH_RETRY_DELAY", time.Second),
		},
		Endpoints: ChannelEndpoints{
			LLMEndpoint:        envString("LLM_ENDPOINT", "http://localhost:11434/api/generate"),
			LLMModel:           envString("LLM_MODEL", "llama3.2:1b"),
			EmbeddingEndpoint:  envString("EMBEDDING_ENDPOINT", "http://localhost:11434/api/embed"),
			EmbeddingModel:     envString("EMBEDDING_MODEL", "nomic-embed-text"),
			RerankerEndpoint:   envString("RERANKER_ENDPOINT", ""),
			RerankerModel:      envString("RERANKER_MODEL", ""),
			TranslatorEndpoint: envString("TRANSLATOR_ENDPOINT", ""),
		},
	}
}

// ratePolicyFile is one channel's entry in an optional YAML rate-limit
// policy file (RATE_LIMIT_CONFIG env key).
type ratePolicyFile struct {
	N               int     `yaml:"n"`
	Unit            string  `yaml:"unit"`
	MinIntervalSecs float64 `yaml:"min_interval_seconds"`
}

// LoadRateLimitFile reads a YAML document keyed by channel name
// ("llm", "embedding", "reranker", "translator") into a Policy table,
// overriding Load's environment-derived defaults for any channel present
// in the file. A channel absent from the file is left untouched.
func LoadRateLimitFile(path string, into map[string]ratelimit.Policy) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rate limit config: %w", err)
	}
	var table map[string]ratePolicyFile
	if err := yaml.Unmarshal(data, &table); err != nil {
		return fmt.Errorf("parse rate limit config: %w", err)
	}
	for ch, entry := range table {
		unit := ratelimit.TimeUnit(entry.Unit)
		switch unit {
		case ratelimit.Second, ratelimit.Minute, ratelimit.Hour:
		default:
			unit = ratelimit.Second
		}
		into[ch] = ratelimit.Policy{
			N:           entry.N,
			Unit:        unit,
			MinInterval: time.Duration(entry.MinIntervalSecs * float64(time.Second)),
		}
	}
	return nil
}

// channels is the fixed set of rate-limited external call sites.
var channels = []string{"llm", "embedding", "reranker", "translator"}

// loadRateLimits reads the per-channel rate-limit quadruple
// {_RATE_LIMIT, _RATE_LIMIT_TIME_UNIT, _RATE_LIMIT_MIN_INTERVAL_SECONDS}
// for each of the four channels.
func loadRateLimits() map[string]ratelimit.Policy {
	out := make(map[string]ratelimit.Policy, len(channels))
	for _, ch := range channels {
		prefix := strings.ToUpper(ch)
		n := envInt(prefix+"_RATE_LIMIT", 0)
		unit := ratelimit.TimeUnit(envString(prefix+"_RATE_LIMIT_TIME_UNIT", "second"))
		switch unit {
		case ratelimit.Second, ratelimit.Minute, ratelimit.Hour:
		default:
			unit = ratelimit.Second
		}
		minInterval := envDuration(prefix+"_RATE_LIMIT_MIN_INTERVAL_SECONDS", 0)
		out[ch] = ratelimit.Policy{N: n, Unit: unit, MinInterval: minInterval}
	}
	return out
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// envDuration reads key as a count of seconds (the `_SECONDS`-suffixed
// environment keys) and returns it as a time.Duration.
func envDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return time.Duration(secs * float64(time.Second))
}
