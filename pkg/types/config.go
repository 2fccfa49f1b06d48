// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by source connectors.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "retrieval-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// SourceConfig holds settings for the source connectors.
type SourceConfig struct {
	HTTPConfig `yaml:",inline"`

	// EnableArxiv controls whether the arXiv connector is used.
	EnableArxiv bool `json:"enable_arxiv" yaml:"enable_arxiv"`

	// EnableOpenAlex controls whether the OpenAlex connector is used.
	EnableOpenAlex bool `json:"enable_openalex" yaml:"enable_openalex"`

	// EnableSemanticScholar controls whether the Semantic Scholar connector is used.
	EnableSemanticScholar bool `json:"enable_semantic_scholar" yaml:"enable_semantic_scholar"`

	// EnableCrossref controls whether the Crossref connector is used.
	EnableCrossref bool `json:"enable_crossref" yaml:"enable_crossref"`

	// SemanticScholarAPIKey is an optional API key for higher rate limits.
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty"`

	// Email is sent to OpenAlex and Crossref for polite-pool access.
	Email string `json:"email,omitempty" yaml:"email,omitempty"`

	// RequestsPerSecond caps the request rate per source (default 2).
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`

	// BreakerFailureThreshold is the consecutive-failure count that opens a
	// source's circuit breaker (default 3).
	BreakerFailureThreshold uint32 `json:"breaker_failure_threshold" yaml:"breaker_failure_threshold"`
}

// ScoringConfig holds settings for the hybrid scorer.
type ScoringConfig struct {
	// LexicalWeight, SemanticWeight and TopicalWeight combine the component
	// scores into the overall score. They should sum to 1; NewScorer
	// renormalizes when they do not. Semantic carries the majority weight.
	LexicalWeight  float64 `json:"lexical_weight" yaml:"lexical_weight"`
	SemanticWeight float64 `json:"semantic_weight" yaml:"semantic_weight"`
	TopicalWeight  float64 `json:"topical_weight" yaml:"topical_weight"`

	// EmbeddingProvider selects the embedding backend: "local", "ollama",
	// or "openai" (default "local").
	EmbeddingProvider string `json:"embedding_provider" yaml:"embedding_provider"`

	// EmbeddingModel names the model for remote providers
	// (e.g. "nomic-embed-text", "text-embedding-3-small").
	EmbeddingModel string `json:"embedding_model,omitempty" yaml:"embedding_model,omitempty"`

	// EmbeddingBaseURL overrides the provider endpoint (Ollama host or an
	// OpenAI-compatible gateway).
	EmbeddingBaseURL string `json:"embedding_base_url,omitempty" yaml:"embedding_base_url,omitempty"`

	// OpenAIAPIKey authenticates the "openai" provider.
	OpenAIAPIKey string `json:"openai_api_key,omitempty" yaml:"openai_api_key,omitempty"`
}

// IterationConfig holds the orchestrator's budgets and tunables. The growth
// factor and diminishing-returns ratio are calibration knobs, not derived
// invariants.
type IterationConfig struct {
	// MaxIterations caps the relax-and-refetch loop (default 4).
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`

	// InitialFetchLimit is the per-source fetch cap on iteration 1 (default 150).
	InitialFetchLimit int `json:"initial_fetch_limit" yaml:"initial_fetch_limit"`

	// FetchGrowthFactor grows the fetch cap geometrically per iteration
	// (default 2.0). Later iterations need disproportionately more raw
	// volume to yield the same number of passing documents.
	FetchGrowthFactor float64 `json:"fetch_growth_factor" yaml:"fetch_growth_factor"`

	// MaxFetchLimit bounds the per-source cap regardless of growth (default 1000).
	MaxFetchLimit int `json:"max_fetch_limit" yaml:"max_fetch_limit"`

	// SearchBudget is the wall-clock budget for the whole search (default 2m).
	SearchBudget time.Duration `json:"search_budget" yaml:"search_budget"`

	// ExhaustionRatio marks a source exhausted when its new-documents-per-
	// fetched ratio falls below this value (default 0.1).
	ExhaustionRatio float64 `json:"exhaustion_ratio" yaml:"exhaustion_ratio"`

	// DiminishingReturnsRatio stops the loop when this iteration's newly
	// qualifying documents fall below this ratio of the previous iteration's
	// gain (default 0.15).
	DiminishingReturnsRatio float64 `json:"diminishing_returns_ratio" yaml:"diminishing_returns_ratio"`

	// MaxPoolSize is the per-search accumulated-document hard cap (default 8000).
	MaxPoolSize int `json:"max_pool_size" yaml:"max_pool_size"`

	// EvictWatermark is the pool size eviction shrinks to (default 6000).
	EvictWatermark int `json:"evict_watermark" yaml:"evict_watermark"`
}

// ThresholdConfig holds the relaxation policy knobs.
type ThresholdConfig struct {
	// Step is the amount each relaxation lowers the threshold (default 10).
	Step float64 `json:"step" yaml:"step"`

	// Floor is the minimum threshold; relaxation never goes below it (default 30).
	Floor float64 `json:"floor" yaml:"floor"`
}

// ServerConfig holds settings for the streaming HTTP server.
type ServerConfig struct {
	// Host and Port for the HTTP listener.
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`

	// NATSURL, when set, mirrors progress events to NATS subjects
	// retrieval.events.<searchID>.
	NATSURL string `json:"nats_url,omitempty" yaml:"nats_url,omitempty"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Source    SourceConfig    `json:"source" yaml:"source"`
	Scoring   ScoringConfig   `json:"scoring" yaml:"scoring"`
	Iteration IterationConfig `json:"iteration" yaml:"iteration"`
	Threshold ThresholdConfig `json:"threshold" yaml:"threshold"`
	Server    ServerConfig    `json:"server" yaml:"server"`
}

// ApplyDefaults fills unset fields with the documented defaults.
func (c *PipelineConfig) ApplyDefaults() {
	if c.Source.Timeout <= 0 {
		c.Source.Timeout = 15 * time.Second
	}
	if c.Source.UserAgent == "" {
		c.Source.UserAgent = "retrieval-engine/0.1"
	}
	if c.Source.RequestsPerSecond <= 0 {
		c.Source.RequestsPerSecond = 2
	}
	if c.Source.BreakerFailureThreshold == 0 {
		c.Source.BreakerFailureThreshold = 3
	}
	if c.Scoring.LexicalWeight == 0 && c.Scoring.SemanticWeight == 0 && c.Scoring.TopicalWeight == 0 {
		c.Scoring.LexicalWeight = 0.25
		c.Scoring.SemanticWeight = 0.50
		c.Scoring.TopicalWeight = 0.25
	}
	if c.Scoring.EmbeddingProvider == "" {
		c.Scoring.EmbeddingProvider = "local"
	}
	if c.Iteration.MaxIterations <= 0 {
		c.Iteration.MaxIterations = 4
	}
	if c.Iteration.InitialFetchLimit <= 0 {
		c.Iteration.InitialFetchLimit = 150
	}
	if c.Iteration.FetchGrowthFactor <= 1 {
		c.Iteration.FetchGrowthFactor = 2.0
	}
	if c.Iteration.MaxFetchLimit <= 0 {
		c.Iteration.MaxFetchLimit = 1000
	}
	if c.Iteration.SearchBudget <= 0 {
		c.Iteration.SearchBudget = 2 * time.Minute
	}
	if c.Iteration.ExhaustionRatio <= 0 {
		c.Iteration.ExhaustionRatio = 0.1
	}
	if c.Iteration.DiminishingReturnsRatio <= 0 {
		c.Iteration.DiminishingReturnsRatio = 0.15
	}
	if c.Iteration.MaxPoolSize <= 0 {
		c.Iteration.MaxPoolSize = 8000
	}
	if c.Iteration.EvictWatermark <= 0 || c.Iteration.EvictWatermark >= c.Iteration.MaxPoolSize {
		c.Iteration.EvictWatermark = c.Iteration.MaxPoolSize * 3 / 4
	}
	if c.Threshold.Step <= 0 {
		c.Threshold.Step = 10
	}
	if c.Threshold.Floor <= 0 {
		c.Threshold.Floor = 30
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
}
