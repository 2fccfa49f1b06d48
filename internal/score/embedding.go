// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package score

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	chromem "github.com/philippgille/chromem-go"

	"github.com/pdiddy/retrieval-engine/pkg/types"
)

const localEmbeddingDim = 256

// NewEmbeddingFunc selects the embedding backend from config: a remote
// Ollama or OpenAI-compatible endpoint, or the deterministic local hashing
// embedder when no model is reachable.
func NewEmbeddingFunc(cfg types.ScoringConfig) chromem.EmbeddingFunc {
	switch cfg.EmbeddingProvider {
	case "ollama":
		model := cfg.EmbeddingModel
		if model == "" {
			model = "nomic-embed-text"
		}
		return chromem.NewEmbeddingFuncOllama(model, cfg.EmbeddingBaseURL)
	case "openai":
		model := cfg.EmbeddingModel
		if model == "" {
			model = string(chromem.EmbeddingModelOpenAI3Small)
		}
		if cfg.EmbeddingBaseURL != "" {
			normalized := true
			return chromem.NewEmbeddingFuncOpenAICompat(
				cfg.EmbeddingBaseURL, cfg.OpenAIAPIKey, model, &normalized)
		}
		return chromem.NewEmbeddingFuncOpenAI(cfg.OpenAIAPIKey, chromem.EmbeddingModelOpenAI(model))
	default:
		return LocalEmbeddingFunc()
	}
}

// LocalEmbeddingFunc returns a deterministic, dependency-free embedder:
// token-hashed bag-of-words projected into a fixed-dimension unit vector.
// It captures term overlap only, not meaning, and exists so the pipeline
// and its tests run without a model endpoint.
func LocalEmbeddingFunc() chromem.EmbeddingFunc {
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, localEmbeddingDim)
		for _, tok := range embedTokens(text) {
			h := fnv.New32a()
			h.Write([]byte(tok))
			vec[h.Sum32()%localEmbeddingDim]++
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm == 0 {
			vec[0] = 1
			return vec, nil
		}
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
		return vec, nil
	}
}

func embedTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
