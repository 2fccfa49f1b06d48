// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"go.uber.org/zap"

	"github.com/pdiddy/retrieval-engine/internal/pipeline"
	"github.com/pdiddy/retrieval-engine/internal/score"
	"github.com/pdiddy/retrieval-engine/internal/source"
	"github.com/pdiddy/retrieval-engine/internal/threshold"
	"github.com/pdiddy/retrieval-engine/pkg/types"
)

// buildOrchestrator assembles the pipeline from configuration: resilient
// source connectors, a per-search scorer factory, and the threshold policy,
// all injected through the orchestrator's constructor.
func buildOrchestrator(cfg types.PipelineConfig, logger *zap.Logger) (*pipeline.Orchestrator, error) {
	conns := source.Enabled(cfg.Source, nil)
	embed := score.NewEmbeddingFunc(cfg.Scoring)

	factory := pipeline.ScorerFactory(func(searchID string) (pipeline.Scorer, error) {
		return score.NewScorer(searchID, cfg.Scoring, embed, logger)
	})

	return pipeline.New(conns, factory, threshold.NewService(cfg.Threshold), nil, cfg.Iteration, logger)
}
