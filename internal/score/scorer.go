// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package score implements the hybrid scorer: BM25 lexical relevance over an
// in-memory FTS5 index, embedding cosine similarity over a per-search
// chromem collection, and thematic keyword coverage, combined into one
// overall score per document on a 0-100 scale.
package score

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/pdiddy/retrieval-engine/pkg/types"
)

// Scorer scores one search's accumulated pool. It owns the per-search
// lexical and semantic indexes; Close releases them. Scorers are not safe
// for concurrent use — the iteration loop is sequential by design.
type Scorer struct {
	cfg    types.ScoringConfig
	lex    *LexicalIndex
	sem    *SemanticIndex
	logger *zap.Logger

	wLex, wSem, wTop float64
}

// NewScorer builds a per-search scorer. Weights are renormalized to sum to 1.
func NewScorer(searchID string, cfg types.ScoringConfig, embed chromem.EmbeddingFunc, logger *zap.Logger) (*Scorer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	wLex, wSem, wTop := cfg.LexicalWeight, cfg.SemanticWeight, cfg.TopicalWeight
	if sum := wLex + wSem + wTop; sum <= 0 {
		wLex, wSem, wTop = 0.25, 0.50, 0.25
	} else if sum != 1 {
		wLex, wSem, wTop = wLex/sum, wSem/sum, wTop/sum
	}

	lex, err := NewLexicalIndex()
	if err != nil {
		return nil, err
	}
	sem, err := NewSemanticIndex(searchID, embed)
	if err != nil {
		lex.Close()
		return nil, err
	}
	return &Scorer{
		cfg: cfg, lex: lex, sem: sem, logger: logger,
		wLex: wLex, wSem: wSem, wTop: wTop,
	}, nil
}

// Close releases the per-search indexes.
func (s *Scorer) Close() error { return s.lex.Close() }

// ScorePool computes component and overall scores for every document in the
// pool. The whole pool is scored before any threshold filter runs; that
// ordering is the pipeline's central correctness requirement.
//
// A semantic-stage failure degrades to a lexical+topical overall with
// renormalized weights rather than failing the pass; only a lexical-index
// failure (a programming error in practice) is returned to the caller.
func (s *Scorer) ScorePool(ctx context.Context, query string, topicTerms []string, pool map[string]*types.Document) error {
	docs := make([]*types.Document, 0, len(pool))
	for _, d := range pool {
		docs = append(docs, d)
	}

	if err := s.lex.Add(ctx, docs); err != nil {
		return fmt.Errorf("updating lexical index: %w", err)
	}
	lexScores, err := s.lex.Scores(ctx, query)
	if err != nil {
		return fmt.Errorf("lexical scoring: %w", err)
	}

	semScores := map[string]float64{}
	semOK := true
	if err := s.sem.Add(ctx, docs); err != nil {
		semOK = false
		s.logger.Warn("semantic indexing failed, falling back to lexical+topical",
			zap.Error(err))
	} else if semScores, err = s.sem.Scores(ctx, query); err != nil {
		semOK = false
		s.logger.Warn("semantic query failed, falling back to lexical+topical",
			zap.Error(err))
	}

	terms := append(topicTokens(query), topicTerms...)
	for _, d := range docs {
		d.Lexical = lexScores[d.ID]
		d.TopicalFit = topicalFit(terms, d.Title+" "+d.Abstract)
		d.MetadataQuality = metadataQuality(d)

		if semOK {
			d.Semantic = semScores[d.ID]
			d.Overall = 100 * (s.wLex*d.Lexical + s.wSem*d.Semantic + s.wTop*d.TopicalFit)
		} else {
			// Best-effort pass: redistribute the semantic weight.
			wl := s.wLex / (s.wLex + s.wTop)
			d.Overall = 100 * (wl*d.Lexical + (1-wl)*d.TopicalFit)
		}
		d.Scored = true
	}
	return nil
}

// metadataQuality is the fraction of core metadata fields present. It is
// reported for transparency and never feeds the overall score.
func metadataQuality(d *types.Document) float64 {
	present := 0
	if d.DOI != "" {
		present++
	}
	if d.Abstract != "" {
		present++
	}
	if d.Year != 0 {
		present++
	}
	if len(d.Authors) > 0 {
		present++
	}
	return float64(present) / 4
}
