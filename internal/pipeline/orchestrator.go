// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline drives the adaptive fetch, score, filter, decide loop:
// fan out to the literature sources, merge and score the accumulated pool,
// filter by the current quality threshold, and either stop with a single
// StopDecision or relax the threshold and go again.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/retrieval-engine/internal/dedupe"
	"github.com/pdiddy/retrieval-engine/internal/field"
	"github.com/pdiddy/retrieval-engine/internal/progress"
	"github.com/pdiddy/retrieval-engine/internal/source"
	"github.com/pdiddy/retrieval-engine/internal/threshold"
	"github.com/pdiddy/retrieval-engine/pkg/types"
)

// Scorer scores one search's accumulated pool. The pipeline owns the
// instance lifecycle: one per search, closed when the search ends.
type Scorer interface {
	ScorePool(ctx context.Context, query string, topicTerms []string, pool map[string]*types.Document) error
	Close() error
}

// ScorerFactory builds a per-search Scorer.
type ScorerFactory func(searchID string) (Scorer, error)

// Classifier estimates the academic field of a query.
type Classifier func(query string) field.Classification

// Orchestrator runs searches. It holds only immutable collaborators;
// all per-search mutable state lives in a State value threaded through the
// loop, so one Orchestrator serves concurrent searches without locking.
type Orchestrator struct {
	connectors []source.Connector
	scorers    ScorerFactory
	thresholds *threshold.Service
	classify   Classifier
	cfg        types.IterationConfig
	logger     *zap.Logger
}

// New constructs an Orchestrator with explicit collaborators. classify may
// be nil, in which case the built-in keyword classifier is used.
func New(connectors []source.Connector, scorers ScorerFactory, thresholds *threshold.Service, classify Classifier, cfg types.IterationConfig, logger *zap.Logger) (*Orchestrator, error) {
	if len(connectors) == 0 {
		return nil, fmt.Errorf("no source connectors configured")
	}
	if scorers == nil {
		return nil, fmt.Errorf("scorer factory is required")
	}
	if thresholds == nil {
		return nil, fmt.Errorf("threshold service is required")
	}
	if classify == nil {
		classify = field.Classify
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		connectors: connectors,
		scorers:    scorers,
		thresholds: thresholds,
		classify:   classify,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Run executes one search to completion. The caller cancels ctx to cancel
// the search; cancellation returns whatever has been accumulated so far,
// never an error. Run always produces exactly one StopDecision.
func (o *Orchestrator) Run(ctx context.Context, req types.SearchRequest, emit progress.Emitter) (*types.SearchResult, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("query is empty")
	}
	if req.TargetCount <= 0 {
		return nil, fmt.Errorf("target count must be positive, got %d", req.TargetCount)
	}
	if emit == nil {
		emit = progress.Nop
	}

	searchID := req.SearchID
	if searchID == "" {
		searchID = uuid.NewString()
	}
	st := NewState(searchID, req.Query, req.TargetCount)

	scorer, err := o.scorers(searchID)
	if err != nil {
		return nil, fmt.Errorf("creating scorer: %w", err)
	}
	defer scorer.Close()

	logger := o.logger.With(zap.String("search_id", searchID))

	r := &run{
		o:      o,
		st:     st,
		scorer: scorer,
		emit:   emit,
		logger: logger,
	}

	// Source-connector calls race the remaining search budget; user
	// cancellation is read from the parent ctx so the two are
	// distinguishable in the decision step.
	phase := PhaseInit
	for phase != PhaseDone {
		phase = r.step(ctx, phase)
	}

	logger.Info("search finished",
		zap.String("reason", string(r.decision.Reason)),
		zap.Int("iterations", r.decision.Iteration),
		zap.Float64("threshold", r.decision.Threshold),
		zap.Int("pool_size", len(st.Pool)),
	)

	docs := st.Filtered()
	if len(docs) > st.Target {
		docs = docs[:st.Target]
	}
	out := make([]types.Document, len(docs))
	for i, d := range docs {
		out[i] = *d
	}
	return &types.SearchResult{
		SearchID:        searchID,
		Query:           req.Query,
		Field:           string(st.Field.Field),
		FieldConfidence: st.Field.Confidence,
		FinalThreshold:  st.Threshold,
		Iterations:      st.Iteration,
		Decision:        *r.decision,
		Documents:       out,
	}, nil
}

// run is the in-flight search: the state value plus the per-search
// collaborators the transition function needs.
type run struct {
	o      *Orchestrator
	st     *State
	scorer Scorer
	emit   progress.Emitter
	logger *zap.Logger

	decision *types.StopDecision
}

// step is the transition function. It returns the next phase; PhaseDone is
// reached with exactly one decision attached.
func (r *run) step(ctx context.Context, p Phase) Phase {
	switch p {
	case PhaseInit:
		return r.init()
	case PhaseFetching:
		return r.fetch(ctx)
	case PhaseScoring:
		return r.score(ctx)
	case PhaseFiltering:
		return r.filter()
	case PhaseDeciding:
		return r.decide(ctx)
	case PhaseRelaxing:
		return r.relax()
	default:
		// Unreachable unless a transition is miswired; stop rather than spin.
		r.stop(types.StopMaxIterations)
		return PhaseDone
	}
}

func (r *run) init() Phase {
	st := r.st
	st.Field = r.o.classify(st.Query)
	st.Threshold = r.o.thresholds.Initial(st.Field.Field)
	r.logger.Info("search started",
		zap.String("query", st.Query),
		zap.Int("target", st.Target),
		zap.String("field", string(st.Field.Field)),
		zap.Float64("confidence", st.Field.Confidence),
		zap.Float64("threshold", st.Threshold),
	)
	return PhaseFetching
}

func (r *run) fetch(ctx context.Context) Phase {
	st := r.st

	// Cancellation is checked at the top of every iteration.
	if ctx.Err() != nil {
		return r.cancelled()
	}

	st.Iteration++
	limit := r.fetchLimit(st.Iteration)

	// The start event reports the carry-over from re-filtering the
	// accumulated pool, not the raw size of the accumulation map.
	r.emitEvent(types.ProgressEvent{
		Kind:             types.EventIterationStart,
		FetchLimit:       limit,
		Threshold:        st.Threshold,
		Field:            string(st.Field.Field),
		PapersFoundSoFar: st.FilteredCount(),
		TargetPapers:     st.Target,
	})

	var active []source.Connector
	for _, c := range r.o.connectors {
		if !st.Exhausted[c.Name()] {
			active = append(active, c)
		}
	}

	st.FetchedThisIteration = 0
	st.NewThisIteration = 0

	if len(active) > 0 {
		fetchCtx, cancel := context.WithDeadline(ctx, st.StartedAt.Add(r.o.cfg.SearchBudget))
		results := source.FetchAll(fetchCtx, active, st.Query, limit)
		cancel()

		for _, res := range results {
			if res.Err != nil {
				// One bad source never aborts the iteration; it is out for
				// the remainder of the search.
				r.logger.Warn("source failed, marking exhausted",
					zap.String("source", res.Source), zap.Error(res.Err))
				st.Exhausted[res.Source] = true
				continue
			}
			added, merged := dedupe.Merge(st.Pool, res.Docs)
			st.FetchedThisIteration += len(res.Docs)
			st.NewThisIteration += added
			r.logger.Debug("source fetched",
				zap.String("source", res.Source),
				zap.Int("raw", len(res.Docs)),
				zap.Int("new", added),
				zap.Int("merged", merged),
			)

			// Yield-per-fetch exhaustion: a succeeding source that stopped
			// producing unseen documents is done for this search.
			ratio := 0.0
			if len(res.Docs) > 0 {
				ratio = float64(added) / float64(len(res.Docs))
			}
			if ratio < r.o.cfg.ExhaustionRatio {
				st.Exhausted[res.Source] = true
			}
		}
	}

	// A cancellation that arrived mid-fan-out still short-circuits before
	// scoring; the accumulated pool is preserved.
	if ctx.Err() != nil {
		return r.cancelled()
	}
	return PhaseScoring
}

func (r *run) score(ctx context.Context) Phase {
	st := r.st
	err := r.scorer.ScorePool(ctx, st.Query, st.Field.MatchedKeywords, st.Pool)
	if err != nil {
		// Degrade, don't crash: whatever was scorable stays usable and the
		// iteration still completes.
		r.logger.Error("scoring pass failed, continuing with scorable subset", zap.Error(err))
	}
	return PhaseFiltering
}

func (r *run) filter() Phase {
	st := r.st

	// Filter the entire accumulated pool, not just this iteration's new
	// documents.
	found := st.FilteredCount()
	gain := found - st.PrevQualified

	if evicted := st.Evict(r.o.cfg.MaxPoolSize, r.o.cfg.EvictWatermark); evicted > 0 {
		r.logger.Info("evicted low-scoring documents", zap.Int("count", evicted))
	}

	yieldRate := 0.0
	if st.FetchedThisIteration > 0 {
		yieldRate = float64(st.NewThisIteration) / float64(st.FetchedThisIteration)
	}
	r.emitEvent(types.ProgressEvent{
		Kind:                   types.EventIterationProgress,
		PapersFound:            found,
		NewPapersThisIteration: gain,
		YieldRate:              yieldRate,
	})
	return PhaseDeciding
}

func (r *run) decide(ctx context.Context) Phase {
	st := r.st
	found := st.FilteredCount()
	gain := found - st.PrevQualified

	reason := r.evaluate(ctx, found, gain)

	ev := types.ProgressEvent{
		Kind:             types.EventIterationComplete,
		PapersFound:      found,
		TargetPapers:     st.Target,
		SourcesExhausted: st.ExhaustedList(),
	}
	if reason.Terminal() {
		ev.Reason = reason
	}
	r.emitEvent(ev)

	if reason.Terminal() {
		r.stop(reason)
		return PhaseDone
	}

	st.PrevQualified = found
	st.PrevGain = gain
	return PhaseRelaxing
}

// evaluate applies the stop conditions in fixed priority order and returns
// either a terminal reason or RELAXING_THRESHOLD to continue.
func (r *run) evaluate(ctx context.Context, found, gain int) types.StopReason {
	st := r.st
	cfg := r.o.cfg

	if ctx.Err() != nil {
		return types.StopUserCancelled
	}
	if found >= st.Target {
		return types.StopTargetReached
	}
	if st.Iteration >= cfg.MaxIterations {
		return types.StopMaxIterations
	}
	if st.Elapsed() >= cfg.SearchBudget {
		return types.StopTimeout
	}
	if len(st.Exhausted) >= len(r.o.connectors) {
		return types.StopSourcesExhausted
	}
	// Diminishing returns is skipped on a pure re-filter pass: with no new
	// documents fetched, a small gain says nothing about the sources.
	if st.Iteration > 1 && st.NewThisIteration > 0 &&
		float64(gain) < cfg.DiminishingReturnsRatio*float64(st.PrevGain) {
		return types.StopDiminishingReturns
	}
	if st.Threshold <= r.o.thresholds.Floor() {
		return types.StopMinThreshold
	}
	return types.StopRelaxingThreshold
}

func (r *run) relax() Phase {
	st := r.st
	next, reason := r.o.thresholds.Next(st.Threshold, st.Field.Field, st.Iteration, st.PrevQualified, st.Target)
	if reason == types.StopMinThreshold {
		// The decide step keeps this unreachable, but the policy owner has
		// the last word.
		r.stop(types.StopMinThreshold)
		return PhaseDone
	}
	r.logger.Info("relaxing threshold",
		zap.Float64("from", st.Threshold),
		zap.Float64("to", next),
		zap.Int("iteration", st.Iteration),
	)
	st.Threshold = next
	return PhaseFetching
}

// stop attaches the single StopDecision for this search.
func (r *run) stop(reason types.StopReason) {
	st := r.st
	iter := st.Iteration
	if iter == 0 {
		iter = 1
	}
	r.decision = &types.StopDecision{
		Reason:    reason,
		Iteration: iter,
		Threshold: st.Threshold,
	}
}

// cancelled short-circuits to DONE. A terminal complete event is emitted so
// consumers never hang, and its count reflects only what was accumulated
// and filtered before the cancellation arrived.
func (r *run) cancelled() Phase {
	st := r.st
	r.emitEvent(types.ProgressEvent{
		Kind:             types.EventIterationComplete,
		PapersFound:      st.FilteredCount(),
		TargetPapers:     st.Target,
		SourcesExhausted: st.ExhaustedList(),
		Reason:           types.StopUserCancelled,
	})
	r.stop(types.StopUserCancelled)
	return PhaseDone
}

// fetchLimit grows geometrically with the iteration number and clamps at
// the configured maximum.
func (r *run) fetchLimit(iteration int) int {
	limit := float64(r.o.cfg.InitialFetchLimit) * math.Pow(r.o.cfg.FetchGrowthFactor, float64(iteration-1))
	if ceil := float64(r.o.cfg.MaxFetchLimit); limit > ceil {
		limit = ceil
	}
	if limit < 1 {
		limit = 1
	}
	return int(limit)
}

func (r *run) emitEvent(ev types.ProgressEvent) {
	ev.SearchID = r.st.SearchID
	ev.Iteration = r.st.Iteration
	if ev.Iteration == 0 {
		ev.Iteration = 1
	}
	ev.TotalIterations = r.o.cfg.MaxIterations
	ev.Timestamp = time.Now()
	r.emit.Emit(ev)
}
