// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// StopReason identifies why the iteration loop stopped, or why it continues
// into another iteration (RELAXING_THRESHOLD).
type StopReason string

const (
	StopTargetReached      StopReason = "TARGET_REACHED"
	StopRelaxingThreshold  StopReason = "RELAXING_THRESHOLD"
	StopMaxIterations      StopReason = "MAX_ITERATIONS"
	StopDiminishingReturns StopReason = "DIMINISHING_RETURNS"
	StopSourcesExhausted   StopReason = "SOURCES_EXHAUSTED"
	StopMinThreshold       StopReason = "MIN_THRESHOLD"
	StopUserCancelled      StopReason = "USER_CANCELLED"
	StopTimeout            StopReason = "TIMEOUT"
)

// Terminal reports whether the reason ends a search. RELAXING_THRESHOLD is
// the only non-terminal value; it labels a continue decision between
// iterations.
func (r StopReason) Terminal() bool {
	return r != "" && r != StopRelaxingThreshold
}

// StopDecision records the single cause that ended a search, with the
// iteration and threshold at which it fired. Immutable once produced.
type StopDecision struct {
	Reason    StopReason `json:"reason" yaml:"reason"`
	Iteration int        `json:"iteration" yaml:"iteration"`
	Threshold float64    `json:"threshold" yaml:"threshold"`
}

// EventKind discriminates progress events on the wire.
type EventKind string

const (
	EventIterationStart    EventKind = "iteration_start"
	EventIterationProgress EventKind = "iteration_progress"
	EventIterationComplete EventKind = "iteration_complete"
)

// ProgressEvent is one streamed progress update. A single struct carries all
// three kinds. Counter and rate fields are always serialized, zero or not:
// consumers drop events with missing required fields, and zero is a
// legitimate value for every one of them (an empty terminal iteration
// reports papersFound 0, not an absent key).
type ProgressEvent struct {
	Kind     EventKind `json:"kind"`
	SearchID string    `json:"searchId"`

	// Iteration is 1-based. TotalIterations is the configured maximum.
	Iteration       int `json:"iteration"`
	TotalIterations int `json:"totalIterations"`

	// iteration_start fields. PapersFoundSoFar is the carry-over count from
	// re-filtering the accumulated pool, not the raw pool size.
	FetchLimit       int     `json:"fetchLimit"`
	Threshold        float64 `json:"threshold"`
	Field            string  `json:"field,omitempty"`
	PapersFoundSoFar int     `json:"papersFoundSoFar"`
	TargetPapers     int     `json:"targetPapers"`

	// iteration_progress / iteration_complete fields.
	PapersFound            int      `json:"papersFound"`
	NewPapersThisIteration int      `json:"newPapersThisIteration"`
	YieldRate              float64  `json:"yieldRate"`
	SourcesExhausted       []string `json:"sourcesExhausted,omitempty"`

	// Reason is present only on the terminal iteration_complete event.
	Reason StopReason `json:"reason,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// SearchRequest is the caller-facing request shape. SearchID is optional;
// transports that need the identifier before the first event (for
// cancellation routing) assign it, otherwise the pipeline generates one.
type SearchRequest struct {
	Query       string `json:"query" yaml:"query"`
	TargetCount int    `json:"targetCount" yaml:"target_count"`
	SearchID    string `json:"searchId,omitempty" yaml:"search_id,omitempty"`
}

// SearchResult is what the pipeline hands to the downstream consumer: the
// final deduplicated, scored, filtered documents plus the terminal decision
// metadata for transparency display.
type SearchResult struct {
	SearchID       string       `json:"searchId" yaml:"search_id"`
	Query          string       `json:"query" yaml:"query"`
	Field          string       `json:"field" yaml:"field"`
	FieldConfidence float64     `json:"fieldConfidence" yaml:"field_confidence"`
	FinalThreshold float64      `json:"finalThreshold" yaml:"final_threshold"`
	Iterations     int          `json:"iterations" yaml:"iterations"`
	Decision       StopDecision `json:"decision" yaml:"decision"`
	Documents      []Document   `json:"documents" yaml:"documents"`
}
