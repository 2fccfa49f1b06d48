// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"sort"
	"time"

	"github.com/pdiddy/retrieval-engine/internal/field"
	"github.com/pdiddy/retrieval-engine/pkg/types"
)

// State is the per-search iteration state. One value is created at search
// start, threaded through each iteration, and dropped when the search ends;
// it is never stored on the orchestrator, so nothing can leak across
// requests.
type State struct {
	SearchID string
	Query    string
	Target   int

	Field     field.Classification
	Threshold float64
	Iteration int

	// Pool accumulates deduplicated documents keyed by dedup key, so a
	// re-fetched duplicate merges instead of double-counting.
	Pool map[string]*types.Document

	// Exhausted lists sources that failed or whose yield ratio collapsed;
	// they are skipped for the remainder of the search.
	Exhausted map[string]bool

	StartedAt time.Time

	// Per-iteration bookkeeping for the stop-condition evaluation.
	FetchedThisIteration int // raw documents returned by sources
	NewThisIteration     int // documents that were new to the pool
	PrevQualified        int // qualifying count at the end of the previous iteration
	PrevGain             int // newly qualifying documents in the previous iteration
}

// NewState initializes iteration state for one search.
func NewState(searchID, query string, target int) *State {
	return &State{
		SearchID:  searchID,
		Query:     query,
		Target:    target,
		Pool:      make(map[string]*types.Document),
		Exhausted: make(map[string]bool),
		StartedAt: time.Now(),
	}
}

// Elapsed returns the wall-clock time since the search started.
func (s *State) Elapsed() time.Duration { return time.Since(s.StartedAt) }

// Filtered returns the scored documents at or above the current threshold,
// highest overall score first. Unscored documents never pass: the overall
// score is undefined until semantic scoring has run.
func (s *State) Filtered() []*types.Document {
	var out []*types.Document
	for _, d := range s.Pool {
		if d.Scored && d.Overall >= s.Threshold {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Overall != out[j].Overall {
			return out[i].Overall > out[j].Overall
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FilteredCount returns the number of qualifying documents without sorting.
func (s *State) FilteredCount() int {
	n := 0
	for _, d := range s.Pool {
		if d.Scored && d.Overall >= s.Threshold {
			n++
		}
	}
	return n
}

// ExhaustedList returns the exhausted source names, sorted for stable event
// payloads.
func (s *State) ExhaustedList() []string {
	out := make([]string, 0, len(s.Exhausted))
	for name := range s.Exhausted {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Evict shrinks the pool to watermark when it exceeds maxPool, dropping the
// lowest-scoring documents first. Documents at or above the active
// threshold are never evicted, nor are documents awaiting their first
// scoring pass.
func (s *State) Evict(maxPool, watermark int) int {
	if maxPool <= 0 || len(s.Pool) <= maxPool || watermark >= len(s.Pool) {
		return 0
	}

	var victims []*types.Document
	for _, d := range s.Pool {
		if d.Scored && d.Overall < s.Threshold {
			victims = append(victims, d)
		}
	}
	sort.Slice(victims, func(i, j int) bool { return victims[i].Overall < victims[j].Overall })

	toDrop := len(s.Pool) - watermark
	if toDrop > len(victims) {
		toDrop = len(victims)
	}
	for _, d := range victims[:toDrop] {
		delete(s.Pool, d.ID)
	}
	return toDrop
}
