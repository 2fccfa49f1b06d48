package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pdiddy/retrieval-engine/internal/field"
	"github.com/pdiddy/retrieval-engine/internal/progress"
	"github.com/pdiddy/retrieval-engine/internal/source"
	"github.com/pdiddy/retrieval-engine/internal/threshold"
	"github.com/pdiddy/retrieval-engine/pkg/types"
)

// --- fakes ---

// fakeConnector serves a fixed page of documents per call; calls past the
// last page return nothing.
type fakeConnector struct {
	name  string
	pages [][]*types.Document
	err   error

	// onCall, when set, runs at the start of the numbered call (1-based).
	onCall func(call int)

	mu    sync.Mutex
	calls int
}

func (f *fakeConnector) Name() string { return f.name }

func (f *fakeConnector) Search(ctx context.Context, _ string, _ int) ([]*types.Document, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.onCall != nil {
		f.onCall(call)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	if call > len(f.pages) {
		return nil, nil
	}
	return f.pages[call-1], nil
}

func connectors(conns ...*fakeConnector) []source.Connector {
	out := make([]source.Connector, len(conns))
	for i, c := range conns {
		out[i] = c
	}
	return out
}

// fakeScorer assigns overall scores by title. A non-nil err is returned
// after scoring, mimicking a pass that salvaged part of the pool.
type fakeScorer struct {
	scores map[string]float64
	err    error

	mu     sync.Mutex
	closed bool
}

func (f *fakeScorer) ScorePool(_ context.Context, _ string, _ []string, pool map[string]*types.Document) error {
	for _, d := range pool {
		d.Overall = f.scores[d.Title]
		d.Scored = true
	}
	return f.err
}

func (f *fakeScorer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func fixedField(f field.Field, conf float64) Classifier {
	return func(string) field.Classification {
		return field.Classification{Field: f, Confidence: conf}
	}
}

// recorder captures and validates every emitted event.
type recorder struct {
	t      *testing.T
	mu     sync.Mutex
	events []types.ProgressEvent
}

func (r *recorder) Emit(ev types.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := progress.Validate(ev); err != nil {
		r.t.Errorf("invalid event emitted: %v (%+v)", err, ev)
	}
	r.events = append(r.events, ev)
}

func (r *recorder) ofKind(kind types.EventKind) []types.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.ProgressEvent
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func testIterCfg() types.IterationConfig {
	return types.IterationConfig{
		MaxIterations:           4,
		InitialFetchLimit:       10,
		FetchGrowthFactor:       2.0,
		MaxFetchLimit:           100,
		SearchBudget:            time.Minute,
		ExhaustionRatio:         0.1,
		DiminishingReturnsRatio: 0.15,
		MaxPoolSize:             100000,
		EvictWatermark:          75000,
	}
}

func buildOrchestrator(t *testing.T, conns []source.Connector, scorer *fakeScorer, classify Classifier, cfg types.IterationConfig) *Orchestrator {
	t.Helper()
	factory := ScorerFactory(func(string) (Scorer, error) { return scorer, nil })
	o, err := New(conns, factory, threshold.NewService(types.ThresholdConfig{}), classify, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func doc(title string) *types.Document {
	return &types.Document{Title: title, Abstract: "abstract for " + title}
}

// --- construction and validation ---

func TestNewRequiresCollaborators(t *testing.T) {
	svc := threshold.NewService(types.ThresholdConfig{})
	factory := ScorerFactory(func(string) (Scorer, error) { return &fakeScorer{}, nil })

	if _, err := New(nil, factory, svc, nil, testIterCfg(), nil); err == nil {
		t.Error("expected error with no connectors")
	}
	if _, err := New(connectors(&fakeConnector{name: "a"}), nil, svc, nil, testIterCfg(), nil); err == nil {
		t.Error("expected error with no scorer factory")
	}
	if _, err := New(connectors(&fakeConnector{name: "a"}), factory, nil, nil, testIterCfg(), nil); err == nil {
		t.Error("expected error with no threshold service")
	}
}

func TestRunValidatesRequest(t *testing.T) {
	o := buildOrchestrator(t, connectors(&fakeConnector{name: "a"}), &fakeScorer{}, nil, testIterCfg())

	if _, err := o.Run(context.Background(), types.SearchRequest{Query: "", TargetCount: 10}, nil); err == nil {
		t.Error("expected error for empty query")
	}
	if _, err := o.Run(context.Background(), types.SearchRequest{Query: "q", TargetCount: 0}, nil); err == nil {
		t.Error("expected error for non-positive target")
	}
}

// --- relax-then-succeed ---

func TestRunRelaxesThresholdAndReachesTarget(t *testing.T) {
	conn := &fakeConnector{
		name: "src",
		pages: [][]*types.Document{
			{doc("A1"), doc("A2"), doc("A3"), doc("A4"), doc("A5")},
			{doc("B1"), doc("B2")},
		},
	}
	scorer := &fakeScorer{scores: map[string]float64{
		"A1": 80, "A2": 70, "A3": 65, "A4": 55, "A5": 52,
		"B1": 58, "B2": 20,
	}}
	rec := &recorder{t: t}
	o := buildOrchestrator(t, connectors(conn), scorer, fixedField(field.Biomedical, 0.8), testIterCfg())

	res, err := o.Run(context.Background(), types.SearchRequest{Query: "cancer immunotherapy", TargetCount: 5}, rec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Decision.Reason != types.StopTargetReached {
		t.Errorf("Reason = %s, want TARGET_REACHED", res.Decision.Reason)
	}
	if res.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", res.Iterations)
	}
	if res.FinalThreshold != 50 {
		t.Errorf("FinalThreshold = %f, want 50 after one relaxation from 60", res.FinalThreshold)
	}
	if res.Field != "biomedical" || res.FieldConfidence != 0.8 {
		t.Errorf("Field = %s/%.2f", res.Field, res.FieldConfidence)
	}
	if len(res.Documents) != 5 {
		t.Fatalf("len(Documents) = %d, want exactly the target", len(res.Documents))
	}
	for i, d := range res.Documents {
		if !d.Scored {
			t.Errorf("Documents[%d] %q is unscored", i, d.Title)
		}
		if d.Overall < res.FinalThreshold {
			t.Errorf("Documents[%d] %q scored %f, below final threshold %f", i, d.Title, d.Overall, res.FinalThreshold)
		}
		if i > 0 && d.Overall > res.Documents[i-1].Overall {
			t.Errorf("Documents not sorted by score: [%d]=%f > [%d]=%f", i, d.Overall, i-1, res.Documents[i-1].Overall)
		}
	}

	// The second iteration's start event reports the carry-over from
	// re-filtering the accumulated pool at the relaxed threshold.
	starts := rec.ofKind(types.EventIterationStart)
	if len(starts) != 2 {
		t.Fatalf("start events = %d, want 2", len(starts))
	}
	if starts[0].Threshold != 60 || starts[1].Threshold != 50 {
		t.Errorf("start thresholds = %f, %f; want 60, 50", starts[0].Threshold, starts[1].Threshold)
	}
	if starts[1].PapersFoundSoFar != 5 {
		t.Errorf("iteration 2 PapersFoundSoFar = %d, want 5 (A4 and A5 re-qualify at 50)", starts[1].PapersFoundSoFar)
	}

	completes := rec.ofKind(types.EventIterationComplete)
	last := completes[len(completes)-1]
	if last.Reason != types.StopTargetReached {
		t.Errorf("final complete event Reason = %s", last.Reason)
	}
	for _, ev := range completes[:len(completes)-1] {
		if ev.Reason != "" {
			t.Errorf("non-terminal complete event carries reason %s", ev.Reason)
		}
	}
}

// --- sources exhausted ---

func TestRunStopsWhenAllSourcesExhausted(t *testing.T) {
	// One connector returns nothing, the other fails outright.
	empty := &fakeConnector{name: "empty"}
	failing := &fakeConnector{name: "failing", err: fmt.Errorf("connection refused")}
	rec := &recorder{t: t}
	o := buildOrchestrator(t, connectors(empty, failing), &fakeScorer{}, nil, testIterCfg())

	res, err := o.Run(context.Background(), types.SearchRequest{Query: "anything", TargetCount: 10}, rec)
	if err != nil {
		t.Fatalf("exhausted sources must not be an error: %v", err)
	}
	if res.Decision.Reason != types.StopSourcesExhausted {
		t.Errorf("Reason = %s, want SOURCES_EXHAUSTED", res.Decision.Reason)
	}
	if len(res.Documents) != 0 {
		t.Errorf("len(Documents) = %d, want 0", len(res.Documents))
	}

	completes := rec.ofKind(types.EventIterationComplete)
	last := completes[len(completes)-1]
	if len(last.SourcesExhausted) != 2 {
		t.Errorf("SourcesExhausted = %v, want both sources", last.SourcesExhausted)
	}
}

// --- threshold floor ---

func TestRunStopsAtMinThreshold(t *testing.T) {
	// Fresh unique low-scoring documents every call keep the source alive
	// while nothing ever qualifies.
	pages := make([][]*types.Document, 12)
	scores := map[string]float64{}
	for i := range pages {
		title := fmt.Sprintf("junk-%d", i)
		pages[i] = []*types.Document{doc(title)}
		scores[title] = 5
	}
	conn := &fakeConnector{name: "src", pages: pages}

	cfg := testIterCfg()
	cfg.MaxIterations = 10
	o := buildOrchestrator(t, connectors(conn), &fakeScorer{scores: scores}, fixedField(field.Biomedical, 0.9), cfg)

	res, err := o.Run(context.Background(), types.SearchRequest{Query: "q", TargetCount: 10}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Decision.Reason != types.StopMinThreshold {
		t.Errorf("Reason = %s, want MIN_THRESHOLD", res.Decision.Reason)
	}
	if res.FinalThreshold != 30 {
		t.Errorf("FinalThreshold = %f, want the floor", res.FinalThreshold)
	}
	// 60 -> 50 -> 40 -> 30, decided at the fourth iteration.
	if res.Iterations != 4 {
		t.Errorf("Iterations = %d, want 4", res.Iterations)
	}
}

// --- max iterations ---

func TestRunStopsAtMaxIterations(t *testing.T) {
	pages := make([][]*types.Document, 8)
	scores := map[string]float64{}
	for i := range pages {
		a, b := fmt.Sprintf("mid-%d-a", i), fmt.Sprintf("mid-%d-b", i)
		pages[i] = []*types.Document{doc(a), doc(b)}
		scores[a], scores[b] = 75, 5
	}
	conn := &fakeConnector{name: "src", pages: pages}

	cfg := testIterCfg()
	cfg.MaxIterations = 3
	o := buildOrchestrator(t, connectors(conn), &fakeScorer{scores: scores}, fixedField(field.Biomedical, 0.9), cfg)

	res, err := o.Run(context.Background(), types.SearchRequest{Query: "q", TargetCount: 50}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Decision.Reason != types.StopMaxIterations {
		t.Errorf("Reason = %s, want MAX_ITERATIONS", res.Decision.Reason)
	}
	if res.Iterations != 3 {
		t.Errorf("Iterations = %d, want 3", res.Iterations)
	}
	// The partial result is still returned.
	if len(res.Documents) != 3 {
		t.Errorf("len(Documents) = %d, want the 3 qualifying docs", len(res.Documents))
	}
}

// --- search budget ---

func TestRunStopsOnTimeout(t *testing.T) {
	// The connector outlives the whole search budget, so the first decide
	// step sees the budget spent. The slow source is also marked exhausted
	// by then; TIMEOUT must outrank SOURCES_EXHAUSTED.
	conn := &fakeConnector{
		name:  "slow",
		pages: [][]*types.Document{{doc("A1")}},
		onCall: func(int) {
			time.Sleep(60 * time.Millisecond)
		},
	}
	rec := &recorder{t: t}
	cfg := testIterCfg()
	cfg.SearchBudget = 30 * time.Millisecond
	o := buildOrchestrator(t, connectors(conn), &fakeScorer{}, fixedField(field.Biomedical, 0.9), cfg)

	res, err := o.Run(context.Background(), types.SearchRequest{Query: "q", TargetCount: 10}, rec)
	if err != nil {
		t.Fatalf("a spent budget must not be an error: %v", err)
	}
	if res.Decision.Reason != types.StopTimeout {
		t.Errorf("Reason = %s, want TIMEOUT", res.Decision.Reason)
	}
	if res.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", res.Iterations)
	}

	completes := rec.ofKind(types.EventIterationComplete)
	if len(completes) == 0 {
		t.Fatal("no terminal event emitted on timeout")
	}
	if last := completes[len(completes)-1]; last.Reason != types.StopTimeout {
		t.Errorf("final event Reason = %s, want TIMEOUT", last.Reason)
	}
}

// --- scoring failure ---

func TestRunContinuesWhenScoringFails(t *testing.T) {
	// The scoring pass errors after salvaging part of the pool; the
	// iteration still completes and the scorable subset is returned.
	conn := &fakeConnector{
		name:  "src",
		pages: [][]*types.Document{{doc("A1"), doc("A2"), doc("A3")}},
	}
	scorer := &fakeScorer{
		scores: map[string]float64{"A1": 90, "A2": 85, "A3": 10},
		err:    fmt.Errorf("embedding backend unavailable"),
	}
	rec := &recorder{t: t}
	o := buildOrchestrator(t, connectors(conn), scorer, fixedField(field.Biomedical, 0.9), testIterCfg())

	res, err := o.Run(context.Background(), types.SearchRequest{Query: "q", TargetCount: 2}, rec)
	if err != nil {
		t.Fatalf("a failed scoring pass must not abort the search: %v", err)
	}
	if res.Decision.Reason != types.StopTargetReached {
		t.Errorf("Reason = %s, want TARGET_REACHED from the scorable subset", res.Decision.Reason)
	}
	if len(res.Documents) != 2 {
		t.Errorf("len(Documents) = %d, want 2", len(res.Documents))
	}

	// The iteration's full event sequence is still emitted.
	for _, kind := range []types.EventKind{
		types.EventIterationStart,
		types.EventIterationProgress,
		types.EventIterationComplete,
	} {
		if len(rec.ofKind(kind)) == 0 {
			t.Errorf("no %s event emitted", kind)
		}
	}
}

// --- stop priority ---

func TestTargetReachedBeatsMaxIterations(t *testing.T) {
	conn := &fakeConnector{
		name:  "src",
		pages: [][]*types.Document{{doc("A1"), doc("A2")}},
	}
	scorer := &fakeScorer{scores: map[string]float64{"A1": 90, "A2": 85}}

	// Both TARGET_REACHED and MAX_ITERATIONS hold after iteration 1; the
	// higher-priority reason must win.
	cfg := testIterCfg()
	cfg.MaxIterations = 1
	o := buildOrchestrator(t, connectors(conn), scorer, fixedField(field.Biomedical, 0.9), cfg)

	res, err := o.Run(context.Background(), types.SearchRequest{Query: "q", TargetCount: 2}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Decision.Reason != types.StopTargetReached {
		t.Errorf("Reason = %s, want TARGET_REACHED to outrank MAX_ITERATIONS", res.Decision.Reason)
	}
}

// --- diminishing returns ---

func TestRunStopsOnDiminishingReturns(t *testing.T) {
	// Iteration 1 qualifies 10 documents, iteration 2 adds new pool entries
	// but only one qualifier: 1 < 0.15 * 10.
	var page1, page2 []*types.Document
	scores := map[string]float64{}
	for i := 0; i < 10; i++ {
		title := fmt.Sprintf("good-%d", i)
		page1 = append(page1, doc(title))
		scores[title] = 80
	}
	for i := 0; i < 9; i++ {
		title := fmt.Sprintf("bad-%d", i)
		page2 = append(page2, doc(title))
		scores[title] = 5
	}
	page2 = append(page2, doc("good-extra"))
	scores["good-extra"] = 80

	conn := &fakeConnector{name: "src", pages: [][]*types.Document{page1, page2}}
	o := buildOrchestrator(t, connectors(conn), &fakeScorer{scores: scores}, fixedField(field.Biomedical, 0.9), testIterCfg())

	res, err := o.Run(context.Background(), types.SearchRequest{Query: "q", TargetCount: 50}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Decision.Reason != types.StopDiminishingReturns {
		t.Errorf("Reason = %s, want DIMINISHING_RETURNS", res.Decision.Reason)
	}
	if res.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", res.Iterations)
	}
}

// --- cancellation ---

func TestRunCancellationReturnsPartialResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	conn := &fakeConnector{
		name: "src",
		pages: [][]*types.Document{
			{doc("A1"), doc("A2"), doc("A3")},
			{doc("B1")},
		},
		onCall: func(call int) {
			if call == 2 {
				cancel()
			}
		},
	}
	scorer := &fakeScorer{scores: map[string]float64{"A1": 90, "A2": 85, "A3": 10, "B1": 95}}
	rec := &recorder{t: t}
	o := buildOrchestrator(t, connectors(conn), scorer, fixedField(field.Biomedical, 0.9), testIterCfg())

	res, err := o.Run(ctx, types.SearchRequest{Query: "q", TargetCount: 10}, rec)
	if err != nil {
		t.Fatalf("cancellation must not be an error: %v", err)
	}
	if res.Decision.Reason != types.StopUserCancelled {
		t.Errorf("Reason = %s, want USER_CANCELLED", res.Decision.Reason)
	}
	// Only iteration 1's scored qualifiers survive; the mid-flight fetch is
	// never scored or counted.
	if len(res.Documents) != 2 {
		t.Errorf("len(Documents) = %d, want the 2 pre-cancellation qualifiers", len(res.Documents))
	}
	for _, d := range res.Documents {
		if d.Title == "B1" {
			t.Error("cancelled iteration's document leaked into the result")
		}
	}

	completes := rec.ofKind(types.EventIterationComplete)
	if len(completes) == 0 {
		t.Fatal("no terminal event emitted on cancellation")
	}
	last := completes[len(completes)-1]
	if last.Reason != types.StopUserCancelled {
		t.Errorf("final event Reason = %s, want USER_CANCELLED", last.Reason)
	}
	if last.PapersFound != 2 {
		t.Errorf("final event PapersFound = %d, want pre-cancellation count 2", last.PapersFound)
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conn := &fakeConnector{name: "src", pages: [][]*types.Document{{doc("A1")}}}
	o := buildOrchestrator(t, connectors(conn), &fakeScorer{}, nil, testIterCfg())

	res, err := o.Run(ctx, types.SearchRequest{Query: "q", TargetCount: 10}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Decision.Reason != types.StopUserCancelled {
		t.Errorf("Reason = %s, want USER_CANCELLED", res.Decision.Reason)
	}
	if len(res.Documents) != 0 {
		t.Errorf("len(Documents) = %d, want 0", len(res.Documents))
	}
}

// --- misc ---

func TestRunHonorsPreassignedSearchID(t *testing.T) {
	conn := &fakeConnector{name: "src", pages: [][]*types.Document{{doc("A1")}}}
	scorer := &fakeScorer{scores: map[string]float64{"A1": 90}}
	rec := &recorder{t: t}
	o := buildOrchestrator(t, connectors(conn), scorer, fixedField(field.Biomedical, 0.9), testIterCfg())

	res, err := o.Run(context.Background(), types.SearchRequest{Query: "q", TargetCount: 1, SearchID: "fixed-id"}, rec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.SearchID != "fixed-id" {
		t.Errorf("SearchID = %q, want the caller's", res.SearchID)
	}
	for _, ev := range rec.events {
		if ev.SearchID != "fixed-id" {
			t.Errorf("event SearchID = %q", ev.SearchID)
		}
	}
}

func TestRunClosesScorer(t *testing.T) {
	conn := &fakeConnector{name: "src"}
	scorer := &fakeScorer{}
	o := buildOrchestrator(t, connectors(conn), scorer, nil, testIterCfg())

	if _, err := o.Run(context.Background(), types.SearchRequest{Query: "q", TargetCount: 1}, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !scorer.closed {
		t.Error("scorer was not closed")
	}
}

func TestFetchLimitGrowsGeometrically(t *testing.T) {
	o := buildOrchestrator(t, connectors(&fakeConnector{name: "a"}), &fakeScorer{}, nil, testIterCfg())
	r := &run{o: o, st: NewState("s", "q", 10)}

	tests := []struct {
		iteration int
		want      int
	}{
		{1, 10},
		{2, 20},
		{3, 40},
		{4, 80},
		{5, 100}, // clamped at MaxFetchLimit
		{9, 100},
	}
	for _, tt := range tests {
		if got := r.fetchLimit(tt.iteration); got != tt.want {
			t.Errorf("fetchLimit(%d) = %d, want %d", tt.iteration, got, tt.want)
		}
	}
}
