package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/retrieval-engine/internal/pipeline"
	"github.com/pdiddy/retrieval-engine/internal/progress"
	"github.com/pdiddy/retrieval-engine/internal/source"
	"github.com/pdiddy/retrieval-engine/internal/threshold"
	"github.com/pdiddy/retrieval-engine/pkg/types"
)

// --- fakes ---

type stubConnector struct {
	docs []*types.Document
}

func (s *stubConnector) Name() string { return "stub" }

func (s *stubConnector) Search(ctx context.Context, _ string, _ int) ([]*types.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.docs, nil
}

type stubScorer struct {
	score float64
}

func (s *stubScorer) ScorePool(_ context.Context, _ string, _ []string, pool map[string]*types.Document) error {
	for _, d := range pool {
		d.Overall = s.score
		d.Scored = true
	}
	return nil
}

func (s *stubScorer) Close() error { return nil }

func newTestServer(t *testing.T, mirror progress.Emitter) *Server {
	t.Helper()
	conns := []source.Connector{&stubConnector{docs: []*types.Document{
		{Title: "Paper A", DOI: "10.1/a"},
		{Title: "Paper B", DOI: "10.1/b"},
	}}}
	factory := pipeline.ScorerFactory(func(string) (pipeline.Scorer, error) {
		return &stubScorer{score: 90}, nil
	})
	orch, err := pipeline.New(conns, factory, threshold.NewService(types.ThresholdConfig{}), nil,
		types.IterationConfig{
			MaxIterations:           4,
			InitialFetchLimit:       10,
			FetchGrowthFactor:       2.0,
			MaxFetchLimit:           100,
			SearchBudget:            time.Minute,
			ExhaustionRatio:         0.1,
			DiminishingReturnsRatio: 0.15,
			MaxPoolSize:             100000,
			EvictWatermark:          75000,
		}, nil)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	srv, err := NewServer(orch, types.ServerConfig{}, mirror, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	name string
	data string
}

func readSSE(t *testing.T, body io.Reader) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if cur.name != "" {
				events = append(events, cur)
				cur = sseEvent{}
			}
		}
	}
	return events
}

// --- search streaming ---

func TestHandleSearchStreamsEventsAndResult(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.echo)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/searches", "application/json",
		strings.NewReader(`{"query":"quantum entanglement","targetCount":2}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}

	events := readSSE(t, resp.Body)
	if len(events) < 3 {
		t.Fatalf("got %d events, want at least start, complete and result", len(events))
	}

	if events[0].name != "iteration_start" {
		t.Errorf("first event = %q, want iteration_start", events[0].name)
	}
	var start types.ProgressEvent
	if err := json.Unmarshal([]byte(events[0].data), &start); err != nil {
		t.Fatalf("parsing start event: %v", err)
	}
	if err := progress.Validate(start); err != nil {
		t.Errorf("start event invalid: %v", err)
	}

	last := events[len(events)-1]
	if last.name != "result" {
		t.Fatalf("last event = %q, want result", last.name)
	}
	var res types.SearchResult
	if err := json.Unmarshal([]byte(last.data), &res); err != nil {
		t.Fatalf("parsing result event: %v", err)
	}
	if res.Decision.Reason != types.StopTargetReached {
		t.Errorf("Reason = %s, want TARGET_REACHED", res.Decision.Reason)
	}
	if len(res.Documents) != 2 {
		t.Errorf("len(Documents) = %d, want 2", len(res.Documents))
	}
	if res.SearchID == "" {
		t.Error("result has no search id")
	}
}

func TestHandleSearchRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.echo)
	defer ts.Close()

	tests := []struct {
		name string
		body string
	}{
		{"missing query", `{"targetCount":5}`},
		{"zero target", `{"query":"q","targetCount":0}`},
		{"malformed json", `{{{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/api/v1/searches", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestHandleSearchMirrorsEvents(t *testing.T) {
	var mirrored []types.ProgressEvent
	mirror := progress.EmitterFunc(func(ev types.ProgressEvent) {
		mirrored = append(mirrored, ev)
	})

	srv := newTestServer(t, mirror)
	ts := httptest.NewServer(srv.echo)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/searches", "application/json",
		strings.NewReader(`{"query":"q","targetCount":2}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if len(mirrored) < 3 {
		t.Errorf("mirror received %d events, want the full stream", len(mirrored))
	}
}

// --- cancellation ---

func TestHandleCancelUnknownSearch(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.echo)
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/searches/nope", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

// --- health and metrics ---

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.echo)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.echo)
	defer ts.Close()

	// Complete a search so the counters have samples.
	resp, err := http.Post(ts.URL+"/api/v1/searches", "application/json",
		strings.NewReader(`{"query":"q","targetCount":1}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	mresp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer mresp.Body.Close()
	body, _ := io.ReadAll(mresp.Body)

	for _, metric := range []string{
		"retrieval_searches_total",
		"retrieval_iterations_total",
		"retrieval_documents_returned",
		"retrieval_search_duration_seconds",
	} {
		if !strings.Contains(string(body), metric) {
			t.Errorf("metrics output missing %s", metric)
		}
	}
	if !strings.Contains(string(body), fmt.Sprintf(`reason="%s"`, types.StopTargetReached)) {
		t.Errorf("searches counter not labelled by stop reason")
	}
}

// --- metrics unit ---

func TestObserveSearch(t *testing.T) {
	m := NewMetrics()
	m.ObserveSearch(&types.SearchResult{
		Iterations: 2,
		Decision:   types.StopDecision{Reason: types.StopTargetReached},
		Documents:  make([]types.Document, 5),
	}, 3*time.Second)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	out := rr.Body.String()
	if !strings.Contains(out, `retrieval_searches_total{reason="TARGET_REACHED"} 1`) {
		t.Errorf("searches counter missing from:\n%s", out)
	}
	if !strings.Contains(out, "retrieval_iterations_total 2") {
		t.Error("iterations counter not incremented")
	}
}
