// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/pdiddy/retrieval-engine/pkg/types"
)

// ResilientConnector wraps a Connector with a token-bucket rate limiter and
// a circuit breaker. The limiter keeps the engine inside each API's polite
// request rate across iterations; the breaker turns a flapping source into
// fast failures the orchestrator then treats as exhaustion.
type ResilientConnector struct {
	inner   Connector
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]*types.Document]
}

// NewResilient wraps inner with the resilience layer configured by cfg.
func NewResilient(inner Connector, cfg types.SourceConfig) *ResilientConnector {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	failures := cfg.BreakerFailureThreshold
	if failures == 0 {
		failures = 3
	}

	settings := gobreaker.Settings{
		Name:    inner.Name(),
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
	}

	return &ResilientConnector{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		breaker: gobreaker.NewCircuitBreaker[[]*types.Document](settings),
	}
}

// Name returns the wrapped connector's identifier.
func (r *ResilientConnector) Name() string { return r.inner.Name() }

// Search waits for rate-limit headroom, then runs the wrapped search
// through the breaker. An open breaker returns an error immediately without
// touching the network.
func (r *ResilientConnector) Search(ctx context.Context, query string, limit int) ([]*types.Document, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	docs, err := r.breaker.Execute(func() ([]*types.Document, error) {
		return r.inner.Search(ctx, query, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.inner.Name(), err)
	}
	return docs, nil
}
