// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source queries external literature APIs and normalizes their
// responses into the pipeline's candidate-document shape. Each connector
// fails independently; a dead source never takes the iteration down.
package source

import (
	"context"
	"net/http"
	"sync"

	"github.com/pdiddy/retrieval-engine/pkg/types"
)

// Connector searches a single literature source. Implementations must be
// safe for concurrent use and honor ctx cancellation on network calls.
type Connector interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]*types.Document, error)
}

// Result is one connector's outcome from a fan-out fetch.
type Result struct {
	Source string
	Docs   []*types.Document
	Err    error
}

// FetchAll fans the query out to all connectors in parallel and collects
// per-source outcomes. It returns when every connector has answered or the
// context is cancelled; on cancellation the in-flight calls are abandoned
// and whatever already arrived is returned.
func FetchAll(ctx context.Context, conns []Connector, query string, limit int) []Result {
	ch := make(chan Result, len(conns))
	var wg sync.WaitGroup

	for _, c := range conns {
		wg.Add(1)
		go func(c Connector) {
			defer wg.Done()
			docs, err := c.Search(ctx, query, limit)
			ch <- Result{Source: c.Name(), Docs: docs, Err: err}
		}(c)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(ch)
		close(done)
	}()

	var results []Result
	for {
		select {
		case r, ok := <-ch:
			if !ok {
				return results
			}
			results = append(results, r)
		case <-ctx.Done():
			// Drain whatever is already buffered, then give up on the rest.
			for {
				select {
				case r, ok := <-ch:
					if !ok {
						return results
					}
					results = append(results, r)
				default:
					return results
				}
			}
		}
	}
}

// Enabled builds the connector set from config, wrapping each in the
// resilience layer (rate limiter + circuit breaker).
func Enabled(cfg types.SourceConfig, client *http.Client) []Connector {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	var conns []Connector
	if cfg.EnableArxiv {
		conns = append(conns, NewResilient(&ArxivConnector{Client: client, UserAgent: cfg.UserAgent}, cfg))
	}
	if cfg.EnableOpenAlex {
		conns = append(conns, NewResilient(&OpenAlexConnector{Client: client, UserAgent: cfg.UserAgent, Email: cfg.Email}, cfg))
	}
	if cfg.EnableSemanticScholar {
		conns = append(conns, NewResilient(&SemanticScholarConnector{Client: client, UserAgent: cfg.UserAgent, APIKey: cfg.SemanticScholarAPIKey}, cfg))
	}
	if cfg.EnableCrossref {
		conns = append(conns, NewResilient(&CrossrefConnector{Client: client, UserAgent: cfg.UserAgent, Email: cfg.Email}, cfg))
	}
	return conns
}
