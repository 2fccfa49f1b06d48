// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/pdiddy/retrieval-engine/pkg/types"
)

// eventSubjectPrefix is the NATS subject namespace for progress events.
const eventSubjectPrefix = "retrieval.events."

// EventPublisher mirrors progress events to NATS so out-of-band consumers
// (dashboards, audit tooling) can observe running searches. It implements
// progress.Emitter; publish failures are logged and dropped, never allowed
// to stall the iteration loop.
type EventPublisher struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// NewEventPublisher connects to NATS at url.
func NewEventPublisher(url string, logger *zap.Logger) (*EventPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &EventPublisher{conn: conn, logger: logger}, nil
}

// Emit publishes the event on retrieval.events.<searchID>.
func (p *EventPublisher) Emit(ev types.ProgressEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("marshalling progress event for NATS", zap.Error(err))
		return
	}
	if err := p.conn.Publish(eventSubjectPrefix+ev.SearchID, payload); err != nil {
		p.logger.Warn("publishing progress event to NATS", zap.Error(err))
	}
}

// Close drains the connection.
func (p *EventPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
