// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package progress carries per-iteration events from the orchestrator to
// whatever transport the caller attached. The emitter is a plain
// message-passing abstraction; transports (SSE, NATS, CLI output) adapt it
// to wire bytes at the boundary only.
package progress

import (
	"fmt"

	"github.com/pdiddy/retrieval-engine/pkg/types"
)

// Emitter receives progress events in strict iteration order. Emit must not
// be called concurrently for the same search; the sequential iteration loop
// guarantees that.
type Emitter interface {
	Emit(ev types.ProgressEvent)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ev types.ProgressEvent)

// Emit calls f.
func (f EmitterFunc) Emit(ev types.ProgressEvent) { f(ev) }

// Nop discards all events.
var Nop Emitter = EmitterFunc(func(types.ProgressEvent) {})

// Multi fans one event out to several emitters in order.
func Multi(emitters ...Emitter) Emitter {
	return EmitterFunc(func(ev types.ProgressEvent) {
		for _, e := range emitters {
			if e != nil {
				e.Emit(ev)
			}
		}
	})
}

// ChannelEmitter bridges events onto a buffered channel. Sends block when
// the buffer is full so ordering is preserved end to end; consumers that
// cannot keep up slow the loop rather than reorder it.
type ChannelEmitter struct {
	ch chan types.ProgressEvent
}

// NewChannelEmitter creates an emitter with the given buffer size.
func NewChannelEmitter(buffer int) *ChannelEmitter {
	if buffer <= 0 {
		buffer = 16
	}
	return &ChannelEmitter{ch: make(chan types.ProgressEvent, buffer)}
}

// Emit sends the event.
func (c *ChannelEmitter) Emit(ev types.ProgressEvent) { c.ch <- ev }

// Events returns the receive side.
func (c *ChannelEmitter) Events() <-chan types.ProgressEvent { return c.ch }

// Close closes the channel. Only the producing side may call it, after the
// terminal event.
func (c *ChannelEmitter) Close() { close(c.ch) }

// Validate checks an event's basic shape on the consuming side. Consumers
// must log and drop invalid events rather than let them corrupt derived
// state.
func Validate(ev types.ProgressEvent) error {
	switch ev.Kind {
	case types.EventIterationStart, types.EventIterationProgress, types.EventIterationComplete:
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	if ev.SearchID == "" {
		return fmt.Errorf("%s event missing searchId", ev.Kind)
	}
	if ev.Iteration < 1 {
		return fmt.Errorf("%s event has out-of-range iteration %d", ev.Kind, ev.Iteration)
	}
	if ev.TotalIterations > 0 && ev.Iteration > ev.TotalIterations {
		return fmt.Errorf("%s event iteration %d exceeds total %d", ev.Kind, ev.Iteration, ev.TotalIterations)
	}
	if ev.Timestamp.IsZero() {
		return fmt.Errorf("%s event missing timestamp", ev.Kind)
	}
	if ev.Kind == types.EventIterationComplete && ev.Reason != "" && !ev.Reason.Terminal() {
		return fmt.Errorf("complete event carries non-terminal reason %q", ev.Reason)
	}
	return nil
}
