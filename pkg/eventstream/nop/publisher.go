// Package nop provides the publisher used when no event stream is
// configured. It drops every event.
package nop

import (
	"context"
	"sync/atomic"

	"github.com/papercomputeco/truthstore/pkg/eventstream"
)

type Publisher struct {
	dropped atomic.Int64
	closed  atomic.Bool
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish drops event.
func (p *Publisher) Publish(_ context.Context, event *eventstream.Event) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	if p.closed.Load() {
		return eventstream.ErrPublisherClosed
	}

	p.dropped.Add(1)
	return nil
}

// Dropped is the number of events accepted so far.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

func (p *Publisher) Close() error {
	p.closed.Store(true)
	return nil
}
