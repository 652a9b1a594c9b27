package eventstream

import "context"

// Publisher delivers snapshot and merge events. The ledger publishes after
// the corresponding write is durable and only logs failures, so a publisher
// never blocks or rolls back a write.
type Publisher interface {
	// Publish sends one event. Events about the same owner scope and key are
	// published in the order they happened.
	Publish(ctx context.Context, event *Event) error

	// Close flushes pending events. Later calls to Publish fail with
	// ErrPublisherClosed.
	Close() error
}
