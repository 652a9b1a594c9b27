package eventstream

import "errors"

var (
	// ErrNilEvent is returned when Publish is handed a nil event.
	ErrNilEvent = errors.New("nil event")

	// ErrPublisherClosed is returned by Publish after Close.
	ErrPublisherClosed = errors.New("publisher closed")
)
