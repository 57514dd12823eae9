package domain

import "errors"

// Pipeline error taxonomy. Callers match with errors.Is; producers wrap with %w.
var (
	// ErrSourceUnavailable marks a measurement source that could not be reached.
	// It degrades the snapshot and is never fatal.
	ErrSourceUnavailable = errors.New("measurement source unavailable")

	// ErrInvalidTopology is returned when a link references an unknown node.
	ErrInvalidTopology = errors.New("invalid topology")

	// ErrSubscriberFailure wraps a failing or panicking bus subscriber.
	ErrSubscriberFailure = errors.New("subscriber failure")

	// ErrConfiguration is the only fatal class: invalid rules or settings at startup.
	ErrConfiguration = errors.New("configuration error")

	// ErrCancelled marks work aborted because monitoring was stopped.
	ErrCancelled = errors.New("cancelled")

	// ErrOutOfOrder is returned when a time-series point is older than the newest one held.
	ErrOutOfOrder = errors.New("out of order point")

	// ErrInvalidSample is returned when a metric value is negative, NaN or out of range.
	ErrInvalidSample = errors.New("invalid metric sample")
)
