package core

import "errors"

var (
	// ErrNotFound is returned when a grant, evaluation, voting result or agent
	// identifier is unknown.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is returned for out of range scores, missing required
	// fields and malformed identifiers.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStatusConflict is returned by a conditional status change when the
	// grant has already moved away from the expected status.
	ErrStatusConflict = errors.New("status conflict")

	// ErrNotConnected is returned by the client helper when an action or view
	// is attempted before a connection has been established.
	ErrNotConnected = errors.New("not connected")

	// ErrTransport wraps opaque lower-layer failures. They are always surfaced
	// to the caller and never retried.
	ErrTransport = errors.New("transport failure")
)
