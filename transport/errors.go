package transport

import "errors"

var (
	// ErrInvalidLocation rejects a URL whose scheme, addressing or target
	// path cannot be served by any (or the selected) backend.
	ErrInvalidLocation = errors.New("transport: invalid location")

	ErrUnknownParameter      = errors.New("transport: unknown parameter")
	ErrInvalidParameterValue = errors.New("transport: invalid parameter value")

	// Lifecycle misuse.
	ErrNotStarted     = errors.New("transport: not started")
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrStartFailure covers resources that could not be established during
	// Start (bind failure, broker connection failure, …).
	ErrStartFailure = errors.New("transport: start failure")

	// ErrDeliveryFailure covers network, broker and filesystem level send
	// errors.
	ErrDeliveryFailure = errors.New("transport: delivery failure")
)
