// Package transport defines the contract every message transport backend
// implements, plus the shared building blocks the backends use: the validated
// parameter store, the scheme-keyed factory registry, and the TLS material
// loader. Concrete backends live in the subpackages transport/file,
// transport/http and transport/kafka and register themselves on import.
package transport

import (
	"context"
	"time"

	"alertwire/message"
)

// DefaultContentType is used when a backend is constructed without an
// explicit content type.
const DefaultContentType = "application/json"

// Transport is a pluggable backend delivering messages over one physical
// channel. Instances move between exactly two post-construction states,
// stopped and started; construction itself is fail-fast, so a half-built
// instance is never observable.
//
// SendMessage is synchronous for every backend: it does not return before
// the underlying I/O completed or failed. Stop blocks until all background
// goroutines belonging to the instance have exited.
type Transport interface {
	// SetParameter validates value against the parameter's descriptor
	// (allowed types, cast, declared bounds) and stores it atomically.
	SetParameter(name string, value any) error

	// GetParameter returns the current value of a parameter.
	GetParameter(name string) (any, error)

	// SendMessage serializes m to the configured content type and delivers
	// it. Only valid while started.
	SendMessage(m message.Message) error

	// Start transitions to started and, when a receive queue was supplied at
	// construction, launches the backend's background receive activity.
	Start() error

	// Stop transitions to stopped, tearing down background activity
	// synchronously.
	Stop() error
}

// Sleep waits d or until ctx is cancelled, whichever comes first, and
// reports whether the full duration elapsed. Poller loops use it so a
// pending cancellation is observed within one interval.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
