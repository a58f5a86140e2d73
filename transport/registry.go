package transport

import (
	"fmt"
	"net/url"
	"sort"
	"sync"

	"alertwire/message"
	"alertwire/msgqueue"
)

// Factory constructs a backend for a raw URL. A nil queue means the instance
// is send-only; an empty contentType selects DefaultContentType.
type Factory func(rawURL string, queue *msgqueue.Queue[message.Message], contentType string) (Transport, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a backend available under a URL scheme. It is intended to
// be called from the backend package's init function, so the factory map is
// fully built at process initialization; it panics on a nil factory or a
// duplicate scheme.
func Register(scheme string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if f == nil {
		panic("transport: Register factory is nil")
	}
	if scheme == "" {
		panic("transport: Register with empty scheme")
	}
	if _, dup := factories[scheme]; dup {
		panic("transport: Register called twice for scheme " + scheme)
	}
	factories[scheme] = f
}

// Open constructs a transport for rawURL, dispatching on the URL scheme.
// Callers select backends by blank-importing their packages:
//
//	import _ "alertwire/transport/file"
func Open(rawURL string, queue *msgqueue.Queue[message.Message], contentType string) (Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}
	factoriesMu.RLock()
	f, ok := factories[u.Scheme]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocation, u.Scheme)
	}
	return f(rawURL, queue, contentType)
}

// Schemes lists the registered URL schemes, sorted.
func Schemes() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	out := make([]string, 0, len(factories))
	for s := range factories {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
