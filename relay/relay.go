// Package relay pumps messages from a receive queue into one or more output
// transports, fanning each message out to every output. A failing output is
// logged and skipped so one broken channel does not stall the rest.
package relay

import (
	"context"
	"errors"
	"sync"

	"alertwire/internal/logging"
	"alertwire/message"
	"alertwire/msgqueue"
	"alertwire/transport"
)

type Relay struct {
	queue *msgqueue.Queue[message.Message]

	mu      sync.Mutex
	outputs []transport.Transport
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a relay draining queue. Outputs are attached before Start and
// must already be started by the caller.
func New(queue *msgqueue.Queue[message.Message]) *Relay {
	return &Relay{queue: queue}
}

func (r *Relay) AddOutput(t transport.Transport) {
	r.mu.Lock()
	r.outputs = append(r.outputs, t)
	r.mu.Unlock()
}

// Start launches the pump goroutine.
func (r *Relay) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return errors.New("relay: already started")
	}
	if len(r.outputs) == 0 {
		return errors.New("relay: no outputs attached")
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.pump(ctx, r.done)
	return nil
}

// Stop cancels the pump and joins it. Messages already dequeued are
// forwarded before the pump exits.
func (r *Relay) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (r *Relay) pump(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		m, err := r.queue.Get(ctx)
		if err != nil {
			return
		}
		r.forward(m)
	}
}

func (r *Relay) forward(m message.Message) {
	r.mu.Lock()
	outputs := append([]transport.Transport{}, r.outputs...)
	r.mu.Unlock()
	for _, out := range outputs {
		if err := out.SendMessage(m); err != nil {
			logging.L().Warn("relay: forward failed", "error", err)
		}
	}
}
