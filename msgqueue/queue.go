// Package msgqueue implements the bounded blocking FIFO shared between a
// transport's receive goroutine and the consuming application. The queue is
// caller-owned: transports push into it but never close or drain it.
//
// Besides the usual blocking put/get, the queue natively supports atomic
// multi-item admission (TryEnqueueAll), which the HTTP transport relies on to
// accept or reject a whole multipart request in one critical section.
package msgqueue

import (
	"context"
	"errors"
	"sync"
)

// ErrFull is returned when a bounded put gives up without admitting the item.
var ErrFull = errors.New("msgqueue: queue full")

// Queue is a thread-safe FIFO guarded by one mutex and a not-full/not-empty
// condition pair. A capacity of zero or less means unbounded.
type Queue[T any] struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond
	items    []T
	capacity int
}

func New[T any](capacity int) *Queue[T] {
	q := &Queue[T]{capacity: capacity}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Put appends item, blocking while the queue is full. It returns ErrFull if
// ctx expires or is cancelled before space becomes available.
func (q *Queue[T]) Put(ctx context.Context, item T) error {
	stop := context.AfterFunc(ctx, q.wake)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.full() {
		if ctx.Err() != nil {
			return ErrFull
		}
		q.notFull.Wait()
	}
	q.items = append(q.items, item)
	q.notEmpty.Signal()
	return nil
}

// TryEnqueueAll admits every item or none: it succeeds only when the
// remaining capacity covers the whole batch, and the append happens as a
// single critical section so no consumer can observe a partial batch.
func (q *Queue[T]) TryEnqueueAll(items ...T) bool {
	if len(items) == 0 {
		return true
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.capacity > 0 && q.capacity-len(q.items) < len(items) {
		return false
	}
	q.items = append(q.items, items...)
	q.notEmpty.Broadcast()
	return true
}

// Get removes and returns the oldest item, blocking while the queue is
// empty. It returns ctx.Err() if ctx ends first.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	var zero T
	stop := context.AfterFunc(ctx, q.wake)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		q.notEmpty.Wait()
	}
	return q.pop(), nil
}

// TryGet is the non-blocking variant of Get.
func (q *Queue[T]) TryGet() (T, bool) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return zero, false
	}
	return q.pop(), true
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) Cap() int { return q.capacity }

// pop must be called with q.mu held and q.items non-empty.
func (q *Queue[T]) pop() T {
	var zero T
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	q.notFull.Signal()
	return item
}

func (q *Queue[T]) full() bool {
	return q.capacity > 0 && len(q.items) >= q.capacity
}

// wake runs when a waiter's context ends; waking everyone lets each blocked
// goroutine re-check its own context.
func (q *Queue[T]) wake() {
	q.mu.Lock()
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
	q.mu.Unlock()
}
