// Package wait implements the Wait Registry: parking suspended worker
// tasks on predicates and waking them when matching entries arrive. The
// registry itself has no timeouts; pkg/console applies them around
// Sink.Next.
//
// Reimplements the source's lazy-sequence "generator" semantics
// (spec.md §9) as channels/queues: each waiter owns a producer-side
// Sink, parked in the Registry; the scheduler pushes matching entries;
// consumer-side iteration blocks on receive via Sink.Next. Cancellation
// closes the sink.
package wait

import (
	"context"
	"errors"
	"sync"

	"github.com/oakmoor/cairn/pkg/blackboard"
)

// ErrTimeout is returned by console.Console.WaitTillFact/WaitTillHyp
// when their deadline elapses with no match.
var ErrTimeout = errors.New("wait: timed out")

// ErrCancelled is returned by Sink.Next when the sink was cancelled
// while a receive was in progress, or before one started.
var ErrCancelled = errors.New("wait: cancelled")

// Item is a single wake delivered to a waiter.
type Item struct {
	Event blackboard.PostEvent
}

// Sink is a waiter's producer-side buffer: Push never blocks the
// scheduler, and Next blocks the consumer until an item is available,
// the sink is closed, or ctx is done.
type Sink struct {
	mu     sync.Mutex
	buf    []Item
	notify chan struct{}
	closed bool
}

func newSink() *Sink {
	return &Sink{notify: make(chan struct{}, 1)}
}

func (s *Sink) push(item Item) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.buf = append(s.buf, item)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an item is available, the sink is closed
// (ErrCancelled), or ctx is done (ctx.Err()).
func (s *Sink) Next(ctx context.Context) (Item, error) {
	for {
		s.mu.Lock()
		if len(s.buf) > 0 {
			item := s.buf[0]
			s.buf = s.buf[1:]
			s.mu.Unlock()
			return item, nil
		}
		if s.closed {
			s.mu.Unlock()
			return Item{}, ErrCancelled
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Item{}, ctx.Err()
		case <-s.notify:
		}
	}
}

// Seed pushes a batch of historical items into the sink. Callers use
// this to deliver the backlog before any live event can arrive — see
// Registry.Register's ordering contract.
func (s *Sink) Seed(items []Item) {
	for _, item := range items {
		s.push(item)
	}
}

// Close cancels the sink: any pending or future Next call returns
// ErrCancelled once the buffer drains.
func (s *Sink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
