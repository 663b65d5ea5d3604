package llm

import (
	"context"
	"sync"
)

// EventStream is a FIFO event queue with a terminal result value.
//
// Producers call Push for each event and End exactly once with the terminal
// result; pushes after End are ignored. The consumer ranges over Events(),
// which closes after the last pushed event once End has been called. Result
// blocks until End and may be awaited by any number of goroutines, with or
// without iterating; all observe the same value.
//
// The buffer is bounded: Push blocks once streamBufferSize events are queued
// and resumes as the consumer drains, so a slow reader applies backpressure to
// the producer instead of growing the queue without limit. End releases any
// blocked pushers. A stream is created per model call and discarded after
// consumption.
type EventStream[E any, R any] struct {
	mu      sync.Mutex
	notFull *sync.Cond
	queue   []E
	ended   bool
	wake    chan struct{}
	events  chan E
	forward sync.Once
	done    chan struct{}
	result  R
}

// streamBufferSize caps queued events between producer and consumer.
const streamBufferSize = 256

// NewEventStream returns an empty stream.
func NewEventStream[E any, R any]() *EventStream[E, R] {
	s := &EventStream[E, R]{
		wake:   make(chan struct{}, 1),
		events: make(chan E),
		done:   make(chan struct{}),
	}
	s.notFull = sync.NewCond(&s.mu)
	return s
}

// Push appends an event, blocking while the buffer is full. Ignored after
// End.
func (s *EventStream[E, R]) Push(ev E) {
	s.mu.Lock()
	for len(s.queue) >= streamBufferSize && !s.ended {
		s.notFull.Wait()
	}
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.signal()
}

// End records the terminal result and seals the stream. Only the first call
// has any effect.
func (s *EventStream[E, R]) End(result R) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.result = result
	s.notFull.Broadcast()
	s.mu.Unlock()
	close(s.done)
	s.signal()
}

// Events returns the iteration channel. Events arrive in push order; the
// channel closes after the final event once End has been called. Intended for
// a single consuming goroutine; a caller that never reads from the channel
// should not call Events at all (awaiting Result alone is fine).
func (s *EventStream[E, R]) Events() <-chan E {
	s.forward.Do(func() { go s.drain() })
	return s.events
}

// Result blocks until End is called and returns the terminal result. Safe to
// call from multiple goroutines and multiple times; every call returns the
// same value. The context only bounds the wait.
func (s *EventStream[E, R]) Result(ctx context.Context) (R, error) {
	select {
	case <-s.done:
		return s.result, nil
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

func (s *EventStream[E, R]) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// drain moves queued events into the iteration channel, closing it once the
// stream has ended and the queue is empty.
func (s *EventStream[E, R]) drain() {
	for {
		s.mu.Lock()
		for len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.notFull.Signal()
			s.mu.Unlock()
			s.events <- ev
			s.mu.Lock()
		}
		ended := s.ended
		s.mu.Unlock()
		if ended {
			close(s.events)
			return
		}
		<-s.wake
	}
}
