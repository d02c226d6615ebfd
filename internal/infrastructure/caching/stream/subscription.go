package stream

import (
	"context"
	"sync"
)

// Subscription is an ordered, lossless view of a stream. Values offered by the
// source are queued without bound and handed to C by a dedicated goroutine,
// so a slow reader delays only itself.
type Subscription[T any] struct {
	id          uint64
	ch          chan T
	done        chan struct{}
	stop        chan struct{}
	wake        chan struct{}
	unsubscribe func(id uint64)

	mu        sync.Mutex
	pending   []T
	completed bool
	stopped   bool
}

func newSubscription[T any](id uint64, unsubscribe func(id uint64)) *Subscription[T] {
	s := &Subscription[T]{
		id:          id,
		ch:          make(chan T),
		done:        make(chan struct{}),
		stop:        make(chan struct{}),
		wake:        make(chan struct{}, 1),
		unsubscribe: unsubscribe,
	}
	go s.pump()
	return s
}

// C returns the delivery channel. It is closed when the subscription ends.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Done is closed when the subscription ends.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Receive waits for the next value.
func (s *Subscription[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	select {
	case v, ok := <-s.ch:
		if !ok {
			return zero, ErrClosed
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Pending returns the number of values queued but not yet delivered.
func (s *Subscription[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close detaches the subscription from its source and closes C. Undelivered
// values are dropped.
func (s *Subscription[T]) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe(s.id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	s.pending = nil
	close(s.stop)
}

// offer queues v. It never blocks.
func (s *Subscription[T]) offer(v T) {
	s.mu.Lock()
	if s.completed || s.stopped {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, v)
	s.mu.Unlock()
	s.signal()
}

// complete marks the source as finished. Queued values are still delivered
// before C is closed.
func (s *Subscription[T]) complete() {
	s.mu.Lock()
	if s.completed || s.stopped {
		s.mu.Unlock()
		return
	}
	s.completed = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription[T]) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) pump() {
	defer func() {
		close(s.ch)
		close(s.done)
	}()

	var zero T
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			completed := s.completed
			s.mu.Unlock()
			if completed {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}
		v := s.pending[0]
		s.pending[0] = zero
		s.pending = s.pending[1:]
		s.mu.Unlock()

		select {
		case s.ch <- v:
		case <-s.stop:
			return
		}
	}
}

// Map derives a subscription whose values are fn applied to every value of
// src, in order. Closing the derived subscription closes src.
func Map[T, U any](src *Subscription[T], fn func(T) U) *Subscription[U] {
	out := newSubscription[U](0, func(uint64) { src.Close() })
	go func() {
		defer out.complete()
		for v := range src.C() {
			out.offer(fn(v))
		}
	}()
	return out
}
