// Package stream provides the replay-latest broadcast primitive the caches
// publish their state through.
package stream

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Receive once a subscription has been closed.
var ErrClosed = errors.New("stream: subscription closed")

// Subject holds the latest value and delivers it to every subscriber, past or future.
type Subject[T any] struct {
	mu     sync.RWMutex
	value  T
	subs   map[uint64]*Subscription[T]
	nextID uint64
	closed bool
}

// NewSubject creates a subject whose current value is initial.
func NewSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{
		value: initial,
		subs:  make(map[uint64]*Subscription[T]),
	}
}

// Value returns the latest value.
func (s *Subject[T]) Value() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Next records v as the latest value and queues it for every subscriber in
// subscription order. It never blocks on a slow subscriber.
func (s *Subject[T]) Next(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.value = v
	for _, sub := range s.ordered() {
		sub.offer(v)
	}
}

// Subscribe registers a subscriber. The current value is queued immediately.
func (s *Subject[T]) Subscribe(opts ...SubscribeOption) *Subscription[T] {
	var cfg subscribeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	s.mu.Lock()
	id := atomic.AddUint64(&s.nextID, 1)
	sub := newSubscription[T](id, func(id uint64) {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	})
	sub.offer(s.value)
	if s.closed {
		s.mu.Unlock()
		sub.complete()
		return sub
	}
	s.subs[id] = sub
	s.mu.Unlock()

	if cfg.ctx != nil {
		go func() {
			select {
			case <-cfg.ctx.Done():
				sub.Close()
			case <-sub.done:
			}
		}()
	}
	return sub
}

// SubscriberCount returns the number of live subscriptions.
func (s *Subject[T]) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Close completes every subscription. Later subscribers receive the final
// value and a closed channel.
func (s *Subject[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, sub := range s.subs {
		sub.complete()
		delete(s.subs, id)
	}
}

// ordered returns the subscribers sorted by id. Caller holds s.mu.
func (s *Subject[T]) ordered() []*Subscription[T] {
	out := make([]*Subscription[T], 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// SubscribeOption customises a subscription.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	ctx context.Context
}

// WithContext closes the subscription when ctx is done.
func WithContext(ctx context.Context) SubscribeOption {
	return func(cfg *subscribeConfig) {
		cfg.ctx = ctx
	}
}
