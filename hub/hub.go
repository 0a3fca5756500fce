// Package hub is the process-wide fan-out of accepted chat messages.
//
// Every subscriber owns a bounded buffer. Publishing never waits on a
// subscriber: when a buffer is full its oldest message is discarded to make
// room, so one stalled client cannot hold back the others.
package hub

import (
	"sync"
	"sync/atomic"

	"chathub/metrics"
	"chathub/types"
)

const DefaultCapacity = 100

type Hub struct {
	capacity int

	// subs is replaced wholesale on every change; Publish reads it without
	// taking subsMu.
	subs   atomic.Pointer[[]*Subscription]
	subsMu sync.Mutex
	closed bool

	// publishMu makes hub arrival order the delivery order for everyone.
	publishMu sync.Mutex
}

func New(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	h := &Hub{capacity: capacity}
	h.subs.Store(&[]*Subscription{})
	return h
}

// Publish hands msg to every current subscriber and returns how many
// received it. With no subscribers it does nothing.
func (h *Hub) Publish(msg types.ChatMessage) int {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	subs := *h.subs.Load()
	delivered := 0
	for _, sub := range subs {
		if sub.deliver(msg) {
			delivered++
		}
	}
	metrics.HubPublishedTotal.Inc()
	return delivered
}

// Subscribe returns a subscription that sees messages published from now
// on. Subscribing to a closed hub yields an already-closed subscription.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		hub: h,
		ch:  make(chan types.ChatMessage, h.capacity),
	}

	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	if h.closed {
		sub.closeChannel()
		return sub
	}
	current := *h.subs.Load()
	next := make([]*Subscription, len(current), len(current)+1)
	copy(next, current)
	next = append(next, sub)
	h.subs.Store(&next)
	metrics.HubSubscribers.Set(float64(len(next)))
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	current := *h.subs.Load()
	next := make([]*Subscription, 0, len(current))
	for _, s := range current {
		if s != sub {
			next = append(next, s)
		}
	}
	h.subs.Store(&next)
	metrics.HubSubscribers.Set(float64(len(next)))
}

// Len is the number of active subscriptions.
func (h *Hub) Len() int {
	return len(*h.subs.Load())
}

func (h *Hub) Capacity() int {
	return h.capacity
}

// Close ends every subscription. Receivers drain what is already buffered
// and then see their channel closed.
func (h *Hub) Close() {
	h.subsMu.Lock()
	if h.closed {
		h.subsMu.Unlock()
		return
	}
	h.closed = true
	current := *h.subs.Load()
	h.subs.Store(&[]*Subscription{})
	h.subsMu.Unlock()

	for _, sub := range current {
		sub.closeChannel()
	}
	metrics.HubSubscribers.Set(0)
}
