package hub

import (
	"sync"
	"sync/atomic"

	"chathub/metrics"
	"chathub/types"
)

// Subscription is one receiver's view of the hub.
type Subscription struct {
	hub *Hub
	ch  chan types.ChatMessage

	// mu orders deliver against closeChannel so a send never hits a
	// closed channel.
	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
	once    sync.Once
}

// C yields messages in publish order. It is closed when the subscription
// or the hub is closed.
func (s *Subscription) C() <-chan types.ChatMessage {
	return s.ch
}

// Dropped counts messages discarded because this receiver lagged.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches from the hub. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
		s.closeChannel()
	})
}

func (s *Subscription) closeChannel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

func (s *Subscription) deliver(msg types.ChatMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	for {
		select {
		case s.ch <- msg:
			return true
		default:
		}

		// full: discard the oldest buffered message and retry
		select {
		case <-s.ch:
			s.dropped.Add(1)
			metrics.HubDroppedTotal.Inc()
		default:
		}
	}
}
