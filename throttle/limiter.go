// Package throttle enforces a minimum spacing between accepted chat
// messages per identity.
package throttle

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const DefaultMinInterval = 250 * time.Millisecond

// Limiter keeps one token bucket (burst 1) per identity. Buckets are
// never removed.
type Limiter struct {
	interval time.Duration
	buckets  sync.Map
}

func NewLimiter(minInterval time.Duration) *Limiter {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &Limiter{interval: minInterval}
}

// TryAccept reports whether identity may send at now. Acceptance records
// now as the identity's last accepted send; rejection changes nothing.
func (l *Limiter) TryAccept(identity string, now time.Time) bool {
	bucket, ok := l.buckets.Load(identity)
	if !ok {
		bucket, _ = l.buckets.LoadOrStore(identity, rate.NewLimiter(rate.Every(l.interval), 1))
	}
	return bucket.(*rate.Limiter).AllowN(now, 1)
}

func (l *Limiter) MinInterval() time.Duration {
	return l.interval
}
