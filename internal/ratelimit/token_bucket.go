package ratelimit

import (
	"sync"
	"time"
)

// One token is 1e9 nano-tokens, so a rate of N tokens/sec adds exactly N
// nano-tokens per elapsed nanosecond. Integer arithmetic keeps refill
// deterministic under a fake Clock.
const nanosPerToken = int64(time.Second)

const maxInt64 = int64(^uint64(0) >> 1)

// TokenBucket limits an event stream to a sustained rate with a bounded
// burst. Refill is computed lazily from elapsed time on each Allow call.
type TokenBucket struct {
	mu sync.Mutex

	clock Clock

	capacity int64 // tokens
	rate     int64 // tokens per second

	available int64 // nano-tokens
	last      time.Time
}

// NewTokenBucket returns a bucket that starts full. A nil clock uses the
// system clock.
func NewTokenBucket(clock Clock, capacity, rate int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	if capacity < 0 {
		capacity = 0
	}
	if rate < 0 {
		rate = 0
	}
	return &TokenBucket{
		clock:     clock,
		capacity:  capacity,
		rate:      rate,
		available: toNanoTokens(capacity),
		last:      clock.Now(),
	}
}

// Allow consumes the given number of tokens if available. tokens <= 0 always
// succeeds.
func (b *TokenBucket) Allow(tokens int64) bool {
	if tokens <= 0 {
		return true
	}
	cost := toNanoTokens(tokens)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.available < cost {
		return false
	}
	b.available -= cost
	return true
}

func (b *TokenBucket) refillLocked() {
	now := b.clock.Now()
	elapsed := now.Sub(b.last)
	b.last = now
	// A clock that moved backwards just resets the reference point.
	if elapsed <= 0 || b.rate <= 0 || b.capacity <= 0 {
		return
	}

	capNano := toNanoTokens(b.capacity)
	if b.available >= capNano {
		b.available = capNano
		return
	}

	// Clamp before multiplying: if the idle stretch was long enough to fill
	// the bucket, elapsed*rate could overflow.
	need := capNano - b.available
	if elapsed.Nanoseconds() >= need/b.rate {
		b.available = capNano
		return
	}
	b.available += elapsed.Nanoseconds() * b.rate
}

func toNanoTokens(tokens int64) int64 {
	if tokens <= 0 {
		return 0
	}
	if tokens > maxInt64/nanosPerToken {
		return maxInt64
	}
	return tokens * nanosPerToken
}
