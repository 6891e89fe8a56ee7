package ratelimit

import "time"

// Clock abstracts time for deterministic rate limiting tests.
type Clock interface {
	Now() time.Time
}

// RealClock uses the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
