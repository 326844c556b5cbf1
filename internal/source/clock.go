package source

import (
	"context"
	"time"
)

// Clock abstracts time so retry behaviour can be tested without real delays.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock returns the wall clock.
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// BackoffPolicy decides how long to wait before retry number attempt (1-based).
// hint is the delay requested by the source, zero if none.
type BackoffPolicy interface {
	Delay(attempt int, hint time.Duration) time.Duration
}

// ExponentialBackoff waits Base * 2^(attempt-1), never more than Max.
// A source hint longer than the computed delay wins, still capped at Max.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b ExponentialBackoff) Delay(attempt int, hint time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			d = b.Max
			break
		}
	}
	if hint > d {
		d = hint
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}
