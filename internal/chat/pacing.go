package chat

import (
	"context"
	"time"
	"unicode/utf8"
)

// Pacing computes the artificial reveal delay that simulates a human
// typing the reply. The delay gates delivery only; persistence happens
// before it.
type Pacing struct {
	PerChar time.Duration
	Min     time.Duration
	Max     time.Duration
}

func DefaultPacing() Pacing {
	return Pacing{
		PerChar: 33 * time.Millisecond,
		Min:     time.Second,
		Max:     5 * time.Second,
	}
}

// Delay is clamp(len(reply) * PerChar, Min, Max) and non-decreasing in
// the reply length.
func (p Pacing) Delay(reply string) time.Duration {
	d := time.Duration(utf8.RuneCountInString(reply)) * p.PerChar
	if d < p.Min {
		d = p.Min
	}
	if d > p.Max {
		d = p.Max
	}
	return d
}

// Wait blocks the one in-flight exchange until the delay elapses or ctx
// is cancelled. The timer is stopped on cancellation so an aborted
// request does not leak it.
func (p Pacing) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
