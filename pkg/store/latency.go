package store

import (
	"context"
	"time"
)

// Latency is the artificial delay each in-memory operation sleeps before acting, standing
// in for the network round trip of a remote API.
type Latency struct {
	List       time.Duration
	Get        time.Duration
	Create     time.Duration
	Update     time.Duration
	Delete     time.Duration
	ByReporter time.Duration
	Comment    time.Duration
}

// DefaultLatency mirrors the delays of the hosted mock API.
func DefaultLatency() Latency {
	return Latency{
		List:       800 * time.Millisecond,
		Get:        500 * time.Millisecond,
		Create:     1000 * time.Millisecond,
		Update:     800 * time.Millisecond,
		Delete:     500 * time.Millisecond,
		ByReporter: 600 * time.Millisecond,
		Comment:    800 * time.Millisecond,
	}
}

// NoLatency disables the simulated delay.
func NoLatency() Latency {
	return Latency{}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
