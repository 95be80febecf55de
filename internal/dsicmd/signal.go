package dsicmd

import (
	"context"
	"errors"
	"time"
)

var errSignalTimeout = errors.New("completion signal timed out")

// signal is a single-permit completion event. fire never blocks, so it is
// safe to call with the session lock held from the interrupt path.
type signal struct {
	ch chan struct{}
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{}, 1)}
}

func (s *signal) fire() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *signal) reset() {
	select {
	case <-s.ch:
	default:
	}
}

func (s *signal) ready() bool {
	return len(s.ch) == 1
}

// wait consumes the permit, or fails after timeout or when ctx is done.
func (s *signal) wait(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.ch:
		return nil
	case <-timer.C:
		return errSignalTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
