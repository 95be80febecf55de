package dsicmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smazurov/dsicmd/internal/events"
)

// WaitForTransferIdle blocks until the in-flight transfer completed. It
// re-arms the clock watchdog and turns the link clock back on if the
// watchdog had gated it. It returns immediately when no transfer is busy.
func (s *Session) WaitForTransferIdle(ctx context.Context) error {
	s.mu.Lock()
	s.rearmLocked()
	clockWasOff := s.ensureClockLocked()
	if !s.transferBusy {
		s.mu.Unlock()
		if clockWasOff {
			s.publishClock(true, Playing)
		}
		return nil
	}
	if s.transferWaiters == 0 {
		s.transferDone.reset()
	}
	s.transferWaiters++
	s.mu.Unlock()

	if clockWasOff {
		s.publishClock(true, Playing)
	}

	start := time.Now()
	err := s.transferDone.wait(ctx, s.cfg.TransferTimeout)
	s.metrics.ObserveTransferWait(time.Since(start))
	s.finishWait(s.transferDone, &s.transferWaiters, &s.transferBusy, err)

	if errors.Is(err, errSignalTimeout) {
		s.metrics.TransferTimeout()
		return s.hardwareTimeout("transfer", s.cfg.TransferTimeout)
	}
	return err
}

// WaitForOutputIdle blocks until the write-back readback caught up with the
// overlay output. It never touches the watchdog.
func (s *Session) WaitForOutputIdle(ctx context.Context) error {
	s.mu.Lock()
	if !s.outputBusy {
		s.mu.Unlock()
		return nil
	}
	if s.outputWaiters == 0 {
		s.outputDone.reset()
	}
	s.outputWaiters++
	s.mu.Unlock()

	start := time.Now()
	err := s.outputDone.wait(ctx, s.cfg.ReadbackTimeout)
	s.metrics.ObserveOutputWait(time.Since(start))
	s.finishWait(s.outputDone, &s.outputWaiters, &s.outputBusy, err)

	if errors.Is(err, errSignalTimeout) {
		s.metrics.OutputTimeout()
		if s.cfg.TimeoutPolicy != TimeoutAbort {
			s.mu.Lock()
			s.dropUnreadLocked()
			s.mu.Unlock()
		}
		return s.hardwareTimeout("output", s.cfg.ReadbackTimeout)
	}
	return err
}

// finishWait drops the waiter and passes a consumed permit on to the next
// waiter while the flag stays clear.
//
// Under TimeoutReturnError a timed-out completion is written off: the busy
// flag is cleared so the next commit kicks the hardware again instead of
// waiting on an interrupt that was lost.
func (s *Session) finishWait(sig *signal, waiters *int, busy *bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*waiters--
	if errors.Is(err, errSignalTimeout) && s.cfg.TimeoutPolicy != TimeoutAbort && *busy {
		*busy = false
		if *waiters > 0 {
			sig.fire()
		}
		return
	}
	if err == nil && *waiters > 0 && !*busy {
		sig.fire()
	}
}

// proceedAfter filters the error of a wait that precedes a kickoff. Under
// TimeoutReturnError a hardware timeout was already logged and counted, and
// the caller goes on to re-kick.
func (s *Session) proceedAfter(err error) error {
	if IsCode(err, ErrCodeHardwareTimeout) && s.cfg.TimeoutPolicy != TimeoutAbort {
		return nil
	}
	return err
}

// hardwareTimeout applies the timeout policy to a completion that never came.
func (s *Session) hardwareTimeout(which string, bound time.Duration) error {
	s.mu.Lock()
	s.stats.timeouts++
	s.mu.Unlock()

	err := NewError(ErrCodeHardwareTimeout, fmt.Sprintf("%s completion not received within %s", which, bound), nil)
	s.publish(events.HardwareTimeoutEvent{
		Panel:     s.cfg.Name,
		Signal:    which,
		Timeout:   bound.String(),
		Policy:    string(s.cfg.TimeoutPolicy),
		Timestamp: timestamp(),
	})

	if s.cfg.TimeoutPolicy != TimeoutAbort {
		s.logger.Warn("Hardware completion timed out", "signal", which, "timeout", bound)
		return err
	}

	s.logger.Error("Hardware completion timed out, pipeline is wedged", "signal", which, "timeout", bound)
	s.dumpRegisters()
	s.abort(err)
	return err
}

func (s *Session) dumpRegisters() {
	if s.backend.Dumper == nil {
		return
	}
	for _, r := range s.backend.Dumper.DumpRegisters() {
		for i, v := range r.Values {
			s.logger.Error("Register",
				"block", r.Name,
				"offset", fmt.Sprintf("0x%05x", r.Offset+uint32(i*4)),
				"value", fmt.Sprintf("0x%08x", v))
		}
	}
}
