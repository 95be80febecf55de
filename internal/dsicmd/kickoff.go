package dsicmd

import (
	"context"
	"fmt"

	"github.com/smazurov/dsicmd/internal/hw"
	"github.com/smazurov/dsicmd/internal/overlay"
)

// CommitFrame kicks the overlay processor on the bound pipe. Without BLT the
// command engine is started right away; with BLT the transfer is started by
// the completion handler once the frame was written back. CommitFrame never
// waits for completion; callers serialize frames with WaitForTransferIdle.
func (s *Session) CommitFrame(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case !s.panelOn:
		s.mu.Unlock()
		return NewError(ErrCodePanelOff, "panel is powered off", nil)
	case s.pipe == nil:
		s.mu.Unlock()
		return NewError(ErrCodeNotBound, "no pipe bound to the panel", nil)
	}
	s.mu.Unlock()

	if s.backend.Perf != nil {
		s.backend.Perf.SetPerfLevel()
	}
	if s.backend.Link != nil {
		if err := s.backend.Link.WaitLinkIdle(ctx); err != nil {
			return fmt.Errorf("wait for link idle: %w", err)
		}
	}

	eng := s.backend.Engine
	s.mu.Lock()
	clockWasOff := s.ensureClockLocked()
	blt := s.pipe.BltEnabled()
	if !blt {
		eng.StartTransfer()
	}
	s.playState = Playing
	s.markTransferBusyLocked()
	if blt {
		s.markOutputBusyLocked()
	}
	eng.EnableIRQ(hw.IRQOverlayDone)
	s.stats.kickoffOverlay++
	s.mu.Unlock()

	if clockWasOff {
		s.publishClock(true, Playing)
	}

	eng.KickOverlay()
	s.metrics.OverlayKickoff()
	return nil
}

// KickoffVideo commits a video frame. The first frame after BLT was enabled
// and the first frame after it was torn down both push a pipe
// reconfiguration before the kickoff.
func (s *Session) KickoffVideo(ctx context.Context) error {
	s.mu.Lock()
	p := s.pipe
	if p == nil {
		s.mu.Unlock()
		return NewError(ErrCodeNotBound, "no pipe bound to the panel", nil)
	}
	reconfigure := (p.BltEnabled() && p.BltCount == 0) || (!p.BltEnabled() && p.BltCount != 0)
	fb := s.fb
	s.mu.Unlock()

	if reconfigure {
		if err := s.Bind(fb); err != nil {
			return err
		}
	}
	if s.bltEnabled() {
		if err := s.proceedAfter(s.WaitForOutputIdle(ctx)); err != nil {
			return err
		}
	}
	return s.CommitFrame(ctx)
}

// KickoffUI commits a UI frame on an already configured pipe.
func (s *Session) KickoffUI(ctx context.Context) error {
	return s.CommitFrame(ctx)
}

// Overlay is the display commit path: it waits for the previous frame,
// binds fb, kicks it and releases a registered pan waiter. It does nothing
// while the panel is off. Under TimeoutReturnError a completion that never
// came does not stop the kick.
func (s *Session) Overlay(ctx context.Context, fb overlay.Framebuffer) error {
	if !s.PanelOn() {
		return nil
	}
	if err := s.proceedAfter(s.WaitForTransferIdle(ctx)); err != nil {
		return err
	}
	if s.bltEnabled() {
		if err := s.proceedAfter(s.WaitForOutputIdle(ctx)); err != nil {
			return err
		}
	}
	if err := s.Bind(fb); err != nil {
		return err
	}
	if err := s.KickoffUI(ctx); err != nil {
		return err
	}
	s.releasePanWaiter()
	return nil
}

// Restore re-pushes the last bound framebuffer after the panel resumed.
func (s *Session) Restore(ctx context.Context) error {
	s.mu.Lock()
	bound := s.pipe != nil
	fb := s.fb
	s.mu.Unlock()
	if !bound {
		return nil
	}

	if err := s.proceedAfter(s.WaitForTransferIdle(ctx)); err != nil {
		return err
	}
	if s.backend.Link != nil {
		if err := s.backend.Link.WaitLinkIdle(ctx); err != nil {
			return fmt.Errorf("wait for link idle: %w", err)
		}
	}
	if err := s.Bind(fb); err != nil {
		return err
	}
	if s.bltEnabled() {
		if err := s.proceedAfter(s.WaitForOutputIdle(ctx)); err != nil {
			return err
		}
	}
	return s.CommitFrame(ctx)
}

// markTransferBusyLocked and markOutputBusyLocked raise a busy flag. A permit
// left over from the previous completion is dropped unless a waiter is about
// to consume it.
func (s *Session) markTransferBusyLocked() {
	s.transferBusy = true
	if s.transferWaiters == 0 {
		s.transferDone.reset()
	}
}

func (s *Session) markOutputBusyLocked() {
	s.outputBusy = true
	if s.outputWaiters == 0 {
		s.outputDone.reset()
	}
}

func (s *Session) bltEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipe != nil && s.pipe.BltEnabled()
}
