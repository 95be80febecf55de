package dsicmd

import (
	"github.com/smazurov/dsicmd/internal/hw"
)

var (
	_ hw.IRQHandler       = (*Session)(nil)
	_ hw.UnderflowHandler = (*Session)(nil)
)

// OverlayDone handles the overlay-complete interrupt.
//
// Without BLT the frame already went to the panel and the transfer is done.
// With BLT the frame sits in the write-back buffer; the readback is kicked
// unless the consumer is already two frames behind, in which case the
// transfer stays busy until ReadbackDone catches up.
func (s *Session) OverlayDone() {
	eng := s.backend.Engine

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pipe
	if p == nil {
		eng.DisableIRQ(hw.IRQOverlayDone)
		return
	}

	if !p.BltEnabled() {
		eng.PowerBlock(hw.BlockOverlay, false)
		s.transferBusy = false
		s.transferDone.fire()
		eng.DisableIRQ(hw.IRQOverlayDone)
		return
	}

	if p.Skew() >= 2 {
		// The readback has not consumed either slot yet.
		s.stats.backpressure++
		s.metrics.Backpressure(p.Skew())
		eng.DisableIRQ(hw.IRQOverlayDone)
		return
	}

	if !p.BltEnding {
		p.OvCount++
	}
	if p.BltCount == 0 {
		eng.EnableIRQ(hw.IRQReadbackDone)
	}
	p.BltCount++

	if p.Skew() >= 2 {
		s.stats.backpressure++
		s.metrics.Backpressure(p.Skew())
		eng.DisableIRQ(hw.IRQOverlayDone)
		return
	}

	s.transferBusy = false
	s.markOutputBusyLocked()
	s.transferDone.fire()

	readback, output := p.BltAddresses(s.cfg.BltFormat)
	eng.SetOverlayOutput(output)
	eng.EnableIRQ(hw.IRQReadbackDone)
	eng.KickReadback(readback)
	eng.StartTransfer()
	eng.DisableIRQ(hw.IRQOverlayDone)

	s.stats.kickoffReadback++
	s.metrics.ReadbackKickoff(p.Skew())
}

// ReadbackDone handles the readback-complete interrupt. Once the consumer
// caught up with the producer the output is idle and a pending BLT disable
// completes; otherwise the next slot is read back.
func (s *Session) ReadbackDone() {
	eng := s.backend.Engine

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pipe
	if p == nil || !p.BltEnabled() || !s.outputBusy {
		eng.DisableIRQ(hw.IRQReadbackDone)
		return
	}
	if p.Skew() <= 0 && !p.BltEnding {
		// Nothing was produced that could have been read back.
		return
	}

	p.DmapCount++
	if p.Skew() <= 0 {
		s.outputBusy = false
		s.outputDone.fire()
		if p.BltEnding {
			p.EndBlt()
		}
		eng.PowerBlock(hw.BlockOverlay, false)
		eng.DisableIRQ(hw.IRQReadbackDone)
		s.metrics.ReadbackCaughtUp()
		return
	}

	s.transferBusy = false
	s.transferDone.fire()

	readback, output := p.BltAddresses(s.cfg.BltFormat)
	eng.SetOverlayOutput(output)
	eng.KickReadback(readback)
	eng.StartTransfer()
	eng.PowerBlock(hw.BlockOverlay, false)

	s.stats.kickoffReadback++
	s.metrics.ReadbackKickoff(p.Skew())
}

// ResetAfterUnderflow recovers the completion state after the interface
// reported an underflow: frames that will never be read back are dropped,
// the write-back addresses are re-programmed and both busy flags are
// released.
func (s *Session) ResetAfterUnderflow() {
	eng := s.backend.Engine

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropUnreadLocked()
	if s.transferBusy {
		s.transferBusy = false
		s.transferDone.fire()
	}
	if s.outputBusy {
		s.outputBusy = false
		s.outputDone.fire()
	}
	eng.DisableIRQ(hw.IRQOverlayDone)
	eng.DisableIRQ(hw.IRQReadbackDone)
}

// dropUnreadLocked gives up on written-back frames that were never read back
// and points the overlay output at the next slot.
func (s *Session) dropUnreadLocked() {
	p := s.pipe
	if p == nil || !p.BltEnabled() {
		return
	}
	p.DmapCount = p.OvCount
	_, output := p.BltAddresses(s.cfg.BltFormat)
	s.backend.Engine.SetOverlayOutput(output)
}
