package dsicmd

import (
	"context"

	"github.com/smazurov/dsicmd/internal/events"
	"github.com/smazurov/dsicmd/internal/overlay"
)

// EnableBLT routes the overlay output through the write-back buffer. The
// buffer holds two frames at the session BLT format.
func (s *Session) EnableBLT(ctx context.Context) error {
	s.mu.Lock()
	p := s.pipe
	if p == nil {
		s.mu.Unlock()
		return NewError(ErrCodeNotBound, "no pipe bound to the panel", nil)
	}
	if p.BltEnabled() {
		s.mu.Unlock()
		return NewError(ErrCodeAlreadyInTransition, "write-back path already enabled", nil)
	}
	size := 2 * overlay.FrameSize(p.SrcWidth, p.SrcHeight, s.cfg.BltFormat)
	s.mu.Unlock()

	addr, err := s.backend.Writeback.AllocWriteback(size)
	if err != nil {
		return NewError(ErrCodeResourceUnavailable, "no write-back buffer", err)
	}
	if addr == 0 {
		s.logger.Info("No write-back buffer available", "size", size)
		return NewError(ErrCodeResourceUnavailable, "no write-back buffer", nil)
	}

	if err := s.WaitForTransferIdle(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	if p.BltEnabled() {
		s.mu.Unlock()
		return NewError(ErrCodeAlreadyInTransition, "write-back path already enabled", nil)
	}
	p.StartBlt(addr)
	s.stats.bltEnables++
	s.mu.Unlock()

	s.metrics.BltEnabled()
	s.logger.Info("Write-back path enabled", "addr", addr, "size", size, "format", s.cfg.BltFormat)
	s.publishBlt(events.BltStateEnabled, addr)
	return nil
}

// DisableBLT requests the write-back path to be torn down. The base address
// is cleared by the readback handler once the in-flight frame drained.
func (s *Session) DisableBLT() error {
	s.mu.Lock()
	p := s.pipe
	if p == nil {
		s.mu.Unlock()
		return NewError(ErrCodeNotBound, "no pipe bound to the panel", nil)
	}
	if !p.BltEnabled() || p.BltEnding {
		s.mu.Unlock()
		return NewError(ErrCodeAlreadyInTransition, "write-back path not enabled or already ending", nil)
	}
	p.BltEnding = true
	addr := p.BltAddr
	s.mu.Unlock()

	s.metrics.BltEnding()
	s.logger.Info("Write-back path disable requested", "addr", addr)
	s.publishBlt(events.BltStateEnding, addr)
	return nil
}

// SetBLT enables or disables the write-back path.
func (s *Session) SetBLT(ctx context.Context, enable bool) error {
	if enable {
		return s.EnableBLT(ctx)
	}
	return s.DisableBLT()
}

// BltOffset returns the geometry of the write-back target.
func (s *Session) BltOffset() (overlay.BltInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipe == nil {
		return overlay.BltInfo{}, NewError(ErrCodeNotBound, "no pipe bound to the panel", nil)
	}
	return s.pipe.BltInfo(), nil
}
