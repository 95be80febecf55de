package dsicmd

import (
	"context"
	"fmt"

	"github.com/smazurov/dsicmd/internal/events"
	"github.com/smazurov/dsicmd/internal/hw"
	"github.com/smazurov/dsicmd/internal/overlay"
)

// Bind points the session pipe at fb, allocating the pipe on first use, and
// pushes the resulting geometry to the mixer and the tear-check block.
//
// Geometry is derived under the session lock and the configurator is handed
// a copy, so interrupt-context counter updates never race with it.
func (s *Session) Bind(fb overlay.Framebuffer) error {
	eng := s.backend.Engine
	eng.PowerBlock(hw.BlockCommand, true)
	defer eng.PowerBlock(hw.BlockCommand, false)

	s.mu.Lock()
	p := s.pipe
	s.mu.Unlock()

	if p == nil {
		var err error
		if p, err = s.allocPipe(fb); err != nil {
			return err
		}
	}

	s.mu.Lock()
	ended := !p.BltEnabled() && p.BltCount != 0
	if ended {
		p.BltCount = 0
	}
	s.fb = fb
	p.MixerStage = overlay.StageBase
	p.ApplyGeometry(fb)
	if p.BltEnabled() {
		_, out := p.BltAddresses(s.cfg.BltFormat)
		eng.SetOverlayOutput(out)
	}
	snap := *p
	s.mu.Unlock()

	if err := s.backend.Configurator.ConfigurePipe(&snap); err != nil {
		return fmt.Errorf("configure pipe: %w", err)
	}
	if s.backend.Tear != nil {
		s.backend.Tear.Configure(snap.DstY)
	}

	if ended {
		s.mu.Lock()
		s.stats.bltDisables++
		s.mu.Unlock()
		s.metrics.BltDisabled()
		s.logger.Info("Write-back path disabled")
		s.publishBlt(events.BltStateDisabled, 0)
	}
	return nil
}

func (s *Session) allocPipe(fb overlay.Framebuffer) (*overlay.Pipe, error) {
	format := fb.Format
	if format == "" {
		format = s.cfg.PipeFormat
	}
	p, err := s.backend.Pipes.AllocPipe(format)
	if err != nil {
		return nil, NewError(ErrCodePipeAlloc, fmt.Sprintf("allocate %s pipe", format), err)
	}
	if p == nil {
		return nil, NewError(ErrCodePipeAlloc, fmt.Sprintf("allocator returned no %s pipe", format), nil)
	}
	p.Used++
	p.Format = format
	p.BltAddr = 0

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipe != nil {
		return s.pipe, nil
	}
	s.pipe = p
	s.rearmLocked()
	s.logger.Info("Pipe bound", "format", format, "xres", fb.XRes, "yres", fb.YRes)
	return p, nil
}

// Set3D switches side-by-side 3D on or off and re-derives the pipe geometry.
// While the panel is on it first waits for the pipeline to drain.
func (s *Session) Set3D(ctx context.Context, enabled bool, width, height int) error {
	if enabled && (width <= 0 || height <= 0) {
		return NewError(ErrCodeInvalidConfig, fmt.Sprintf("invalid 3D size %dx%d", width, height), nil)
	}

	s.mu.Lock()
	p := s.pipe
	panelOn := s.panelOn
	fb := s.fb
	s.mu.Unlock()
	if p == nil {
		return NewError(ErrCodeNotBound, "no pipe bound to the panel", nil)
	}

	if panelOn {
		if err := s.WaitForTransferIdle(ctx); err != nil {
			return err
		}
		if s.bltEnabled() {
			if err := s.WaitForOutputIdle(ctx); err != nil {
				return err
			}
		}
	}

	s.mu.Lock()
	p.Is3D = enabled
	p.Width3D = width
	p.Height3D = height
	s.mu.Unlock()

	s.logger.Info("3D side-by-side changed", "enabled", enabled, "width", width, "height", height)
	return s.Bind(fb)
}

// Suspend stages the pipe down from the mixer.
func (s *Session) Suspend() {
	s.mu.Lock()
	p := s.pipe
	if p == nil {
		s.mu.Unlock()
		return
	}
	p.MixerStage = overlay.StageUnused
	snap := *p
	s.mu.Unlock()

	s.backend.Configurator.StageDown(&snap)
	s.logger.Debug("Pipe staged down")
}
