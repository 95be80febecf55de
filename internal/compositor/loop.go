// Package compositor is the display-commit path of the daemon: it pushes a
// frame to the panel session at a fixed refresh rate and serializes every
// other session operation with those commits.
package compositor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/smazurov/dsicmd/internal/dsicmd"
	"github.com/smazurov/dsicmd/internal/metrics"
	"github.com/smazurov/dsicmd/internal/overlay"
)

// Mode selects which kickoff path frames take.
type Mode string

// Commit modes.
const (
	ModeUI    Mode = "ui"
	ModeVideo Mode = "video"
)

// ParseMode parses "ui" or "video". An empty string selects ModeUI.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeUI:
		return ModeUI, nil
	case ModeVideo:
		return ModeVideo, nil
	default:
		return ModeUI, dsicmd.NewError(dsicmd.ErrCodeInvalidConfig, "unknown commit mode "+s, nil)
	}
}

// Loop commits frames to one panel session.
type Loop struct {
	session *dsicmd.Session
	fb      overlay.Framebuffer
	mode    Mode
	period  time.Duration
	logger  *slog.Logger

	// mu is held for every session operation that must not interleave
	// with a frame commit.
	mu sync.Mutex

	frames atomic.Uint64
	errors atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a loop committing fb at rate.
func New(session *dsicmd.Session, fb overlay.Framebuffer, rate physic.Frequency, mode Mode, logger *slog.Logger) *Loop {
	period := dsicmd.DefaultVsyncPeriod
	if rate > 0 {
		period = rate.Period()
	}
	return &Loop{
		session: session,
		fb:      fb,
		mode:    mode,
		period:  period,
		logger:  logger,
	}
}

// Start begins committing frames until ctx is done or Stop is called.
func (l *Loop) Start(ctx context.Context) {
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)
	go l.run()
}

// Stop stops the loop and waits for the last commit to finish.
func (l *Loop) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

func (l *Loop) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	l.logger.Info("Compositor started", "mode", l.mode, "period", l.period)
	for {
		select {
		case <-l.ctx.Done():
			l.logger.Info("Compositor stopped", "frames", l.frames.Load(), "errors", l.errors.Load())
			return
		case <-ticker.C:
			if err := l.Commit(l.ctx); err != nil && l.ctx.Err() == nil {
				l.logger.Warn("Frame commit failed", "error", err)
			}
		}
	}
}

// Commit pushes one frame.
func (l *Loop) Commit(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	switch l.mode {
	case ModeVideo:
		err = l.commitVideo(ctx)
	default:
		err = l.session.Overlay(ctx, l.fb)
	}

	name := l.session.Config().Name
	if err != nil {
		l.errors.Add(1)
		metrics.IncCommitErrors(name)
		return err
	}
	l.frames.Add(1)
	metrics.IncFramesCommitted(name)
	return nil
}

func (l *Loop) commitVideo(ctx context.Context) error {
	if !l.session.PanelOn() {
		return nil
	}
	if !l.session.Stats().Bound {
		if err := l.session.Bind(l.fb); err != nil {
			return err
		}
	}
	if err := l.session.WaitForTransferIdle(ctx); err != nil {
		if !l.resync(err) {
			return err
		}
		l.logger.Warn("Previous frame never completed, re-kicking", "error", err)
	}
	return l.session.KickoffVideo(ctx)
}

// resync reports whether a failed wait can be written off and the next
// frame kicked anyway.
func (l *Loop) resync(err error) bool {
	return dsicmd.IsCode(err, dsicmd.ErrCodeHardwareTimeout) &&
		l.session.Config().TimeoutPolicy == dsicmd.TimeoutReturnError
}

// Exclusive runs fn between two frame commits.
func (l *Loop) Exclusive(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn()
}

// SetBLT toggles the write-back path between two frame commits. Enabling
// before the first commit binds the framebuffer first.
func (l *Loop) SetBLT(ctx context.Context, enable bool) error {
	return l.Exclusive(func() error {
		if enable && !l.session.Stats().Bound {
			if err := l.session.Bind(l.fb); err != nil {
				return err
			}
		}
		return l.session.SetBLT(ctx, enable)
	})
}

// Set3D switches side-by-side 3D between two frame commits. The
// framebuffer is bound first if no frame was committed yet.
func (l *Loop) Set3D(ctx context.Context, enabled bool, width, height int) error {
	return l.Exclusive(func() error {
		if !l.session.Stats().Bound {
			if err := l.session.Bind(l.fb); err != nil {
				return err
			}
		}
		return l.session.Set3D(ctx, enabled, width, height)
	})
}

// SetPower powers the panel off or on between two frame commits. Power-off
// lets the last frame drain and stages the pipe down; power-on re-pushes the
// last bound framebuffer.
func (l *Loop) SetPower(ctx context.Context, on bool) error {
	return l.Exclusive(func() error {
		if on {
			l.session.SetPanelPower(true)
			return l.session.Restore(ctx)
		}
		if err := l.session.WaitForTransferIdle(ctx); err != nil && !l.resync(err) {
			return err
		}
		l.session.Suspend()
		l.session.SetPanelPower(false)
		return nil
	})
}

// Pan blocks until the next frame commit kicked the framebuffer. Only UI
// commits release pan waiters.
func (l *Loop) Pan(ctx context.Context) error {
	if l.mode != ModeUI {
		return dsicmd.NewError(dsicmd.ErrCodeInvalidConfig, "pan needs ui commit mode", nil)
	}
	if !l.session.PanelOn() {
		return dsicmd.NewError(dsicmd.ErrCodePanelOff, "panel is powered off", nil)
	}
	select {
	case <-l.session.RegisterPanWaiter():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the session snapshot.
func (l *Loop) Stats() dsicmd.Stats {
	return l.session.Stats()
}

// BltOffset answers the write-back offset query.
func (l *Loop) BltOffset() (overlay.BltInfo, error) {
	return l.session.BltOffset()
}

// Frames returns the number of committed frames.
func (l *Loop) Frames() uint64 {
	return l.frames.Load()
}

// Errors returns the number of failed commits.
func (l *Loop) Errors() uint64 {
	return l.errors.Load()
}
