// Package dsicmd is the kickoff and synchronization core of a command-mode
// panel session.
//
// A Session hands composed frames to the panel transfer engine and keeps
// that hand-off in step with the completion interrupts raised by the display
// processor. Thread-context callers commit frames and wait for completions;
// the interrupt dispatcher calls OverlayDone and ReadbackDone. Both sides
// meet under one session lock and two single-permit completion signals.
//
// When the write-back (BLT) path is enabled, the overlay output is captured
// into a two-slot buffer and read back before transfer. The slots alternate
// by counter parity and the producer is never allowed to run more than two
// frames ahead of the readback consumer.
//
// An idle watchdog gates the shared link clock after a period without
// transfer activity. It is re-armed by every transfer wait.
package dsicmd

import (
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/dsicmd/internal/events"
	"github.com/smazurov/dsicmd/internal/hw"
	"github.com/smazurov/dsicmd/internal/logging"
	"github.com/smazurov/dsicmd/internal/metrics"
	"github.com/smazurov/dsicmd/internal/overlay"
)

// Publisher receives session events.
type Publisher interface {
	Publish(ev events.Event)
}

// Backend bundles the hardware collaborators of a session. Engine, Clock,
// Writeback, Pipes and Configurator are required.
type Backend struct {
	Engine       hw.Engine
	Clock        hw.Clock
	Writeback    hw.WritebackAllocator
	Pipes        hw.PipeAllocator
	Configurator hw.PipeConfigurator

	Perf   hw.PerfController
	Link   hw.LinkWaiter
	Tear   hw.TearControl
	Dumper hw.RegisterDumper
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithPublisher sets where session events are published.
func WithPublisher(p Publisher) Option {
	return func(s *Session) {
		s.publisher = p
	}
}

// WithAbortFunc replaces the function called on a hardware timeout under
// TimeoutAbort. The default panics.
func WithAbortFunc(fn func(error)) Option {
	return func(s *Session) {
		s.abort = fn
	}
}

// WithClock replaces the time source used by the watchdog throttle.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// Session is one command-mode panel session.
type Session struct {
	cfg       Config
	backend   Backend
	logger    *slog.Logger
	publisher Publisher
	metrics   *metrics.Panel
	abort     func(error)
	now       func() time.Time

	mu             sync.Mutex
	pipe           *overlay.Pipe
	fb             overlay.Framebuffer
	panelOn        bool
	closed         bool
	transferBusy    bool
	outputBusy      bool
	transferWaiters int
	outputWaiters   int
	playState       PlayState
	armDeadline     time.Time
	panWaiter       chan struct{}
	stats           counters

	transferDone *signal
	outputDone   *signal
	watchdog     *watchdog
}

// NewSession creates a panel session. The panel starts powered off and
// without a bound pipe.
func NewSession(cfg Config, backend Backend, opts ...Option) (*Session, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backend.Engine == nil || backend.Clock == nil || backend.Writeback == nil ||
		backend.Pipes == nil || backend.Configurator == nil {
		return nil, NewError(ErrCodeInvalidConfig, "backend is missing a required collaborator", nil)
	}

	s := &Session{
		cfg:          cfg,
		backend:      backend,
		logger:       logging.GetLogger("dsicmd"),
		abort:        func(err error) { panic(err) },
		now:          time.Now,
		metrics:      metrics.ForPanel(cfg.Name),
		transferDone: newSignal(),
		outputDone:   newSignal(),
		playState:    Idle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("panel", cfg.Name)
	s.watchdog = newWatchdog(cfg.ClockIdleTimeout, s.clockIdle)
	return s, nil
}

// Config returns the effective session configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// Close stops the watchdog. The session must not be used afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.watchdog.stop()
	s.mu.Unlock()
	s.logger.Debug("Session closed")
}

// SetPanelPower records the panel power state set by the panel driver.
func (s *Session) SetPanelPower(on bool) {
	s.mu.Lock()
	changed := s.panelOn != on
	s.panelOn = on
	if !on {
		s.playState = Idle
	}
	s.mu.Unlock()

	if changed {
		s.logger.Info("Panel power changed", "on", on)
		s.publish(events.PanelPowerChangedEvent{Panel: s.cfg.Name, On: on, Timestamp: timestamp()})
	}
}

// PanelOn reports whether the panel is powered.
func (s *Session) PanelOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panelOn
}

// RegisterPanWaiter returns a channel closed after the next display commit
// kicked a frame.
func (s *Session) RegisterPanWaiter() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panWaiter == nil {
		s.panWaiter = make(chan struct{})
	}
	return s.panWaiter
}

func (s *Session) releasePanWaiter() {
	s.mu.Lock()
	ch := s.panWaiter
	s.panWaiter = nil
	s.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// Stats returns a snapshot of the session state and counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Panel:           s.cfg.Name,
		PanelOn:         s.panelOn,
		Bound:           s.pipe != nil,
		ClockOn:         s.backend.Clock.Enabled(),
		PlayState:       s.playState,
		TransferBusy:    s.transferBusy,
		OutputBusy:      s.outputBusy,
		PendingWaiters:  s.transferWaiters + s.outputWaiters,
		KickoffOverlay:  s.stats.kickoffOverlay,
		KickoffReadback: s.stats.kickoffReadback,
		BltEnables:      s.stats.bltEnables,
		BltDisables:     s.stats.bltDisables,
		Backpressure:    s.stats.backpressure,
		ClockOffs:       s.stats.clockOffs,
		Timeouts:        s.stats.timeouts,
		WatchdogArms:    s.watchdog.arms,
	}
	if p := s.pipe; p != nil {
		st.BltAddr = p.BltAddr
		st.BltEnding = p.BltEnding
		st.OvCount = p.OvCount
		st.DmapCount = p.DmapCount
		st.BltCount = p.BltCount
	}
	return st
}

// ensureClockLocked turns the link clock back on. It reports whether the
// clock was off.
func (s *Session) ensureClockLocked() bool {
	if s.backend.Clock.Enabled() {
		return false
	}
	s.backend.Clock.Enable()
	s.playState = Playing
	s.metrics.ClockOn()
	return true
}

func (s *Session) publishClock(on bool, state PlayState) {
	s.publish(events.ClockStateChangedEvent{
		Panel:     s.cfg.Name,
		On:        on,
		PlayState: state.String(),
		Timestamp: timestamp(),
	})
}

func (s *Session) publishBlt(state string, addr uint32) {
	s.publish(events.BltStateChangedEvent{
		Panel:     s.cfg.Name,
		State:     state,
		Addr:      addr,
		Timestamp: timestamp(),
	})
}

func (s *Session) publish(ev events.Event) {
	if s.publisher != nil {
		s.publisher.Publish(ev)
	}
}

func timestamp() string {
	return time.Now().Format(time.RFC3339)
}
