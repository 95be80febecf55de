package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/dsicmd/internal/events"
)

// panelState is what the manager knows about one panel.
type panelState struct {
	on      bool
	clockOn bool
	blt     bool
	fault   bool
}

// Manager drives the system LED from panel events:
//
//	panel off          system off
//	hardware timeout   system heartbeat until the clock comes back on
//	clock gated        system blink
//	clock running      system solid
//
// The status LED follows the write-back path.
type Manager struct {
	controller Controller
	eventBus   *events.Bus
	panel      string
	logger     *slog.Logger

	mu    sync.Mutex
	state panelState
	unsub []func()
}

// NewManager creates a manager for the named panel.
func NewManager(controller Controller, eventBus *events.Bus, panel string, logger *slog.Logger) *Manager {
	return &Manager{
		controller: controller,
		eventBus:   eventBus,
		panel:      panel,
		logger:     logger,
	}
}

// Start subscribes to panel events.
func (m *Manager) Start() {
	m.mu.Lock()
	m.unsub = append(m.unsub,
		m.eventBus.Subscribe(func(e events.PanelPowerChangedEvent) {
			m.update(e.Panel, func(s *panelState) {
				s.on = e.On
				if !e.On {
					s.clockOn = false
				}
			})
		}),
		m.eventBus.Subscribe(func(e events.ClockStateChangedEvent) {
			m.update(e.Panel, func(s *panelState) {
				s.clockOn = e.On
				if e.On {
					s.fault = false
				}
			})
		}),
		m.eventBus.Subscribe(func(e events.BltStateChangedEvent) {
			m.update(e.Panel, func(s *panelState) {
				s.blt = e.State != events.BltStateDisabled
			})
		}),
		m.eventBus.Subscribe(func(e events.HardwareTimeoutEvent) {
			m.update(e.Panel, func(s *panelState) {
				s.fault = true
			})
		}),
	)
	m.mu.Unlock()
	m.logger.Info("LED manager started", "panel", m.panel)
}

// Stop unsubscribes and switches the LEDs off.
func (m *Manager) Stop() {
	m.mu.Lock()
	for _, unsub := range m.unsub {
		unsub()
	}
	m.unsub = nil
	m.mu.Unlock()

	m.set(System, false, "")
	m.set(Status, false, "")
	m.logger.Info("LED manager stopped")
}

func (m *Manager) update(panel string, apply func(*panelState)) {
	if panel != m.panel {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state
	apply(&m.state)
	s := m.state
	if s == prev {
		return
	}
	m.logger.Debug("Panel state changed",
		"on", s.on, "clock_on", s.clockOn, "blt", s.blt, "fault", s.fault)

	switch {
	case !s.on:
		m.set(System, false, "")
	case s.fault:
		m.set(System, true, PatternHeartbeat)
	case !s.clockOn:
		m.set(System, true, PatternBlink)
	default:
		m.set(System, true, PatternSolid)
	}
	if s.blt != prev.blt {
		m.set(Status, s.blt, PatternSolid)
	}
}

func (m *Manager) set(name string, enabled bool, pattern string) {
	if err := m.controller.Set(name, enabled, pattern); err != nil {
		m.logger.Warn("Failed to set LED", "led", name, "pattern", pattern, "error", err)
	}
}

// Controller returns the underlying LED controller.
func (m *Manager) Controller() Controller {
	return m.controller
}
