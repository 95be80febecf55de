package led

import (
	"fmt"
	"log/slog"
	"sync"
)

// State is the last value set on an LED.
type State struct {
	On      bool
	Pattern string
}

// virtual implements Controller for boards without usable LEDs. It keeps
// the state the manager asked for so it can be inspected and logged.
type virtual struct {
	logger *slog.Logger

	mu    sync.Mutex
	state map[string]State
}

func newVirtual(logger *slog.Logger) *virtual {
	return &virtual{
		logger: logger,
		state:  map[string]State{System: {}, Status: {}},
	}
}

func (v *virtual) Set(name string, enabled bool, pattern string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	prev, ok := v.state[name]
	if !ok {
		return fmt.Errorf("LED %q not supported on this board", name)
	}
	next := State{On: enabled, Pattern: prev.Pattern}
	if pattern != "" {
		next.Pattern = pattern
	}
	if next != prev {
		v.logger.Debug("Virtual LED changed", "led", name, "on", next.On, "pattern", next.Pattern)
	}
	v.state[name] = next
	return nil
}

// State returns the last state set on name.
func (v *virtual) State(name string) (State, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.state[name]
	return s, ok
}

func (v *virtual) Available() []string {
	return []string{Status, System}
}

func (v *virtual) Patterns() []string {
	return []string{PatternSolid, PatternBlink, PatternHeartbeat}
}
