package dsicmd

import (
	"fmt"
	"time"

	"github.com/smazurov/dsicmd/internal/overlay"
)

// TimeoutPolicy selects what happens when a completion interrupt never arrives.
type TimeoutPolicy string

// Timeout policies.
const (
	// TimeoutAbort dumps the pipeline registers and terminates through the
	// session abort func. The hardware is assumed wedged.
	TimeoutAbort TimeoutPolicy = "abort"
	// TimeoutReturnError reports ErrCodeHardwareTimeout and lets the next
	// commit re-synchronize.
	TimeoutReturnError TimeoutPolicy = "return_error"
)

// ParseTimeoutPolicy parses a policy name. An empty string selects
// TimeoutReturnError.
func ParseTimeoutPolicy(s string) (TimeoutPolicy, error) {
	switch TimeoutPolicy(s) {
	case "", TimeoutReturnError:
		return TimeoutReturnError, nil
	case TimeoutAbort:
		return TimeoutAbort, nil
	default:
		return TimeoutReturnError, NewError(ErrCodeInvalidConfig, fmt.Sprintf("unknown timeout policy %q", s), nil)
	}
}

// Default timings.
const (
	DefaultVsyncPeriod      = 16667 * time.Microsecond
	DefaultClockIdleTimeout = time.Second
	AbortClockIdleTimeout   = 2 * time.Second
	DefaultRearmSlack       = 100 * time.Millisecond
	DefaultPanelName        = "dsi0"
	DefaultPipeFormat       = "rgb"
)

// Config holds the timing and policy of a panel session. Zero fields take
// defaults derived from VsyncPeriod and TimeoutPolicy.
type Config struct {
	Name string

	// VsyncPeriod is one panel refresh.
	VsyncPeriod time.Duration
	// TransferTimeout bounds a transfer wait. Defaults to two vsyncs.
	TransferTimeout time.Duration
	// ReadbackTimeout bounds a write-back output wait. Defaults to two vsyncs.
	ReadbackTimeout time.Duration
	// ClockIdleTimeout is the watchdog period after which an idle link
	// clock is gated.
	ClockIdleTimeout time.Duration
	// RearmSlack lets the watchdog be re-armed slightly before it expires.
	RearmSlack time.Duration

	TimeoutPolicy TimeoutPolicy
	BltFormat     overlay.BltFormat
	PipeFormat    string
}

// DefaultConfig returns a 60Hz configuration that returns errors on timeout.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = DefaultPanelName
	}
	if c.TimeoutPolicy == "" {
		c.TimeoutPolicy = TimeoutReturnError
	}
	if c.VsyncPeriod == 0 {
		c.VsyncPeriod = DefaultVsyncPeriod
	}
	if c.TransferTimeout == 0 {
		c.TransferTimeout = 2 * c.VsyncPeriod
	}
	if c.ReadbackTimeout == 0 {
		c.ReadbackTimeout = 2 * c.VsyncPeriod
	}
	if c.ClockIdleTimeout == 0 {
		c.ClockIdleTimeout = DefaultClockIdleTimeout
		if c.TimeoutPolicy == TimeoutAbort {
			c.ClockIdleTimeout = AbortClockIdleTimeout
		}
	}
	if c.RearmSlack == 0 {
		c.RearmSlack = DefaultRearmSlack
	}
	if c.PipeFormat == "" {
		c.PipeFormat = DefaultPipeFormat
	}
	return c
}

// Validate checks a configuration after defaults were applied.
func (c Config) Validate() error {
	if _, err := ParseTimeoutPolicy(string(c.TimeoutPolicy)); err != nil {
		return err
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"vsync_period", c.VsyncPeriod},
		{"transfer_timeout", c.TransferTimeout},
		{"readback_timeout", c.ReadbackTimeout},
		{"clock_idle_timeout", c.ClockIdleTimeout},
		{"rearm_slack", c.RearmSlack},
	}
	for _, d := range durations {
		if d.d < 0 {
			return NewError(ErrCodeInvalidConfig, fmt.Sprintf("%s must not be negative, got %s", d.name, d.d), nil)
		}
	}
	if c.RearmSlack >= c.ClockIdleTimeout {
		return NewError(ErrCodeInvalidConfig,
			fmt.Sprintf("rearm_slack %s must be shorter than clock_idle_timeout %s", c.RearmSlack, c.ClockIdleTimeout), nil)
	}
	return nil
}

// ValidateConfig applies defaults to c and validates the result.
func ValidateConfig(c Config) error {
	return c.withDefaults().Validate()
}

// Effective returns c with every zero field replaced by its default.
func (c Config) Effective() Config {
	return c.withDefaults()
}
