package dsicmd

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Name != DefaultPanelName {
		t.Errorf("Name = %q, want %q", cfg.Name, DefaultPanelName)
	}
	if cfg.TimeoutPolicy != TimeoutReturnError {
		t.Errorf("TimeoutPolicy = %s, want return_error", cfg.TimeoutPolicy)
	}
	if cfg.TransferTimeout != 2*DefaultVsyncPeriod || cfg.ReadbackTimeout != 2*DefaultVsyncPeriod {
		t.Errorf("timeouts = %s/%s, want two vsyncs", cfg.TransferTimeout, cfg.ReadbackTimeout)
	}
	if cfg.ClockIdleTimeout != DefaultClockIdleTimeout {
		t.Errorf("ClockIdleTimeout = %s, want %s", cfg.ClockIdleTimeout, DefaultClockIdleTimeout)
	}

	slow := Config{VsyncPeriod: 33 * time.Millisecond, TimeoutPolicy: TimeoutAbort}.withDefaults()
	if slow.TransferTimeout != 66*time.Millisecond {
		t.Errorf("TransferTimeout = %s, want 66ms", slow.TransferTimeout)
	}
	if slow.ClockIdleTimeout != AbortClockIdleTimeout {
		t.Errorf("ClockIdleTimeout = %s, want %s", slow.ClockIdleTimeout, AbortClockIdleTimeout)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"negative transfer timeout", Config{TransferTimeout: -time.Millisecond}, true},
		{"slack longer than idle", Config{ClockIdleTimeout: 50 * time.Millisecond, RearmSlack: 50 * time.Millisecond}, true},
		{"unknown policy", Config{TimeoutPolicy: "retry"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.withDefaults().Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsCode(err, ErrCodeInvalidConfig) {
				t.Errorf("Validate() error code = %v, want %s", err, ErrCodeInvalidConfig)
			}
		})
	}
}

func TestParseTimeoutPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeoutPolicy
		wantErr bool
	}{
		{"", TimeoutReturnError, false},
		{"return_error", TimeoutReturnError, false},
		{"abort", TimeoutAbort, false},
		{"panic", TimeoutReturnError, true},
	}
	for _, tt := range tests {
		got, err := ParseTimeoutPolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseTimeoutPolicy(%q) = %s, %v", tt.in, got, err)
		}
	}
}

func TestNewSessionRequiresBackend(t *testing.T) {
	f := newFakeHW()
	b := f.backend()
	b.Clock = nil

	_, err := NewSession(Config{}, b)
	if !IsCode(err, ErrCodeInvalidConfig) {
		t.Errorf("NewSession() error = %v, want %s", err, ErrCodeInvalidConfig)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewError(ErrCodePipeAlloc, "allocate rgb pipe", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is() does not reach the cause")
	}
	if got := err.Error(); got != "PIPE_ALLOC_FAILED: allocate rgb pipe: boom" {
		t.Errorf("Error() = %q", got)
	}
	if IsCode(cause, ErrCodePipeAlloc) {
		t.Error("IsCode() matched a plain error")
	}
}

func TestPlayStateJSON(t *testing.T) {
	for _, state := range []PlayState{Idle, Playing, ClockOff} {
		data, err := json.Marshal(Stats{PlayState: state})
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		if want := `"play_state":"` + state.String() + `"`; !strings.Contains(string(data), want) {
			t.Errorf("Stats JSON %s does not contain %s", data, want)
		}
	}
}
