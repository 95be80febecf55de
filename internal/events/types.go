package events

// Event type constants for kelindar/event.
const (
	TypeBltStateChanged uint32 = iota + 1
	TypeClockStateChanged
	TypeHardwareTimeout
	TypePanelPowerChanged
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// BLT states carried by BltStateChangedEvent.
const (
	BltStateEnabled  = "enabled"
	BltStateEnding   = "ending"
	BltStateDisabled = "disabled"
)

// BltStateChangedEvent is published when the write-back path of a panel
// is enabled, marked for disable, or fully torn down.
type BltStateChangedEvent struct {
	Panel     string `json:"panel" example:"dsi0" doc:"Panel session name"`
	State     string `json:"state" example:"enabled" doc:"One of enabled, ending, disabled"`
	Addr      uint32 `json:"addr" example:"1207959552" doc:"Write-back base address, zero when disabled"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for BltStateChangedEvent.
func (e BltStateChangedEvent) Type() uint32 { return TypeBltStateChanged }

// PanelName returns the panel the event concerns.
func (e BltStateChangedEvent) PanelName() string { return e.Panel }

// ClockStateChangedEvent is published when the link clock domain is gated
// off by the idle watchdog or turned back on by a kickoff.
type ClockStateChangedEvent struct {
	Panel     string `json:"panel" example:"dsi0" doc:"Panel session name"`
	On        bool   `json:"on" example:"false" doc:"Whether the clock domain is on"`
	PlayState string `json:"play_state" example:"clock_off" doc:"Play state after the change"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ClockStateChangedEvent.
func (e ClockStateChangedEvent) Type() uint32 { return TypeClockStateChanged }

// PanelName returns the panel the event concerns.
func (e ClockStateChangedEvent) PanelName() string { return e.Panel }

// HardwareTimeoutEvent is published when a completion interrupt never arrived.
type HardwareTimeoutEvent struct {
	Panel     string `json:"panel" example:"dsi0" doc:"Panel session name"`
	Signal    string `json:"signal" example:"transfer" doc:"Signal that timed out: transfer or output"`
	Timeout   string `json:"timeout" example:"33ms" doc:"Bound that was exceeded"`
	Policy    string `json:"policy" example:"return_error" doc:"Timeout policy in effect"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for HardwareTimeoutEvent.
func (e HardwareTimeoutEvent) Type() uint32 { return TypeHardwareTimeout }

// PanelName returns the panel the event concerns.
func (e HardwareTimeoutEvent) PanelName() string { return e.Panel }

// PanelPowerChangedEvent is published when the panel is powered on or off.
type PanelPowerChangedEvent struct {
	Panel     string `json:"panel" example:"dsi0" doc:"Panel session name"`
	On        bool   `json:"on" example:"true" doc:"Whether the panel is powered"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PanelPowerChangedEvent.
func (e PanelPowerChangedEvent) Type() uint32 { return TypePanelPowerChanged }

// PanelName returns the panel the event concerns.
func (e PanelPowerChangedEvent) PanelName() string { return e.Panel }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"dsicmd" doc:"Source module"`
	Panel      string         `json:"panel,omitempty" example:"dsi0" doc:"Panel the entry concerns, if any"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
