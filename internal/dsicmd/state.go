package dsicmd

// PlayState tracks whether the panel is actively receiving frames.
type PlayState string

// Play states.
const (
	Idle     PlayState = "idle"      // No frame committed since power-on
	Playing  PlayState = "playing"   // Frames flowing, link clock on
	ClockOff PlayState = "clock_off" // Link clock gated by the watchdog
)

func (s PlayState) String() string {
	return string(s)
}

// Stats is a point-in-time snapshot of a panel session.
type Stats struct {
	Panel          string    `json:"panel"`
	PanelOn        bool      `json:"panel_on"`
	Bound          bool      `json:"bound"`
	ClockOn        bool      `json:"clock_on"`
	PlayState      PlayState `json:"play_state"`
	TransferBusy   bool      `json:"transfer_busy"`
	OutputBusy     bool      `json:"output_busy"`
	PendingWaiters int       `json:"pending_waiters"`

	BltAddr   uint32 `json:"blt_addr"`
	BltEnding bool   `json:"blt_ending"`
	OvCount   int    `json:"ov_count"`
	DmapCount int    `json:"dmap_count"`
	BltCount  int    `json:"blt_count"`

	KickoffOverlay  uint64 `json:"kickoff_ov0"`
	KickoffReadback uint64 `json:"kickoff_dmap"`
	BltEnables      uint64 `json:"blt_enable"`
	BltDisables     uint64 `json:"blt_disable"`
	Backpressure    uint64 `json:"backpressure"`
	ClockOffs       uint64 `json:"clock_off"`
	Timeouts        uint64 `json:"timeouts"`
	WatchdogArms    uint64 `json:"watchdog_arms"`
}

// counters are the diagnostic counters kept under the session lock.
type counters struct {
	kickoffOverlay  uint64
	kickoffReadback uint64
	bltEnables      uint64
	bltDisables     uint64
	backpressure    uint64
	clockOffs       uint64
	timeouts        uint64
}
