package models

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status: ok or degraded"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.2.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc123" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"42" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go runtime version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Panel models
type BltStatus struct {
	Addr      uint32 `json:"addr" example:"1207959552" doc:"Write-back base address, zero when disabled"`
	Ending    bool   `json:"ending" example:"false" doc:"Disable requested, waiting for the last frame to drain"`
	OvCount   int    `json:"ov_count" example:"12" doc:"Frames written by the overlay"`
	DmapCount int    `json:"dmap_count" example:"11" doc:"Frames read back to the panel"`
	Skew      int    `json:"skew" example:"1" doc:"Frames written but not yet read back (0..2)"`
}

type PanelCounters struct {
	KickoffOverlay  uint64 `json:"kickoff_ov0" doc:"Overlay kickoffs"`
	KickoffReadback uint64 `json:"kickoff_dmap" doc:"Write-back readback kickoffs"`
	BltEnables      uint64 `json:"blt_enable" doc:"Write-back enables"`
	BltDisables     uint64 `json:"blt_disable" doc:"Write-back teardowns"`
	Backpressure    uint64 `json:"backpressure" doc:"Overlay completions refused because the readback fell behind"`
	ClockOffs       uint64 `json:"clock_off" doc:"Idle clock gatings"`
	Timeouts        uint64 `json:"timeouts" doc:"Hardware timeouts"`
	WatchdogArms    uint64 `json:"watchdog_arms" doc:"Clock watchdog arms"`
	Frames          uint64 `json:"frames" doc:"Frames committed by the compositor"`
	CommitErrors    uint64 `json:"commit_errors" doc:"Failed frame commits"`
}

type PanelStatus struct {
	Panel          string        `json:"panel" example:"dsi0" doc:"Panel session name"`
	PanelOn        bool          `json:"panel_on" example:"true" doc:"Whether the panel is powered"`
	Bound          bool          `json:"bound" example:"true" doc:"Whether an overlay pipe is allocated"`
	ClockOn        bool          `json:"clock_on" example:"true" doc:"Whether the link clock is running"`
	PlayState      string        `json:"play_state" example:"playing" enum:"idle,playing,clock_off" doc:"Play state"`
	TransferBusy   bool          `json:"transfer_busy" doc:"A panel transfer is in flight"`
	OutputBusy     bool          `json:"output_busy" doc:"A write-back output is in flight"`
	PendingWaiters int           `json:"pending_waiters" doc:"Callers blocked on a completion"`
	Blt            BltStatus     `json:"blt" doc:"Write-back path state"`
	Counters       PanelCounters `json:"counters" doc:"Diagnostic counters"`
}

type PanelStatusResponse struct {
	Body PanelStatus
}

type BltRequestData struct {
	Enable bool `json:"enable" example:"true" doc:"Enable or disable the write-back path"`
}

type BltRequest struct {
	Body BltRequestData
}

type BltOffsetData struct {
	Offset uint32 `json:"offset" example:"0" doc:"Offset of the write-back frame"`
	Width  int    `json:"width" example:"480" doc:"Frame width in pixels"`
	Height int    `json:"height" example:"800" doc:"Frame height in pixels"`
	Bpp    int    `json:"bpp" example:"4" doc:"Bytes per pixel"`
}

type BltOffsetResponse struct {
	Body BltOffsetData
}

type Panel3DRequestData struct {
	Enabled bool `json:"enabled" example:"true" doc:"Enable side-by-side 3D"`
	Width   int  `json:"width,omitempty" example:"960" doc:"3D source width, required when enabling"`
	Height  int  `json:"height,omitempty" example:"540" doc:"3D source height, required when enabling"`
}

type Panel3DRequest struct {
	Body Panel3DRequestData
}

type PanelPowerRequestData struct {
	On bool `json:"on" example:"false" doc:"Power the panel on (resume) or off (suspend)"`
}

type PanelPowerRequest struct {
	Body PanelPowerRequestData
}

type PanRequest struct {
	TimeoutMs int `query:"timeout_ms" default:"1000" minimum:"1" maximum:"10000" doc:"How long to wait for the next frame, in milliseconds"`
}

// Logging models
type LogLevelsData struct {
	Modules map[string]string `json:"modules" doc:"Current level per module"`
}

type LogLevelsResponse struct {
	Body LogLevelsData
}

type SetLogLevelRequest struct {
	Module string `path:"module" example:"dsicmd" doc:"Logger module"`
	Body   struct {
		Level string `json:"level" enum:"debug,info,warn,error" example:"debug" doc:"New level"`
	}
}

type LogsStreamInput struct {
	Since  uint64 `query:"since" doc:"Only replay buffered entries after this sequence number"`
	Module string `query:"module" example:"dsicmd" doc:"Only entries from this module"`
	Panel  string `query:"panel" example:"dsi0" doc:"Only entries concerning this panel"`
}

// Matches reports whether a log entry passes the stream filters.
func (in *LogsStreamInput) Matches(module, panel string) bool {
	return (in.Module == "" || in.Module == module) && (in.Panel == "" || in.Panel == panel)
}

type EventsStreamInput struct {
	Panel string `query:"panel" example:"dsi0" doc:"Only events of this panel"`
}

// LED models
type LEDRequest struct {
	Body struct {
		Name    string `json:"name" example:"status" doc:"LED name from /api/leds/capabilities"`
		Enabled bool   `json:"enabled" example:"true" doc:"Whether the LED should be on"`
		Pattern string `json:"pattern,omitempty" example:"heartbeat" doc:"Pattern or raw kernel trigger, empty keeps the current one"`
	}
}

type LEDCapabilities struct {
	Available []string `json:"available" doc:"LED names available on this board"`
	Patterns  []string `json:"patterns" doc:"Named patterns available on this board"`
}

type LEDCapabilitiesResponse struct {
	Body LEDCapabilities
}
