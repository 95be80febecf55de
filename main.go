package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/dsicmd/cmd"
	"github.com/smazurov/dsicmd/internal/config"
	"github.com/smazurov/dsicmd/internal/hw/sim"
	"github.com/smazurov/dsicmd/internal/logging"
	"github.com/smazurov/dsicmd/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Panel settings
	PanelName             string `help:"Panel session name" default:"dsi0" toml:"panel.name" env:"PANEL_NAME"`
	PanelWidth            int    `help:"Panel width in pixels" default:"480" toml:"panel.width" env:"PANEL_WIDTH"`
	PanelHeight           int    `help:"Panel height in pixels" default:"800" toml:"panel.height" env:"PANEL_HEIGHT"`
	PanelBitsPerPixel     int    `help:"Framebuffer depth" default:"32" toml:"panel.bits_per_pixel" env:"PANEL_BITS_PER_PIXEL"`
	PanelRefreshRate      string `help:"Panel refresh rate" default:"60Hz" toml:"panel.refresh_rate" env:"PANEL_REFRESH_RATE"`
	PanelTotalLines       int    `help:"Lines per frame including porches, 0 for height" default:"0" toml:"panel.total_lines" env:"PANEL_TOTAL_LINES"`
	PanelTimeoutPolicy    string `help:"Hardware timeout policy (abort, return_error)" default:"return_error" toml:"panel.timeout_policy" env:"PANEL_TIMEOUT_POLICY"`
	PanelClockIdleTimeout string `help:"Idle time before the link clock is gated" default:"" toml:"panel.clock_idle_timeout" env:"PANEL_CLOCK_IDLE_TIMEOUT"`
	PanelBltFormat        string `help:"Write-back pixel format (rgb565, rgb888)" default:"rgb888" toml:"panel.blt_format" env:"PANEL_BLT_FORMAT"`
	PanelTearCheck        bool   `help:"Enable tear checking" default:"true" toml:"panel.tear_check" env:"PANEL_TEAR_CHECK"`
	PanelVsyncAdjust      int    `help:"Lines the tear-check start line leads the destination" default:"4" toml:"panel.vsync_adjust" env:"PANEL_VSYNC_ADJUST"`
	PanelTEPin            string `help:"GPIO carrying the panel TE signal" default:"" toml:"panel.te_pin" env:"PANEL_TE_PIN"`
	PanelMode             string `help:"Compositor mode (ui, video)" default:"ui" toml:"panel.mode" env:"PANEL_MODE"`

	// Write-back settings, reloaded at runtime
	BltEnabled bool `help:"Enable write-back at startup" default:"false" toml:"blt.enabled" env:"BLT_ENABLED"`

	// Simulated hardware settings
	SimOverlayLatency  string `help:"Simulated overlay latency" default:"2ms" toml:"sim.overlay_latency" env:"SIM_OVERLAY_LATENCY"`
	SimReadbackLatency string `help:"Simulated readback latency" default:"3ms" toml:"sim.readback_latency" env:"SIM_READBACK_LATENCY"`
	SimTransferLatency string `help:"Simulated link transfer latency" default:"1ms" toml:"sim.transfer_latency" env:"SIM_TRANSFER_LATENCY"`

	// Features settings
	FeaturesLEDControl bool `help:"Enable LED control" default:"false" toml:"features.led_control_enabled" env:"FEATURES_LED_CONTROL"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingBufferSize int    `help:"Log entries kept for /api/logs" default:"1000" toml:"logging.buffer_size" env:"LOGGING_BUFFER_SIZE"`
	LoggingDsicmd     string `help:"Panel session logging level" default:"info" toml:"logging.dsicmd" env:"LOGGING_DSICMD"`
	LoggingSim        string `help:"Simulated hardware logging level" default:"info" toml:"logging.sim" env:"LOGGING_SIM"`
	LoggingCompositor string `help:"Compositor logging level" default:"info" toml:"logging.compositor" env:"LOGGING_COMPOSITOR"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingConfig     string `help:"Config watcher logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
	LoggingLED        string `help:"LED logging level" default:"info" toml:"logging.led" env:"LOGGING_LED"`
}

func (o *Options) panelSettings() config.PanelSettings {
	return config.PanelSettings{
		Name:             o.PanelName,
		Width:            o.PanelWidth,
		Height:           o.PanelHeight,
		BitsPerPixel:     o.PanelBitsPerPixel,
		RefreshRate:      o.PanelRefreshRate,
		TotalLines:       o.PanelTotalLines,
		TimeoutPolicy:    o.PanelTimeoutPolicy,
		ClockIdleTimeout: o.PanelClockIdleTimeout,
		BltFormat:        o.PanelBltFormat,
		TearCheck:        o.PanelTearCheck,
		VsyncAdjust:      o.PanelVsyncAdjust,
		TEPin:            o.PanelTEPin,
		Mode:             o.PanelMode,
	}
}

func (o *Options) simOptions() (sim.Options, error) {
	opts := sim.DefaultOptions()
	for _, d := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"sim.overlay_latency", o.SimOverlayLatency, &opts.OverlayLatency},
		{"sim.readback_latency", o.SimReadbackLatency, &opts.ReadbackLatency},
		{"sim.transfer_latency", o.SimTransferLatency, &opts.TransferLatency},
	} {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return opts, fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	return opts, nil
}

func main() {
	var root *cobra.Command

	// Create Huma CLI
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, root); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Initialize logging system
		logging.Initialize(logging.Config{
			Level:      opts.LoggingLevel,
			Format:     opts.LoggingFormat,
			BufferSize: opts.LoggingBufferSize,
			Modules: map[string]string{
				"dsicmd":     opts.LoggingDsicmd,
				"sim":        opts.LoggingSim,
				"compositor": opts.LoggingCompositor,
				"api":        opts.LoggingAPI,
				"config":     opts.LoggingConfig,
				"led":        opts.LoggingLED,
			},
		})
		logger := logging.GetLogger("main")

		var running atomic.Pointer[daemon]
		hooks.OnStart(func() {
			d, err := newDaemon(opts, logger)
			if err != nil {
				logger.Error("Failed to create panel session", "error", err)
				os.Exit(1)
			}
			running.Store(d)
			if err := d.run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			if d := running.Load(); d != nil {
				d.shutdown()
			}
		})
	})
	root = cli.Root()
	root.Use = "dsicmd"
	root.Version = version.String()

	cli.Root().AddCommand(cmd.CreateSimulateCmd())
	cli.Root().AddCommand(cmd.CreateCheckConfigCmd())

	// Run the CLI
	cli.Run()
}
