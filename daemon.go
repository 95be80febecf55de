package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/smazurov/dsicmd/cmd"
	"github.com/smazurov/dsicmd/internal/api"
	"github.com/smazurov/dsicmd/internal/config"
	"github.com/smazurov/dsicmd/internal/events"
	"github.com/smazurov/dsicmd/internal/led"
	"github.com/smazurov/dsicmd/internal/logging"
	"github.com/smazurov/dsicmd/internal/metrics"
	"github.com/smazurov/dsicmd/internal/metrics/exporters"
	"github.com/smazurov/dsicmd/internal/systemd"
	"github.com/smazurov/dsicmd/internal/version"
)

// daemon owns the panel stack and everything serving it.
type daemon struct {
	opts   *Options
	logger *slog.Logger

	bus      *events.Bus
	stack    *cmd.Stack
	server   *api.Server
	watcher  *config.Watcher[config.BltSettings]
	leds     *led.Manager
	notifier *systemd.Notifier

	ctx    context.Context
	cancel context.CancelFunc
}

func newDaemon(opts *Options, logger *slog.Logger) (*daemon, error) {
	d := &daemon{
		opts:     opts,
		logger:   logger,
		bus:      events.New(),
		notifier: systemd.NewNotifier(logging.GetLogger("systemd")),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	logging.SetLogCallback(func(entry logging.LogEntry) {
		d.bus.Publish(api.LogEvent(entry))
	})
	metrics.ExportEventDrops(d.bus.Dropped)

	simOpts, err := opts.simOptions()
	if err != nil {
		return nil, err
	}
	if d.stack, err = cmd.NewStack(opts.panelSettings(), simOpts, d.bus); err != nil {
		return nil, err
	}

	var ledController led.Controller
	if opts.FeaturesLEDControl {
		logger.Info("LED control enabled, initializing")
		ledLogger := logging.GetLogger("led")
		ledController = led.New(ledLogger)
		d.leds = led.NewManager(ledController, d.bus, d.stack.Panel.Name, ledLogger)
	}

	d.server = api.NewServer(&api.Options{
		AuthUsername:      opts.AuthUsername,
		AuthPassword:      opts.AuthPassword,
		Panel:             d.stack.Loop,
		EventBus:          d.bus,
		PrometheusHandler: exporters.HTTPHandler(),
		LEDController:     ledController,
	})

	// Only [blt] is applied at runtime; panel geometry needs a restart
	d.watcher = config.NewConfigWatcher(opts.Config, config.LoadBltConfig, logging.GetLogger("config"))
	d.watcher.OnReload(d.applyBlt)

	return d, nil
}

func (d *daemon) applyBlt(blt config.BltSettings) {
	ctx, cancel := context.WithTimeout(d.ctx, 2*time.Second)
	defer cancel()
	if err := d.stack.Loop.SetBLT(ctx, blt.Enabled); err != nil {
		d.logger.Warn("Failed to apply write-back setting", "enabled", blt.Enabled, "error", err)
		return
	}
	d.logger.Info("Write-back setting applied", "enabled", blt.Enabled)
}

// run powers the panel, starts the compositor and the watchers, and serves
// the API until shutdown.
func (d *daemon) run() error {
	panel := d.stack.Panel.Name
	d.logger.Info("Starting dsicmd", "version", version.String(), "panel", panel)

	if d.leds != nil {
		d.leds.Start()
	}

	d.stack.Session.SetPanelPower(true)
	if d.opts.BltEnabled {
		if err := d.stack.Loop.SetBLT(d.ctx, true); err != nil {
			d.logger.Warn("Failed to enable write-back", "error", err)
		}
	}
	d.stack.Loop.Start(d.ctx)

	if err := d.watcher.Start(); err != nil {
		d.logger.Warn("Config watcher not started", "path", d.opts.Config, "error", err)
	}

	d.notifier.Status(fmt.Sprintf("panel %s on, serving %s", panel, d.opts.Port))
	d.notifier.Ready()
	d.notifier.StartWatchdog(d.ctx, d.stack.Session.PanelOn)

	d.logger.Info("Starting HTTP server", "port", d.opts.Port)
	return d.server.Start(d.opts.Port)
}

func (d *daemon) shutdown() {
	d.logger.Info("Shutting down")
	d.notifier.Stopping()

	if err := d.server.Stop(); err != nil {
		d.logger.Error("Error stopping HTTP server", "error", err)
	}
	if err := d.watcher.Stop(); err != nil {
		d.logger.Warn("Error stopping config watcher", "error", err)
	}

	d.cancel()
	d.stack.Loop.Stop()
	d.stack.Session.SetPanelPower(false)
	d.stack.Close()
	d.notifier.Wait()

	if d.leds != nil {
		d.leds.Stop()
	}
}
