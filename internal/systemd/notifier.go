// Package systemd reports daemon state to the service manager through
// sd_notify.
package systemd

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends readiness, status and watchdog messages. Outside a
// systemd unit every call is a no-op.
type Notifier struct {
	logger *slog.Logger

	notify   func(unsetEnvironment bool, state string) (bool, error)
	watchdog func(unsetEnvironment bool) (time.Duration, error)

	wg sync.WaitGroup
}

// NewNotifier creates a notifier bound to $NOTIFY_SOCKET.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{
		logger:   logger,
		notify:   daemon.SdNotify,
		watchdog: daemon.SdWatchdogEnabled,
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(false, state)
	switch {
	case err != nil:
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
	case sent:
		n.logger.Debug("sd_notify sent", "state", state)
	}
}

// Ready reports that the panel session is up.
func (n *Notifier) Ready() {
	n.send(daemon.SdNotifyReady)
}

// Stopping reports that shutdown has begun.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// Status sets the free-form unit status line.
func (n *Notifier) Status(msg string) {
	n.send("STATUS=" + msg)
}

// StartWatchdog pings the service manager at half the configured
// WatchdogSec while healthy reports true, until ctx is done. It returns
// false when no watchdog is configured for the unit.
func (n *Notifier) StartWatchdog(ctx context.Context, healthy func() bool) bool {
	interval, err := n.watchdog(false)
	if err != nil {
		n.logger.Warn("Invalid watchdog configuration", "error", err)
		return false
	}
	if interval <= 0 {
		return false
	}

	period := interval / 2
	n.logger.Info("Systemd watchdog enabled", "interval", interval, "ping", period)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if healthy() {
					n.send(daemon.SdNotifyWatchdog)
				} else {
					n.logger.Warn("Skipping watchdog ping, panel unhealthy")
				}
			}
		}
	}()
	return true
}

// Wait blocks until the watchdog goroutine has exited.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
