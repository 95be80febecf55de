package dsicmd

import "time"

// watchdog is the idle timer of the link clock. All methods are called with
// the session lock held; the timer callback takes the lock itself.
type watchdog struct {
	period time.Duration
	fire   func()
	timer  *time.Timer
	arms   uint64
}

func newWatchdog(period time.Duration, fire func()) *watchdog {
	return &watchdog{period: period, fire: fire}
}

func (w *watchdog) arm() {
	if w.timer == nil {
		w.timer = time.AfterFunc(w.period, w.fire)
	} else {
		w.timer.Reset(w.period)
	}
	w.arms++
}

func (w *watchdog) stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}

// rearmLocked re-arms the watchdog unless it was armed within the last
// period minus the re-arm slack.
func (s *Session) rearmLocked() {
	now := s.now()
	if now.Before(s.armDeadline) {
		return
	}
	s.watchdog.arm()
	s.armDeadline = now.Add(s.cfg.ClockIdleTimeout - s.cfg.RearmSlack)
}

// clockIdle runs when the watchdog expires. It gates the link clock if the
// panel was playing and nobody is waiting on a transfer.
func (s *Session) clockIdle() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.transferWaiters > 0 {
		s.watchdog.arm()
		s.mu.Unlock()
		return
	}
	if !s.backend.Clock.Enabled() || s.playState != Playing {
		s.mu.Unlock()
		return
	}
	s.backend.Clock.Disable()
	s.playState = ClockOff
	s.stats.clockOffs++
	s.mu.Unlock()

	s.metrics.ClockOff()
	s.logger.Debug("Link clock gated after idle period", "period", s.cfg.ClockIdleTimeout)
	s.publishClock(false, ClockOff)
}
