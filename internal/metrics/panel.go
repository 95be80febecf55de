// Package metrics provides Prometheus metrics for panel sessions and the
// compositor that drives them.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	kickoffs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dsicmd",
		Subsystem: "panel",
		Name:      "kickoffs_total",
		Help:      "Kickoffs issued, by engine (overlay or readback)",
	}, []string{"panel", "engine"})

	backpressure = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dsicmd",
		Subsystem: "panel",
		Name:      "blt_backpressure_total",
		Help:      "Overlay completions held back because readback was two frames behind",
	}, []string{"panel"})

	bltTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dsicmd",
		Subsystem: "panel",
		Name:      "blt_transitions_total",
		Help:      "Write-back path transitions, by resulting state",
	}, []string{"panel", "state"})

	bltActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dsicmd",
		Subsystem: "panel",
		Name:      "blt_active",
		Help:      "1 while the write-back path is enabled",
	}, []string{"panel"})

	frameSkew = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dsicmd",
		Subsystem: "panel",
		Name:      "blt_frame_skew",
		Help:      "Overlay outputs produced but not yet read back",
	}, []string{"panel"})

	clockGates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dsicmd",
		Subsystem: "panel",
		Name:      "clock_transitions_total",
		Help:      "Link clock domain transitions, by resulting state",
	}, []string{"panel", "state"})

	hardwareTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dsicmd",
		Subsystem: "panel",
		Name:      "hardware_timeouts_total",
		Help:      "Completion waits that exceeded their bound, by signal",
	}, []string{"panel", "signal"})

	waitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dsicmd",
		Subsystem: "panel",
		Name:      "wait_seconds",
		Help:      "Time spent blocked on a completion signal",
		Buckets:   []float64{.0005, .001, .002, .004, .008, .016, .033, .066, .1},
	}, []string{"panel", "signal"})

	panels   = make(map[string]*Panel)
	panelsMu sync.Mutex
)

// Panel holds the metric children of one panel session. Children are
// resolved once so the interrupt path never looks up label values.
type Panel struct {
	name string

	kickOverlay      prometheus.Counter
	kickReadback     prometheus.Counter
	backpressure     prometheus.Counter
	bltEnabled       prometheus.Counter
	bltEnding        prometheus.Counter
	bltDisabled      prometheus.Counter
	bltActive        prometheus.Gauge
	frameSkew        prometheus.Gauge
	clockOn          prometheus.Counter
	clockOff         prometheus.Counter
	transferTimeouts prometheus.Counter
	outputTimeouts   prometheus.Counter
	transferWait     prometheus.Observer
	outputWait       prometheus.Observer
}

// ForPanel returns the metrics of the named panel, creating them on first use.
func ForPanel(name string) *Panel {
	panelsMu.Lock()
	defer panelsMu.Unlock()
	if p, ok := panels[name]; ok {
		return p
	}
	p := &Panel{
		name:             name,
		kickOverlay:      kickoffs.WithLabelValues(name, "overlay"),
		kickReadback:     kickoffs.WithLabelValues(name, "readback"),
		backpressure:     backpressure.WithLabelValues(name),
		bltEnabled:       bltTransitions.WithLabelValues(name, "enabled"),
		bltEnding:        bltTransitions.WithLabelValues(name, "ending"),
		bltDisabled:      bltTransitions.WithLabelValues(name, "disabled"),
		bltActive:        bltActive.WithLabelValues(name),
		frameSkew:        frameSkew.WithLabelValues(name),
		clockOn:          clockGates.WithLabelValues(name, "on"),
		clockOff:         clockGates.WithLabelValues(name, "off"),
		transferTimeouts: hardwareTimeouts.WithLabelValues(name, "transfer"),
		outputTimeouts:   hardwareTimeouts.WithLabelValues(name, "output"),
		transferWait:     waitSeconds.WithLabelValues(name, "transfer"),
		outputWait:       waitSeconds.WithLabelValues(name, "output"),
	}
	panels[name] = p
	return p
}

// DeletePanel removes all metrics of the named panel.
func DeletePanel(name string) {
	panelsMu.Lock()
	delete(panels, name)
	panelsMu.Unlock()

	kickoffs.DeleteLabelValues(name, "overlay")
	kickoffs.DeleteLabelValues(name, "readback")
	backpressure.DeleteLabelValues(name)
	for _, state := range []string{"enabled", "ending", "disabled"} {
		bltTransitions.DeleteLabelValues(name, state)
	}
	bltActive.DeleteLabelValues(name)
	frameSkew.DeleteLabelValues(name)
	clockGates.DeleteLabelValues(name, "on")
	clockGates.DeleteLabelValues(name, "off")
	for _, signal := range []string{"transfer", "output"} {
		hardwareTimeouts.DeleteLabelValues(name, signal)
		waitSeconds.DeleteLabelValues(name, signal)
	}
}

// Name returns the panel label value.
func (p *Panel) Name() string { return p.name }

// OverlayKickoff counts an overlay kickoff.
func (p *Panel) OverlayKickoff() { p.kickOverlay.Inc() }

// ReadbackKickoff counts a readback kickoff and records the skew it left.
func (p *Panel) ReadbackKickoff(skew int) {
	p.kickReadback.Inc()
	p.frameSkew.Set(float64(skew))
}

// Backpressure counts an overlay completion held back by a slow readback.
func (p *Panel) Backpressure(skew int) {
	p.backpressure.Inc()
	p.frameSkew.Set(float64(skew))
}

// ReadbackCaughtUp records that every produced output has been read back.
func (p *Panel) ReadbackCaughtUp() { p.frameSkew.Set(0) }

// BltEnabled records a write-back enable.
func (p *Panel) BltEnabled() {
	p.bltEnabled.Inc()
	p.bltActive.Set(1)
}

// BltEnding records a requested write-back disable.
func (p *Panel) BltEnding() { p.bltEnding.Inc() }

// BltDisabled records a completed write-back disable.
func (p *Panel) BltDisabled() {
	p.bltDisabled.Inc()
	p.bltActive.Set(0)
}

// ClockOn counts the link clock being turned back on.
func (p *Panel) ClockOn() { p.clockOn.Inc() }

// ClockOff counts the link clock being gated by the idle watchdog.
func (p *Panel) ClockOff() { p.clockOff.Inc() }

// TransferTimeout counts a transfer completion that never arrived.
func (p *Panel) TransferTimeout() { p.transferTimeouts.Inc() }

// OutputTimeout counts a readback completion that never arrived.
func (p *Panel) OutputTimeout() { p.outputTimeouts.Inc() }

// ObserveTransferWait records how long a transfer wait blocked.
func (p *Panel) ObserveTransferWait(d time.Duration) { p.transferWait.Observe(d.Seconds()) }

// ObserveOutputWait records how long an output wait blocked.
func (p *Panel) ObserveOutputWait(d time.Duration) { p.outputWait.Observe(d.Seconds()) }
