package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dsicmd",
		Subsystem: "compositor",
		Name:      "frames_total",
		Help:      "Frames committed by the compositor loop",
	}, []string{"panel"})

	commitErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dsicmd",
		Subsystem: "compositor",
		Name:      "commit_errors_total",
		Help:      "Frame commits that returned an error",
	}, []string{"panel"})
)

// IncFramesCommitted counts a committed frame.
func IncFramesCommitted(panel string) {
	framesCommitted.WithLabelValues(panel).Inc()
}

// IncCommitErrors counts a failed frame commit.
func IncCommitErrors(panel string) {
	commitErrors.WithLabelValues(panel).Inc()
}
