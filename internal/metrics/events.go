package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventDropsOnce sync.Once

// ExportEventDrops exports the count returned by dropped, the number of
// events stream clients missed. Only the first call registers.
func ExportEventDrops(dropped func() uint64) {
	eventDropsOnce.Do(func() {
		promauto.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "dsicmd",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events not delivered to a stream client whose buffer was full",
		}, func() float64 { return float64(dropped()) })
	})
}
