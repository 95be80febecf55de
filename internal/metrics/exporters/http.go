// Package exporters serves panel metrics in the Prometheus exposition
// format.
package exporters

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPHandler serves everything registered with promauto, which is where
// the metrics package puts the panel and compositor series.
func HTTPHandler() http.Handler {
	return HandlerFor(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// HandlerFor serves the metrics of g and counts its own scrapes in r as
// promhttp_metric_handler_requests_total. OpenMetrics is negotiated when the
// scraper asks for it.
func HandlerFor(r prometheus.Registerer, g prometheus.Gatherer) http.Handler {
	return promhttp.InstrumentMetricHandler(r, promhttp.HandlerFor(g, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}
