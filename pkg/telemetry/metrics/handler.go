package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the collector's registry in the OpenMetrics format. A
// failing collector does not hide the others. Mount it at
// MetricsConfig.Path:
//
//	srv := server.NewServer(&cfg.Server,
//	    server.WithMetrics(cfg.Telemetry.Metrics.Path, collector.Handler()))
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
		Registry:          c.registry,
	})
}
