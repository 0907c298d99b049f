package router

import (
	"net/http"

	"github.com/equinor/radix-release-api/api/middleware/logger"
	"github.com/equinor/radix-release-api/api/middleware/recovery"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/negroni/v3"
)

// NewMetricsHandler Serves /metrics and a liveness probe on the metrics port, so probes do not depend on the
// authentication chain of the API port
func NewMetricsHandler() http.Handler {
	serveMux := http.NewServeMux()
	serveMux.Handle("GET /metrics", promhttp.Handler())
	serveMux.Handle("GET /health/", createHealthHandler())

	n := negroni.New(
		recovery.NewMiddleware(),
		logger.NewZerologRequestIdMiddleware(),
		logger.NewZerologResponseLoggerMiddleware(),
	)
	n.UseHandler(serveMux)

	return n
}
