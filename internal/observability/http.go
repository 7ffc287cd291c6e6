package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const scrapeTimeout = 10 * time.Second

// MetricsHandler serves the grader collectors for Prometheus. A failing collector is
// skipped instead of failing the whole scrape.
func MetricsHandler() fiber.Handler {
	return metricsHandler(prometheus.DefaultGatherer)
}

func metricsHandler(gatherer prometheus.Gatherer) fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling:       promhttp.ContinueOnError,
		MaxRequestsInFlight: 2,
		Timeout:             scrapeTimeout,
	}))
}
