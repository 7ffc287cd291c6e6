package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/classpilot-io/AI-grading/internal/observability"
)

// Observability counts API requests and logs one line per request. Streamed grading
// responses are still writing when the handler returns, so their latency is left to
// the relay's own outcome metrics and only time-to-headers is logged.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		if !strings.HasPrefix(c.Path(), "/api/v1") {
			return err
		}

		route := routeTemplate(c)
		method := c.Method()
		status := c.Response().StatusCode()
		statusLabel := strconv.Itoa(status)
		streamed := c.Response().IsBodyStream()

		observability.HTTPRequests().WithLabelValues(method, route, statusLabel).Inc()
		if !streamed {
			observability.HTTPLatency().WithLabelValues(method, route).Observe(elapsed.Seconds())
		}
		if status >= fiber.StatusBadRequest {
			observability.HTTPErrors().WithLabelValues(method, route, statusLabel).Inc()
		}

		event := logger.With().
			Str("correlation_id", GetCorrelationID(c)).
			Str("route", route).
			Str("method", method).
			Int("status", status).
			Logger()

		if streamed {
			event.Info().
				Float64("headers_ms", float64(elapsed)/float64(time.Millisecond)).
				Msg("grading stream opened")
			return err
		}

		event = event.With().
			Float64("latency_ms", float64(elapsed)/float64(time.Millisecond)).
			Str("latency_bucket", latencyBucket(elapsed)).
			Logger()

		switch {
		case status >= fiber.StatusInternalServerError:
			event.Error().Msg("request failed")
		case status >= fiber.StatusBadRequest:
			event.Warn().Msg("request completed with client error")
		default:
			event.Info().Msg("request completed")
		}
		return err
	}
}

func routeTemplate(c *fiber.Ctx) string {
	if c.Route() != nil && c.Route().Path != "" {
		return c.Route().Path
	}
	return c.Path()
}

// latencyBucket steps are wide because model-backed routes run for seconds.
func latencyBucket(d time.Duration) string {
	switch {
	case d <= 50*time.Millisecond:
		return "<=50ms"
	case d <= 250*time.Millisecond:
		return "<=250ms"
	case d <= time.Second:
		return "<=1s"
	case d <= 5*time.Second:
		return "<=5s"
	case d <= 30*time.Second:
		return "<=30s"
	default:
		return ">30s"
	}
}
