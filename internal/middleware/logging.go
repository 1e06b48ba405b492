// Package middleware collects reusable pipeline.Middleware values built on
// top of the core httpenv/pipeline primitives: logging, panic recovery,
// request IDs, CORS, JWT auth, rate limiting, basic auth, and JSON
// validation. Grounded on the teacher's server/middleware.go (Logging,
// Recovery, Metrics), generalized from net/http's ResponseWriter/Request
// to the environment/response-triple shape spec §3 defines.
package middleware

import (
	"log/slog"
	"runtime/debug"
	"strconv"

	"github.com/jonboulle/clockwork"

	"github.com/ripta/corehttp/internal/httpenv"
	"github.com/ripta/corehttp/internal/metrics"
	"github.com/ripta/corehttp/internal/pipeline"
)

// Logging returns middleware that logs one line per request: method,
// path, status, and duration.
func Logging() pipeline.Middleware {
	return LoggingWithClock(clockwork.NewRealClock())
}

// LoggingWithClock is Logging with an injectable clock, for deterministic
// duration assertions in tests.
func LoggingWithClock(clock clockwork.Clock) pipeline.Middleware {
	return func(next pipeline.Handler) pipeline.Handler {
		return func(env *httpenv.Env) (httpenv.Response, error) {
			start := clock.Now()
			resp, err := next(env)
			duration := clock.Since(start)

			if err != nil {
				slog.Error("request failed",
					"method", env.GetString("REQUEST_METHOD"),
					"path", env.GetString("PATH_INFO"),
					"duration", duration,
					"error", err,
				)
				return resp, err
			}

			slog.Info("request",
				"method", env.GetString("REQUEST_METHOD"),
				"path", env.GetString("PATH_INFO"),
				"status", resp.Status,
				"duration", duration,
			)
			return resp, nil
		}
	}
}

// Metrics returns middleware that records the requests_total,
// request_duration_seconds, and in_flight_requests metrics (spec §9's
// domain-stack wiring for prometheus/client_golang).
func Metrics() pipeline.Middleware {
	return MetricsWithClock(clockwork.NewRealClock())
}

// MetricsWithClock is Metrics with an injectable clock.
func MetricsWithClock(clock clockwork.Clock) pipeline.Middleware {
	return func(next pipeline.Handler) pipeline.Handler {
		return func(env *httpenv.Env) (httpenv.Response, error) {
			metrics.InFlightRequests.Inc()
			defer metrics.InFlightRequests.Dec()

			start := clock.Now()
			resp, err := next(env)
			metrics.RequestDuration.Observe(clock.Since(start).Seconds())

			if err == nil {
				metrics.RequestsTotal.WithLabelValues(strconv.Itoa(resp.Status)).Inc()
			}
			return resp, err
		}
	}
}

// Recovery returns middleware that recovers from a panicking downstream
// handler and converts it to a 500 response instead of letting it
// propagate to the worker's top-level (spec §4.4's default is to re-raise
// application errors so the supervisor respawns the worker; Recovery is
// an opt-in layer for endpoints where isolating a single bad request is
// preferable to losing the whole worker process).
func Recovery() pipeline.Middleware {
	return func(next pipeline.Handler) pipeline.Handler {
		return func(env *httpenv.Env) (resp httpenv.Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic recovered in pipeline",
						"panic", r,
						"path", env.GetString("PATH_INFO"),
						"stack", string(debug.Stack()),
					)
					resp = httpenv.Response{
						Status: 500,
						Body:   httpenv.BufferBody([]byte("Internal Server Error")),
					}
					err = nil
				}
			}()
			return next(env)
		}
	}
}
