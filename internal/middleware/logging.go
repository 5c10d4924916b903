// Package middleware provides Echo middleware for logging and metrics.
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
)

// OutcomeContextKey is the echo context key under which handlers record the
// per-request outcome ("injected:<reason>", "forwarded:<status>" or "error").
const OutcomeContextKey = "outcome"

// RequestLogger returns an Echo middleware that logs each request with slog.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			outcome, _ := c.Get(OutcomeContextKey).(string)

			logger.Info("request",
				"remote_ip", c.RealIP(),
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"outcome", outcome,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"bytes_out", res.Size,
			)

			return err
		}
	}
}
