package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders returns an Echo middleware that adds security headers to
// responses. It is used on the admin listener only: the proxy listener must
// relay upstream responses untouched, so it gets no extra headers.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("X-Content-Type-Options", "nosniff")
			c.Response().Header().Set("X-Frame-Options", "DENY")

			return next(c)
		}
	}
}
