package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"keycloak-chaos-proxy/internal/config"
	"keycloak-chaos-proxy/internal/metrics"
)

// RegisterRoutes wires the proxy handler onto the proxy listener.
// Every path goes through classify→inject|forward; GET, POST, PUT and
// DELETE are supported, anything else gets echo's default 405.
func RegisterRoutes(e *echo.Echo, proxy *ProxyHandler) {
	for _, add := range []func(string, echo.HandlerFunc, ...echo.MiddlewareFunc) *echo.Route{
		e.GET, e.POST, e.PUT, e.DELETE,
	} {
		add("/", proxy.Handle)
		add("/*", proxy.Handle)
	}
}

// RegisterAdminRoutes wires the health, status and metrics endpoints onto
// the admin listener.
func RegisterAdminRoutes(e *echo.Echo, admin *AdminHandler, m *metrics.Metrics, cfg *config.Config) {
	e.GET("/healthz", admin.Healthz)
	e.GET("/status", admin.Status)
	e.GET(cfg.Admin.MetricsPath, echo.WrapHandler(
		promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
	))
}
