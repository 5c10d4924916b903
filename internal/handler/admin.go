package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"keycloak-chaos-proxy/internal/config"
	"keycloak-chaos-proxy/internal/fault"
)

// Version is a string type for dependency injection of the build version.
type Version string

// AdminHandler serves health and status endpoints on the admin listener.
type AdminHandler struct {
	cfg     *config.Config
	flags   fault.Source
	version Version
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(cfg *config.Config, flags fault.Source, v Version) *AdminHandler {
	return &AdminHandler{cfg: cfg, flags: flags, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *AdminHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns proxy status information, including the failure-mode
// flags as currently read from the environment.
func (h *AdminHandler) Status(c echo.Context) error {
	flags := h.flags.Current()
	return c.JSON(http.StatusOK, map[string]any{
		"status":              "ok",
		"version":             string(h.version),
		"upstream_url":        h.cfg.Upstream.BaseURL,
		"fail_token_endpoint": flags.FailTokenEndpoint,
		"fail_all":            flags.FailAll,
	})
}
