package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"keycloak-chaos-proxy/internal/fault"
	"keycloak-chaos-proxy/internal/metrics"
	"keycloak-chaos-proxy/internal/middleware"
	"keycloak-chaos-proxy/internal/model"
	"keycloak-chaos-proxy/internal/service"
)

// ProxyHandler classifies each request and either injects a simulated
// Keycloak failure or forwards the request upstream.
type ProxyHandler struct {
	service *service.ForwardService
	flags   fault.Source
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProxyHandler creates a ProxyHandler.
// The metrics parameter is optional; pass nil to disable injection metrics.
func NewProxyHandler(svc *service.ForwardService, flags fault.Source, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		flags:   flags,
		logger:  logger.With("component", "proxy_handler"),
		metrics: m,
	}
}

// Handle serves one proxied request: classify, then inject or forward.
// The flag source is consulted fresh on every request so operators can
// toggle failure modes without a restart.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()
	target := req.URL.RequestURI()

	if reason, ok := fault.Classify(target, h.flags.Current()); ok {
		return h.inject(c, reason)
	}

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Target:        target,
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.Set(middleware.OutcomeContextKey, fmt.Sprintf("forwarded:%d", resp.StatusCode))

	// Copy status and filtered headers from the upstream response.
	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Relay the upstream body byte for byte. If io.Copy fails mid-stream
	// (e.g. client disconnect, network error), the HTTP status code has
	// already been sent, so the client receives a truncated response with
	// the original status. We log the error for observability.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("relaying response body",
			"err", err,
			"path", req.URL.Path,
		)
	}

	return nil
}

// inject writes the canned Keycloak-shaped 500 without contacting the
// upstream. The body bytes, Content-Length and Connection: close header
// reproduce the original incident signature exactly, so the response is
// written raw rather than through echo's JSON serializer.
func (h *ProxyHandler) inject(c echo.Context, reason fault.Reason) error {
	body := fault.Body(reason)

	c.Set(middleware.OutcomeContextKey, "injected:"+string(reason))
	if h.metrics != nil {
		h.metrics.InjectedResponses.WithLabelValues(string(reason)).Inc()
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "application/json")
	res.Header().Set(echo.HeaderContentLength, strconv.Itoa(len(body)))
	res.Header().Set("Connection", "close")
	res.WriteHeader(http.StatusInternalServerError)
	_, err := res.Write(body)
	return err
}

// mapError writes the failure response for a forward attempt that never
// produced an upstream response.
func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	c.Set(middleware.OutcomeContextKey, "error")

	h.logger.Error("forward failed",
		"err", err,
		"method", c.Request().Method,
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, service.ErrUpstreamNotConfigured) {
		return c.String(http.StatusInternalServerError, "Proxy misconfigured")
	}

	// Transport-level failure: DNS, TLS handshake, refused connection,
	// timeout. Surfaced once as a 502; never retried.
	return c.String(http.StatusBadGateway, "Bad Gateway: "+err.Error())
}
