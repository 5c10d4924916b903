// Package client provides the upstream HTTP client for the Keycloak leg.
package client

import (
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"keycloak-chaos-proxy/internal/config"
	"keycloak-chaos-proxy/internal/metrics"
	"keycloak-chaos-proxy/internal/model"
)

// KeycloakClient sends forwarded requests to the upstream Keycloak instance.
//
// Keep-alives are disabled: every forwarded request opens a fresh upstream
// connection, matching the proxy's no-pooling contract. By default the TLS
// leg skips certificate and hostname verification (self-signed in-cluster
// certs) but never negotiates below TLS 1.2.
type KeycloakClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewKeycloakClient creates a KeycloakClient from the upstream config.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewKeycloakClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *KeycloakClient {
	transport := &http.Transport{
		DisableKeepAlives: true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.Upstream.VerifyTLS, //nolint:gosec // controlled test environment, see config.UpstreamConfig.VerifyTLS
			MinVersion:         tls.VersionTLS12,
		},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &KeycloakClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		logger:  logger.With("component", "keycloak_client"),
		metrics: m,
	}
}

// Do executes an HTTP request against the upstream and returns the raw response.
// The caller is responsible for closing the response body.
//
// Upstream 4xx/5xx statuses are normal responses here, not errors: the
// proxy relays them transparently. A non-nil error therefore always means
// a transport-level failure (DNS, TLS handshake, refused connection,
// timeout), which the handler surfaces as a 502.
func (c *KeycloakClient) Do(req *http.Request) (*model.UpstreamResponse, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"url", req.URL.String(),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via UpstreamResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, err
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}
