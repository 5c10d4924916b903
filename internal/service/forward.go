// Package service implements the core forwarding logic.
package service

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"keycloak-chaos-proxy/internal/client"
	"keycloak-chaos-proxy/internal/config"
	"keycloak-chaos-proxy/internal/model"
)

// ErrUpstreamNotConfigured is returned when no upstream base URL is set;
// the upstream is never contacted in that case.
var ErrUpstreamNotConfigured = errors.New("no upstream Keycloak URL configured")

// skipRequestHeaders are inbound headers not copied to the upstream request.
// Host is recomputed from the upstream URL; Connection is hop-by-hop;
// Content-Length is recomputed from the buffered body.
var skipRequestHeaders = map[string]bool{
	"Host":           true,
	"Connection":     true,
	"Content-Length": true,
}

// skipResponseHeaders are upstream headers not relayed to the caller.
var skipResponseHeaders = map[string]bool{
	"Connection":        true,
	"Transfer-Encoding": true,
}

// ForwardService relays proxy requests to the upstream Keycloak instance.
type ForwardService struct {
	client  *client.KeycloakClient
	logger  *slog.Logger
	baseURL *url.URL
	base    string // base URL string, trailing slash already stripped
}

// NewForwardService creates a ForwardService. An empty upstream base URL is
// not a startup error: the proxy still serves injected failures, and every
// forward attempt returns ErrUpstreamNotConfigured.
func NewForwardService(c *client.KeycloakClient, cfg *config.Config, logger *slog.Logger) (*ForwardService, error) {
	s := &ForwardService{
		client: c,
		logger: logger.With("component", "forward_service"),
	}

	if cfg.Upstream.BaseURL == "" {
		return s, nil
	}

	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}
	s.baseURL = u
	s.base = cfg.Upstream.BaseURL
	return s, nil
}

// Forward sends a ProxyRequest to the upstream and returns its response for
// verbatim relay. The caller is responsible for closing the response body.
//
// The target URL is the upstream base plus the original request target
// (path and raw query) concatenated verbatim; nothing is re-encoded. A
// non-nil error is either ErrUpstreamNotConfigured or a transport-level
// failure from the client.
func (s *ForwardService) Forward(pr *model.ProxyRequest) (*model.UpstreamResponse, error) {
	if s.baseURL == nil {
		return nil, ErrUpstreamNotConfigured
	}

	target := s.base + pr.Target

	var body io.Reader
	hasBody := false
	if pr.ContentLength > 0 && pr.Body != nil {
		buf, err := io.ReadAll(pr.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		body = bytes.NewReader(buf)
		hasBody = true
	}

	req, err := http.NewRequestWithContext(pr.Ctx, pr.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = s.outboundHeaders(pr.Header, hasBody)
	req.Host = s.baseURL.Host

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"target", target,
	)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}

	resp.Header = filterResponseHeaders(resp.Header)
	return resp, nil
}

// outboundHeaders copies all inbound headers except the recomputed ones,
// defaulting Content-Type for form posts when a body is present.
func (s *ForwardService) outboundHeaders(src http.Header, hasBody bool) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		if skipRequestHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		dst[http.CanonicalHeaderKey(key)] = append([]string(nil), vals...)
	}
	if hasBody && dst.Get("Content-Type") == "" {
		dst.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return dst
}

// filterResponseHeaders drops hop-by-hop headers; everything else is
// relayed exactly as the upstream sent it.
func filterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		if skipResponseHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		dst[key] = vals
	}
	return dst
}
