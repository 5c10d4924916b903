package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"keycloak-chaos-proxy/internal/client"
	"keycloak-chaos-proxy/internal/config"
	"keycloak-chaos-proxy/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newForwardService(t *testing.T, baseURL string) *ForwardService {
	t.Helper()
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			BaseURL:        strings.TrimRight(baseURL, "/"),
			TimeoutSeconds: 10,
		},
	}
	logger := discardLogger()
	kc := client.NewKeycloakClient(cfg, logger, nil)
	svc, err := NewForwardService(kc, cfg, logger)
	if err != nil {
		t.Fatalf("NewForwardService: %v", err)
	}
	return svc
}

func TestOutboundHeaders(t *testing.T) {
	s := &ForwardService{}
	src := http.Header{
		"Accept":          {"application/json"},
		"Authorization":   {"Bearer secret"},
		"X-Custom":        {"kept"},
		"Host":            {"client-facing-host"},
		"Connection":      {"keep-alive"},
		"Content-Length":  {"42"},
		"X-Forwarded-For": {"1.2.3.4"},
	}

	dst := s.outboundHeaders(src, false)

	tests := []struct {
		name    string
		key     string
		wantLen int
	}{
		{"Accept copied", "Accept", 1},
		{"Authorization copied", "Authorization", 1},
		{"X-Custom copied", "X-Custom", 1},
		{"X-Forwarded-For copied", "X-Forwarded-For", 1},
		{"Host dropped", "Host", 0},
		{"Connection dropped", "Connection", 0},
		{"Content-Length dropped", "Content-Length", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(dst.Values(tt.key)); got != tt.wantLen {
				t.Errorf("header %q: got %d values, want %d", tt.key, got, tt.wantLen)
			}
		})
	}
}

func TestOutboundHeaders_DefaultContentType(t *testing.T) {
	s := &ForwardService{}

	dst := s.outboundHeaders(http.Header{}, true)
	if got := dst.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q, want form default", got)
	}

	// An explicit Content-Type wins.
	src := http.Header{"Content-Type": {"application/json"}}
	dst = s.outboundHeaders(src, true)
	if got := dst.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want %q", got, "application/json")
	}

	// No body means no default either.
	dst = s.outboundHeaders(http.Header{}, false)
	if got := dst.Get("Content-Type"); got != "" {
		t.Errorf("Content-Type = %q, want empty without a body", got)
	}
}

func TestFilterResponseHeaders(t *testing.T) {
	src := http.Header{
		"Content-Type":      {"application/json"},
		"Set-Cookie":        {"session=abc"},
		"X-Upstream-Debug":  {"kept, relay is transparent"},
		"Connection":        {"keep-alive"},
		"Transfer-Encoding": {"chunked"},
	}

	dst := filterResponseHeaders(src)

	if got := dst.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want relayed", got)
	}
	if got := dst.Get("Set-Cookie"); got == "" {
		t.Error("Set-Cookie should be relayed verbatim")
	}
	if got := dst.Get("X-Upstream-Debug"); got == "" {
		t.Error("X-Upstream-Debug should be relayed verbatim")
	}
	if got := dst.Get("Connection"); got != "" {
		t.Errorf("Connection should be dropped, got %q", got)
	}
	if got := dst.Get("Transfer-Encoding"); got != "" {
		t.Errorf("Transfer-Encoding should be dropped, got %q", got)
	}
}

func TestForward_NotConfigured(t *testing.T) {
	cfg := &config.Config{}
	logger := discardLogger()
	kc := client.NewKeycloakClient(cfg, logger, nil)
	svc, err := NewForwardService(kc, cfg, logger)
	if err != nil {
		t.Fatalf("NewForwardService: %v", err)
	}

	pr := &model.ProxyRequest{
		Ctx:    context.Background(),
		Method: http.MethodGet,
		Target: "/realms/x/account",
		Header: http.Header{},
	}

	_, err = svc.Forward(pr)
	if !errors.Is(err, ErrUpstreamNotConfigured) {
		t.Errorf("Forward() error = %v, want ErrUpstreamNotConfigured", err)
	}
}

func TestForward_RoundTrip(t *testing.T) {
	const wantBody = `{"access_token":"abc","token_type":"Bearer"}`

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/realms/x/protocol/openid-connect/userinfo" {
			t.Errorf("upstream path = %q", r.URL.Path)
		}
		if r.URL.RawQuery != "scope=openid" {
			t.Errorf("upstream query = %q, want %q", r.URL.RawQuery, "scope=openid")
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer tok")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Keycloak-Session", "s1")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(wantBody))
	}))
	defer upstream.Close()

	svc := newForwardService(t, upstream.URL)

	pr := &model.ProxyRequest{
		Ctx:    context.Background(),
		Method: http.MethodGet,
		Target: "/realms/x/protocol/openid-connect/userinfo?scope=openid",
		Header: http.Header{"Authorization": {"Bearer tok"}},
	}

	resp, err := svc.Forward(pr)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := resp.Header.Get("X-Keycloak-Session"); got != "s1" {
		t.Errorf("X-Keycloak-Session = %q, want %q", got, "s1")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != wantBody {
		t.Errorf("body = %q, want %q", string(body), wantBody)
	}
}

func TestForward_BodyAndHost(t *testing.T) {
	var gotHost, gotContentType, gotBody string

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	svc := newForwardService(t, upstream.URL)

	payload := "grant_type=client_credentials"
	pr := &model.ProxyRequest{
		Ctx:           context.Background(),
		Method:        http.MethodPost,
		Target:        "/realms/x/protocol/openid-connect/auth",
		Header:        http.Header{"Host": {"proxy.local"}},
		Body:          io.NopCloser(strings.NewReader(payload)),
		ContentLength: int64(len(payload)),
	}

	resp, err := svc.Forward(pr)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	_ = resp.Body.Close()

	wantHost := strings.TrimPrefix(upstream.URL, "http://")
	if gotHost != wantHost {
		t.Errorf("upstream Host = %q, want %q", gotHost, wantHost)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q, want form default", gotContentType)
	}
	if gotBody != payload {
		t.Errorf("upstream body = %q, want %q", gotBody, payload)
	}
}

func TestForward_NoBodyWhenContentLengthZero(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if len(b) != 0 {
			t.Errorf("upstream received %d body bytes, want 0", len(b))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	svc := newForwardService(t, upstream.URL)

	pr := &model.ProxyRequest{
		Ctx:           context.Background(),
		Method:        http.MethodPost,
		Target:        "/realms/x",
		Header:        http.Header{},
		Body:          io.NopCloser(strings.NewReader("ignored")),
		ContentLength: 0,
	}

	resp, err := svc.Forward(pr)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	_ = resp.Body.Close()
}

func TestForward_UpstreamErrorStatusRelayed(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
	}))
	defer upstream.Close()

	svc := newForwardService(t, upstream.URL)

	pr := &model.ProxyRequest{
		Ctx:    context.Background(),
		Method: http.MethodGet,
		Target: "/realms/x/protocol/openid-connect/userinfo",
		Header: http.Header{},
	}

	resp, err := svc.Forward(pr)
	if err != nil {
		t.Fatalf("Forward() error = %v; upstream 4xx must be relayed, not raised", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"error":"invalid_token"}` {
		t.Errorf("body = %q", string(body))
	}
}

func TestForward_TransportError(t *testing.T) {
	svc := newForwardService(t, "http://127.0.0.1:1")

	pr := &model.ProxyRequest{
		Ctx:    context.Background(),
		Method: http.MethodGet,
		Target: "/healthz",
		Header: http.Header{},
	}

	if _, err := svc.Forward(pr); err == nil {
		t.Fatal("Forward() expected transport error, got nil")
	}
}
