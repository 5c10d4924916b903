// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest represents a client request to be forwarded upstream.
type ProxyRequest struct {
	Ctx    context.Context
	Method string
	// Target is the original request path including the raw query
	// string; it is appended to the upstream base URL verbatim.
	Target        string
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
}

// UpstreamResponse represents the upstream response to be relayed back.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
