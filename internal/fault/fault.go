// Package fault decides, per request, whether to inject a simulated
// Keycloak failure and provides the canned error bodies.
package fault

import (
	"os"
	"strings"
)

// Reason identifies why a failure was injected.
type Reason string

// Injection reasons, in classification priority order.
const (
	ReasonIntrospect Reason = "introspect"
	ReasonToken      Reason = "token"
	ReasonAll        Reason = "all"
)

// Flags are the operator-controlled failure-mode toggles.
type Flags struct {
	// FailTokenEndpoint makes /token requests (but not /introspect) fail.
	FailTokenEndpoint bool
	// FailAll makes every request not otherwise matched fail.
	FailAll bool
}

// Source yields the current failure-mode flags. Implementations must be
// safe for concurrent use; Current is called once per inbound request.
type Source interface {
	Current() Flags
}

// EnvSource reads the flags from the process environment on every call,
// so operators can toggle behavior without restarting the proxy.
type EnvSource struct{}

// Current reads FAIL_TOKEN_ENDPOINT and FAIL_ALL from the environment.
func (EnvSource) Current() Flags {
	return Flags{
		FailTokenEndpoint: envTrue("FAIL_TOKEN_ENDPOINT"),
		FailAll:           envTrue("FAIL_ALL"),
	}
}

// envTrue reports whether the named variable is set to "true" (case-insensitive).
func envTrue(name string) bool {
	return strings.EqualFold(os.Getenv(name), "true")
}

// StaticSource is a fixed-flag Source for tests.
type StaticSource Flags

// Current returns the fixed flags.
func (s StaticSource) Current() Flags { return Flags(s) }

// Classify decides whether the request should receive an injected failure.
// The target is the request path including the raw query string. Matching
// is deliberately plain substring matching, not path-segment-aware: the
// goal is to mirror the real failure signature exactly, not to be a
// general-purpose router. First match wins:
//
//  1. target contains /token/introspect → introspect (unconditional)
//  2. FailTokenEndpoint set, target contains /token but not /introspect → token
//  3. FailAll set → all
//  4. otherwise the request is forwarded
func Classify(target string, f Flags) (Reason, bool) {
	if strings.Contains(target, "/token/introspect") {
		return ReasonIntrospect, true
	}
	if f.FailTokenEndpoint && strings.Contains(target, "/token") && !strings.Contains(target, "/introspect") {
		return ReasonToken, true
	}
	if f.FailAll {
		return ReasonAll, true
	}
	return "", false
}

// Canned 500 bodies. The introspect body matches the exact error shape
// Keycloak produced in the original incident; byte-for-byte fidelity
// matters because clients pattern-match on it.
var (
	introspectBody = []byte(`{"error":"unknown_error","error_description":"For more on this error consult the server log."}`)
	outageBody     = []byte(`{"error":"internal_server_error","error_description":"Simulated Keycloak outage - returning 500 error"}`)
)

// Body returns the canned response body for an injection reason.
func Body(r Reason) []byte {
	if r == ReasonIntrospect {
		return introspectBody
	}
	return outageBody
}
