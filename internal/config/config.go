// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// DefaultUpstreamURL is the placeholder Keycloak instance used when no
// upstream is configured explicitly.
const DefaultUpstreamURL = "https://keycloak-qkk.apps.ocp4.klaassen.click"

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/keycloak-chaos-proxy/config.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Port        int    `kong:"arg,optional,help='Listen port for the proxy (overrides config).',env='PORT'"`
	Config      string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host        string `kong:"help='Listen host (overrides config).',env='HOST'"`
	UpstreamURL string `kong:"name='upstream-url',help='Keycloak base URL to forward to (overrides config).',env='KEYCLOAK_URL'"`
	LogLevel    string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	LogFormat   string `kong:"help='Log format: json|text (overrides config).',env='LOG_FORMAT'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	Admin    AdminConfig    `toml:"admin"`
	Log      LogConfig      `toml:"log"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds the proxy listener settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8080); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// UpstreamConfig holds the Keycloak upstream connection settings.
type UpstreamConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	// VerifyTLS enables certificate and hostname verification for the
	// upstream leg. It defaults to false: the proxy runs in controlled
	// test environments where Keycloak often carries self-signed certs.
	VerifyTLS bool `toml:"verify_tls"`
}

// AdminConfig holds the admin listener settings (health, status, metrics).
// The admin surface lives on its own port so it can never shadow an
// upstream Keycloak path on the proxy listener.
type AdminConfig struct {
	Enabled     bool   `toml:"enabled"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	MetricsPath string `toml:"metrics_path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Load reads the TOML config file (if any) and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/keycloak-chaos-proxy/config.toml then configs/config.toml. Unlike
// most services the proxy runs fine with no config file at all: the
// defaults plus the KEYCLOAK_URL environment variable are a complete
// configuration.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	explicit := path != ""
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if explicit || !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else {
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
			cfg.filePath = path
		}
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.UpstreamURL != "" {
		c.Upstream.BaseURL = cli.UpstreamURL
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		c.Log.Format = cli.LogFormat
	}
}

func (c *Config) validate() error {
	// Upstream URL: when set it must parse and use an HTTP scheme.
	if c.Upstream.BaseURL != "" {
		u, err := url.Parse(c.Upstream.BaseURL)
		if err != nil {
			return fmt.Errorf("upstream.base_url is not a valid URL: %w", err)
		}
		if u.Scheme != "https" && u.Scheme != "http" {
			return fmt.Errorf("upstream.base_url must use http or https; got %q", c.Upstream.BaseURL)
		}
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Admin.Port < 0 || c.Admin.Port > 65535 {
		return fmt.Errorf("admin.port must be 0–65535; got %d", c.Admin.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Admin path validation (only when the admin listener is enabled).
	if c.Admin.Enabled && c.Admin.MetricsPath != "" {
		p := c.Admin.MetricsPath
		if p[0] != '/' {
			return fmt.Errorf("admin.metrics_path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/healthz", "/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("admin.metrics_path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, TimeoutSeconds, etc.), zero means "unset" because
// TOML cannot distinguish between an explicit 0 and an omitted key. Setting
// port=0 in the config file therefore results in the default port (8080).
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = DefaultUpstreamURL
	}
	c.Upstream.BaseURL = strings.TrimRight(c.Upstream.BaseURL, "/")
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 30
	}
	if c.Admin.Host == "" {
		c.Admin.Host = "0.0.0.0"
	}
	if c.Admin.Port == 0 {
		c.Admin.Port = 9090
	}
	if c.Admin.MetricsPath == "" {
		c.Admin.MetricsPath = "/metrics"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the proxy listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the admin listen address as host:port.
func (c *AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
