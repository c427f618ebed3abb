// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultAuthority = "https://login.microsoftonline.com"

// AuthConfig holds the identity provider settings used to obtain tokens for
// the query service.
type AuthConfig struct {
	TenantID     string        // Azure AD tenant (directory) ID
	ClientID     string        // application (client) ID of the console
	ClientSecret string        // optional; public clients rely on PKCE only
	APIScope     string        // permission requested for every token (api://.../user_impersonation)
	Authority    string        // authority base URL (default https://login.microsoftonline.com/{tenant})
	RedirectURL  string        // where the provider sends the browser back to
	HTTPTimeout  time.Duration // timeout for calls to the identity provider
}

// Enabled returns true when an identity provider is configured.
func (a *AuthConfig) Enabled() bool {
	return a.ClientID != "" && (a.TenantID != "" || a.Authority != "")
}

// Validate checks that the auth configuration is internally consistent.
func (a *AuthConfig) Validate() error {
	if a.ClientID == "" {
		return fmt.Errorf("AZURE_CLIENT_ID is required")
	}
	if a.TenantID == "" && a.Authority == "" {
		return fmt.Errorf("one of AZURE_TENANT_ID or AZURE_AUTHORITY must be set")
	}
	if a.APIScope == "" {
		return fmt.Errorf("AZURE_API_SCOPE is required")
	}
	if a.RedirectURL == "" {
		return fmt.Errorf("AZURE_REDIRECT_URI is required")
	}
	return nil
}

// AuthorityURL returns the authority base URL.
func (a *AuthConfig) AuthorityURL() string {
	if a.Authority != "" {
		return strings.TrimRight(a.Authority, "/")
	}
	return defaultAuthority + "/" + a.TenantID
}

// IssuerURL returns the OIDC issuer used for discovery.
func (a *AuthConfig) IssuerURL() string {
	authority := a.AuthorityURL()
	if strings.HasSuffix(authority, "/v2.0") {
		return authority
	}
	return authority + "/v2.0"
}

// Scopes returns the permission scopes requested for the query service.
func (a *AuthConfig) Scopes() []string {
	if a.APIScope == "" {
		return nil
	}
	return []string{a.APIScope}
}

// Config holds the configuration of the console server.
type Config struct {
	QueryAPIURL    string        // base URL of the query service
	ListenAddr     string        // HTTP listen address (default ":3000")
	PublicURL      string        // externally visible console URL
	LogLevel       string        // log level: debug, info, warn, error (default "info")
	Env            string        // environment: "development" (default) or "production"
	QueryTimeout   time.Duration // bounded wait for one query run; 0 waits forever
	SessionIdleTTL time.Duration // idle console sessions are dropped after this

	// Inbound rate limiting of the console.
	RateLimitRPS   float64
	RateLimitBurst int

	// Outbound rate limiting towards the query service; 0 disables it.
	QueryRateLimitRPS   float64
	QueryRateLimitBurst int

	// CORS for the JSON API
	CORSAllowedOrigins []string

	// Choices offered by the console form. The first entry is the default.
	DataSources []string
	Profiles    []string

	// Auth holds identity provider configuration.
	Auth AuthConfig

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the console is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		QueryAPIURL: strings.TrimRight(os.Getenv("QUERY_API_URL"), "/"),
		ListenAddr:  os.Getenv("LISTEN_ADDR"),
		PublicURL:   strings.TrimRight(os.Getenv("PUBLIC_URL"), "/"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		Env:         os.Getenv("ENV"),
		DataSources: splitList(os.Getenv("CONSOLE_DATA_SOURCES")),
		Profiles:    splitList(os.Getenv("CONSOLE_PROFILES")),
	}

	var err error
	if cfg.QueryTimeout, err = parseDurationEnv("QUERY_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionIdleTTL, err = parseDurationEnv("SESSION_IDLE_TTL", 8*time.Hour); err != nil {
		return nil, err
	}

	// Rate limiting
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}
	if v := os.Getenv("QUERY_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.QueryRateLimitRPS = f
		}
	}
	if v := os.Getenv("QUERY_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueryRateLimitBurst = n
		}
	}

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitList(v)
	}

	// Auth config
	cfg.Auth = AuthConfig{
		TenantID:     os.Getenv("AZURE_TENANT_ID"),
		ClientID:     os.Getenv("AZURE_CLIENT_ID"),
		ClientSecret: os.Getenv("AZURE_CLIENT_SECRET"),
		APIScope:     os.Getenv("AZURE_API_SCOPE"),
		Authority:    os.Getenv("AZURE_AUTHORITY"),
		RedirectURL:  os.Getenv("AZURE_REDIRECT_URI"),
	}
	if cfg.Auth.HTTPTimeout, err = parseDurationEnv("AZURE_HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	// Defaults
	if cfg.QueryAPIURL == "" {
		cfg.QueryAPIURL = "http://127.0.0.1:8000"
	}
	if _, err := url.ParseRequestURI(cfg.QueryAPIURL); err != nil {
		return nil, fmt.Errorf("QUERY_API_URL is not a valid URL: %w", err)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":3000"
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://localhost:3000"
	}
	if cfg.Auth.RedirectURL == "" {
		cfg.Auth.RedirectURL = cfg.PublicURL + "/auth/callback"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 20
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 40
	}
	if cfg.QueryRateLimitRPS > 0 && cfg.QueryRateLimitBurst == 0 {
		cfg.QueryRateLimitBurst = 1
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{cfg.PublicURL}
	}
	if len(cfg.DataSources) == 0 {
		cfg.DataSources = []string{"hospital_sqlite", "benchmark_postgres"}
	}
	if len(cfg.Profiles) == 0 {
		cfg.Profiles = []string{"sqlite-dev", "benchmark-postgres"}
	}
	if !cfg.Auth.Enabled() {
		cfg.Warnings = append(cfg.Warnings, "identity provider is not configured; set AZURE_TENANT_ID and AZURE_CLIENT_ID")
	} else if cfg.Auth.APIScope == "" {
		cfg.Warnings = append(cfg.Warnings, "AZURE_API_SCOPE is not set; tokens will not be accepted by the query service")
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if err := cfg.Auth.Validate(); err != nil {
			return nil, fmt.Errorf("auth must be configured in production: %w", err)
		}
		for _, o := range cfg.CORSAllowedOrigins {
			if o == "*" {
				return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
			}
		}
		if !strings.HasPrefix(cfg.PublicURL, "https://") {
			return nil, fmt.Errorf("PUBLIC_URL must use https in production (ENV=production)")
		}
	}

	return cfg, nil
}

func parseDurationEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if _, set := os.LookupEnv(key); !set {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
