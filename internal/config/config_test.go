package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"QUERY_API_URL", "LISTEN_ADDR", "PUBLIC_URL", "LOG_LEVEL", "ENV",
		"QUERY_TIMEOUT", "SESSION_IDLE_TTL", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"QUERY_RATE_LIMIT_RPS", "QUERY_RATE_LIMIT_BURST", "CORS_ALLOWED_ORIGINS",
		"CONSOLE_DATA_SOURCES", "CONSOLE_PROFILES",
		"AZURE_TENANT_ID", "AZURE_CLIENT_ID", "AZURE_CLIENT_SECRET", "AZURE_API_SCOPE",
		"AZURE_AUTHORITY", "AZURE_REDIRECT_URI", "AZURE_HTTP_TIMEOUT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8000", cfg.QueryAPIURL)
	assert.Equal(t, ":3000", cfg.ListenAddr)
	assert.Equal(t, "http://localhost:3000", cfg.PublicURL)
	assert.Equal(t, "http://localhost:3000/auth/callback", cfg.Auth.RedirectURL)
	assert.Equal(t, 60*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 8*time.Hour, cfg.SessionIdleTTL)
	assert.Equal(t, 30*time.Second, cfg.Auth.HTTPTimeout)
	assert.InDelta(t, 20.0, cfg.RateLimitRPS, 0.001)
	assert.Equal(t, 40, cfg.RateLimitBurst)
	assert.Zero(t, cfg.QueryRateLimitRPS)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, []string{"hospital_sqlite", "benchmark_postgres"}, cfg.DataSources)
	assert.Equal(t, []string{"sqlite-dev", "benchmark-postgres"}, cfg.Profiles)
	assert.False(t, cfg.Auth.Enabled())
	require.Len(t, cfg.Warnings, 1)
	assert.Contains(t, cfg.Warnings[0], "identity provider is not configured")
}

func TestLoadFromEnv_AllVarsSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("QUERY_API_URL", "https://api.example.com/")
	t.Setenv("QUERY_TIMEOUT", "15s")
	t.Setenv("QUERY_RATE_LIMIT_RPS", "2.5")
	t.Setenv("CONSOLE_DATA_SOURCES", "hospital_sqlite, ,warehouse")
	t.Setenv("CONSOLE_PROFILES", "sqlite-dev")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("AZURE_TENANT_ID", "tenant-1")
	t.Setenv("AZURE_CLIENT_ID", "client-1")
	t.Setenv("AZURE_API_SCOPE", "api://sqlspeak/user_impersonation")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.QueryAPIURL)
	assert.Equal(t, 15*time.Second, cfg.QueryTimeout)
	assert.InDelta(t, 2.5, cfg.QueryRateLimitRPS, 0.001)
	assert.Equal(t, 1, cfg.QueryRateLimitBurst)
	assert.Equal(t, []string{"hospital_sqlite", "warehouse"}, cfg.DataSources)
	assert.Equal(t, []string{"sqlite-dev"}, cfg.Profiles)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.Auth.Enabled())
	assert.Empty(t, cfg.Warnings)
}

func TestLoadFromEnv_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("QUERY_TIMEOUT", "soon")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUERY_TIMEOUT")
}

func TestLoadFromEnv_NegativeDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_IDLE_TTL", "-1m")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be negative")
}

func TestLoadFromEnv_InvalidQueryAPIURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("QUERY_API_URL", "not a url")

	_, err := LoadFromEnv()
	require.Error(t, err)
}

func TestLoadFromEnv_Production(t *testing.T) {
	prodAuth := func(t *testing.T) {
		t.Helper()
		clearEnv(t)
		t.Setenv("ENV", "production")
		t.Setenv("PUBLIC_URL", "https://console.example.com")
		t.Setenv("AZURE_TENANT_ID", "tenant-1")
		t.Setenv("AZURE_CLIENT_ID", "client-1")
		t.Setenv("AZURE_API_SCOPE", "api://sqlspeak/user_impersonation")
	}

	t.Run("valid", func(t *testing.T) {
		prodAuth(t)
		cfg, err := LoadFromEnv()
		require.NoError(t, err)
		assert.True(t, cfg.IsProduction())
		assert.Equal(t, "https://console.example.com/auth/callback", cfg.Auth.RedirectURL)
	})

	t.Run("missing auth", func(t *testing.T) {
		prodAuth(t)
		t.Setenv("AZURE_CLIENT_ID", "")
		_, err := LoadFromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AZURE_CLIENT_ID")
	})

	t.Run("cors wildcard", func(t *testing.T) {
		prodAuth(t)
		t.Setenv("CORS_ALLOWED_ORIGINS", "*")
		_, err := LoadFromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CORS wildcard")
	})

	t.Run("plain http", func(t *testing.T) {
		prodAuth(t)
		t.Setenv("PUBLIC_URL", "http://console.example.com")
		_, err := LoadFromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "https")
	})
}

func TestAuthConfig_URLs(t *testing.T) {
	tests := []struct {
		name      string
		auth      AuthConfig
		authority string
		issuer    string
	}{
		{
			name:      "tenant",
			auth:      AuthConfig{TenantID: "t1"},
			authority: "https://login.microsoftonline.com/t1",
			issuer:    "https://login.microsoftonline.com/t1/v2.0",
		},
		{
			name:      "explicit authority",
			auth:      AuthConfig{Authority: "https://idp.example.com/realm/"},
			authority: "https://idp.example.com/realm",
			issuer:    "https://idp.example.com/realm/v2.0",
		},
		{
			name:      "authority already versioned",
			auth:      AuthConfig{Authority: "https://idp.example.com/t1/v2.0"},
			authority: "https://idp.example.com/t1/v2.0",
			issuer:    "https://idp.example.com/t1/v2.0",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.authority, tc.auth.AuthorityURL())
			assert.Equal(t, tc.issuer, tc.auth.IssuerURL())
		})
	}
}

func TestAuthConfig_Validate(t *testing.T) {
	valid := AuthConfig{TenantID: "t", ClientID: "c", APIScope: "api://x/y", RedirectURL: "http://localhost/cb"}
	require.NoError(t, valid.Validate())
	assert.Equal(t, []string{"api://x/y"}, valid.Scopes())

	missingScope := valid
	missingScope.APIScope = ""
	require.Error(t, missingScope.Validate())
	assert.Nil(t, missingScope.Scopes())

	missingTenant := valid
	missingTenant.TenantID = ""
	require.Error(t, missingTenant.Validate())
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]string{"debug": "DEBUG", "WARN": "WARN", "warning": "WARN", "error": "ERROR", "": "INFO", "bogus": "INFO"}
	for in, want := range cases {
		cfg := &Config{LogLevel: in}
		assert.Equal(t, want, cfg.SlogLevel().String(), in)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\n\nSQLSPEAK_TEST_A=plain\nexport SQLSPEAK_TEST_B=\"quoted value\"\nSQLSPEAK_TEST_C='single'\nnot-a-pair\nSQLSPEAK_TEST_D=from-file\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("SQLSPEAK_TEST_D", "from-env")
	for _, k := range []string{"SQLSPEAK_TEST_A", "SQLSPEAK_TEST_B", "SQLSPEAK_TEST_C"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "plain", os.Getenv("SQLSPEAK_TEST_A"))
	assert.Equal(t, "quoted value", os.Getenv("SQLSPEAK_TEST_B"))
	assert.Equal(t, "single", os.Getenv("SQLSPEAK_TEST_C"))
	assert.Equal(t, "from-env", os.Getenv("SQLSPEAK_TEST_D"))
}

func TestLoadDotEnv_Missing(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")))
}
