package app

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlspeak-console/internal/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		QueryAPIURL:        "http://127.0.0.1:1",
		ListenAddr:         "127.0.0.1:0",
		PublicURL:          "http://localhost:3000",
		QueryTimeout:       5 * time.Second,
		SessionIdleTTL:     time.Hour,
		RateLimitRPS:       100,
		RateLimitBurst:     100,
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		DataSources:        []string{"hospital_sqlite"},
		Profiles:           []string{"sqlite-dev"},
	}
}

func TestNew_WithoutSignIn(t *testing.T) {
	a, err := New(context.Background(), testConfig(), quietLogger())
	require.NoError(t, err)
	assert.False(t, a.Sessions.SignInEnabled())

	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, a.Sessions.Len())
}

func TestNew_WithSignIn(t *testing.T) {
	// No discovery document is served, so the static authority endpoints
	// are used.
	idp := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(idp.Close)

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{
		ClientID:    "client-1",
		Authority:   idp.URL + "/tenant-1",
		APIScope:    "api://sqlspeak/user_impersonation",
		RedirectURL: "http://localhost:3000/auth/callback",
		HTTPTimeout: 5 * time.Second,
	}

	a, err := New(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	assert.True(t, a.Sessions.SignInEnabled())
}

func TestNew_InvalidAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{ClientID: "client-1", TenantID: "tenant-1"}

	_, err := New(context.Background(), cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identity provider")
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	cfg := testConfig()
	cfg.ListenAddr = addr
	a, err := New(context.Background(), cfg, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
