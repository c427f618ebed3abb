package ui

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"sqlspeak-console/internal/console"
	"sqlspeak-console/internal/domain"
	"sqlspeak-console/internal/identity"
)

type mockService struct {
	RunQueryFn func(ctx context.Context, token string, req domain.QueryRequest) (*domain.QueryResult, error)
	HistoryFn  func(ctx context.Context, token string) ([]domain.HistoryEntry, error)
	MeFn       func(ctx context.Context, token string) (*domain.Principal, error)
	SchemaFn   func(ctx context.Context, token, dataSource string) (*domain.SchemaSnapshot, error)

	runCalls     atomic.Int32
	historyCalls atomic.Int32
}

func (m *mockService) RunQuery(ctx context.Context, token string, req domain.QueryRequest) (*domain.QueryResult, error) {
	m.runCalls.Add(1)
	if m.RunQueryFn == nil {
		panic("mockService.RunQuery called but RunQueryFn not set")
	}
	return m.RunQueryFn(ctx, token, req)
}

func (m *mockService) History(ctx context.Context, token string) ([]domain.HistoryEntry, error) {
	m.historyCalls.Add(1)
	if m.HistoryFn == nil {
		return []domain.HistoryEntry{}, nil
	}
	return m.HistoryFn(ctx, token)
}

func (m *mockService) Me(ctx context.Context, token string) (*domain.Principal, error) {
	if m.MeFn == nil {
		panic("mockService.Me called but MeFn not set")
	}
	return m.MeFn(ctx, token)
}

func (m *mockService) Schema(ctx context.Context, token, dataSource string) (*domain.SchemaSnapshot, error) {
	if m.SchemaFn == nil {
		panic("mockService.Schema called but SchemaFn not set")
	}
	return m.SchemaFn(ctx, token, dataSource)
}

type testConsole struct {
	t        *testing.T
	sessions *console.Manager
	router   http.Handler
	cookies  map[string]*http.Cookie
}

const testAuthorizeURL = "https://login.example.com/tenant/oauth2/v2.0/authorize"

func newTestConsole(t *testing.T, svc domain.QueryService, tokenURL string) *testConsole {
	t.Helper()
	if tokenURL == "" {
		tokenURL = "https://login.example.com/tenant/oauth2/v2.0/token"
	}
	cfg := &oauth2.Config{
		ClientID:    "console",
		RedirectURL: "http://localhost:3000/auth/callback",
		Scopes:      []string{"openid", "api://sqlspeak/user_impersonation"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   testAuthorizeURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := console.NewManager(console.Options{
		OAuth:     cfg,
		Completer: identity.NewCompleter(&identity.Client{OAuth: cfg}),
		Service:   svc,
		Scopes:    []string{"api://sqlspeak/user_impersonation"},
		Logger:    logger,
	})
	h := NewHandler(sessions, []string{"hospital_sqlite", "benchmark_postgres"}, []string{"sqlite-dev", "benchmark-postgres"}, false, logger)
	r := chi.NewRouter()
	MountRoutes(r, h, []string{"http://localhost:3000"})
	return &testConsole{t: t, sessions: sessions, router: r, cookies: map[string]*http.Cookie{}}
}

func (c *testConsole) do(req *http.Request) *httptest.ResponseRecorder {
	c.t.Helper()
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	return rec
}

func (c *testConsole) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *testConsole) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	if ck, ok := c.cookies[csrfCookieName]; ok {
		form.Set("csrf_token", ck.Value)
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

// postJSON posts body the way a browser client does: the CSRF token comes
// from GET /api/session, never from the HttpOnly cookie.
func (c *testConsole) postJSON(path, body string) *httptest.ResponseRecorder {
	token := c.apiToken()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(csrfHeaderName, token)
	return c.do(req)
}

func (c *testConsole) apiToken() string {
	c.t.Helper()
	rec := c.get("/api/session")
	require.Equal(c.t, http.StatusOK, rec.Code)
	var body struct {
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(c.t, body.CSRFToken)
	return body.CSRFToken
}

func (c *testConsole) session() *console.Session {
	c.t.Helper()
	ck, ok := c.cookies[sessionCookieName]
	require.True(c.t, ok, "session cookie must be set")
	s, ok := c.sessions.Get(ck.Value)
	require.True(c.t, ok)
	return s
}

// signIn caches a non-expiring token for the visitor's session.
func (c *testConsole) signIn() {
	c.t.Helper()
	if _, ok := c.cookies[sessionCookieName]; !ok {
		c.get("/")
	}
	s := c.session()
	s.Accounts.Add(domain.Account{ID: "oid-1", Username: "ada@example.com"}, &oauth2.Token{AccessToken: "token-1"})
	require.NoError(c.t, s.Accounts.SetActive("oid-1"))
}

func queryValues(q string) url.Values {
	return url.Values{
		"data_source": {"hospital_sqlite"},
		"profile":     {"sqlite-dev"},
		"query":       {q},
	}
}

func TestConsole_SignedOut(t *testing.T) {
	svc := &mockService{}
	c := newTestConsole(t, svc, "")

	rec := c.get("/")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not signed in")
	assert.Contains(t, rec.Body.String(), "hospital_sqlite")
	assert.Contains(t, rec.Body.String(), `data-on:submit="$running = true"`)
	assert.Contains(t, rec.Body.String(), `data-attr="{disabled: $running}"`)
	assert.Contains(t, c.cookies, sessionCookieName)
	assert.Contains(t, c.cookies, csrfCookieName)
	assert.Equal(t, int32(0), svc.historyCalls.Load())
}

func TestConsole_SignedInLoadsHistory(t *testing.T) {
	svc := &mockService{
		HistoryFn: func(_ context.Context, token string) ([]domain.HistoryEntry, error) {
			assert.Equal(t, "token-1", token)
			return []domain.HistoryEntry{
				{Timestamp: "2026-01-28T10:00:00", NaturalLanguageQuery: "count patients", Status: "success"},
				{Timestamp: "2026-01-29T10:00:00", NaturalLanguageQuery: "broken query", Status: "error"},
			}, nil
		},
	}
	c := newTestConsole(t, svc, "")
	c.signIn()

	rec := c.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Signed in as ada@example.com")
	assert.Contains(t, body, "count patients")
	assert.Contains(t, body, "broken query")

	rec = c.get("/?status=error")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "count patients")
	assert.Contains(t, rec.Body.String(), "broken query")
	assert.Equal(t, domain.StatusError, c.session().Controller.State().Filters.Status)
}

func TestRunQuery_RequiresCSRF(t *testing.T) {
	svc := &mockService{}
	c := newTestConsole(t, svc, "")
	c.get("/")

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(queryValues("x").Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := c.do(req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, int32(0), svc.runCalls.Load())
}

func TestRunQuery_SignedOutRedirectsToSignIn(t *testing.T) {
	svc := &mockService{}
	c := newTestConsole(t, svc, "")
	c.get("/")

	rec := c.postForm("/query", queryValues("How many patients are there?"))

	require.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	assert.True(t, strings.HasPrefix(loc, testAuthorizeURL), loc)
	assert.Equal(t, int32(0), svc.runCalls.Load())
	assert.Equal(t, 1, c.session().Pending.Len())
}

func TestRunQuery_SignedIn(t *testing.T) {
	rowCount := int64(1)
	svc := &mockService{
		RunQueryFn: func(_ context.Context, token string, req domain.QueryRequest) (*domain.QueryResult, error) {
			assert.Equal(t, "token-1", token)
			assert.Equal(t, "hospital_sqlite", req.DataSource)
			return &domain.QueryResult{
				GeneratedSQL: "SELECT COUNT(*) AS n FROM patients",
				Rows:         []domain.Row{domain.NewRow("n", 42)},
				Meta:         domain.QueryMeta{Profile: "sqlite-dev", Status: "success", ExecutionTimeMs: 12, RowCount: &rowCount},
			}, nil
		},
	}
	c := newTestConsole(t, svc, "")
	c.signIn()

	rec := c.postForm("/query", queryValues("How many patients are there?"))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "SELECT COUNT(*) AS n FROM patients")
	assert.Contains(t, body, "42")
	assert.Contains(t, body, "How many patients are there?")
	assert.Equal(t, int32(1), svc.runCalls.Load())
	assert.GreaterOrEqual(t, svc.historyCalls.Load(), int32(1))
}

func TestRunQuery_ServiceError(t *testing.T) {
	svc := &mockService{
		RunQueryFn: func(context.Context, string, domain.QueryRequest) (*domain.QueryResult, error) {
			return nil, &domain.ServiceError{StatusCode: http.StatusBadRequest, Message: "Unknown data source"}
		},
	}
	c := newTestConsole(t, svc, "")
	c.signIn()

	rec := c.postForm("/query", queryValues("x"))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unknown data source")
	assert.Nil(t, c.session().Controller.State().LastResult)
}

func TestRefreshHistory_RedirectsBack(t *testing.T) {
	svc := &mockService{}
	c := newTestConsole(t, svc, "")
	c.signIn()
	before := svc.historyCalls.Load()

	rec := c.postForm("/history/refresh", nil)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, before+1, svc.historyCalls.Load())
}

func TestAuthCallback_UnknownState(t *testing.T) {
	c := newTestConsole(t, &mockService{}, "")
	c.get("/")

	rec := c.get("/auth/callback?state=forged&code=abc")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, signedIn := c.session().Account(context.Background())
	assert.False(t, signedIn)
}

func TestAuthCallback_ProviderError(t *testing.T) {
	c := newTestConsole(t, &mockService{}, "")
	c.get("/")

	rec := c.get("/auth/callback?error=access_denied&error_description=User+cancelled")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "access_denied: User cancelled")
}

func TestSignInRoundTrip(t *testing.T) {
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"oid":                "oid-7",
		"preferred_username": "grace@example.com",
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "code-1", r.PostForm.Get("code"))
		assert.NotEmpty(t, r.PostForm.Get("code_verifier"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  accessToken,
			"token_type":    "Bearer",
			"refresh_token": "refresh-1",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(idp.Close)

	c := newTestConsole(t, &mockService{}, idp.URL+"/token")
	c.get("/")

	rec := c.postForm("/auth/signin", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	authURL, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := authURL.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, "S256", authURL.Query().Get("code_challenge_method"))

	rec = c.get("/auth/callback?state=" + url.QueryEscape(state) + "&code=code-1")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	account, ok := c.session().Account(context.Background())
	require.True(t, ok)
	assert.Equal(t, "grace@example.com", account.Username)

	// the state is single use
	rec = c.get("/auth/callback?state=" + url.QueryEscape(state) + "&code=code-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogout(t *testing.T) {
	c := newTestConsole(t, &mockService{}, "")
	c.signIn()
	require.Equal(t, 1, c.sessions.Len())

	rec := c.postForm("/logout", nil)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 0, c.sessions.Len())
	assert.NotContains(t, c.cookies, sessionCookieName)
}

func TestAPIRunQuery(t *testing.T) {
	t.Run("signed out", func(t *testing.T) {
		svc := &mockService{}
		c := newTestConsole(t, svc, "")
		c.get("/")

		rec := c.postJSON("/api/query", `{"data_source":"hospital_sqlite","profile":"sqlite-dev","query":"x"}`)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		var body redirectResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, strings.HasPrefix(body.RedirectURL, testAuthorizeURL))
		assert.Equal(t, int32(0), svc.runCalls.Load())
	})

	t.Run("signed in", func(t *testing.T) {
		svc := &mockService{
			RunQueryFn: func(context.Context, string, domain.QueryRequest) (*domain.QueryResult, error) {
				return &domain.QueryResult{GeneratedSQL: "SELECT 1", Rows: []domain.Row{domain.NewRow("x", 1)}}, nil
			},
		}
		c := newTestConsole(t, svc, "")
		c.signIn()

		rec := c.postJSON("/api/query", `{"data_source":"hospital_sqlite","profile":"sqlite-dev","query":"x"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			State struct {
				LastResult struct {
					SQL     string           `json:"sql"`
					Results []map[string]any `json:"results"`
				} `json:"last_result"`
				Loading bool `json:"loading"`
			} `json:"state"`
			Account string `json:"account"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "SELECT 1", body.State.LastResult.SQL)
		assert.Len(t, body.State.LastResult.Results, 1)
		assert.False(t, body.State.Loading)
		assert.Equal(t, "ada@example.com", body.Account)
	})

	t.Run("invalid body", func(t *testing.T) {
		c := newTestConsole(t, &mockService{}, "")
		c.get("/")

		rec := c.postJSON("/api/query", `{`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAPI_CSRF(t *testing.T) {
	svc := &mockService{
		RunQueryFn: func(context.Context, string, domain.QueryRequest) (*domain.QueryResult, error) {
			return &domain.QueryResult{GeneratedSQL: "SELECT 1"}, nil
		},
	}
	c := newTestConsole(t, svc, "")
	c.signIn()

	token := c.apiToken()
	cookie, ok := c.cookies[csrfCookieName]
	require.True(t, ok)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, cookie.Value, token)

	body := `{"data_source":"hospital_sqlite","profile":"sqlite-dev","query":"x"}`

	t.Run("cookie only is rejected as JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := c.do(req)

		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Detail, "CSRF")
		assert.Equal(t, int32(0), svc.runCalls.Load())
	})

	t.Run("form field is not accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/filters", strings.NewReader(url.Values{"csrf_token": {token}}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := c.do(req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("token from session is accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(csrfHeaderName, token)
		rec := c.do(req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int32(1), svc.runCalls.Load())
	})
}

func TestAPISetFilters(t *testing.T) {
	c := newTestConsole(t, &mockService{}, "")
	c.get("/")

	rec := c.postJSON("/api/filters", `{"status":"success","time_contains":"2026-01"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	state := c.session().Controller.State()
	assert.Equal(t, domain.StatusSuccess, state.Filters.Status)
	assert.Equal(t, "2026-01", state.Filters.TimeContains)

	rec = c.get("/api/session")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"visible_history":[]`)
}

func TestIdentityPage(t *testing.T) {
	svc := &mockService{
		MeFn: func(context.Context, string) (*domain.Principal, error) {
			return &domain.Principal{ID: "oid-1", DisplayName: "Ada Lovelace", Roles: []string{"reader"}}, nil
		},
		HistoryFn: func(context.Context, string) ([]domain.HistoryEntry, error) {
			return []domain.HistoryEntry{{Status: "success"}, {Status: "error"}, {Status: "success"}}, nil
		},
	}
	c := newTestConsole(t, svc, "")
	c.signIn()

	rec := c.get("/me")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Ada Lovelace")
	assert.Contains(t, body, "reader")
}

func TestIdentityPage_ServiceUnreachable(t *testing.T) {
	svc := &mockService{
		MeFn: func(context.Context, string) (*domain.Principal, error) {
			return nil, &domain.NetworkError{Op: "GET /me", Err: errors.New("connection refused")}
		},
	}
	c := newTestConsole(t, svc, "")
	c.signIn()

	rec := c.get("/me")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Could not reach the query service")
}

func TestSchemaPage(t *testing.T) {
	svc := &mockService{
		SchemaFn: func(_ context.Context, _ string, dataSource string) (*domain.SchemaSnapshot, error) {
			return &domain.SchemaSnapshot{
				DataSource: dataSource,
				Tables: []map[string]any{{
					"name":    "patients",
					"columns": []any{map[string]any{"name": "age", "type": "INTEGER"}},
				}},
			}, nil
		},
	}
	c := newTestConsole(t, svc, "")
	c.signIn()

	rec := c.get("/schema?data_source=benchmark_postgres")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "patients")
	assert.Contains(t, body, "INTEGER")
}

func TestSchemaPage_SignedOutRedirects(t *testing.T) {
	c := newTestConsole(t, &mockService{}, "")

	rec := c.get("/schema")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), testAuthorizeURL))
}

func TestHealthz(t *testing.T) {
	c := newTestConsole(t, &mockService{}, "")
	rec := c.get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, c.cookies, sessionCookieName)
}

func TestSafeReturnPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/", "/"},
		{"/schema?data_source=x", "/schema?data_source=x"},
		{"//evil.example.com", "/"},
		{"https://evil.example.com", "/"},
		{"", "/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, safeReturnPath(tt.in), tt.in)
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"in flight", domain.ErrSubmissionInFlight, http.StatusConflict},
		{"validation", domain.ErrValidation("bad"), http.StatusBadRequest},
		{"not found", domain.ErrNotFound("gone"), http.StatusNotFound},
		{"service 4xx", &domain.ServiceError{StatusCode: 403, Message: "no"}, http.StatusForbidden},
		{"service 5xx", &domain.ServiceError{StatusCode: 500, Message: "boom"}, http.StatusBadGateway},
		{"network", &domain.NetworkError{Op: "GET /me", Err: errors.New("x")}, http.StatusBadGateway},
		{"acquisition", &domain.AcquisitionError{Err: errors.New("x")}, http.StatusBadGateway},
		{"other", errors.New("x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusForError(tt.err))
		})
	}
}
