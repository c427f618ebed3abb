// Package console keeps the per-browser state of the console server: one
// account cache, credential provider and query session per visitor.
package console

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"

	"sqlspeak-console/internal/domain"
	"sqlspeak-console/internal/identity"
	"sqlspeak-console/internal/session"
)

const defaultIdleTTL = 8 * time.Hour

// Session bundles everything one browser session owns.
type Session struct {
	ID         string
	Accounts   *identity.MemoryAccountStore
	Pending    *identity.PendingLogins
	Provider   *identity.Provider
	Controller *session.Controller

	createdAt time.Time
	lastUsed  atomic.Value // time.Time
}

func (s *Session) getLastUsed() time.Time {
	if v := s.lastUsed.Load(); v != nil {
		return v.(time.Time)
	}
	return s.createdAt
}

func (s *Session) touch(t time.Time) {
	s.lastUsed.Store(t)
}

// Account returns the account the session is signed in with.
func (s *Session) Account(ctx context.Context) (domain.Account, bool) {
	return s.Accounts.ActiveAccount(ctx)
}

// Options configures a Manager.
type Options struct {
	// OAuth is the identity provider client configuration. A config without
	// endpoints leaves every session unable to sign in.
	OAuth      *oauth2.Config
	HTTPClient *http.Client
	// Completer finishes sign-ins; nil when no identity provider is set up.
	Completer *identity.Completer
	Service   domain.QueryService
	Scopes    []string
	Session   session.Options
	IdleTTL   time.Duration
	Logger    *slog.Logger
}

// Manager owns the console sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	oauth      *oauth2.Config
	httpClient *http.Client
	completer  *identity.Completer
	service    domain.QueryService
	scopes     []string
	sessOpts   session.Options
	ttl        time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// NewManager creates an empty Manager.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	oauthCfg := opts.OAuth
	if oauthCfg == nil {
		oauthCfg = &oauth2.Config{}
	}
	ttl := opts.IdleTTL
	if ttl <= 0 {
		ttl = defaultIdleTTL
	}
	sessOpts := opts.Session
	if sessOpts.Logger == nil {
		sessOpts.Logger = logger
	}
	return &Manager{
		sessions:   make(map[string]*Session),
		oauth:      oauthCfg,
		httpClient: opts.HTTPClient,
		completer:  opts.Completer,
		service:    opts.Service,
		scopes:     append([]string(nil), opts.Scopes...),
		sessOpts:   sessOpts,
		ttl:        ttl,
		now:        time.Now,
		logger:     logger.With("component", "console"),
	}
}

// Service returns the query service sessions talk to.
func (m *Manager) Service() domain.QueryService { return m.service }

// SignInEnabled reports whether sessions can be sent to an identity provider.
func (m *Manager) SignInEnabled() bool {
	return m.oauth.Endpoint.AuthURL != "" && m.completer != nil
}

// Create starts a new session.
func (m *Manager) Create() *Session {
	id := domain.NewID()
	accounts := identity.NewMemoryAccountStore()
	pending := identity.NewPendingLogins()
	logger := m.logger.With("session", shortID(id))

	provider := identity.NewProvider(
		accounts,
		identity.NewOAuthAcquirer(m.oauth, accounts, m.httpClient),
		identity.NewAuthCodeRedirector(m.oauth, pending),
		m.scopes,
		logger,
	)
	opts := m.sessOpts
	opts.Logger = opts.Logger.With("session", shortID(id))

	now := m.now()
	s := &Session{
		ID:         id,
		Accounts:   accounts,
		Pending:    pending,
		Provider:   provider,
		Controller: session.NewController(provider, m.service, opts),
		createdAt:  now,
	}
	s.touch(now)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	m.logger.Debug("session created", "session", shortID(id))
	return s
}

// Get returns a live session and marks it used. Expired sessions are dropped.
func (m *Manager) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	now := m.now()
	if s.getLastUsed().Before(now.Add(-m.ttl)) {
		m.Close(id)
		return nil, false
	}
	s.touch(now)
	return s, true
}

// GetOrCreate returns the session for id, creating a fresh one when id is
// unknown or expired. created reports whether a new session was started.
func (m *Manager) GetOrCreate(id string) (s *Session, created bool) {
	if s, ok := m.Get(id); ok {
		return s, false
	}
	return m.Create(), true
}

// CompleteSignIn finishes the sign-in parked under state in s.
func (m *Manager) CompleteSignIn(ctx context.Context, s *Session, state, code string) (identity.SignIn, error) {
	if m.completer == nil {
		return identity.SignIn{}, domain.ErrValidation("sign-in is not configured")
	}
	signIn, err := m.completer.Complete(ctx, s.Pending, s.Accounts, state, code)
	if err != nil {
		return identity.SignIn{}, err
	}
	m.logger.Info("signed in", "session", shortID(s.ID), "account", signIn.Account.Label())
	return signIn, nil
}

// Close forgets a session and its cached accounts.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Accounts.Clear()
		m.logger.Debug("session closed", "session", shortID(id))
	}
}

// Len returns the number of sessions held.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep drops every session idle for longer than the TTL and returns how
// many were dropped.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	var stale []*Session
	cutoff := m.now().Add(-m.ttl)
	for id, s := range m.sessions {
		if s.getLastUsed().Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.Accounts.Clear()
	}
	if len(stale) > 0 {
		m.logger.Info("idle sessions dropped", "count", len(stale))
	}
	return len(stale)
}

// ReapIdle sweeps idle sessions every interval until ctx is done.
func (m *Manager) ReapIdle(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}
