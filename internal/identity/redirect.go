package identity

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"sqlspeak-console/internal/domain"
)

const (
	pendingLoginTTL = 10 * time.Minute
	maxPendingLogin = 16
)

type returnPathKey struct{}

// WithReturnPath records where the browser should land after a sign-in
// started from ctx completes.
func WithReturnPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, returnPathKey{}, path)
}

func returnPathFromContext(ctx context.Context) string {
	if p, ok := ctx.Value(returnPathKey{}).(string); ok && p != "" {
		return p
	}
	return "/"
}

// PendingLogin is a sign-in that was started but has not come back yet.
type PendingLogin struct {
	Verifier  string
	ReturnTo  string
	CreatedAt time.Time
}

// PendingLogins tracks outstanding sign-ins of one session by OAuth state.
// Entries are single use and expire after pendingLoginTTL.
type PendingLogins struct {
	mu      sync.Mutex
	entries map[string]PendingLogin
	now     func() time.Time
}

// NewPendingLogins creates an empty table.
func NewPendingLogins() *PendingLogins {
	return &PendingLogins{entries: make(map[string]PendingLogin), now: time.Now}
}

// Put registers a pending sign-in, evicting expired entries and, when the
// table is full, the oldest one.
func (p *PendingLogins) Put(state string, login PendingLogin) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evictLocked()
	if len(p.entries) >= maxPendingLogin {
		var oldest string
		for k, v := range p.entries {
			if oldest == "" || v.CreatedAt.Before(p.entries[oldest].CreatedAt) {
				oldest = k
			}
		}
		delete(p.entries, oldest)
	}
	p.entries[state] = login
}

// Take removes and returns the sign-in registered under state.
func (p *PendingLogins) Take(state string) (PendingLogin, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evictLocked()
	login, ok := p.entries[state]
	if ok {
		delete(p.entries, state)
	}
	return login, ok
}

// Len returns the number of live entries.
func (p *PendingLogins) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evictLocked()
	return len(p.entries)
}

func (p *PendingLogins) evictLocked() {
	cutoff := p.now().Add(-pendingLoginTTL)
	for k, v := range p.entries {
		if v.CreatedAt.Before(cutoff) {
			delete(p.entries, k)
		}
	}
}

// AuthCodeRedirector starts an authorization-code sign-in with PKCE.
type AuthCodeRedirector struct {
	config  *oauth2.Config
	pending *PendingLogins
}

// NewAuthCodeRedirector creates a redirector parking sign-ins in pending.
func NewAuthCodeRedirector(cfg *oauth2.Config, pending *PendingLogins) *AuthCodeRedirector {
	return &AuthCodeRedirector{config: cfg, pending: pending}
}

// BeginRedirect implements domain.Redirector.
func (r *AuthCodeRedirector) BeginRedirect(ctx context.Context, scopes []string) (domain.Redirect, error) {
	if r.config.Endpoint.AuthURL == "" {
		return domain.Redirect{}, fmt.Errorf("identity provider authorize endpoint is not configured")
	}
	state := oauth2.GenerateVerifier()
	verifier := oauth2.GenerateVerifier()
	r.pending.Put(state, PendingLogin{
		Verifier:  verifier,
		ReturnTo:  returnPathFromContext(ctx),
		CreatedAt: r.pending.now(),
	})

	cfg := *r.config
	cfg.Scopes = mergeScopes(r.config.Scopes, scopes)
	url := cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	return domain.Redirect{URL: url}, nil
}

// NoticeRedirector is the redirector of headless callers: it cannot move a
// browser, so it tells the user where to sign in.
type NoticeRedirector struct {
	Out       io.Writer
	SignInURL string
}

// BeginRedirect implements domain.Redirector.
func (n *NoticeRedirector) BeginRedirect(_ context.Context, _ []string) (domain.Redirect, error) {
	if n.Out != nil {
		_, _ = fmt.Fprintf(n.Out, "Sign-in required. Sign in at %s and pass the issued token with --token.\n", n.SignInURL)
	}
	return domain.Redirect{URL: n.SignInURL}, nil
}

var (
	_ domain.Redirector = (*AuthCodeRedirector)(nil)
	_ domain.Redirector = (*NoticeRedirector)(nil)
)
