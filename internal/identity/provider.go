// Package identity acquires bearer credentials for the query service: silent
// token acquisition first, interactive sign-in redirect when that is impossible.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sqlspeak-console/internal/domain"
)

// Provider implements domain.CredentialSource. It holds no state of its own;
// every call re-resolves the account and re-acquires a token.
type Provider struct {
	accounts   domain.AccountStore
	acquirer   domain.SilentAcquirer
	redirector domain.Redirector
	scopes     []string
	logger     *slog.Logger
}

// NewProvider creates a Provider requesting the given scopes.
func NewProvider(accounts domain.AccountStore, acquirer domain.SilentAcquirer, redirector domain.Redirector, scopes []string, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		accounts:   accounts,
		acquirer:   acquirer,
		redirector: redirector,
		scopes:     append([]string(nil), scopes...),
		logger:     logger,
	}
}

// EnsureCredential returns a token for the resolved account, or a redirect
// when the user has to sign in first.
func (p *Provider) EnsureCredential(ctx context.Context) (domain.Outcome[domain.Credential], error) {
	account, ok := p.resolveAccount(ctx)
	if !ok {
		return p.redirect(ctx, "no cached account")
	}

	token, err := p.acquirer.AcquireSilent(ctx, account, p.scopes)
	if err == nil {
		return domain.Completed(domain.Credential{Token: token, Account: account}), nil
	}
	if NeedsInteraction(err) {
		p.logger.Info("silent token acquisition needs interaction", "account", account.Label(), "error", err)
		return p.redirect(ctx, "interaction required")
	}
	return domain.Outcome[domain.Credential]{}, &domain.AcquisitionError{Err: err}
}

// NeedsInteraction reports whether a silent acquisition failure can be
// recovered by sending the user through an interactive sign-in.
func NeedsInteraction(err error) bool {
	return errors.Is(err, domain.ErrInteractionRequired)
}

// resolveAccount prefers the active account and falls back to the first
// cached one.
func (p *Provider) resolveAccount(ctx context.Context) (domain.Account, bool) {
	if account, ok := p.accounts.ActiveAccount(ctx); ok {
		return account, true
	}
	cached := p.accounts.CachedAccounts(ctx)
	if len(cached) == 0 {
		return domain.Account{}, false
	}
	return cached[0], true
}

func (p *Provider) redirect(ctx context.Context, reason string) (domain.Outcome[domain.Credential], error) {
	r, err := p.redirector.BeginRedirect(ctx, p.scopes)
	if err != nil {
		return domain.Outcome[domain.Credential]{}, &domain.AcquisitionError{Err: fmt.Errorf("begin sign-in: %w", err)}
	}
	p.logger.Info("redirecting to sign-in", "reason", reason)
	return domain.Redirected[domain.Credential](r), nil
}

var _ domain.CredentialSource = (*Provider)(nil)
