package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"sqlspeak-console/internal/config"
	"sqlspeak-console/internal/domain"
)

// interactionErrorCodes are the OAuth error codes after which only an
// interactive sign-in can produce a new token.
var interactionErrorCodes = map[string]bool{
	"invalid_grant":        true,
	"interaction_required": true,
	"login_required":       true,
	"consent_required":     true,
}

// signInScopes are requested next to the API scope so the provider returns an
// ID token and a refresh token.
var signInScopes = []string{oidc.ScopeOpenID, "profile", oidc.ScopeOfflineAccess}

// Client bundles what the console needs from the identity provider.
type Client struct {
	OAuth      *oauth2.Config
	Verifier   *oidc.IDTokenVerifier // nil when discovery was unavailable
	HTTPClient *http.Client
}

// Discover builds a Client from the auth configuration. OIDC discovery is
// attempted first; when it fails the well-known Azure AD v2 endpoints of the
// authority are used and ID tokens are not verified.
func Discover(ctx context.Context, auth config.AuthConfig, logger *slog.Logger) (*Client, error) {
	if err := auth.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := &http.Client{Timeout: auth.HTTPTimeout}

	oauthCfg := &oauth2.Config{
		ClientID:     auth.ClientID,
		ClientSecret: auth.ClientSecret,
		RedirectURL:  auth.RedirectURL,
		Scopes:       mergeScopes(signInScopes, auth.Scopes()),
	}

	c := &Client{OAuth: oauthCfg, HTTPClient: httpClient}
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, httpClient), auth.IssuerURL())
	if err != nil {
		logger.Warn("oidc discovery failed, using static authority endpoints", "issuer", auth.IssuerURL(), "error", err)
		oauthCfg.Endpoint = oauth2.Endpoint{
			AuthURL:  strings.TrimRight(auth.AuthorityURL(), "/") + "/oauth2/v2.0/authorize",
			TokenURL: strings.TrimRight(auth.AuthorityURL(), "/") + "/oauth2/v2.0/token",
		}
		return c, nil
	}
	oauthCfg.Endpoint = provider.Endpoint()
	c.Verifier = provider.Verifier(&oidc.Config{ClientID: auth.ClientID})
	return c, nil
}

// OAuthAcquirer acquires tokens silently by refreshing the token cached for
// an account.
type OAuthAcquirer struct {
	config     *oauth2.Config
	tokens     TokenCache
	httpClient *http.Client
}

// NewOAuthAcquirer creates an acquirer reading and updating tokens in cache.
func NewOAuthAcquirer(cfg *oauth2.Config, tokens TokenCache, httpClient *http.Client) *OAuthAcquirer {
	return &OAuthAcquirer{config: cfg, tokens: tokens, httpClient: httpClient}
}

// AcquireSilent implements domain.SilentAcquirer. Tokens are always issued
// for the configured scopes, which include the API scope.
func (a *OAuthAcquirer) AcquireSilent(ctx context.Context, account domain.Account, _ []string) (string, error) {
	cached, ok := a.tokens.Token(account.ID)
	if !ok || cached == nil {
		return "", fmt.Errorf("no token cached for %s: %w", account.Label(), domain.ErrInteractionRequired)
	}
	if !cached.Valid() && cached.RefreshToken == "" {
		return "", fmt.Errorf("token for %s expired without a refresh token: %w", account.Label(), domain.ErrInteractionRequired)
	}
	if a.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	}

	fresh, err := a.config.TokenSource(ctx, cached).Token()
	if err != nil {
		return "", classifyTokenError(err)
	}
	if fresh.AccessToken != cached.AccessToken {
		a.tokens.SaveToken(account.ID, fresh)
	}
	return fresh.AccessToken, nil
}

func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if interactionErrorCodes[re.ErrorCode] {
			return fmt.Errorf("refresh token rejected (%s): %w", re.ErrorCode, domain.ErrInteractionRequired)
		}
		return fmt.Errorf("refresh token: %w", err)
	}
	return err
}

func mergeScopes(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, s := range list {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

var _ domain.SilentAcquirer = (*OAuthAcquirer)(nil)
