package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"sqlspeak-console/internal/domain"
)

// IDTokenVerifier verifies a raw ID token. Satisfied by *oidc.IDTokenVerifier.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// SignIn is the result of a completed sign-in.
type SignIn struct {
	Account  domain.Account
	ReturnTo string
}

// Completer finishes sign-ins when the identity provider redirects back.
type Completer struct {
	config   *oauth2.Config
	verifier IDTokenVerifier
	client   *Client
}

// NewCompleter creates a Completer from a discovered client. The verifier is
// optional; without it the account is read from the access token.
func NewCompleter(c *Client) *Completer {
	comp := &Completer{config: c.OAuth, client: c}
	if c.Verifier != nil {
		comp.verifier = c.Verifier
	}
	return comp
}

// Complete exchanges the authorization code for the pending sign-in
// registered under state, caches the resulting account and token in store,
// and makes the account active.
func (c *Completer) Complete(ctx context.Context, pending *PendingLogins, store *MemoryAccountStore, state, code string) (SignIn, error) {
	login, ok := pending.Take(state)
	if !ok {
		return SignIn{}, domain.ErrValidation("unknown or expired sign-in state")
	}
	if code == "" {
		return SignIn{}, domain.ErrValidation("authorization code is missing")
	}
	if c.client != nil && c.client.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.client.HTTPClient)
	}

	tok, err := c.config.Exchange(ctx, code, oauth2.VerifierOption(login.Verifier))
	if err != nil {
		return SignIn{}, &domain.AcquisitionError{Err: fmt.Errorf("exchange authorization code: %w", err)}
	}

	account, err := c.accountFromToken(ctx, tok)
	if err != nil {
		return SignIn{}, &domain.AcquisitionError{Err: err}
	}
	store.Add(account, tok)
	if err := store.SetActive(account.ID); err != nil {
		return SignIn{}, err
	}
	return SignIn{Account: account, ReturnTo: login.ReturnTo}, nil
}

func (c *Completer) accountFromToken(ctx context.Context, tok *oauth2.Token) (domain.Account, error) {
	rawID, _ := tok.Extra("id_token").(string)
	if rawID != "" && c.verifier != nil {
		idToken, err := c.verifier.Verify(ctx, rawID)
		if err != nil {
			return domain.Account{}, fmt.Errorf("verify id token: %w", err)
		}
		var claims map[string]interface{}
		if err := idToken.Claims(&claims); err != nil {
			return domain.Account{}, fmt.Errorf("parse id token claims: %w", err)
		}
		return AccountFromClaims(claims)
	}
	if rawID != "" {
		if account, err := AccountFromAccessToken(rawID); err == nil {
			return account, nil
		}
	}
	return AccountFromAccessToken(tok.AccessToken)
}
