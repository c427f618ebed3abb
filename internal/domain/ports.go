package domain

import "context"

// AccountStore exposes the accounts known to the identity client of one
// session. Implemented by identity.MemoryAccountStore and identity.StaticAccountStore.
type AccountStore interface {
	ActiveAccount(ctx context.Context) (Account, bool)
	CachedAccounts(ctx context.Context) []Account
}

// SilentAcquirer obtains a token for an account without user interaction.
// It returns an error matching ErrInteractionRequired when only an
// interactive sign-in can help.
type SilentAcquirer interface {
	AcquireSilent(ctx context.Context, account Account, scopes []string) (string, error)
}

// Redirector starts an interactive sign-in and returns where the browser has
// to be sent.
type Redirector interface {
	BeginRedirect(ctx context.Context, scopes []string) (Redirect, error)
}

// CredentialSource produces a bearer credential or a sign-in redirect.
// Implemented by identity.Provider.
type CredentialSource interface {
	EnsureCredential(ctx context.Context) (Outcome[Credential], error)
}

// QueryService is the remote NL-to-SQL service. Implemented by queryclient.Client.
type QueryService interface {
	RunQuery(ctx context.Context, token string, req QueryRequest) (*QueryResult, error)
	History(ctx context.Context, token string) ([]HistoryEntry, error)
	Me(ctx context.Context, token string) (*Principal, error)
	Schema(ctx context.Context, token, dataSource string) (*SchemaSnapshot, error)
}
