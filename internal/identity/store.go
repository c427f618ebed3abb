package identity

import (
	"context"
	"sync"

	"golang.org/x/oauth2"

	"sqlspeak-console/internal/domain"
)

// TokenCache stores the OAuth token issued to each cached account.
type TokenCache interface {
	Token(accountID string) (*oauth2.Token, bool)
	SaveToken(accountID string, tok *oauth2.Token)
}

// MemoryAccountStore is the account cache of one console session. It keeps
// accounts in sign-in order together with their tokens.
type MemoryAccountStore struct {
	mu       sync.RWMutex
	accounts []domain.Account
	tokens   map[string]*oauth2.Token
	activeID string
}

// NewMemoryAccountStore creates an empty account cache.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{tokens: make(map[string]*oauth2.Token)}
}

// ActiveAccount implements domain.AccountStore.
func (s *MemoryAccountStore) ActiveAccount(_ context.Context) (domain.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeID == "" {
		return domain.Account{}, false
	}
	for _, a := range s.accounts {
		if a.ID == s.activeID {
			return a, true
		}
	}
	return domain.Account{}, false
}

// CachedAccounts implements domain.AccountStore.
func (s *MemoryAccountStore) CachedAccounts(_ context.Context) []domain.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Account(nil), s.accounts...)
}

// Add caches an account and its token, replacing an earlier entry with the
// same ID in place.
func (s *MemoryAccountStore) Add(account domain.Account, tok *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	replaced := false
	for i := range s.accounts {
		if s.accounts[i].ID == account.ID {
			s.accounts[i] = account
			replaced = true
			break
		}
	}
	if !replaced {
		s.accounts = append(s.accounts, account)
	}
	if tok != nil {
		s.tokens[account.ID] = tok
	}
}

// SetActive marks a cached account as the active one.
func (s *MemoryAccountStore) SetActive(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == accountID {
			s.activeID = accountID
			return nil
		}
	}
	return domain.ErrNotFound("account %s is not cached", accountID)
}

// Remove drops an account and its token.
func (s *MemoryAccountStore) Remove(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.accounts[:0]
	for _, a := range s.accounts {
		if a.ID != accountID {
			out = append(out, a)
		}
	}
	s.accounts = out
	delete(s.tokens, accountID)
	if s.activeID == accountID {
		s.activeID = ""
	}
}

// Clear forgets every account (sign-out).
func (s *MemoryAccountStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = nil
	s.tokens = make(map[string]*oauth2.Token)
	s.activeID = ""
}

// Token implements TokenCache.
func (s *MemoryAccountStore) Token(accountID string) (*oauth2.Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[accountID]
	return tok, ok
}

// SaveToken implements TokenCache. Tokens for unknown accounts are ignored.
func (s *MemoryAccountStore) SaveToken(accountID string, tok *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == accountID {
			s.tokens[accountID] = tok
			return
		}
	}
}

// StaticAccountStore exposes a single account backed by a pre-issued bearer
// token. It is empty when no token was supplied.
type StaticAccountStore struct {
	Account domain.Account
	Token   string
}

// NewStaticAccountStore derives the account from the token's claims when it
// is a JWT; opaque tokens get a placeholder account.
func NewStaticAccountStore(token string) *StaticAccountStore {
	s := &StaticAccountStore{Token: token}
	if token == "" {
		return s
	}
	account, err := AccountFromAccessToken(token)
	if err != nil {
		account = domain.Account{ID: "static-token", Name: "token"}
	}
	s.Account = account
	return s
}

// ActiveAccount implements domain.AccountStore.
func (s *StaticAccountStore) ActiveAccount(_ context.Context) (domain.Account, bool) {
	if s.Token == "" {
		return domain.Account{}, false
	}
	return s.Account, true
}

// CachedAccounts implements domain.AccountStore.
func (s *StaticAccountStore) CachedAccounts(ctx context.Context) []domain.Account {
	if a, ok := s.ActiveAccount(ctx); ok {
		return []domain.Account{a}
	}
	return nil
}

// AcquireSilent implements domain.SilentAcquirer by handing out the static token.
func (s *StaticAccountStore) AcquireSilent(_ context.Context, _ domain.Account, _ []string) (string, error) {
	if s.Token == "" {
		return "", domain.ErrInteractionRequired
	}
	return s.Token, nil
}

var (
	_ domain.AccountStore   = (*MemoryAccountStore)(nil)
	_ TokenCache            = (*MemoryAccountStore)(nil)
	_ domain.AccountStore   = (*StaticAccountStore)(nil)
	_ domain.SilentAcquirer = (*StaticAccountStore)(nil)
)
