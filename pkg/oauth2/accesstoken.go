package oauth2

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tendant/simple-oauth/pkg/identity"
)

const defaultTokenTTL = time.Hour

// AccessToken is an opaque bearer credential bound to a principal and the
// scopes granted at issuance. Read-only after creation.
type AccessToken struct {
	Token     string
	Principal identity.Principal
	Scopes    []string
	ExpiresAt time.Time
}

// HasScope reports whether scope was granted on this token
func (t *AccessToken) HasScope(scope string) bool {
	for _, s := range t.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// AccessTokenStore issues and validates bearer tokens
type AccessTokenStore interface {
	// Issue creates a token for the principal with the given scopes
	Issue(ctx context.Context, principal identity.Principal, scopes []string) (*AccessToken, error)

	// Validate returns the token's binding, or absent when the token is
	// unknown, malformed or past expiry.
	Validate(ctx context.Context, token string) (*AccessToken, bool)

	// DeleteExpired removes tokens expired as of now and reports how many
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// InMemoryAccessTokenStore stores access tokens in memory
type InMemoryAccessTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*AccessToken
	ttl    time.Duration
	now    func() time.Time
}

// AccessTokenOption is a function that configures an InMemoryAccessTokenStore
type AccessTokenOption func(*InMemoryAccessTokenStore)

// WithTokenTTL sets the access token lifetime
func WithTokenTTL(ttl time.Duration) AccessTokenOption {
	return func(s *InMemoryAccessTokenStore) {
		s.ttl = ttl
	}
}

// NewInMemoryAccessTokenStore constructs an empty in-memory token store
func NewInMemoryAccessTokenStore(opts ...AccessTokenOption) *InMemoryAccessTokenStore {
	store := &InMemoryAccessTokenStore{
		tokens: make(map[string]*AccessToken),
		ttl:    defaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Issue creates a new opaque bearer token
func (s *InMemoryAccessTokenStore) Issue(ctx context.Context, principal identity.Principal, scopes []string) (*AccessToken, error) {
	value, err := randomHex(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	token := &AccessToken{
		Token:     value,
		Principal: principal,
		Scopes:    append([]string(nil), scopes...),
		ExpiresAt: s.now().UTC().Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[value] = token

	copied := *token
	copied.Scopes = append([]string(nil), token.Scopes...)
	return &copied, nil
}

// Validate looks the token up and checks expiry
func (s *InMemoryAccessTokenStore) Validate(ctx context.Context, token string) (*AccessToken, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.tokens[token]
	if !ok {
		return nil, false
	}
	if s.now().UTC().After(record.ExpiresAt) {
		return nil, false
	}

	copied := *record
	copied.Scopes = append([]string(nil), record.Scopes...)
	return &copied, true
}

// DeleteExpired removes all access tokens that have expired as of the given
// time.
func (s *InMemoryAccessTokenStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for value, record := range s.tokens {
		if record.ExpiresAt.Before(now) {
			delete(s.tokens, value)
			deleted++
		}
	}
	return deleted, nil
}
