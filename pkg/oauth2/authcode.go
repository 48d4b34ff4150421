package oauth2

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tendant/simple-oauth/pkg/identity"
)

// ErrInvalidGrant covers every way a code can fail to consume: unknown,
// expired, already used, or bound to a different client. Callers get one
// uniform outcome and decide the status code themselves.
var ErrInvalidGrant = errors.New("invalid grant")

const defaultCodeTTL = 10 * time.Minute

// AuthorizationCode binds a single-use opaque code to the client it was
// issued for, the principal who approved it and the scopes requested.
type AuthorizationCode struct {
	Code      string
	ClientID  string
	Principal identity.Principal
	Scopes    []string
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
}

// AuthCodeStore issues and consumes authorization codes
type AuthCodeStore interface {
	// Issue generates an unguessable code bound to (clientID, principal, scopes)
	Issue(ctx context.Context, clientID string, principal identity.Principal, scopes []string) (string, error)

	// Consume atomically marks the code used and returns its binding. It
	// fails with ErrInvalidGrant unless the code exists, is unexpired,
	// unconsumed, and was issued to clientID.
	Consume(ctx context.Context, code, clientID string) (*AuthorizationCode, error)

	// DeleteExpired removes codes expired as of now and reports how many
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// InMemoryAuthCodeStore stores authorization codes in memory. All checks and
// the used-flag flip happen under one mutex so two concurrent Consume calls
// on the same code can never both succeed.
type InMemoryAuthCodeStore struct {
	mu    sync.Mutex
	codes map[string]*AuthorizationCode
	ttl   time.Duration
	now   func() time.Time
}

// AuthCodeOption is a function that configures an InMemoryAuthCodeStore
type AuthCodeOption func(*InMemoryAuthCodeStore)

// WithCodeTTL sets the authorization code lifetime
func WithCodeTTL(ttl time.Duration) AuthCodeOption {
	return func(s *InMemoryAuthCodeStore) {
		s.ttl = ttl
	}
}

// NewInMemoryAuthCodeStore constructs an empty in-memory code store
func NewInMemoryAuthCodeStore(opts ...AuthCodeOption) *InMemoryAuthCodeStore {
	store := &InMemoryAuthCodeStore{
		codes: make(map[string]*AuthorizationCode),
		ttl:   defaultCodeTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Issue generates a new single-use authorization code
func (s *InMemoryAuthCodeStore) Issue(ctx context.Context, clientID string, principal identity.Principal, scopes []string) (string, error) {
	code, err := randomHex(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate authorization code: %w", err)
	}

	now := s.now().UTC()
	record := &AuthorizationCode{
		Code:      code,
		ClientID:  clientID,
		Principal: principal,
		Scopes:    append([]string(nil), scopes...),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = record
	return code, nil
}

// Consume marks the code used if and only if every binding check passes.
func (s *InMemoryAuthCodeStore) Consume(ctx context.Context, code, clientID string) (*AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.codes[code]
	if !ok {
		return nil, fmt.Errorf("authorization code not found: %w", ErrInvalidGrant)
	}
	if record.ClientID != clientID {
		return nil, fmt.Errorf("authorization code issued to a different client: %w", ErrInvalidGrant)
	}
	if record.Used {
		return nil, fmt.Errorf("authorization code already used: %w", ErrInvalidGrant)
	}
	if s.now().UTC().After(record.ExpiresAt) {
		return nil, fmt.Errorf("authorization code expired: %w", ErrInvalidGrant)
	}

	record.Used = true
	copied := *record
	copied.Scopes = append([]string(nil), record.Scopes...)
	return &copied, nil
}

// DeleteExpired removes all authorization codes that have expired as of the
// given time.
func (s *InMemoryAuthCodeStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for code, record := range s.codes {
		if record.ExpiresAt.Before(now) {
			delete(s.codes, code)
			deleted++
		}
	}
	return deleted, nil
}

// randomHex returns n random bytes hex-encoded.
func randomHex(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
