// Package session implements the browser session as a signed cookie. There
// is no server-side session table: the cookie value is an HS256 JWT carrying
// the principal, and the signature is the only thing that makes it a session.
package session

import (
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tendant/simple-oauth/pkg/identity"
)

const defaultDuration = 14 * 24 * time.Hour

type sessionClaims struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and verifies session cookies. The cookie is named after the
// principal uid; Read only accepts a cookie whose signed subject matches its
// own name.
type Manager struct {
	secret   string
	jwtAuth  *jwtauth.JWTAuth
	duration time.Duration
}

// Option is a function that configures a Manager
type Option func(*Manager)

// WithDuration sets the session lifetime
func WithDuration(duration time.Duration) Option {
	return func(m *Manager) {
		m.duration = duration
	}
}

// NewManager creates a session manager signing with the given secret
func NewManager(secret string, opts ...Option) *Manager {
	manager := &Manager{
		secret:   secret,
		jwtAuth:  jwtauth.New("HS256", []byte(secret), nil),
		duration: defaultDuration,
	}
	for _, opt := range opts {
		opt(manager)
	}
	return manager
}

// Issue produces the session cookie for an authenticated principal.
func (m *Manager) Issue(principal identity.Principal) (*http.Cookie, error) {
	now := time.Now().UTC()
	claims := sessionClaims{
		Username: principal.Username,
		Email:    principal.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.UID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.duration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.secret))
	if err != nil {
		return nil, err
	}

	return &http.Cookie{
		Name:     principal.UID,
		Value:    signed,
		Path:     "/",
		Secure:   true,
		HttpOnly: true,
	}, nil
}

// Read returns the principal for a verified session cookie, or absent. A
// missing cookie, a bad signature and an expired token all look the same to
// the caller: no session.
func (m *Manager) Read(r *http.Request) (*identity.Principal, bool) {
	for _, cookie := range r.Cookies() {
		token, err := jwtauth.VerifyToken(m.jwtAuth, cookie.Value)
		if err != nil {
			continue
		}
		if token.Subject() == "" || token.Subject() != cookie.Name {
			continue
		}

		principal := identity.Principal{UID: token.Subject()}
		if v, ok := token.Get("username"); ok {
			principal.Username, _ = v.(string)
		}
		if v, ok := token.Get("email"); ok {
			principal.Email, _ = v.(string)
		}
		return &principal, true
	}
	return nil, false
}

// Clear returns the logout form of the cookie: empty value, Max-Age=0 and an
// epoch Expires, with the same security attributes as Issue.
func (m *Manager) Clear(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		Secure:   true,
		HttpOnly: true,
	}
}
