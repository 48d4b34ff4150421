package oauth2

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierr "github.com/tendant/simple-oauth/pkg/errors"
	"github.com/tendant/simple-oauth/pkg/session"
)

// Handle exposes the authorization server endpoints
type Handle struct {
	service  *Service
	sessions *session.Manager
}

// NewHandle creates the OAuth2 HTTP handle
func NewHandle(service *Service, sessions *session.Manager) Handle {
	return Handle{
		service:  service,
		sessions: sessions,
	}
}

// RegisterRoutes mounts the authorization server endpoints on r
func (h Handle) RegisterRoutes(r chi.Router) {
	r.Get("/login/oauth/authorize", h.Authorize)
	r.Post("/login/oauth/access_token", h.AccessToken)
	r.Get("/user", h.UserInfo)
	r.Get("/logout", h.Logout)
}

// Authorize handles GET /login/oauth/authorize
func (h Handle) Authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := AuthorizeParams{
		ClientID:     q.Get("client_id"),
		Scopes:       q.Get("scopes"),
		State:        q.Get("state"),
		ResponseType: q.Get("response_type"),
		Action:       q.Get("action"),
	}

	principal, _ := h.sessions.Read(r)

	target, err := h.service.Authorize(r.Context(), principal, params)
	if err != nil {
		slog.Warn("authorize request rejected", "client_id", params.ClientID, "err", err)
		apierr.Render(w, r, err)
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}

// AccessToken handles POST /login/oauth/access_token
// (grant_type=authorization_code, form-encoded)
func (h Handle) AccessToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		apierr.Render(w, r, apierr.New(apierr.ErrCodeInvalidInput, "invalid payload"))
		return
	}

	params := TokenParams{
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
		GrantType:    r.PostFormValue("grant_type"),
		Code:         r.PostFormValue("code"),
	}

	resp, err := h.service.ExchangeToken(r.Context(), params)
	if err != nil {
		slog.Warn("token exchange failed", "client_id", params.ClientID, "err", err)
		apierr.Render(w, r, err)
		return
	}

	slog.Info("access token issued", "client_id", params.ClientID, "scopes", resp.Scopes)
	render.JSON(w, r, resp)
}

// UserInfo handles GET /user, gated on `Authorization: token <value>`.
func (h Handle) UserInfo(w http.ResponseWriter, r *http.Request) {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || parts[0] != "token" {
		apierr.Render(w, r, apierr.New(apierr.ErrCodeUnauthorized, "missing or malformed authorization header"))
		return
	}

	profile, err := h.service.UserInfo(r.Context(), parts[1])
	if err != nil {
		slog.Warn("user info request rejected", "err", err)
		apierr.Render(w, r, err)
		return
	}

	render.JSON(w, r, profile)
}

// Logout handles GET /logout. The cookie is cleared whether or not a valid
// session was present; only an unknown client_id aborts.
func (h Handle) Logout(w http.ResponseWriter, r *http.Request) {
	target, err := h.service.LogoutRedirectURL(r.Context(), r.URL.Query().Get("client_id"))
	if err != nil {
		apierr.Render(w, r, err)
		return
	}

	if principal, ok := h.sessions.Read(r); ok {
		http.SetCookie(w, h.sessions.Clear(principal.UID))
		slog.Info("session cleared", "uid", principal.UID)
	} else {
		// No verifiable session; clear whatever arrived anyway.
		for _, cookie := range r.Cookies() {
			http.SetCookie(w, h.sessions.Clear(cookie.Name))
		}
	}

	http.Redirect(w, r, target, http.StatusFound)
}
