// Package account exposes the signup, login and recovery endpoints of the
// front end. Credential checks, account creation, password resets and
// migration email live in the external identity service; this package
// validates payloads, enforces password complexity and manages the session
// cookie around those calls.
package account

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/copier"

	apierr "github.com/tendant/simple-oauth/pkg/errors"
	"github.com/tendant/simple-oauth/pkg/identity"
	"github.com/tendant/simple-oauth/pkg/session"
)

type LoginJSONRequestBody struct {
	UID      string `json:"uid"`
	Password string `json:"password"`
}

type CreateUserJSONRequestBody struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Feedback *bool  `json:"feedback"`
}

type RequestResetJSONRequestBody struct {
	UID string `json:"uid"`
}

type ResetPasswordJSONRequestBody struct {
	UID       string `json:"uid"`
	ResetCode string `json:"resetCode"`
	Password  string `json:"password"`
}

type CheckUsernameJSONRequestBody struct {
	UID string `json:"uid"`
}

type RequestMigrationEmailJSONRequestBody struct {
	Username string            `json:"username"`
	OAuth    map[string]string `json:"oauth"`
}

type MigrateUserJSONRequestBody struct {
	Username string `json:"username"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

// Handle exposes the account endpoints
type Handle struct {
	identity identity.Client
	sessions *session.Manager
	policy   PasswordPolicy
}

// NewHandle creates the account HTTP handle
func NewHandle(identityClient identity.Client, sessions *session.Manager, policy PasswordPolicy) Handle {
	return Handle{
		identity: identityClient,
		sessions: sessions,
		policy:   policy,
	}
}

// RegisterRoutes mounts the account endpoints on r
func (h Handle) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Root)
	r.Post("/login", h.Login)
	r.Post("/create-user", h.CreateUser)
	r.Post("/request-reset", h.RequestReset)
	r.Post("/reset-password", h.ResetPassword)
	r.Post("/check-username", h.CheckUsername)
	r.Post("/request-migration-email", h.RequestMigrationEmail)
	r.Post("/migrate-user", h.MigrateUser)
}

// Root redirects the bare origin to the signup page
func (h Handle) Root(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/signup", http.StatusFound)
}

func invalidPayload(field string) *apierr.Error {
	return apierr.Newf(apierr.ErrCodeInvalidInput, "invalid payload: %s", field)
}

// Login authenticates uid/password against the identity service and issues
// the session cookie.
func (h Handle) Login(w http.ResponseWriter, r *http.Request) {
	var body LoginJSONRequestBody
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		apierr.Render(w, r, invalidPayload("body"))
		return
	}
	if body.UID == "" {
		apierr.Render(w, r, invalidPayload("uid"))
		return
	}
	if body.Password == "" {
		apierr.Render(w, r, invalidPayload("password"))
		return
	}

	principal, err := h.identity.Authenticate(r.Context(), body.UID, body.Password)
	if err != nil {
		if errors.Is(err, identity.ErrUnauthorized) {
			apierr.Render(w, r, apierr.Wrap(err, apierr.ErrCodeUnauthorized, "invalid username/email or password"))
			return
		}
		slog.Error("identity service login failed", "uid", body.UID, "err", err)
		apierr.Render(w, r, apierr.Wrap(err, apierr.ErrCodeUpstream, "login failed"))
		return
	}

	cookie, err := h.sessions.Issue(*principal)
	if err != nil {
		slog.Error("failed to issue session", "uid", principal.UID, "err", err)
		apierr.Render(w, r, apierr.Wrap(err, apierr.ErrCodeInternal, "failed to issue session"))
		return
	}

	http.SetCookie(w, cookie)
	render.JSON(w, r, principal)
}

// CreateUser validates the signup payload, delegates account creation to the
// identity service and issues the session cookie. Validation failures name
// the first offending field.
func (h Handle) CreateUser(w http.ResponseWriter, r *http.Request) {
	var body CreateUserJSONRequestBody
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		apierr.Render(w, r, invalidPayload("body"))
		return
	}
	if _, err := mail.ParseAddress(body.Email); err != nil {
		apierr.Render(w, r, invalidPayload("email"))
		return
	}
	if body.Username == "" {
		apierr.Render(w, r, invalidPayload("username"))
		return
	}
	if body.Password == "" {
		apierr.Render(w, r, invalidPayload("password"))
		return
	}
	if body.Feedback == nil {
		apierr.Render(w, r, invalidPayload("feedback"))
		return
	}
	if err := h.policy.Check(body.Password); err != nil {
		apierr.Render(w, r, err)
		return
	}

	params := identity.CreateUserParams{Feedback: *body.Feedback}
	copier.Copy(&params, body)

	principal, err := h.identity.CreateUser(r.Context(), params)
	if err != nil {
		slog.Error("identity service create user failed", "username", body.Username, "err", err)
		apierr.Render(w, r, apierr.Wrap(err, apierr.ErrCodeUpstream, "failed to create user"))
		return
	}

	cookie, err := h.sessions.Issue(*principal)
	if err != nil {
		slog.Error("failed to issue session", "uid", principal.UID, "err", err)
		apierr.Render(w, r, apierr.Wrap(err, apierr.ErrCodeInternal, "failed to issue session"))
		return
	}

	http.SetCookie(w, cookie)
	render.JSON(w, r, identity.Profile{
		Username: principal.Username,
		Email:    principal.Email,
	})
}

// RequestReset asks the identity service to send a password reset email.
// Every upstream failure is a 500 here; there is nothing the browser can fix.
func (h Handle) RequestReset(w http.ResponseWriter, r *http.Request) {
	var body RequestResetJSONRequestBody
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		apierr.Render(w, r, invalidPayload("body"))
		return
	}
	if body.UID == "" {
		apierr.Render(w, r, invalidPayload("uid"))
		return
	}

	if err := h.identity.RequestReset(r.Context(), body.UID); err != nil {
		slog.Error("identity service request reset failed", "uid", body.UID, "err", err)
		apierr.Render(w, r, apierr.Wrap(err, apierr.ErrCodeUpstream, "failed to request reset"))
		return
	}

	render.JSON(w, r, map[string]string{"status": "created"})
}

// ResetPassword completes a reset with the emailed code. The identity
// service owns reset password policy, so no local complexity check here.
func (h Handle) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body ResetPasswordJSONRequestBody
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		apierr.Render(w, r, invalidPayload("body"))
		return
	}
	if body.UID == "" {
		apierr.Render(w, r, invalidPayload("uid"))
		return
	}
	if body.ResetCode == "" {
		apierr.Render(w, r, invalidPayload("resetCode"))
		return
	}
	if body.Password == "" {
		apierr.Render(w, r, invalidPayload("password"))
		return
	}

	err := h.identity.ResetPassword(r.Context(), body.UID, body.ResetCode, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrUnauthorized):
			apierr.Render(w, r, apierr.Wrap(err, apierr.ErrCodeUnauthorized, "invalid reset code"))
		case errors.Is(err, identity.ErrBadRequest):
			apierr.Render(w, r, apierr.Wrap(err, apierr.ErrCodeInvalidInput, "invalid reset request"))
		default:
			slog.Error("identity service reset password failed", "uid", body.UID, "err", err)
			apierr.Render(w, r, apierr.Wrap(err, apierr.ErrCodeUpstream, "failed to reset password"))
		}
		return
	}

	render.JSON(w, r, map[string]string{"status": "success"})
}

// CheckUsername reports whether a uid exists and whether it uses password
// login. An unknown uid is a 404, matching what the identity service says.
func (h Handle) CheckUsername(w http.ResponseWriter, r *http.Request) {
	var body CheckUsernameJSONRequestBody
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		apierr.Render(w, r, invalidPayload("body"))
		return
	}
	if body.UID == "" {
		apierr.Render(w, r, invalidPayload("uid"))
		return
	}

	status, err := h.identity.CheckUsername(r.Context(), body.UID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			apierr.Render(w, r, apierr.Wrap(err, apierr.ErrCodeNotFound, "user not found"))
			return
		}
		slog.Error("identity service check username failed", "uid", body.UID, "err", err)
		apierr.Render(w, r, apierr.Wrap(err, apierr.ErrCodeUpstream, "failed to check username"))
		return
	}

	render.JSON(w, r, status)
}

// RequestMigrationEmail asks the identity service to email a migration token
// along with the pending oauth parameters. An unknown user surfaces as a 500,
// not a 404.
func (h Handle) RequestMigrationEmail(w http.ResponseWriter, r *http.Request) {
	var body RequestMigrationEmailJSONRequestBody
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		apierr.Render(w, r, invalidPayload("body"))
		return
	}
	if body.Username == "" {
		apierr.Render(w, r, invalidPayload("username"))
		return
	}

	if err := h.identity.RequestMigrationEmail(r.Context(), body.Username, body.OAuth); err != nil {
		slog.Error("identity service migration email failed", "username", body.Username, "err", err)
		apierr.Render(w, r, apierr.Wrap(err, apierr.ErrCodeUpstream, "failed to request migration email"))
		return
	}

	render.JSON(w, r, map[string]string{"status": "created"})
}

// MigrateUser sets the first password on a migrated account. The payload and
// password policy are checked before the token, so a bad token with a missing
// password still reads as a 400.
func (h Handle) MigrateUser(w http.ResponseWriter, r *http.Request) {
	var body MigrateUserJSONRequestBody
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		apierr.Render(w, r, invalidPayload("body"))
		return
	}
	if body.Username == "" {
		apierr.Render(w, r, invalidPayload("username"))
		return
	}
	if body.Token == "" {
		apierr.Render(w, r, invalidPayload("token"))
		return
	}
	if body.Password == "" {
		apierr.Render(w, r, invalidPayload("password"))
		return
	}
	if err := h.policy.Check(body.Password); err != nil {
		apierr.Render(w, r, err)
		return
	}

	err := h.identity.VerifyMigrationToken(r.Context(), body.Username, body.Token)
	if err != nil {
		if errors.Is(err, identity.ErrUnauthorized) || errors.Is(err, identity.ErrNotFound) {
			apierr.Render(w, r, apierr.Wrap(err, apierr.ErrCodeUnauthorized, "invalid migration token"))
			return
		}
		slog.Error("identity service token verification failed", "username", body.Username, "err", err)
		apierr.Render(w, r, apierr.Wrap(err, apierr.ErrCodeUpstream, "failed to verify migration token"))
		return
	}

	if err := h.identity.SetPassword(r.Context(), body.Username, body.Password); err != nil {
		slog.Error("identity service set password failed", "username", body.Username, "err", err)
		apierr.Render(w, r, apierr.Wrap(err, apierr.ErrCodeUpstream, "failed to set password"))
		return
	}

	render.JSON(w, r, map[string]string{"status": "success"})
}
