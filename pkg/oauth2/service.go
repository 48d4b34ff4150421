package oauth2

import (
	"context"
	"net/url"
	"strings"

	apierr "github.com/tendant/simple-oauth/pkg/errors"
	"github.com/tendant/simple-oauth/pkg/identity"
	"github.com/tendant/simple-oauth/pkg/oauth2client"
)

// AuthorizeParams are the query parameters of an authorize request
type AuthorizeParams struct {
	ClientID     string
	Scopes       string
	State        string
	ResponseType string
	Action       string
}

// TokenParams are the form fields of an access token request
type TokenParams struct {
	ClientID     string
	ClientSecret string
	GrantType    string
	Code         string
}

// TokenResponse is the body of a successful token exchange. Scopes is the
// space-separated form the scopes were requested in.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scopes      string `json:"scopes"`
}

// Profile is the user info returned from the protected resource endpoint
type Profile struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

const (
	defaultLoginPath       = "/login"
	defaultSignupPath      = "/signup"
	defaultRequiredScope   = "user"
	grantAuthorizationCode = "authorization_code"
)

// Service implements the authorization server flows on top of the client
// registry, the code and token stores and the identity service.
type Service struct {
	clients            *oauth2client.ClientService
	codes              AuthCodeStore
	tokens             AccessTokenStore
	identity           identity.Client
	defaultRedirectURI string
	requiredScope      string
}

// ServiceOption is a function that configures a Service
type ServiceOption func(*Service)

// WithDefaultRedirectURI sets the logout target used when no client_id is supplied
func WithDefaultRedirectURI(uri string) ServiceOption {
	return func(s *Service) {
		s.defaultRedirectURI = uri
	}
}

// WithRequiredScope sets the scope the user info endpoint requires
func WithRequiredScope(scope string) ServiceOption {
	return func(s *Service) {
		s.requiredScope = scope
	}
}

// NewService creates the authorization server service
func NewService(clients *oauth2client.ClientService, codes AuthCodeStore, tokens AccessTokenStore, identityClient identity.Client, opts ...ServiceOption) *Service {
	service := &Service{
		clients:       clients,
		codes:         codes,
		tokens:        tokens,
		identity:      identityClient,
		requiredScope: defaultRequiredScope,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Authorize decides where the browser goes next. With no session the answer
// is the login or signup page with the oauth parameters forwarded; with a
// session it is the client's redirect_uri carrying a fresh code.
func (s *Service) Authorize(ctx context.Context, principal *identity.Principal, params AuthorizeParams) (string, error) {
	client, err := s.clients.GetClient(ctx, params.ClientID)
	if err != nil {
		return "", apierr.New(apierr.ErrCodeInvalidInput, "invalid client_id")
	}

	if principal == nil {
		return buildLoginRedirectURL(params), nil
	}

	code, err := s.codes.Issue(ctx, client.ClientID, *principal, strings.Fields(params.Scopes))
	if err != nil {
		return "", apierr.Wrap(err, apierr.ErrCodeInternal, "failed to issue authorization code")
	}

	return buildCallbackURL(client.RedirectURI, code, params.State)
}

// buildLoginRedirectURL forwards client_id, scopes, state and response_type
// unchanged onto the login (or signup, when action=signup) page.
func buildLoginRedirectURL(params AuthorizeParams) string {
	path := defaultLoginPath
	if params.Action == "signup" {
		path = defaultSignupPath
	}

	values := url.Values{}
	if params.ClientID != "" {
		values.Set("client_id", params.ClientID)
	}
	if params.Scopes != "" {
		values.Set("scopes", params.Scopes)
	}
	if params.State != "" {
		values.Set("state", params.State)
	}
	if params.ResponseType != "" {
		values.Set("response_type", params.ResponseType)
	}
	return path + "?" + values.Encode()
}

// buildCallbackURL constructs the client redirect with code and state. State
// is echoed verbatim and omitted when absent.
func buildCallbackURL(redirectURI, code, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", apierr.Wrap(err, apierr.ErrCodeInternal, "invalid registered redirect_uri")
	}

	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExchangeToken implements the authorization_code grant. The code is consumed
// before the token is issued, never after, so a retried exchange can never
// double-spend.
func (s *Service) ExchangeToken(ctx context.Context, params TokenParams) (*TokenResponse, error) {
	if params.ClientID == "" {
		return nil, apierr.New(apierr.ErrCodeInvalidInput, "invalid payload: client_id")
	}
	if params.ClientSecret == "" {
		return nil, apierr.New(apierr.ErrCodeInvalidInput, "invalid payload: client_secret")
	}
	if params.GrantType != grantAuthorizationCode {
		return nil, apierr.New(apierr.ErrCodeInvalidInput, "invalid payload: grant_type")
	}

	client, err := s.clients.GetClient(ctx, params.ClientID)
	if err != nil {
		return nil, apierr.New(apierr.ErrCodeInvalidInput, "invalid client_id")
	}
	if !client.VerifySecret(params.ClientSecret) {
		return nil, apierr.New(apierr.ErrCodeForbidden, "invalid client credentials")
	}

	record, err := s.codes.Consume(ctx, params.Code, client.ClientID)
	if err != nil {
		// Unknown, expired, consumed and wrong-client all collapse into one
		// response; the caller learns nothing about which check failed.
		return nil, apierr.Wrap(err, apierr.ErrCodeForbidden, "invalid authorization code")
	}

	token, err := s.tokens.Issue(ctx, record.Principal, record.Scopes)
	if err != nil {
		return nil, apierr.Wrap(err, apierr.ErrCodeInternal, "failed to issue access token")
	}

	return &TokenResponse{
		AccessToken: token.Token,
		TokenType:   "bearer",
		Scopes:      strings.Join(record.Scopes, " "),
	}, nil
}

// UserInfo validates the bearer token and fetches the profile from the
// identity service. Insufficient scope is a 401 here, not a 403.
func (s *Service) UserInfo(ctx context.Context, rawToken string) (*Profile, error) {
	token, ok := s.tokens.Validate(ctx, rawToken)
	if !ok {
		return nil, apierr.New(apierr.ErrCodeUnauthorized, "invalid access token")
	}
	if !token.HasScope(s.requiredScope) {
		return nil, apierr.New(apierr.ErrCodeUnauthorized, "insufficient scope")
	}

	profile, err := s.identity.GetProfile(ctx, token.Principal.UID)
	if err != nil {
		return nil, apierr.Wrap(err, apierr.ErrCodeUpstream, "failed to fetch user profile")
	}

	return &Profile{
		Username: profile.Username,
		Email:    profile.Email,
	}, nil
}

// LogoutRedirectURL resolves where logout sends the browser: the client's
// registered redirect_uri when a known client_id is supplied, the default
// origin otherwise. Unknown client ids are rejected.
func (s *Service) LogoutRedirectURL(ctx context.Context, clientID string) (string, error) {
	target := s.defaultRedirectURI
	if clientID != "" {
		client, err := s.clients.GetClient(ctx, clientID)
		if err != nil {
			return "", apierr.New(apierr.ErrCodeInvalidInput, "invalid client_id")
		}
		target = client.RedirectURI
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", apierr.Wrap(err, apierr.ErrCodeInternal, "invalid logout redirect")
	}
	q := u.Query()
	q.Set("logout", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
