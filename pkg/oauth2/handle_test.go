package oauth2

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-oauth/pkg/identity"
	"github.com/tendant/simple-oauth/pkg/oauth2client"
	"github.com/tendant/simple-oauth/pkg/session"
)

// stubIdentity satisfies identity.Client for handler tests. Only GetProfile
// is exercised by this package.
type stubIdentity struct {
	profile    *identity.Profile
	profileErr error
}

func (s *stubIdentity) Authenticate(ctx context.Context, uid, password string) (*identity.Principal, error) {
	return nil, identity.ErrUnauthorized
}

func (s *stubIdentity) GetProfile(ctx context.Context, uid string) (*identity.Profile, error) {
	if s.profileErr != nil {
		return nil, s.profileErr
	}
	return s.profile, nil
}

func (s *stubIdentity) CheckUsername(ctx context.Context, uid string) (*identity.UsernameStatus, error) {
	return nil, identity.ErrNotFound
}

func (s *stubIdentity) CreateUser(ctx context.Context, params identity.CreateUserParams) (*identity.Principal, error) {
	return nil, identity.ErrBadRequest
}

func (s *stubIdentity) RequestReset(ctx context.Context, uid string) error { return nil }

func (s *stubIdentity) ResetPassword(ctx context.Context, uid, resetCode, password string) error {
	return nil
}

func (s *stubIdentity) VerifyMigrationToken(ctx context.Context, uid, token string) error {
	return nil
}

func (s *stubIdentity) SetPassword(ctx context.Context, uid, password string) error { return nil }

func (s *stubIdentity) RequestMigrationEmail(ctx context.Context, uid string, oauth map[string]string) error {
	return nil
}

type testServer struct {
	router   chi.Router
	sessions *session.Manager
	codes    *InMemoryAuthCodeStore
	tokens   *InMemoryAccessTokenStore
	identity *stubIdentity
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo := oauth2client.NewInMemoryOAuth2ClientRepository(
		&oauth2client.OAuth2Client{
			ClientID:     "test",
			ClientSecret: "test",
			ClientName:   "Test App",
			RedirectURI:  "http://example.org/oauth_redirect",
		},
		&oauth2client.OAuth2Client{
			ClientID:     "other",
			ClientSecret: "other-secret",
			RedirectURI:  "http://other.example.org/callback",
		},
	)

	ident := &stubIdentity{
		profile: &identity.Profile{Username: "webmaker", Email: "webmaker@example.com"},
	}
	codes := NewInMemoryAuthCodeStore()
	tokens := NewInMemoryAccessTokenStore()
	sessions := session.NewManager("test-secret")

	service := NewService(oauth2client.NewClientService(repo), codes, tokens, ident,
		WithDefaultRedirectURI("https://webmaker.org"),
	)
	handle := NewHandle(service, sessions)

	router := chi.NewRouter()
	handle.RegisterRoutes(router)

	return &testServer{
		router:   router,
		sessions: sessions,
		codes:    codes,
		tokens:   tokens,
		identity: ident,
	}
}

type errorBody struct {
	StatusCode int    `json:"statusCode"`
	ErrorText  string `json:"error"`
	Message    string `json:"message"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestAuthorize_NoSessionRedirectsToLogin(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest("GET", "/login/oauth/authorize?client_id=test&scopes=user&state=xyz&response_type=code", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	target, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/login", target.Path)
	assert.Equal(t, "test", target.Query().Get("client_id"))
	assert.Equal(t, "user", target.Query().Get("scopes"))
	assert.Equal(t, "xyz", target.Query().Get("state"))
	assert.Equal(t, "code", target.Query().Get("response_type"))
}

func TestAuthorize_SignupActionRedirectsToSignup(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest("GET", "/login/oauth/authorize?client_id=test&scopes=user&action=signup", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	target, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/signup", target.Path)
	assert.Equal(t, "test", target.Query().Get("client_id"))
}

func TestAuthorize_WithSessionRedirectsWithCode(t *testing.T) {
	ts := newTestServer(t)

	cookie, err := ts.sessions.Issue(testPrincipal)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/login/oauth/authorize?client_id=test&scopes=user&state=xyz", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	target, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "example.org", target.Host)
	assert.Equal(t, "/oauth_redirect", target.Path)
	assert.Equal(t, "xyz", target.Query().Get("state"))

	code := target.Query().Get("code")
	require.NotEmpty(t, code)

	record, err := ts.codes.Consume(req.Context(), code, "test")
	require.NoError(t, err)
	assert.Equal(t, testPrincipal.UID, record.Principal.UID)
	assert.Equal(t, []string{"user"}, record.Scopes)
}

func TestAuthorize_UnknownClient(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest("GET", "/login/oauth/authorize?client_id=nonexistent", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid client_id", decodeError(t, rec).Message)
}

func postForm(ts *testServer, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/login/oauth/access_token", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func TestAccessToken_Success(t *testing.T) {
	ts := newTestServer(t)

	code, err := ts.codes.Issue(context.Background(), "test", testPrincipal, []string{"user", "email"})
	require.NoError(t, err)

	rec := postForm(ts, url.Values{
		"client_id":     {"test"},
		"client_secret": {"test"},
		"grant_type":    {"authorization_code"},
		"code":          {code},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp TokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, "user email", resp.Scopes)

	token, ok := ts.tokens.Validate(context.Background(), resp.AccessToken)
	require.True(t, ok)
	assert.Equal(t, testPrincipal.UID, token.Principal.UID)
}

func TestAccessToken_MissingFields(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name    string
		values  url.Values
		message string
	}{
		{
			name:    "missing client_id",
			values:  url.Values{"client_secret": {"test"}, "grant_type": {"authorization_code"}, "code": {"x"}},
			message: "invalid payload: client_id",
		},
		{
			name:    "missing client_secret",
			values:  url.Values{"client_id": {"test"}, "grant_type": {"authorization_code"}, "code": {"x"}},
			message: "invalid payload: client_secret",
		},
		{
			name:    "missing grant_type",
			values:  url.Values{"client_id": {"test"}, "client_secret": {"test"}, "code": {"x"}},
			message: "invalid payload: grant_type",
		},
		{
			name:    "unsupported grant_type",
			values:  url.Values{"client_id": {"test"}, "client_secret": {"test"}, "grant_type": {"client_credentials"}, "code": {"x"}},
			message: "invalid payload: grant_type",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := postForm(ts, tc.values)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.message, decodeError(t, rec).Message)
		})
	}
}

func TestAccessToken_UnknownClient(t *testing.T) {
	ts := newTestServer(t)

	rec := postForm(ts, url.Values{
		"client_id":     {"nonexistent"},
		"client_secret": {"test"},
		"grant_type":    {"authorization_code"},
		"code":          {"x"},
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid client_id", decodeError(t, rec).Message)
}

func TestAccessToken_WrongSecret(t *testing.T) {
	ts := newTestServer(t)

	code, err := ts.codes.Issue(context.Background(), "test", testPrincipal, []string{"user"})
	require.NoError(t, err)

	rec := postForm(ts, url.Values{
		"client_id":     {"test"},
		"client_secret": {"wrong"},
		"grant_type":    {"authorization_code"},
		"code":          {code},
	})

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "invalid client credentials", decodeError(t, rec).Message)
}

func TestAccessToken_InvalidCode(t *testing.T) {
	ts := newTestServer(t)

	rec := postForm(ts, url.Values{
		"client_id":     {"test"},
		"client_secret": {"test"},
		"grant_type":    {"authorization_code"},
		"code":          {"nonexistent"},
	})

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "invalid authorization code", decodeError(t, rec).Message)
}

func TestAccessToken_CodeIssuedToDifferentClient(t *testing.T) {
	ts := newTestServer(t)

	code, err := ts.codes.Issue(context.Background(), "other", testPrincipal, []string{"user"})
	require.NoError(t, err)

	rec := postForm(ts, url.Values{
		"client_id":     {"test"},
		"client_secret": {"test"},
		"grant_type":    {"authorization_code"},
		"code":          {code},
	})

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAccessToken_CodeCannotBeReused(t *testing.T) {
	ts := newTestServer(t)

	code, err := ts.codes.Issue(context.Background(), "test", testPrincipal, []string{"user"})
	require.NoError(t, err)

	values := url.Values{
		"client_id":     {"test"},
		"client_secret": {"test"},
		"grant_type":    {"authorization_code"},
		"code":          {code},
	}

	first := postForm(ts, values)
	require.Equal(t, http.StatusOK, first.Code)

	second := postForm(ts, values)
	require.Equal(t, http.StatusForbidden, second.Code)
	assert.Equal(t, "invalid authorization code", decodeError(t, second).Message)
}

func TestUserInfo_Success(t *testing.T) {
	ts := newTestServer(t)

	token, err := ts.tokens.Issue(context.Background(), testPrincipal, []string{"user", "email"})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/user", nil)
	req.Header.Set("Authorization", "token "+token.Token)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var profile Profile
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&profile))
	assert.Equal(t, "webmaker", profile.Username)
	assert.Equal(t, "webmaker@example.com", profile.Email)
}

func TestUserInfo_MalformedAuthorizationHeader(t *testing.T) {
	ts := newTestServer(t)

	token, err := ts.tokens.Issue(context.Background(), testPrincipal, []string{"user"})
	require.NoError(t, err)

	headers := []string{
		"",
		"token",
		"Bearer " + token.Token,
		"token " + token.Token + " extra",
	}

	for _, header := range headers {
		req := httptest.NewRequest("GET", "/user", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		ts.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestUserInfo_UnknownToken(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest("GET", "/user", nil)
	req.Header.Set("Authorization", "token nonexistent")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid access token", decodeError(t, rec).Message)
}

func TestUserInfo_InsufficientScope(t *testing.T) {
	ts := newTestServer(t)

	token, err := ts.tokens.Issue(context.Background(), testPrincipal, []string{"email"})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/user", nil)
	req.Header.Set("Authorization", "token "+token.Token)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "insufficient scope", decodeError(t, rec).Message)
}

func TestUserInfo_IdentityServiceFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.identity.profileErr = identity.ErrNotFound

	token, err := ts.tokens.Issue(context.Background(), testPrincipal, []string{"user"})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/user", nil)
	req.Header.Set("Authorization", "token "+token.Token)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLogout_WithClientRedirect(t *testing.T) {
	ts := newTestServer(t)

	cookie, err := ts.sessions.Issue(testPrincipal)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/logout?client_id=test", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "http://example.org/oauth_redirect?logout=true", rec.Header().Get("Location"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, testPrincipal.UID, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
}

func TestLogout_DefaultRedirect(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest("GET", "/logout", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://webmaker.org?logout=true", rec.Header().Get("Location"))
}

func TestLogout_UnknownClient(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest("GET", "/logout?client_id=nonexistent", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid client_id", decodeError(t, rec).Message)
}

func TestLogout_ClearsUnverifiableCookies(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest("GET", "/logout", nil)
	req.AddCookie(&http.Cookie{Name: "webmaker", Value: "not-a-session"})
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "webmaker", cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
}
