package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Sentinel errors distinguishing upstream rejections from upstream failures.
// Anything not covered by these is treated as a failure of the identity
// service and surfaces as a 500 to our callers.
var (
	ErrUnauthorized = errors.New("identity: unauthorized")
	ErrNotFound     = errors.New("identity: not found")
	ErrBadRequest   = errors.New("identity: bad request")
)

// Client is the interface this service consumes from the identity service.
type Client interface {
	Authenticate(ctx context.Context, uid, password string) (*Principal, error)
	GetProfile(ctx context.Context, uid string) (*Profile, error)
	CheckUsername(ctx context.Context, uid string) (*UsernameStatus, error)
	CreateUser(ctx context.Context, params CreateUserParams) (*Principal, error)
	RequestReset(ctx context.Context, uid string) error
	ResetPassword(ctx context.Context, uid, resetCode, password string) error
	VerifyMigrationToken(ctx context.Context, uid, token string) error
	SetPassword(ctx context.Context, uid, password string) error
	RequestMigrationEmail(ctx context.Context, uid string, oauth map[string]string) error
}

// HTTPClient talks JSON over HTTP to the identity service.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// Option is a function that configures an HTTPClient
type Option func(*HTTPClient)

// WithTimeout sets the per-request timeout for identity service calls
func WithTimeout(timeout time.Duration) Option {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		c.httpClient = client
	}
}

// NewHTTPClient creates a client for the identity service at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	client := &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type userEnvelope struct {
	User *Principal `json:"user"`
}

type statusEnvelope struct {
	Status string `json:"status"`
}

// do issues a request and decodes a 200 response body into out. 401, 404 and
// 400 map to the sentinel errors above; every other non-200 status is an
// upstream failure.
func (c *HTTPClient) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return fmt.Errorf("identity: encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &body)
	if err != nil {
		return fmt.Errorf("identity: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest:
		return ErrBadRequest
	default:
		return fmt.Errorf("identity: %s %s returned status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("identity: malformed response from %s: %w", path, err)
		}
	}
	return nil
}

func (c *HTTPClient) Authenticate(ctx context.Context, uid, password string) (*Principal, error) {
	payload := map[string]string{"uid": uid, "password": password}
	var envelope userEnvelope
	if err := c.do(ctx, http.MethodPost, "/user/authenticate", payload, &envelope); err != nil {
		return nil, err
	}
	if envelope.User == nil || envelope.User.UID == "" {
		return nil, fmt.Errorf("identity: malformed response from /user/authenticate: missing user")
	}
	return envelope.User, nil
}

func (c *HTTPClient) GetProfile(ctx context.Context, uid string) (*Profile, error) {
	var envelope struct {
		User *Profile `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/user/"+url.PathEscape(uid), nil, &envelope); err != nil {
		return nil, err
	}
	if envelope.User == nil || envelope.User.Username == "" {
		return nil, fmt.Errorf("identity: malformed response from /user/%s: missing user", uid)
	}
	return envelope.User, nil
}

func (c *HTTPClient) CheckUsername(ctx context.Context, uid string) (*UsernameStatus, error) {
	payload := map[string]string{"uid": uid}
	var status UsernameStatus
	if err := c.do(ctx, http.MethodPost, "/user/check-username", payload, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *HTTPClient) CreateUser(ctx context.Context, params CreateUserParams) (*Principal, error) {
	var envelope userEnvelope
	if err := c.do(ctx, http.MethodPost, "/user/create", params, &envelope); err != nil {
		return nil, err
	}
	if envelope.User == nil || envelope.User.UID == "" {
		return nil, fmt.Errorf("identity: malformed response from /user/create: missing user")
	}
	return envelope.User, nil
}

func (c *HTTPClient) RequestReset(ctx context.Context, uid string) error {
	payload := map[string]string{"uid": uid}
	var status statusEnvelope
	if err := c.do(ctx, http.MethodPost, "/user/request-reset", payload, &status); err != nil {
		return err
	}
	if status.Status == "" {
		return fmt.Errorf("identity: malformed response from /user/request-reset: missing status")
	}
	return nil
}

func (c *HTTPClient) ResetPassword(ctx context.Context, uid, resetCode, password string) error {
	payload := map[string]string{"uid": uid, "resetCode": resetCode, "password": password}
	var status statusEnvelope
	if err := c.do(ctx, http.MethodPost, "/user/reset-password", payload, &status); err != nil {
		return err
	}
	if status.Status == "" {
		return fmt.Errorf("identity: malformed response from /user/reset-password: missing status")
	}
	return nil
}

func (c *HTTPClient) VerifyMigrationToken(ctx context.Context, uid, token string) error {
	payload := map[string]string{"uid": uid, "token": token}
	return c.do(ctx, http.MethodPost, "/user/verify-migration-token", payload, nil)
}

func (c *HTTPClient) SetPassword(ctx context.Context, uid, password string) error {
	payload := map[string]string{"uid": uid, "password": password}
	return c.do(ctx, http.MethodPost, "/user/set-password", payload, nil)
}

func (c *HTTPClient) RequestMigrationEmail(ctx context.Context, uid string, oauth map[string]string) error {
	payload := map[string]interface{}{"uid": uid, "oauth": oauth}
	return c.do(ctx, http.MethodPost, "/user/request-migration-email", payload, nil)
}
