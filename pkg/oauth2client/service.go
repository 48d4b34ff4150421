package oauth2client

import (
	"context"
	"errors"
)

// ErrInvalidSecret is returned when a client exists but the presented secret
// does not match. Callers turn this into a 403, unlike ErrClientNotFound
// which maps to a 400.
var ErrInvalidSecret = errors.New("invalid client secret")

// ClientService provides lookups against the registered client table
type ClientService struct {
	repository OAuth2ClientRepository
}

// NewClientService creates a new client service with the provided repository
func NewClientService(repository OAuth2ClientRepository) *ClientService {
	return &ClientService{
		repository: repository,
	}
}

// GetClient retrieves a client by client ID
func (s *ClientService) GetClient(ctx context.Context, clientID string) (*OAuth2Client, error) {
	return s.repository.GetClient(ctx, clientID)
}

// ValidateClientCredentials validates client ID and secret, returning the
// client when both match.
func (s *ClientService) ValidateClientCredentials(ctx context.Context, clientID, clientSecret string) (*OAuth2Client, error) {
	client, err := s.repository.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !client.VerifySecret(clientSecret) {
		return nil, ErrInvalidSecret
	}
	return client, nil
}
