package oauth2client

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClientNotFound is returned when no client is registered under an id.
var ErrClientNotFound = errors.New("client not found")

// OAuth2ClientRepository defines the interface for OAuth2 client lookups
type OAuth2ClientRepository interface {
	// GetClient retrieves an OAuth2 client by client ID
	GetClient(ctx context.Context, clientID string) (*OAuth2Client, error)

	// ListClients returns all registered OAuth2 clients
	ListClients(ctx context.Context) ([]*OAuth2Client, error)
}

// InMemoryOAuth2ClientRepository implements OAuth2ClientRepository with a
// map seeded at construction.
type InMemoryOAuth2ClientRepository struct {
	clients map[string]*OAuth2Client
	mutex   sync.RWMutex
}

// NewInMemoryOAuth2ClientRepository creates a repository holding the given clients
func NewInMemoryOAuth2ClientRepository(clients ...*OAuth2Client) *InMemoryOAuth2ClientRepository {
	repo := &InMemoryOAuth2ClientRepository{
		clients: make(map[string]*OAuth2Client),
	}
	for _, client := range clients {
		repo.clients[client.ClientID] = client
	}
	return repo
}

// GetClient retrieves an OAuth2 client by client ID
func (r *InMemoryOAuth2ClientRepository) GetClient(ctx context.Context, clientID string) (*OAuth2Client, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	client, exists := r.clients[clientID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
	}

	// Return a copy to prevent external modification
	copied := *client
	return &copied, nil
}

// ListClients returns all registered OAuth2 clients
func (r *InMemoryOAuth2ClientRepository) ListClients(ctx context.Context) ([]*OAuth2Client, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	clients := make([]*OAuth2Client, 0, len(r.clients))
	for _, client := range r.clients {
		copied := *client
		clients = append(clients, &copied)
	}
	return clients, nil
}
