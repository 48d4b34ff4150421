package oauth2client

import (
	"fmt"
	"os"
	"strings"
)

// NewEnvOAuth2ClientRepository creates a repository from environment
// variables. This is a read-only registry for deployments with a handful of
// known clients.
//
// Environment variable format:
//
//	OAUTH2_CLIENTS=client1,client2
//	OAUTH2_CLIENT_CLIENT1_ID=my_client_id
//	OAUTH2_CLIENT_CLIENT1_SECRET=my_secret
//	OAUTH2_CLIENT_CLIENT1_NAME=My App
//	OAUTH2_CLIENT_CLIENT1_REDIRECT_URI=https://app.example.com/callback
func NewEnvOAuth2ClientRepository() (*InMemoryOAuth2ClientRepository, error) {
	clientList := os.Getenv("OAUTH2_CLIENTS")
	if clientList == "" {
		// No clients configured - this is OK for testing
		return NewInMemoryOAuth2ClientRepository(), nil
	}

	var clients []*OAuth2Client
	for _, name := range strings.Split(clientList, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		prefix := fmt.Sprintf("OAUTH2_CLIENT_%s_", strings.ToUpper(name))

		client := &OAuth2Client{
			ClientID:     os.Getenv(prefix + "ID"),
			ClientSecret: os.Getenv(prefix + "SECRET"),
			ClientName:   getEnvOrDefault(prefix+"NAME", name),
			RedirectURI:  os.Getenv(prefix + "REDIRECT_URI"),
		}

		if client.ClientID == "" {
			return nil, fmt.Errorf("client %s missing required field: ID (set %sID)", name, prefix)
		}
		if client.ClientSecret == "" {
			return nil, fmt.Errorf("client %s missing required field: SECRET (set %sSECRET)", name, prefix)
		}
		if client.RedirectURI == "" {
			return nil, fmt.Errorf("client %s missing required field: REDIRECT_URI (set %sREDIRECT_URI)", name, prefix)
		}

		clients = append(clients, client)
	}

	return NewInMemoryOAuth2ClientRepository(clients...), nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
