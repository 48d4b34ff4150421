package oauth2client

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// OAuth2Client represents a registered OAuth2 client. The table is loaded
// once at startup and never mutated afterwards.
type OAuth2Client struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	ClientName   string `json:"client_name,omitempty"`
	RedirectURI  string `json:"redirect_uri"`
}

// VerifySecret checks a presented client secret against the registered one.
// Secrets stored as bcrypt hashes (the "$2" prefix) are compared with bcrypt;
// plaintext secrets use a constant-time comparison.
func (c *OAuth2Client) VerifySecret(secret string) bool {
	if strings.HasPrefix(c.ClientSecret, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(c.ClientSecret), []byte(secret)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(c.ClientSecret), []byte(secret)) == 1
}
