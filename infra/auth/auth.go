package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/restaurant-platform/courierbroker/core/model"
)

// ClientCred fetches and caches an OAuth2 client-credentials token for one
// partner endpoint. Tokens are refreshed lazily when they expire.
type ClientCred struct {
	conf clientcredentials.Config

	mu    sync.Mutex
	token *oauth2.Token
}

// NewClientCred builds a token client from the webhook's OAuth settings.
func NewClientCred(conf model.OAuthConfig) *ClientCred {
	return &ClientCred{
		conf: clientcredentials.Config{
			ClientID:     conf.ClientID,
			ClientSecret: conf.ClientSecret,
			TokenURL:     conf.TokenURL,
			Scopes:       conf.Scopes,
		},
	}
}

// GetToken returns a valid access token, requesting a new one if the cached
// token expired.
func (c *ClientCred) GetToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != nil && c.token.Valid() {
		return c.token.AccessToken, nil
	}
	token, err := c.conf.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("auth: token request: %w", err)
	}
	c.token = token
	return token.AccessToken, nil
}

// SetAuthHeader sets the Authorization header on the request.
func (c *ClientCred) SetAuthHeader(req *http.Request) error {
	token, err := c.GetToken(req.Context())
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// ForceRefresh discards the cached token and fetches a new one.
func (c *ClientCred) ForceRefresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
	return c.GetToken(ctx)
}
