package broker

import (
	"net/http"
	"sync"
	"time"
)

// Client is the thin credential-holding HTTP client shape a future live
// adapter would wrap Broker around. Paper-only per Non-goals — no live
// endpoint is called here, but the credential-rotation shape is kept so a
// live implementation can be dropped in without reshaping the Watchdog's
// separate-credentials requirement.
type Client struct {
	mu         sync.RWMutex
	apiKey     string
	apiSecret  string
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a Client with no credentials set; call SetCredentials
// before use.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SetCredentials rotates the API key/secret without requiring a reconnect.
func (c *Client) SetCredentials(apiKey, apiSecret string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = apiKey
	c.apiSecret = apiSecret
}

// Credentials returns the currently configured key/secret pair.
func (c *Client) Credentials() (apiKey, apiSecret string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey, c.apiSecret
}

// HasCredentials reports whether both key and secret have been set.
func (c *Client) HasCredentials() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey != "" && c.apiSecret != ""
}
