// Package graph is a small Microsoft Graph client covering the user
// management surface an Azure-authenticated application needs: looking up
// and updating users, reading and writing profile photos, and registering
// directory extension properties.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://graph.microsoft.com/v1.0"
	defaultScope   = "https://graph.microsoft.com/.default"

	defaultHTTPTimeout = 30 * time.Second

	// Graph throttles per app per tenant; stay comfortably below the
	// documented 2000 requests per 10 seconds.
	defaultRateLimit = 20
	defaultRateBurst = 40
)

// Client talks to the Microsoft Graph API. Create one with New when you
// already hold a delegated access token, or with NewClientCredentials for
// app-only access.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     oauth2.TokenSource
	limiter    *rate.Limiter
	logger     *zap.Logger

	// tokenEndpoint overrides the AAD token endpoint, used by
	// NewClientCredentials. Tests point it at a local server.
	tokenEndpoint string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for Graph calls and, for
// client-credentials clients, for token requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger sets the logger. The default discards all output.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBaseURL overrides the Graph endpoint, e.g. for sovereign clouds or
// tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithRateLimit adjusts the client-side throttle applied before each call.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithTokenEndpoint overrides the token endpoint used by
// NewClientCredentials.
func WithTokenEndpoint(endpoint string) Option {
	return func(c *Client) { c.tokenEndpoint = endpoint }
}

// New creates a Client that authenticates every call with the given access
// token. The token is used as-is; callers refresh it themselves.
func New(accessToken string, opts ...Option) *Client {
	c := newClient(opts...)
	c.tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	return c
}

// NewClientCredentials creates an app-only Client for the given tenant.
// Tokens for the Graph default scope are acquired and refreshed on demand
// with the client-credentials grant.
func NewClientCredentials(clientID, clientSecret, tenantID string, opts ...Option) *Client {
	c := newClient(opts...)
	tokenURL := c.tokenEndpoint
	if tokenURL == "" {
		tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID)
	}
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{defaultScope},
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)
	c.tokens = cfg.TokenSource(ctx)
	return c
}

func newClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		limiter:    rate.NewLimiter(defaultRateLimit, defaultRateBurst),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do issues a JSON request against the Graph API and decodes the response
// into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	resp, err := c.doRaw(ctx, method, path, "application/json", reader)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRaw issues a request against the Graph API and returns the raw
// response. The caller owns the body. Non-2xx responses are consumed and
// returned as *GraphError.
func (c *Client) doRaw(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire graph token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	token.SetAuthHeader(req)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.Debug("graph request", zap.String("method", method), zap.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, newGraphError(resp)
	}
	return resp, nil
}
