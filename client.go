// Package azureauth bridges Go HTTP services with Microsoft Azure AD and
// Azure AD B2C authentication flows. It builds sign-in URLs, completes
// authorization-code flows, authenticates resource-owner credentials,
// validates bearer tokens, and resolves users through the Microsoft Graph
// API, plus a net/http middleware that guards routes with all of the above.
// Token acquisition is delegated to MSAL and golang.org/x/oauth2; the code
// here is parameter marshaling and flow-state handling around them.
package azureauth

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/confidential"
	"go.uber.org/zap"

	"github.com/lukaszraczylo/azureauth/graph"
)

const defaultHTTPTimeout = 30 * time.Second

// Client bridges an application with the Microsoft identity platform.
// It wraps MSAL's confidential client for the authorization-code flow and
// keeps the transient state each flow needs between redirect and callback.
// A Client is immutable after New and safe for concurrent use.
type Client struct {
	cfg        Config
	authority  string
	endpoints  endpoints
	msal       confidential.Client
	flows      FlowStore
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. The default discards all output.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets the HTTP client used for identity platform calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithFlowStore replaces the in-memory flow store, e.g. with a
// RedisFlowStore when the callback can land on a different replica than the
// one that generated the sign-in URL.
func WithFlowStore(store FlowStore) Option {
	return func(c *Client) {
		if store != nil {
			c.flows = store
		}
	}
}

// New creates a Client for the given configuration. Missing optional fields
// are defaulted (OAuth tenant to the tenant id, mode to AD, scopes to
// openid/profile/email) and the configuration is validated before any
// credential is built.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeAD
	}
	if cfg.OAuthTenantID == "" {
		cfg.OAuthTenantID = cfg.TenantID
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaultScopes()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	authority := strings.TrimRight(cfg.Authority, "/")
	if authority == "" {
		authority = deriveAuthority(cfg.Mode, cfg.TenantID, cfg.B2CUserFlow)
	}
	if err := validateAuthority(authority); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:        cfg,
		authority:  authority,
		endpoints:  endpointsForAuthority(authority),
		flows:      NewMemoryFlowStore(0),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     zap.NewNop(),
	}
	if cfg.HTTPTimeout > 0 {
		c.httpClient.Timeout = cfg.HTTPTimeout
	}
	for _, opt := range opts {
		opt(c)
	}

	cred, err := confidential.NewCredFromSecret(cfg.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to build client credential: %w", err)
	}

	msalOpts := []confidential.Option{confidential.WithHTTPClient(c.httpClient)}
	if cfg.Mode == ModeB2C {
		// b2clogin.com hosts are not part of the public cloud instance
		// metadata, so instance discovery has to be skipped.
		msalOpts = append(msalOpts, confidential.WithInstanceDiscovery(false))
	}
	app, err := confidential.New(authority, cfg.ClientID, cred, msalOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize msal client: %w", err)
	}
	c.msal = app

	c.logger.Debug("azure auth client ready",
		zap.String("authority", authority),
		zap.String("mode", string(cfg.Mode)))
	return c, nil
}

// Authority returns the authority URL the client authenticates against.
func (c *Client) Authority() string {
	return c.authority
}

// Graph returns a Graph API client that authenticates with the supplied
// delegated access token.
func (c *Client) Graph(accessToken string) *graph.Client {
	return graph.New(accessToken,
		graph.WithHTTPClient(c.httpClient),
		graph.WithLogger(c.logger))
}

// GraphClientCredentials returns a Graph API client that obtains app-only
// tokens with the client-credentials grant against the OAuth tenant.
func (c *Client) GraphClientCredentials() *graph.Client {
	return graph.NewClientCredentials(c.cfg.ClientID, c.cfg.ClientSecret, c.cfg.OAuthTenantID,
		graph.WithHTTPClient(c.httpClient),
		graph.WithLogger(c.logger))
}

// AuthHandler returns the route guard adapter bound to this client's
// application registration. See AuthHandler for what it validates.
func (c *Client) AuthHandler(opts ...HandlerOption) *AuthHandler {
	base := []HandlerOption{WithHandlerLogger(c.logger)}
	return NewAuthHandler(c.cfg.ClientID, c.cfg.ClientSecret, c.cfg.OAuthTenantID,
		append(base, opts...)...)
}

// Verifier returns a TokenVerifier for tokens issued by this client's
// authority. Plug it into the auth handler with WithVerifier to enforce
// signature checks on incoming bearer tokens.
func (c *Client) Verifier() *TokenVerifier {
	v := NewTokenVerifier(c.endpoints.jwks)
	v.httpClient = c.httpClient
	v.logger = c.logger
	return v
}

// LogoutURL returns the provider sign-out URL. When postLogoutRedirect is
// set the provider sends the browser there after clearing its session.
func (c *Client) LogoutURL(postLogoutRedirect string) string {
	if postLogoutRedirect == "" {
		return c.endpoints.logout
	}
	params := url.Values{}
	params.Set("post_logout_redirect_uri", postLogoutRedirect)
	return c.endpoints.logout + "?" + params.Encode()
}

func defaultScopes() []string {
	return []string{"openid", "profile", "email"}
}
