package azureauth

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuthURLOption adjusts a single GenerateAuthURL call.
type AuthURLOption func(*authURLParams)

type authURLParams struct {
	redirectURL  string
	scopes       []string
	responseMode string
	prompt       string
	loginHint    string
	domainHint   string
}

// WithRedirectURL overrides the configured redirect URL for this call.
func WithRedirectURL(redirectURL string) AuthURLOption {
	return func(p *authURLParams) { p.redirectURL = redirectURL }
}

// WithScopes overrides the configured scopes for this call.
func WithScopes(scopes ...string) AuthURLOption {
	return func(p *authURLParams) { p.scopes = scopes }
}

// WithResponseMode sets how the provider delivers the response parameters.
// The default is "query".
func WithResponseMode(mode string) AuthURLOption {
	return func(p *authURLParams) { p.responseMode = mode }
}

// WithPrompt sets the prompt parameter, e.g. "select_account" to force the
// account picker or "login" to force fresh credentials.
func WithPrompt(prompt string) AuthURLOption {
	return func(p *authURLParams) { p.prompt = prompt }
}

// WithLoginHint pre-fills the sign-in form with the given username.
func WithLoginHint(hint string) AuthURLOption {
	return func(p *authURLParams) { p.loginHint = hint }
}

// WithDomainHint skips home-realm discovery by naming the user's domain.
func WithDomainHint(hint string) AuthURLOption {
	return func(p *authURLParams) { p.domainHint = hint }
}

// GenerateAuthURL starts an authorization-code flow and returns the sign-in
// URL to redirect the user to. MSAL resolves the authorize endpoint from
// the authority's discovery document; state, nonce, PKCE and response-mode
// parameters are appended here and kept in the flow store until
// ValidateAuthResponse consumes them.
func (c *Client) GenerateAuthURL(ctx context.Context, opts ...AuthURLOption) (string, error) {
	p := authURLParams{
		redirectURL:  c.cfg.RedirectURL,
		scopes:       c.cfg.Scopes,
		responseMode: "query",
	}
	for _, opt := range opts {
		opt(&p)
	}
	if p.redirectURL == "" {
		return "", fmt.Errorf("redirect URL is required, set Config.RedirectURL or pass WithRedirectURL")
	}

	scopes := withOfflineAccess(p.scopes)

	base, err := c.msal.AuthCodeURL(ctx, c.cfg.ClientID, p.redirectURL, scopes)
	if err != nil {
		return "", fmt.Errorf("failed to build authorization URL: %w", err)
	}
	authURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse authorization URL: %w", err)
	}

	state := uuid.NewString()
	nonce, err := generateNonce()
	if err != nil {
		return "", err
	}
	verifier, err := generateCodeVerifier()
	if err != nil {
		return "", err
	}

	params := authURL.Query()
	params.Set("state", state)
	params.Set("nonce", nonce)
	params.Set("response_mode", p.responseMode)
	params.Set("code_challenge", deriveCodeChallenge(verifier))
	params.Set("code_challenge_method", "S256")
	if p.prompt != "" {
		params.Set("prompt", p.prompt)
	}
	if p.loginHint != "" {
		params.Set("login_hint", p.loginHint)
	}
	if p.domainHint != "" {
		params.Set("domain_hint", p.domainHint)
	}
	authURL.RawQuery = params.Encode()

	flow := &AuthFlow{
		State:        state,
		Nonce:        nonce,
		CodeVerifier: verifier,
		RedirectURL:  p.redirectURL,
		Scopes:       scopes,
		CreatedAt:    time.Now(),
	}
	if err := c.flows.Save(ctx, flow); err != nil {
		return "", fmt.Errorf("failed to store auth flow: %w", err)
	}

	c.logger.Debug("generated auth URL",
		zap.String("state", state),
		zap.Strings("scopes", scopes))
	return authURL.String(), nil
}

// withOfflineAccess merges offline_access into the scope list so the token
// response carries a refresh token, the way Azure expects web apps to ask
// for one.
func withOfflineAccess(scopes []string) []string {
	merged := make([]string, len(scopes))
	copy(merged, scopes)
	for _, scope := range merged {
		if scope == "offline_access" {
			return merged
		}
	}
	return append(merged, "offline_access")
}
