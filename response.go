package azureauth

import (
	"context"
	"fmt"
	"net/url"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/confidential"
	"go.uber.org/zap"
)

// ParseResponseURL extracts the parameters from the URL the provider sends
// the user back to after sign-on. Parameters delivered in the fragment
// (response_mode=fragment) are returned when the query string is empty.
func ParseResponseURL(rawURL string) (url.Values, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response URL: %w", err)
	}
	params := u.Query()
	if len(params) == 0 && u.Fragment != "" {
		params, err = url.ParseQuery(u.Fragment)
		if err != nil {
			return nil, fmt.Errorf("failed to parse response fragment: %w", err)
		}
	}
	return params, nil
}

// ValidateAuthResponse completes an authorization-code flow. It consumes
// the stored flow matching the response's state, redeems the code through
// MSAL with the flow's PKCE verifier, and checks that the id token's nonce
// matches the one the flow was started with. Provider errors carried in the
// response (user cancelled, consent denied) are returned as *AADError
// before any network call.
func (c *Client) ValidateAuthResponse(ctx context.Context, params url.Values) (*TokenSet, error) {
	if params.Get("error") != "" {
		return nil, aadErrorFromValues(params)
	}

	state := params.Get("state")
	if state == "" {
		return nil, fmt.Errorf("%w: response carries no state parameter", ErrFlowNotFound)
	}
	flow, err := c.flows.Take(ctx, state)
	if err != nil {
		return nil, err
	}

	code := params.Get("code")
	if code == "" {
		return nil, fmt.Errorf("response carries no authorization code")
	}

	var opts []confidential.AcquireByAuthCodeOption
	if flow.CodeVerifier != "" {
		opts = append(opts, confidential.WithChallenge(flow.CodeVerifier))
	}
	result, err := c.msal.AcquireTokenByAuthCode(ctx, code, flow.RedirectURL, flow.Scopes, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to redeem authorization code: %w", err)
	}

	tokens := &TokenSet{
		AccessToken:   result.AccessToken,
		IDToken:       result.IDToken.RawToken,
		TokenType:     "Bearer",
		ExpiresOn:     result.ExpiresOn,
		GrantedScopes: result.GrantedScopes,
	}
	if tokens.IDToken != "" {
		claims, err := ParseClaims(tokens.IDToken)
		if err != nil {
			return nil, err
		}
		tokens.Claims = claims
		if nonce, _ := claims["nonce"].(string); nonce != flow.Nonce {
			return nil, ErrNonceMismatch
		}
	}

	c.logger.Debug("authorization code redeemed",
		zap.String("state", state),
		zap.Time("expires_on", tokens.ExpiresOn))
	return tokens, nil
}
