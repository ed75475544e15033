package azureauth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// AuthenticateEmailPassword performs the resource-owner password grant and
// returns the resulting tokens. Azure AD only allows this grant for work
// and school accounts without MFA or federation; B2C user flows generally
// reject it, and the provider's error passes through as *AADError.
func (c *Client) AuthenticateEmailPassword(ctx context.Context, email, password string, scopes ...string) (*TokenSet, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}
	if len(scopes) == 0 {
		scopes = c.cfg.Scopes
	}

	endpoint := oauth2.Endpoint{
		AuthURL:  c.endpoints.authorize,
		TokenURL: c.endpoints.token,
	}
	if c.cfg.Mode == ModeAD && c.cfg.Authority == "" {
		endpoint = microsoft.AzureADEndpoint(c.cfg.TenantID)
	}
	conf := &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := conf.PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			if aadErr := aadErrorFromBody(retrieveErr.Body); aadErr != nil {
				return nil, aadErr
			}
		}
		return nil, fmt.Errorf("password authentication failed: %w", err)
	}

	tokens := &TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		ExpiresOn:    token.Expiry,
	}
	if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
		tokens.IDToken = idToken
		if claims, err := ParseClaims(idToken); err == nil {
			tokens.Claims = claims
		}
	}
	return tokens, nil
}
