package azureauth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSet is the bundle of tokens returned by a completed authentication.
// Claims holds the id token's decoded payload when one was issued; it is
// not part of the JSON form.
type TokenSet struct {
	AccessToken   string         `json:"access_token"`
	IDToken       string         `json:"id_token,omitempty"`
	RefreshToken  string         `json:"refresh_token,omitempty"`
	TokenType     string         `json:"token_type,omitempty"`
	ExpiresOn     time.Time      `json:"expires_on,omitempty"`
	GrantedScopes []string       `json:"granted_scopes,omitempty"`
	Claims        map[string]any `json:"-"`
}

// ParseClaims decodes the payload of a JWT without verifying its signature.
// Use a TokenVerifier where signature verification is required.
func ParseClaims(token string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// verifyNotExpired checks the exp claim against the current time. A missing
// exp counts as expired.
func verifyNotExpired(claims map[string]any) error {
	exp, _ := numericClaim(claims, "exp")
	if !time.Now().Before(time.Unix(int64(exp), 0)) {
		return ErrTokenExpired
	}
	return nil
}

// verifyAppAudience checks that the token was issued for this application:
// the appid claim on AD access tokens, falling back to aud on id and B2C
// tokens.
func verifyAppAudience(claims map[string]any, clientID string) error {
	if appid, ok := claims["appid"].(string); ok {
		if appid == clientID {
			return nil
		}
		return ErrWrongAudience
	}
	return verifyAudience(claims["aud"], clientID)
}

// verifyAudience handles both the string and the list form of the aud
// claim.
func verifyAudience(tokenAudience any, clientID string) error {
	switch aud := tokenAudience.(type) {
	case string:
		if aud == clientID {
			return nil
		}
	case []any:
		for _, entry := range aud {
			if str, ok := entry.(string); ok && str == clientID {
				return nil
			}
		}
	}
	return ErrWrongAudience
}

func numericClaim(claims map[string]any, name string) (float64, bool) {
	switch v := claims[name].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}
