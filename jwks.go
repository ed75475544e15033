package azureauth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// JWKS is the key set document published by the authority.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK is a single key within a JWKS document.
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// TokenVerifier validates token signatures against the signing keys the
// authority publishes. Keys are cached and refreshed on an interval; a
// token carrying an unknown kid triggers one refetch before failing, which
// covers Azure's key rollovers.
type TokenVerifier struct {
	jwksURL    string
	httpClient *http.Client
	logger     *zap.Logger

	// ExpectedIssuer, when set, must match the token's iss claim. Azure
	// issuer values carry the tenant GUID rather than the tenant name, so
	// it is left unset unless the application knows the exact value.
	ExpectedIssuer string

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	lastFetched time.Time
	refreshTTL  time.Duration
}

// NewTokenVerifier builds a verifier for the key set at jwksURL.
func NewTokenVerifier(jwksURL string) *TokenVerifier {
	return &TokenVerifier{
		jwksURL:    jwksURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     zap.NewNop(),
		keys:       make(map[string]*rsa.PublicKey),
		refreshTTL: time.Hour,
	}
}

// Verify checks the token's signature and registered time claims and
// returns its claims. Expired tokens map to ErrTokenExpired, everything
// else that fails to verify maps to ErrInvalidToken.
func (v *TokenVerifier) Verify(ctx context.Context, tokenString string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	token, err := parser.ParseWithClaims(tokenString, claims, v.keyfunc(ctx))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, ErrUnknownKeyID):
			return nil, ErrUnknownKeyID
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if v.ExpectedIssuer != "" {
		if iss, _ := claims["iss"].(string); iss != v.ExpectedIssuer {
			return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, iss)
		}
	}
	return claims, nil
}

func (v *TokenVerifier) keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token header has no kid")
		}
		return v.key(ctx, kid)
	}
}

// key resolves a kid to a cached public key, refreshing the key set when
// the kid is unknown or the cache is stale.
func (v *TokenVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	fresh := time.Since(v.lastFetched) < v.refreshTTL
	v.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	if err := v.refresh(ctx); err != nil {
		if ok {
			// A stale key that matched the kid beats failing the request
			// while the authority endpoint is unreachable.
			return key, nil
		}
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	if key, ok := v.keys[kid]; ok {
		return key, nil
	}
	return nil, ErrUnknownKeyID
}

func (v *TokenVerifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create jwks request: %w", err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
	}
	var doc JWKS
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, jwk := range doc.Keys {
		if jwk.Kty != "RSA" {
			continue
		}
		key, err := jwk.rsaPublicKey()
		if err != nil {
			v.logger.Warn("skipping unusable jwk", zap.String("kid", jwk.Kid), zap.Error(err))
			continue
		}
		keys[jwk.Kid] = key
	}

	v.mu.Lock()
	v.keys = keys
	v.lastFetched = time.Now()
	v.mu.Unlock()

	v.logger.Debug("refreshed jwks", zap.String("url", v.jwksURL), zap.Int("keys", len(keys)))
	return nil
}

func (k JWK) rsaPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}
