package azureauth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testClientID    = "be5f1d24-1c2a-4c39-9ec7-3907bfb8a2e5"
	testRedirectURL = "https://app.example.com/auth/callback"
)

// fakeIDP simulates the identity platform endpoints an authentication flow
// touches: OIDC discovery, the token endpoint, and the JWKS document.
// Handlers match on path suffix so the server works regardless of how the
// underlying libraries canonicalize the authority path.
type fakeIDP struct {
	server *httptest.Server
	key    *rsa.PrivateKey
	kid    string

	mu            sync.Mutex
	nonce         string
	tokenStatus   int
	tokenBody     string
	lastTokenForm url.Values
	tokenCalls    int
}

func newFakeIDP(t *testing.T) *fakeIDP {
	t.Helper()
	f := &fakeIDP{
		key: newSigningKey(t),
		kid: "test-key-1",
	}
	f.server = httptest.NewTLSServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

// authority returns the B2C-shaped authority URL hosted by the fake.
func (f *fakeIDP) authority() string {
	return f.server.URL + "/contoso.onmicrosoft.com/b2c_1_signin"
}

func (f *fakeIDP) issuer() string {
	return f.authority() + "/v2.0"
}

// setNonce controls the nonce embedded in minted id tokens. Tests set it to
// the nonce extracted from a generated auth URL before simulating the
// callback.
func (f *fakeIDP) setNonce(nonce string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonce = nonce
}

// failToken makes the token endpoint answer with the given status and raw
// body until reset with status 0.
func (f *fakeIDP) failToken(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenStatus = status
	f.tokenBody = body
}

func (f *fakeIDP) tokenForm() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTokenForm
}

func (f *fakeIDP) tokenRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls
}

func (f *fakeIDP) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/.well-known/openid-configuration"):
		f.handleDiscovery(w)
	case strings.HasSuffix(r.URL.Path, "/oauth2/v2.0/token"):
		f.handleToken(w, r)
	case strings.HasSuffix(r.URL.Path, "/discovery/v2.0/keys"):
		writeTestJSON(w, jwksDocument(f.kid, &f.key.PublicKey))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeIDP) handleDiscovery(w http.ResponseWriter) {
	writeTestJSON(w, map[string]any{
		"issuer":                                f.issuer(),
		"authorization_endpoint":                f.authority() + "/oauth2/v2.0/authorize",
		"token_endpoint":                        f.authority() + "/oauth2/v2.0/token",
		"jwks_uri":                              f.authority() + "/discovery/v2.0/keys",
		"end_session_endpoint":                  f.authority() + "/oauth2/v2.0/logout",
		"response_modes_supported":              []string{"query", "fragment", "form_post"},
		"response_types_supported":              []string{"code", "id_token"},
		"scopes_supported":                      []string{"openid"},
		"subject_types_supported":               []string{"pairwise"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (f *fakeIDP) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.tokenCalls++
	f.lastTokenForm = r.PostForm
	status, body := f.tokenStatus, f.tokenBody
	nonce := f.nonce
	f.mu.Unlock()

	if status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
		return
	}

	now := time.Now()
	accessToken := f.mint(jwt.MapClaims{
		"aud":   "https://graph.microsoft.com",
		"appid": testClientID,
		"iss":   f.issuer(),
		"iat":   now.Unix(),
		"nbf":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"oid":   "00000000-0000-0000-aaaa-000000000001",
	})
	idToken := f.mint(jwt.MapClaims{
		"aud":                testClientID,
		"iss":                f.issuer(),
		"iat":                now.Unix(),
		"nbf":                now.Unix(),
		"exp":                now.Add(time.Hour).Unix(),
		"sub":                "subject-1",
		"oid":                "00000000-0000-0000-aaaa-000000000001",
		"name":               "Jane Doe",
		"preferred_username": "jane@contoso.com",
		"nonce":              nonce,
	})

	writeTestJSON(w, map[string]any{
		"token_type":     "Bearer",
		"scope":          "openid profile email offline_access",
		"expires_in":     3600,
		"ext_expires_in": 3600,
		"access_token":   accessToken,
		"refresh_token":  "test-refresh-token",
		"id_token":       idToken,
		"client_info":    encodeClientInfo("uid-1", "utid-1"),
	})
}

// mint signs claims with the fake's key. It runs inside HTTP handlers, so
// it panics instead of taking a testing.T.
func (f *fakeIDP) mint(claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = f.kid
	signed, err := token.SignedString(f.key)
	if err != nil {
		panic(err)
	}
	return signed
}

// clientConfig returns a configuration pointed at the fake. B2C mode keeps
// instance discovery out of the picture, so no call leaves the test server.
func (f *fakeIDP) clientConfig() Config {
	return Config{
		ClientID:     testClientID,
		ClientSecret: "test-secret",
		TenantID:     "contoso",
		Mode:         ModeB2C,
		B2CUserFlow:  "b2c_1_signin",
		Authority:    f.authority(),
		RedirectURL:  testRedirectURL,
	}
}

func (f *fakeIDP) newClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	base := []Option{WithHTTPClient(f.server.Client())}
	client, err := New(f.clientConfig(), append(base, opts...)...)
	require.NoError(t, err)
	return client
}

func newSigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func signWithKey(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func jwksDocument(kid string, pub *rsa.PublicKey) JWKS {
	return JWKS{Keys: []JWK{{
		Kid: kid,
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}}
}

// encodeClientInfo builds the client_info blob token responses carry so the
// underlying library can form a home account id.
func encodeClientInfo(uid, utid string) string {
	raw, _ := json.Marshal(map[string]string{"uid": uid, "utid": utid})
	return base64.RawURLEncoding.EncodeToString(raw)
}

func writeTestJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
