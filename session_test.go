package azureauth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEncryptionKey = "0123456789abcdef0123456789abcdef"

func testTokenSet() *TokenSet {
	return &TokenSet{
		AccessToken:   "access-token-value",
		IDToken:       "id-token-value",
		RefreshToken:  "refresh-token-value",
		TokenType:     "Bearer",
		ExpiresOn:     time.Now().Add(time.Hour).Truncate(time.Second),
		GrantedScopes: []string{"openid", "offline_access"},
	}
}

// saveSessionCookies saves tokens through a recorder and returns the
// resulting cookies ready to attach to a follow-up request.
func saveSessionCookies(t *testing.T, s *TokenSession, tokens *TokenSet) []*http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
	require.NoError(t, s.Save(w, r, tokens))
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

func TestTokenSessionRoundTrip(t *testing.T) {
	s, err := NewTokenSession(testEncryptionKey)
	require.NoError(t, err)

	saved := testTokenSet()
	cookies := saveSessionCookies(t, s, saved)

	r := httptest.NewRequest(http.MethodGet, "/me", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}

	tokens, err := s.Get(r)
	require.NoError(t, err)
	assert.Equal(t, saved.AccessToken, tokens.AccessToken)
	assert.Equal(t, saved.IDToken, tokens.IDToken)
	assert.Equal(t, saved.RefreshToken, tokens.RefreshToken)
	assert.Equal(t, saved.GrantedScopes, tokens.GrantedScopes)
	assert.True(t, saved.ExpiresOn.Equal(tokens.ExpiresOn))
}

func TestTokenSessionKeyLength(t *testing.T) {
	_, err := NewTokenSession("too-short")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 bytes")

	_, err = NewTokenSession("")
	require.Error(t, err)

	_, err = NewTokenSession(testEncryptionKey)
	assert.NoError(t, err)
}

func TestTokenSessionGetWithoutCookie(t *testing.T) {
	s, err := NewTokenSession(testEncryptionKey)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/me", nil)
	_, err = s.Get(r)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestTokenSessionGetWithTamperedCookie(t *testing.T) {
	s, err := NewTokenSession(testEncryptionKey)
	require.NoError(t, err)

	cookies := saveSessionCookies(t, s, testTokenSet())
	r := httptest.NewRequest(http.MethodGet, "/me", nil)
	for _, c := range cookies {
		c.Value = c.Value + "tampered"
		r.AddCookie(c)
	}

	_, err = s.Get(r)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestTokenSessionGetWithWrongKey(t *testing.T) {
	s, err := NewTokenSession(testEncryptionKey)
	require.NoError(t, err)
	cookies := saveSessionCookies(t, s, testTokenSet())

	other, err := NewTokenSession(strings.Repeat("k", 32))
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/me", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	_, err = other.Get(r)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestTokenSessionCookieAttributes(t *testing.T) {
	s, err := NewTokenSession(testEncryptionKey)
	require.NoError(t, err)

	cookies := saveSessionCookies(t, s, testTokenSet())
	cookie := cookies[0]
	assert.Equal(t, sessionName, cookie.Name)
	assert.Equal(t, "/", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.False(t, cookie.Secure, "plain HTTP request should not set Secure")
	assert.Equal(t, ConstSessionTimeout, cookie.MaxAge)
}

func TestTokenSessionCookieDomain(t *testing.T) {
	s, err := NewTokenSession(testEncryptionKey, WithCookieDomain("app.example.com"))
	require.NoError(t, err)

	cookies := saveSessionCookies(t, s, testTokenSet())
	assert.Equal(t, "app.example.com", cookies[0].Domain)
	// The domain option must not disturb the session lifetime.
	assert.Equal(t, ConstSessionTimeout, cookies[0].MaxAge)
}

func TestTokenSessionSecureOverTLS(t *testing.T) {
	s, err := NewTokenSession(testEncryptionKey)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/auth/callback", nil)
	require.NotNil(t, r.TLS)
	require.NoError(t, s.Save(w, r, testTokenSet()))

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.True(t, cookies[0].Secure)
}

func TestTokenSessionClear(t *testing.T) {
	s, err := NewTokenSession(testEncryptionKey)
	require.NoError(t, err)

	cookies := saveSessionCookies(t, s, testTokenSet())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/logout", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	require.NoError(t, s.Clear(w, r))

	cleared := w.Result().Cookies()
	require.NotEmpty(t, cleared)
	assert.Less(t, cleared[0].MaxAge, 0, "clearing must expire the cookie")
}
