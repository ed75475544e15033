package azureauth

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	sessionName = "_azureauth_tokens"

	// ConstSessionTimeout defines the maximum lifetime of a token session
	// regardless of activity (24 hours).
	ConstSessionTimeout = 86400

	// minEncryptionKeyLength defines the minimum length for the encryption key
	minEncryptionKeyLength = 32
)

// TokenSession stores a signed-in user's token set in an encrypted cookie.
// Browser apps use it to keep the access and ID tokens across requests
// without a server-side session store.
type TokenSession struct {
	store sessions.Store
}

// SessionOption adjusts the cookie attributes of a TokenSession.
type SessionOption func(*sessions.Options)

// WithCookieDomain scopes the session cookie to the given domain.
func WithCookieDomain(domain string) SessionOption {
	return func(o *sessions.Options) {
		o.Domain = domain
	}
}

// NewTokenSession creates a cookie-backed token session using the given
// encryption key. The key must be at least 32 bytes long.
func NewTokenSession(encryptionKey string, opts ...SessionOption) (*TokenSession, error) {
	if len(encryptionKey) < minEncryptionKeyLength {
		return nil, fmt.Errorf("encryption key must be at least %d bytes long", minEncryptionKeyLength)
	}
	store := sessions.NewCookieStore([]byte(encryptionKey))
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	for _, opt := range opts {
		opt(store.Options)
	}
	// Also bounds how long the cookie signature stays valid.
	store.MaxAge(ConstSessionTimeout)
	return &TokenSession{store: store}, nil
}

// Save writes the token set to the session cookie.
func (s *TokenSession) Save(w http.ResponseWriter, r *http.Request, tokens *TokenSet) error {
	session, err := s.store.Get(r, sessionName)
	if err != nil {
		// A stale or tampered cookie yields a fresh session alongside the
		// error; keep going with the fresh one.
		if session == nil {
			return fmt.Errorf("failed to get session: %w", err)
		}
	}
	encoded, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to encode tokens: %w", err)
	}
	session.Values["tokens"] = string(encoded)
	session.Options.Secure = r.TLS != nil
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Get reads the token set from the session cookie. It returns ErrNoSession
// when the request carries no usable session.
func (s *TokenSession) Get(r *http.Request) (*TokenSet, error) {
	session, err := s.store.Get(r, sessionName)
	if err != nil || session.IsNew {
		return nil, ErrNoSession
	}
	encoded, ok := session.Values["tokens"].(string)
	if !ok || encoded == "" {
		return nil, ErrNoSession
	}
	var tokens TokenSet
	if err := json.Unmarshal([]byte(encoded), &tokens); err != nil {
		return nil, fmt.Errorf("failed to decode tokens: %w", err)
	}
	return &tokens, nil
}

// Clear expires the session cookie.
func (s *TokenSession) Clear(w http.ResponseWriter, r *http.Request) error {
	session, err := s.store.Get(r, sessionName)
	if err != nil && session == nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	session.Values = make(map[any]any)
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
