package azureauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// defaultFlowTTL is how long a generated sign-in URL stays redeemable.
// Azure's own authorization codes expire well within this window.
const defaultFlowTTL = 10 * time.Minute

// AuthFlow is the transient state of one authorization-code flow, created by
// GenerateAuthURL and consumed by ValidateAuthResponse.
type AuthFlow struct {
	State        string    `json:"state"`
	Nonce        string    `json:"nonce"`
	CodeVerifier string    `json:"code_verifier"`
	RedirectURL  string    `json:"redirect_url"`
	Scopes       []string  `json:"scopes"`
	CreatedAt    time.Time `json:"created_at"`
}

// FlowStore persists pending auth flows keyed by state. Take retrieves and
// deletes in one step so a state cannot be replayed.
type FlowStore interface {
	Save(ctx context.Context, flow *AuthFlow) error
	Take(ctx context.Context, state string) (*AuthFlow, error)
}

// MemoryFlowStore keeps pending flows in process memory with a TTL. It is
// the default store and suits single-replica deployments; abandoned sign-in
// attempts are swept on access instead of piling up.
type MemoryFlowStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	flows map[string]*AuthFlow
	now   func() time.Time
}

// NewMemoryFlowStore creates a store with the given TTL. A non-positive TTL
// selects the default of ten minutes.
func NewMemoryFlowStore(ttl time.Duration) *MemoryFlowStore {
	if ttl <= 0 {
		ttl = defaultFlowTTL
	}
	return &MemoryFlowStore{
		ttl:   ttl,
		flows: make(map[string]*AuthFlow),
		now:   time.Now,
	}
}

// Save stores the flow under its state.
func (s *MemoryFlowStore) Save(_ context.Context, flow *AuthFlow) error {
	if flow == nil || flow.State == "" {
		return fmt.Errorf("flow state must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.flows[flow.State] = flow
	return nil
}

// Take removes and returns the flow for the given state. Consumed, expired,
// and never-issued states all return ErrFlowNotFound.
func (s *MemoryFlowStore) Take(_ context.Context, state string) (*AuthFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flow, ok := s.flows[state]
	if !ok {
		return nil, ErrFlowNotFound
	}
	delete(s.flows, state)
	if s.now().Sub(flow.CreatedAt) > s.ttl {
		return nil, ErrFlowNotFound
	}
	return flow, nil
}

func (s *MemoryFlowStore) sweepLocked() {
	cutoff := s.now().Add(-s.ttl)
	for state, flow := range s.flows {
		if flow.CreatedAt.Before(cutoff) {
			delete(s.flows, state)
		}
	}
}

// generateNonce generates a random nonce.
func generateNonce() (string, error) {
	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", fmt.Errorf("could not generate nonce: %w", err)
	}
	return base64.URLEncoding.EncodeToString(nonceBytes), nil
}

// generateCodeVerifier generates a PKCE code verifier.
func generateCodeVerifier() (string, error) {
	verifierBytes := make([]byte, 32)
	if _, err := rand.Read(verifierBytes); err != nil {
		return "", fmt.Errorf("could not generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(verifierBytes), nil
}

// deriveCodeChallenge derives the S256 code challenge for a verifier.
func deriveCodeChallenge(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}
