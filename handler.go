package azureauth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/lukaszraczylo/azureauth/graph"
)

// AuthHandler guards HTTP routes with Azure-issued bearer tokens and
// resolves the calling user through the Graph API. It plays the role a
// route dependency plays in frameworks with dependency injection: routes
// behind Middleware receive the authenticated user from the request
// context.
type AuthHandler struct {
	clientID string
	graph    *graph.Client
	verifier *TokenVerifier
	logger   *zap.Logger
}

// HandlerOption configures an AuthHandler.
type HandlerOption func(*AuthHandler)

// WithHandlerLogger sets the logger. The default discards all output.
func WithHandlerLogger(logger *zap.Logger) HandlerOption {
	return func(h *AuthHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithVerifier enables signature verification for incoming tokens. Without
// a verifier only the claims are validated, which matches deployments where
// a terminating gateway already verified the signature.
func WithVerifier(v *TokenVerifier) HandlerOption {
	return func(h *AuthHandler) { h.verifier = v }
}

// WithGraphClient replaces the Graph client used for user lookups.
func WithGraphClient(g *graph.Client) HandlerOption {
	return func(h *AuthHandler) { h.graph = g }
}

// NewAuthHandler builds a route guard for the given application
// registration. Incoming bearer tokens must belong to clientID; users are
// resolved with an app-only Graph client for tenantID unless
// WithGraphClient supplies one.
func NewAuthHandler(clientID, clientSecret, tenantID string, opts ...HandlerOption) *AuthHandler {
	h := &AuthHandler{
		clientID: clientID,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.graph == nil {
		h.graph = graph.NewClientCredentials(clientID, clientSecret, tenantID,
			graph.WithLogger(h.logger))
	}
	return h
}

type userContextKey struct{}
type claimsContextKey struct{}

// UserFromContext returns the Graph user Middleware stored for the request.
func UserFromContext(ctx context.Context) (*graph.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(*graph.User)
	return user, ok
}

// ClaimsFromContext returns the bearer token claims Middleware stored for
// the request. The claims include the raw token under "access_token".
func ClaimsFromContext(ctx context.Context) (map[string]any, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(map[string]any)
	return claims, ok
}

// Middleware wraps next so it only runs for requests carrying a valid
// bearer token issued to this application. The resolved Graph user and the
// token claims are stored on the request context.
func (h *AuthHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, claims, err := h.Authenticate(r)
		if err != nil {
			h.deny(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey{}, user)
		ctx = context.WithValue(ctx, claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// MiddlewareFunc is Middleware for routers that chain http.HandlerFunc.
func (h *AuthHandler) MiddlewareFunc(next http.HandlerFunc) http.HandlerFunc {
	wrapped := h.Middleware(next)
	return func(w http.ResponseWriter, r *http.Request) {
		wrapped.ServeHTTP(w, r)
	}
}

// Authenticate validates the request's bearer token and resolves the user
// it belongs to. It is the building block Middleware uses, and what
// adapters for other routers call directly.
func (h *AuthHandler) Authenticate(r *http.Request) (*graph.User, map[string]any, error) {
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, nil, &authError{status: http.StatusUnauthorized, message: "Not authenticated"}
	}

	claims, err := h.validateToken(r.Context(), token)
	if err != nil {
		return nil, nil, err
	}

	email := claimEmail(claims)
	givenName, _ := claims["name"].(string)
	user, err := h.graph.FindUser(r.Context(), email, givenName)
	if err != nil {
		if errors.Is(err, graph.ErrUserNotFound) {
			return nil, nil, &authError{status: http.StatusUnauthorized, message: "User is not authorized to use this application"}
		}
		h.logger.Error("graph user lookup failed", zap.Error(err))
		return nil, nil, &authError{status: http.StatusBadGateway, message: "Failed to resolve user"}
	}

	claims["access_token"] = token
	return user, claims, nil
}

// validateToken runs the token checks and maps failures to the HTTP
// responses callers of this API expect.
func (h *AuthHandler) validateToken(ctx context.Context, token string) (map[string]any, error) {
	var claims map[string]any
	var err error
	if h.verifier != nil {
		claims, err = h.verifier.Verify(ctx, token)
	} else {
		claims, err = ParseClaims(token)
	}
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, &authError{status: http.StatusUnauthorized, message: "Signature has expired"}
		}
		return nil, &authError{status: http.StatusUnauthorized, message: "Invalid token"}
	}

	if err := verifyNotExpired(claims); err != nil {
		return nil, &authError{status: http.StatusUnauthorized, message: "Signature has expired"}
	}
	if err := verifyAppAudience(claims, h.clientID); err != nil {
		return nil, &authError{status: http.StatusUnauthorized, message: "User is not authorized to use this application"}
	}
	return claims, nil
}

func (h *AuthHandler) deny(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	message := "Not authenticated"
	var authErr *authError
	if errors.As(err, &authErr) {
		status, message = authErr.status, authErr.message
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	http.Error(w, message, status)
}

// claimEmail picks the subject's email the way Azure tokens deliver it:
// preferred_username on AD tokens, the emails list on B2C tokens.
func claimEmail(claims map[string]any) string {
	if email, _ := claims["preferred_username"].(string); email != "" {
		return email
	}
	if emails, ok := claims["emails"].([]any); ok && len(emails) > 0 {
		if email, ok := emails[0].(string); ok {
			return email
		}
	}
	return ""
}

type authError struct {
	status  int
	message string
}

func (e *authError) Error() string {
	return e.message
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) > len(bearer) && strings.EqualFold(value[:len(bearer)], bearer) {
		token := strings.TrimSpace(value[len(bearer):])
		return token, token != ""
	}
	return "", false
}
