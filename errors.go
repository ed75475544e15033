package azureauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

var (
	// ErrFlowNotFound is returned when an auth response carries a state
	// that was never issued, already consumed, or expired.
	ErrFlowNotFound = errors.New("auth flow not found for state")

	// ErrNonceMismatch is returned when the id token's nonce does not
	// match the one the flow was started with.
	ErrNonceMismatch = errors.New("id token nonce does not match flow nonce")

	// ErrInvalidToken is returned for tokens that cannot be parsed or
	// fail verification.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned for tokens past their exp claim.
	ErrTokenExpired = errors.New("token has expired")

	// ErrWrongAudience is returned when a token was issued for a
	// different application.
	ErrWrongAudience = errors.New("token was not issued for this application")

	// ErrUnknownKeyID is returned when the authority's key set has no key
	// matching the token's kid header, even after a refetch.
	ErrUnknownKeyID = errors.New("no matching key in authority key set")

	// ErrNoSession is returned when a request carries no readable token
	// session.
	ErrNoSession = errors.New("no token session")
)

// AADError is an error payload returned by the Microsoft identity platform,
// either as error/error_description parameters on a callback redirect or as
// a JSON body from the token endpoint.
type AADError struct {
	Code          string `json:"error"`
	Description   string `json:"error_description,omitempty"`
	ErrorCodes    []int  `json:"error_codes,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	TraceID       string `json:"trace_id,omitempty"`
}

func (e *AADError) Error() string {
	description := e.Description
	if description == "" {
		description = "an error occurred"
	}
	return fmt.Sprintf("error: %s :- %s", e.Code, description)
}

// aadErrorFromValues builds an AADError from callback redirect parameters.
func aadErrorFromValues(params url.Values) *AADError {
	return &AADError{
		Code:        params.Get("error"),
		Description: params.Get("error_description"),
	}
}

// aadErrorFromBody decodes a token endpoint error body. Returns nil when the
// body is not an identity platform error payload.
func aadErrorFromBody(body []byte) *AADError {
	if len(body) == 0 {
		return nil
	}
	var aadErr AADError
	if err := json.Unmarshal(body, &aadErr); err != nil || aadErr.Code == "" {
		return nil
	}
	return &aadErr
}
