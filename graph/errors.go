package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrUserNotFound is returned when no directory user matches a lookup.
	ErrUserNotFound = errors.New("user not found")

	// ErrPhotoNotFound is returned when a user has no profile photo.
	ErrPhotoNotFound = errors.New("profile photo not found")
)

// GraphError is a non-2xx response from the Graph API, carrying the
// service's error code and message when the body contained one.
type GraphError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *GraphError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graph request failed with status %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("graph request failed with status %d", e.StatusCode)
}

// newGraphError decodes the OData error envelope Graph wraps failures in.
func newGraphError(resp *http.Response) *GraphError {
	graphErr := &GraphError{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return graphErr
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		graphErr.Code = envelope.Error.Code
		graphErr.Message = envelope.Error.Message
	}
	return graphErr
}
