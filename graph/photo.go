package graph

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// GetPhoto fetches a user's profile photo and returns it as a data URI
// ready for an img tag. Returns ErrPhotoNotFound when the user has no
// photo.
func (c *Client) GetPhoto(ctx context.Context, userID string) (string, error) {
	path := "/users/" + url.PathEscape(userID) + "/photo/$value"
	resp, err := c.doRaw(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		var graphErr *GraphError
		if errors.As(err, &graphErr) && graphErr.StatusCode == http.StatusNotFound {
			return "", ErrPhotoNotFound
		}
		return "", err
	}
	defer resp.Body.Close()

	photo, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read photo: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(photo), nil
}

// SetPhoto replaces a user's profile photo. contentType defaults to
// image/png when empty.
func (c *Client) SetPhoto(ctx context.Context, userID string, photo []byte, contentType string) error {
	if contentType == "" {
		contentType = "image/png"
	}
	path := "/users/" + url.PathEscape(userID) + "/photo/$value"
	resp, err := c.doRaw(ctx, http.MethodPut, path, contentType, bytes.NewReader(photo))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}
