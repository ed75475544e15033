package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// User is a directory user. Only the fields this client reads and writes
// are mapped; Graph ignores absent fields on writes.
type User struct {
	ID                string           `json:"id,omitempty"`
	DisplayName       string           `json:"displayName,omitempty"`
	GivenName         string           `json:"givenName,omitempty"`
	Surname           string           `json:"surname,omitempty"`
	Mail              string           `json:"mail,omitempty"`
	UserPrincipalName string           `json:"userPrincipalName,omitempty"`
	MailNickname      string           `json:"mailNickname,omitempty"`
	JobTitle          string           `json:"jobTitle,omitempty"`
	MobilePhone       string           `json:"mobilePhone,omitempty"`
	OfficeLocation    string           `json:"officeLocation,omitempty"`
	AccountEnabled    *bool            `json:"accountEnabled,omitempty"`
	PasswordProfile   *PasswordProfile `json:"passwordProfile,omitempty"`
}

// PasswordProfile carries the password settings for user creation.
type PasswordProfile struct {
	Password                      string `json:"password"`
	ForceChangePasswordNextSignIn bool   `json:"forceChangePasswordNextSignIn"`
}

// userPage is one page of a users listing.
type userPage struct {
	Value    []User `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// Me fetches the profile of the signed-in user. Only works with a
// delegated token; app-only clients have no signed-in user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUser fetches a user by object id or userPrincipalName.
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	var user User
	err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, &user)
	if err != nil {
		var graphErr *GraphError
		if errors.As(err, &graphErr) && graphErr.StatusCode == http.StatusNotFound {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindUser locates the directory user for a signed-in subject. It matches
// the user whose mail equals email, or failing that whose givenName equals
// givenName ignoring case. Returns ErrUserNotFound when neither matches.
func (c *Client) FindUser(ctx context.Context, email, givenName string) (*User, error) {
	if email == "" && givenName == "" {
		return nil, ErrUserNotFound
	}

	// Exact mail matches filter server-side; givenName needs a scan
	// because the comparison is case-insensitive.
	if email != "" {
		params := url.Values{}
		params.Set("$filter", fmt.Sprintf("mail eq '%s'", escapeODataLiteral(email)))
		var page userPage
		if err := c.do(ctx, http.MethodGet, "/users?"+params.Encode(), nil, &page); err != nil {
			return nil, err
		}
		if len(page.Value) > 0 {
			return &page.Value[0], nil
		}
	}

	path := "/users"
	for path != "" {
		var page userPage
		if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		for i := range page.Value {
			if matchUser(&page.Value[i], email, givenName) {
				return &page.Value[i], nil
			}
		}
		path = strings.TrimPrefix(page.NextLink, c.baseURL)
	}
	return nil, ErrUserNotFound
}

// UpdateUser applies the given property changes to a user and returns the
// updated record.
func (c *Client) UpdateUser(ctx context.Context, userID string, changes map[string]any) (*User, error) {
	path := "/users/" + url.PathEscape(userID)
	if err := c.do(ctx, http.MethodPatch, path, changes, nil); err != nil {
		return nil, err
	}
	// Graph answers the PATCH with 204 and no body; fetch the result.
	return c.GetUser(ctx, userID)
}

// CreateUser creates a directory user and returns the created record.
func (c *Client) CreateUser(ctx context.Context, user *User) (*User, error) {
	var created User
	if err := c.do(ctx, http.MethodPost, "/users", user, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func matchUser(user *User, email, givenName string) bool {
	if email != "" && user.Mail == email {
		return true
	}
	if givenName != "" && strings.EqualFold(user.GivenName, givenName) {
		return true
	}
	return false
}

// escapeODataLiteral doubles single quotes so the value is safe inside an
// OData string literal.
func escapeODataLiteral(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}
