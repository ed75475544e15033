package graph

import (
	"context"
	"net/http"
	"net/url"
)

// ExtensionProperty is a directory extension attribute registered on an
// application. Graph exposes the registered attribute on users under the
// name extension_{appId}_{Name}.
type ExtensionProperty struct {
	ID            string   `json:"id,omitempty"`
	Name          string   `json:"name"`
	DataType      string   `json:"dataType"`
	TargetObjects []string `json:"targetObjects"`
}

// RegisterUserExtension registers a directory extension attribute on the
// application identified by its object id. The attribute always targets
// users; any TargetObjects on the input are overwritten.
func (c *Client) RegisterUserExtension(ctx context.Context, appObjectID string, property ExtensionProperty) (*ExtensionProperty, error) {
	property.TargetObjects = []string{"User"}
	if property.DataType == "" {
		property.DataType = "String"
	}
	path := "/applications/" + url.PathEscape(appObjectID) + "/extensionProperties"
	var created ExtensionProperty
	if err := c.do(ctx, http.MethodPost, path, property, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListUserExtensions lists the extension properties registered on the
// application identified by its object id.
func (c *Client) ListUserExtensions(ctx context.Context, appObjectID string) ([]ExtensionProperty, error) {
	path := "/applications/" + url.PathEscape(appObjectID) + "/extensionProperties"
	var page struct {
		Value []ExtensionProperty `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return page.Value, nil
}
