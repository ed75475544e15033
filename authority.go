package azureauth

import (
	"fmt"
	"net/url"
	"strings"
)

// Mode selects which Azure identity service the client authenticates
// against.
type Mode string

const (
	// ModeAD authenticates against an Azure AD (Entra ID) tenant.
	ModeAD Mode = "ad"
	// ModeB2C authenticates against an Azure AD B2C tenant through a user
	// flow.
	ModeB2C Mode = "b2c"
)

const microsoftLoginBase = "https://login.microsoftonline.com"

// deriveAuthority builds the authority URL for the selected mode. B2C
// tenants host their own login domain and scope the authority to a user
// flow; AD tenants live under the shared Microsoft login host.
func deriveAuthority(mode Mode, tenant, userFlow string) string {
	if mode == ModeB2C && userFlow != "" {
		return fmt.Sprintf("https://%s.b2clogin.com/%s.onmicrosoft.com/%s", tenant, tenant, userFlow)
	}
	return microsoftLoginBase + "/" + tenant
}

// endpoints are the identity platform v2.0 endpoints derived from an
// authority.
type endpoints struct {
	authorize string
	token     string
	logout    string
	jwks      string
	issuer    string
}

func endpointsForAuthority(authority string) endpoints {
	base := strings.TrimRight(authority, "/")
	return endpoints{
		authorize: base + "/oauth2/v2.0/authorize",
		token:     base + "/oauth2/v2.0/token",
		logout:    base + "/oauth2/v2.0/logout",
		jwks:      base + "/discovery/v2.0/keys",
		issuer:    base + "/v2.0",
	}
}

// validateAuthority rejects authority URLs that cannot serve an OAuth2
// authorization endpoint before any credential is sent their way.
func validateAuthority(authority string) error {
	if authority == "" {
		return fmt.Errorf("authority is empty")
	}
	u, err := url.Parse(authority)
	if err != nil {
		return fmt.Errorf("invalid authority URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("disallowed authority scheme: %s", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("authority URL has no host")
	}
	if strings.Contains(u.Path, "..") {
		return fmt.Errorf("path traversal detected in authority URL")
	}
	return nil
}
