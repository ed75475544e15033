package azureauth

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries the application registration and the ambient settings the
// client needs. The zero value is not usable; start from CreateConfig or
// fill the required fields directly.
type Config struct {
	ClientID      string   `json:"clientId" yaml:"clientId"`
	ClientSecret  string   `json:"clientSecret" yaml:"clientSecret"`
	TenantID      string   `json:"tenantId" yaml:"tenantId"`
	OAuthTenantID string   `json:"oauthTenantId,omitempty" yaml:"oauthTenantId,omitempty"`
	Authority     string   `json:"authority,omitempty" yaml:"authority,omitempty"`
	B2CUserFlow   string   `json:"b2cUserFlow,omitempty" yaml:"b2cUserFlow,omitempty"`
	RedirectURL   string   `json:"redirectUrl,omitempty" yaml:"redirectUrl,omitempty"`
	Scopes        []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
	Mode          Mode     `json:"mode,omitempty" yaml:"mode,omitempty"`

	LogLevel             string `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`
	SessionEncryptionKey string `json:"sessionEncryptionKey,omitempty" yaml:"sessionEncryptionKey,omitempty"`
	CookieDomain         string `json:"cookieDomain,omitempty" yaml:"cookieDomain,omitempty"`

	// HTTPTimeout bounds identity platform calls. Programmatic only.
	HTTPTimeout time.Duration `json:"-" yaml:"-"`
}

// CreateConfig returns a Config pre-filled with defaults.
func CreateConfig() *Config {
	return &Config{
		Mode:     ModeAD,
		Scopes:   defaultScopes(),
		LogLevel: "info",
	}
}

// Validate checks that the required fields for the selected mode are
// present. An empty mode counts as AD.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("clientSecret is required")
	}
	if c.TenantID == "" {
		return fmt.Errorf("tenantId is required")
	}
	switch c.Mode {
	case ModeAD, "":
	case ModeB2C:
		if c.B2CUserFlow == "" && c.Authority == "" {
			return fmt.Errorf("b2cUserFlow is required in b2c mode unless an authority is set")
		}
	default:
		return fmt.Errorf("invalid authentication mode %q, supported modes: %s, %s", c.Mode, ModeB2C, ModeAD)
	}
	return nil
}

// LoadConfig reads a YAML configuration file. Fields absent from the file
// keep their CreateConfig defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := CreateConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ConfigFromEnv fills a Config from AZURE_* environment variables. Unset
// variables keep their CreateConfig defaults.
func ConfigFromEnv() *Config {
	cfg := CreateConfig()
	setFromEnv(&cfg.ClientID, "AZURE_CLIENT_ID")
	setFromEnv(&cfg.ClientSecret, "AZURE_CLIENT_SECRET")
	setFromEnv(&cfg.TenantID, "AZURE_TENANT_ID")
	setFromEnv(&cfg.OAuthTenantID, "AZURE_OAUTH_TENANT_ID")
	setFromEnv(&cfg.Authority, "AZURE_AUTHORITY")
	setFromEnv(&cfg.B2CUserFlow, "AZURE_B2C_USER_FLOW")
	setFromEnv(&cfg.RedirectURL, "AZURE_REDIRECT_URL")
	setFromEnv(&cfg.SessionEncryptionKey, "AZURE_SESSION_ENCRYPTION_KEY")
	setFromEnv(&cfg.LogLevel, "AZURE_LOG_LEVEL")
	if mode := os.Getenv("AZURE_MODE"); mode != "" {
		cfg.Mode = Mode(mode)
	}
	if scopes := os.Getenv("AZURE_SCOPES"); scopes != "" {
		cfg.Scopes = splitScopes(scopes)
	}
	return cfg
}

func setFromEnv(target *string, name string) {
	if value := os.Getenv(name); value != "" {
		*target = value
	}
}

func splitScopes(raw string) []string {
	parts := strings.Split(raw, ",")
	scopes := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			scopes = append(scopes, trimmed)
		}
	}
	return scopes
}
