// Package config holds the immutable parameters of one code-based linking
// session.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the Login with Amazon authorization endpoint.
	DefaultBaseURL = "https://api.amazon.com/auth/O2/"

	// DefaultRequestTimeout bounds every request to the authorization server.
	DefaultRequestTimeout = 60 * time.Second

	// DefaultRefreshHeadStart is how long before expiry an access token is refreshed.
	DefaultRefreshHeadStart = 10 * time.Minute

	// ScopeAlexaAll is the scope requested for the device.
	ScopeAlexaAll = "alexa:all"

	// ScopeProfile is added to the requested scope when user profile access is enabled.
	ScopeProfile = "profile"

	codePairPath = "create/codepair"
	tokenPath    = "token"
)

// DeviceInfo identifies the device being linked.
type DeviceInfo struct {
	ClientID           string
	ProductID          string
	DeviceSerialNumber string
}

// ConfigError reports an invalid or incomplete configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// AuthorizationConfig is built once by New and never mutated.
type AuthorizationConfig struct {
	clientID           string
	productID          string
	deviceSerialNumber string

	codePairURL string
	tokenURL    string

	requestTimeout   time.Duration
	codePairTimeout  time.Duration
	refreshHeadStart time.Duration

	scope     string
	scopeData string
	locale    string
}

// Option configures an AuthorizationConfig during New.
type Option func(*AuthorizationConfig)

// WithRequestTimeout overrides DefaultRequestTimeout. Non-positive values are ignored.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *AuthorizationConfig) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithRefreshHeadStart overrides DefaultRefreshHeadStart. Negative values are ignored.
func WithRefreshHeadStart(d time.Duration) Option {
	return func(c *AuthorizationConfig) {
		if d >= 0 {
			c.refreshHeadStart = d
		}
	}
}

// WithLocale sets the device locale used to pick the Accept-Language of the
// code pair request.
func WithLocale(locale string) Option {
	return func(c *AuthorizationConfig) {
		c.locale = strings.TrimSpace(locale)
	}
}

// WithUserProfileScope requests the profile scope in addition to alexa:all.
func WithUserProfileScope() Option {
	return func(c *AuthorizationConfig) {
		c.scope = ScopeAlexaAll + " " + ScopeProfile
	}
}

// New validates info and returns an immutable configuration. An empty
// baseURL selects DefaultBaseURL.
func New(info DeviceInfo, codePairTimeout time.Duration, baseURL string, opts ...Option) (*AuthorizationConfig, error) {
	required := []struct {
		field string
		value string
	}{
		{"clientId", info.ClientID},
		{"productId", info.ProductID},
		{"deviceSerialNumber", info.DeviceSerialNumber},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, &ConfigError{Field: r.field, Reason: "must not be empty"}
		}
	}
	if codePairTimeout <= 0 {
		return nil, &ConfigError{Field: "codePairRequestTimeout", Reason: "must be positive"}
	}

	base, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	scopeData, err := buildScopeData(info.ProductID, info.DeviceSerialNumber)
	if err != nil {
		return nil, &ConfigError{Field: "scopeData", Reason: err.Error()}
	}

	c := &AuthorizationConfig{
		clientID:           info.ClientID,
		productID:          info.ProductID,
		deviceSerialNumber: info.DeviceSerialNumber,
		codePairURL:        base + codePairPath,
		tokenURL:           base + tokenPath,
		requestTimeout:     DefaultRequestTimeout,
		codePairTimeout:    codePairTimeout,
		refreshHeadStart:   DefaultRefreshHeadStart,
		scope:              ScopeAlexaAll,
		scopeData:          scopeData,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ClientID returns the LWA client identifier.
func (c *AuthorizationConfig) ClientID() string { return c.clientID }

// ProductID returns the device product identifier.
func (c *AuthorizationConfig) ProductID() string { return c.productID }

// DeviceSerialNumber returns the device serial number.
func (c *AuthorizationConfig) DeviceSerialNumber() string { return c.deviceSerialNumber }

// CodePairURL returns the endpoint for code pair requests.
func (c *AuthorizationConfig) CodePairURL() string { return c.codePairURL }

// TokenURL returns the endpoint for device-code token requests.
func (c *AuthorizationConfig) TokenURL() string { return c.tokenURL }

// RefreshURL returns the endpoint for refresh requests, which is the token endpoint.
func (c *AuthorizationConfig) RefreshURL() string { return c.tokenURL }

// RequestTimeout returns the per-request timeout.
func (c *AuthorizationConfig) RequestTimeout() time.Duration { return c.requestTimeout }

// CodePairRequestTimeout returns how long the machine keeps retrying code
// pair requests before giving up.
func (c *AuthorizationConfig) CodePairRequestTimeout() time.Duration { return c.codePairTimeout }

// RefreshHeadStart returns how long before expiry a token is refreshed.
func (c *AuthorizationConfig) RefreshHeadStart() time.Duration { return c.refreshHeadStart }

// Scope returns the value of the scope form field.
func (c *AuthorizationConfig) Scope() string { return c.scope }

// ScopeData returns the compact JSON sent as scope_data.
func (c *AuthorizationConfig) ScopeData() string { return c.scopeData }

// Locale returns the configured locale, or "" if none was set.
func (c *AuthorizationConfig) Locale() string { return c.locale }

type productInstanceAttributes struct {
	DeviceSerialNumber string `json:"deviceSerialNumber"`
}

type scopeEntry struct {
	ProductID                 string                    `json:"productID"`
	ProductInstanceAttributes productInstanceAttributes `json:"productInstanceAttributes"`
}

func buildScopeData(productID, serial string) (string, error) {
	data := map[string]scopeEntry{
		ScopeAlexaAll: {
			ProductID:                 productID,
			ProductInstanceAttributes: productInstanceAttributes{DeviceSerialNumber: serial},
		},
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return "", fmt.Errorf("encoding scope data: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultBaseURL, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", &ConfigError{Field: "baseUrl", Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &ConfigError{Field: "baseUrl", Reason: "scheme must be http or https"}
	}
	if u.Host == "" {
		return "", &ConfigError{Field: "baseUrl", Reason: "must include a host"}
	}

	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	return raw, nil
}
