package oauth

import (
	"net/http"
	"net/url"
	"time"

	"github.com/wrale/cbl-authd/internal/config"
)

const (
	grantTypeDeviceCode   = "device_code"
	grantTypeRefreshToken = "refresh_token"
	responseTypeDevice    = "device_code"

	defaultLanguage = "en-US"
)

// localeLanguages maps a device locale to the Accept-Language sent with
// code pair requests.
var localeLanguages = map[string]string{
	"de-DE": "de-DE",
	"en-AU": "en-US",
	"en-CA": "en-US",
	"en-GB": "en-GB",
	"en-IN": "en-US",
	"en-US": "en-US",
	"es-ES": "es-ES",
	"es-MX": "es-ES",
	"es-US": "es-ES",
	"fr-CA": "fr-FR",
	"fr-FR": "fr-FR",
	"hi-IN": "en-US",
	"it-IT": "it-IT",
	"ja-JP": "ja-JP",
	"pt-BR": "pt-BR",
}

// AcceptLanguage returns the language for locale, defaulting to en-US.
func AcceptLanguage(locale string) string {
	if lang, ok := localeLanguages[locale]; ok {
		return lang
	}
	return defaultLanguage
}

// NewCodePairRequest builds the request that starts device authorization.
func NewCodePairRequest(cfg *config.AuthorizationConfig) *Request {
	return &Request{
		URL: cfg.CodePairURL(),
		Header: http.Header{
			headerContentType:    {contentTypeForm},
			headerAcceptLanguage: {AcceptLanguage(cfg.Locale())},
		},
		Form: url.Values{
			"response_type": {responseTypeDevice},
			"client_id":     {cfg.ClientID()},
			"scope":         {cfg.Scope()},
			"scope_data":    {cfg.ScopeData()},
		},
		Timeout: cfg.RequestTimeout(),
	}
}

// NewTokenRequest builds a poll for the token issued to a code pair.
func NewTokenRequest(cfg *config.AuthorizationConfig, pair *CodePair) *Request {
	return &Request{
		URL:    cfg.TokenURL(),
		Header: http.Header{headerContentType: {contentTypeForm}},
		Form: url.Values{
			"grant_type":  {grantTypeDeviceCode},
			"device_code": {pair.DeviceCode},
			"user_code":   {pair.UserCode},
		},
		Timeout: cfg.RequestTimeout(),
	}
}

// NewRefreshRequest builds a refresh token exchange. A non-positive timeout
// selects the configured request timeout.
func NewRefreshRequest(cfg *config.AuthorizationConfig, refreshToken string, timeout time.Duration) *Request {
	if timeout <= 0 {
		timeout = cfg.RequestTimeout()
	}
	return &Request{
		URL:    cfg.RefreshURL(),
		Header: http.Header{headerContentType: {contentTypeForm}},
		Form: url.Values{
			"grant_type":    {grantTypeRefreshToken},
			"refresh_token": {refreshToken},
			"client_id":     {cfg.ClientID()},
		},
		Timeout: timeout,
	}
}
