// Package oauth speaks the Login with Amazon device authorization protocol:
// it builds code pair, token and refresh requests, sends them through a
// Transport, and interprets the responses.
package oauth

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Request is a form-encoded POST to the authorization server.
//
// Form may carry a refresh token; never log it.
type Request struct {
	URL     string
	Header  http.Header
	Form    url.Values
	Timeout time.Duration
}

// Response is the raw result of a Request. StatusCode is 0 when no HTTP
// status was received.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport performs a single blocking POST. Implementations must not
// retry on their own.
type Transport interface {
	Post(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// Post calls f(ctx, req).
func (f TransportFunc) Post(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// CodePair is the result of a successful code pair request.
type CodePair struct {
	UserCode        string
	DeviceCode      string
	VerificationURI string
	ExpiresIn       time.Duration
	Interval        time.Duration
}

// TokenGrant is the result of a successful token or refresh request.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    time.Duration
}
