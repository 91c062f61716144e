package oauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

const (
	headerContentType    = "Content-Type"
	headerAcceptLanguage = "Accept-Language"
	contentTypeForm      = "application/x-www-form-urlencoded"

	// maxResponseSize caps how much of a response body is read.
	maxResponseSize = 1 << 20
)

// HTTPTransport sends requests with an *http.Client.
type HTTPTransport struct {
	client    *http.Client
	userAgent string
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *HTTPTransport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) TransportOption {
	return func(t *HTTPTransport) {
		t.userAgent = ua
	}
}

// NewHTTPTransport creates a transport backed by net/http.
func NewHTTPTransport(opts ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{client: http.DefaultClient}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Post sends req as a form-encoded POST. A client stored in ctx under
// oauth2.HTTPClient takes precedence over the configured one.
//
// Any HTTP status is a successful round trip; errors are returned only
// when no status was received.
func (t *HTTPTransport) Post(ctx context.Context, req *Request) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	// Build request
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, strings.NewReader(req.Form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if httpReq.Header.Get(headerContentType) == "" {
		httpReq.Header.Set(headerContentType, contentTypeForm)
	}
	if t.userAgent != "" {
		httpReq.Header.Set("User-Agent", t.userAgent)
	}

	client := t.client
	if c, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok && c != nil {
		client = c
	}

	// Send request
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}
