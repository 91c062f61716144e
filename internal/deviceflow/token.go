package deviceflow

import (
	"net/http"

	"golang.org/x/oauth2"
)

// AuthToken returns the current access token, or "" when none is usable.
func (m *StateMachine) AuthToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil {
		return ""
	}
	return m.token.AccessToken
}

// Token implements oauth2.TokenSource. It never blocks on the network and
// returns ErrNoToken unless the auth state is Refreshed.
func (m *StateMachine) Token() (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil || m.authState != Refreshed {
		return nil, ErrNoToken
	}
	tok := *m.token
	return &tok, nil
}

// HTTPClient returns a client that authorizes each request with the
// current access token. Tokens are not cached by the client, so an expiry
// or Stop applies to the next request. A nil base uses
// http.DefaultTransport.
func (m *StateMachine) HTTPClient(base http.RoundTripper) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{Source: m, Base: base},
	}
}
