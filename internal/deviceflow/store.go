package deviceflow

import (
	"context"

	"golang.org/x/oauth2"
)

// CredentialStore persists the refresh token between runs. The state
// machine never keeps a refresh token longer than one request.
type CredentialStore interface {
	// RefreshToken returns the stored token, or "" when none is stored
	RefreshToken(ctx context.Context) (string, error)

	// SetRefreshToken replaces the stored token
	SetRefreshToken(ctx context.Context, token string) error

	// ClearRefreshToken erases the stored token
	ClearRefreshToken(ctx context.Context) error
}

// TokenProvider hands out access tokens and reports authorization state
// changes.
type TokenProvider interface {
	oauth2.TokenSource

	AuthToken() string
	AddObserver(o Observer) error
	RemoveObserver(o Observer) error
	OnAuthFailure(token string)
}

// CredentialEraser erases persisted credentials, for example when the
// device is deregistered.
type CredentialEraser interface {
	ClearData(ctx context.Context) error
}

var (
	_ TokenProvider    = (*StateMachine)(nil)
	_ CredentialEraser = (*StateMachine)(nil)
)
