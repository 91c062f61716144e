// Package deviceflow runs the code-based linking authorization flow: a
// single background worker that obtains a code pair, polls for the user's
// authorization, then keeps the access token refreshed until stopped.
package deviceflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/wrale/cbl-authd/internal/clock"
	"github.com/wrale/cbl-authd/internal/config"
	"github.com/wrale/cbl-authd/internal/oauth"
	"github.com/wrale/cbl-authd/internal/retry"
)

// StateMachine owns one authorization session. Create it with New, start
// the worker with Start and tear it down with Stop.
type StateMachine struct {
	cfg       *config.AuthorizationConfig
	transport oauth.Transport
	store     CredentialStore
	clock     clock.Clock
	retry     *retry.Policy
	logger    *slog.Logger

	// runMu serializes Start and Stop.
	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// mu guards the observable state below.
	mu        sync.Mutex
	authState AuthState
	authError oauth.ErrorCode
	token     *oauth2.Token
	observers []Observer
}

// New creates a state machine. It does not start the worker.
func New(cfg *config.AuthorizationConfig, transport oauth.Transport, store CredentialStore, opts ...Option) (*StateMachine, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("%w: config", ErrMissingCollaborator)
	case transport == nil:
		return nil, fmt.Errorf("%w: transport", ErrMissingCollaborator)
	case store == nil:
		return nil, fmt.Errorf("%w: credential store", ErrMissingCollaborator)
	}

	m := &StateMachine{
		cfg:       cfg,
		transport: transport,
		store:     store,
		clock:     clock.Real(),
		retry:     retry.New(),
		logger:    slog.Default(),
		authState: Uninitialized,
		authError: oauth.Success,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "deviceflow")

	return m, nil
}

// Start spawns the worker unless one is already running. With resume set,
// Start does nothing when no refresh token is stored; otherwise a stored
// token is refreshed and the code pair step is skipped.
func (m *StateMachine) Start(resume bool) {
	if resume {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RequestTimeout())
		token, err := m.store.RefreshToken(ctx)
		cancel()
		if err != nil {
			m.logger.Error("reading refresh token failed", "error", err)
			return
		}
		if token == "" {
			m.logger.Debug("no stored refresh token, not resuming")
			return
		}
	}

	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.runningLocked() {
		m.logger.Debug("worker already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	go func() {
		defer close(done)
		defer cancel()
		m.run(ctx)
	}()
}

// Stop asks the worker to finish, waits for it to exit and discards the
// access token. It is safe to call repeatedly. Observers must not call
// Stop from a callback.
func (m *StateMachine) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.cancel != nil {
		m.cancel()
		<-m.done
		m.cancel = nil
	}

	m.mu.Lock()
	m.token = nil
	m.mu.Unlock()
}

// Cancel is Stop.
func (m *StateMachine) Cancel() { m.Stop() }

// Close stops the worker. It implements io.Closer.
func (m *StateMachine) Close() error {
	m.Stop()
	return nil
}

// Running reports whether a worker is active.
func (m *StateMachine) Running() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.runningLocked()
}

func (m *StateMachine) runningLocked() bool {
	if m.done == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// AuthState returns the current auth state and the last error.
func (m *StateMachine) AuthState() (AuthState, oauth.ErrorCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authState, m.authError
}

// OnAuthFailure is called when a consumer had a token rejected. It is
// accepted and logged; the refresh schedule is unchanged.
func (m *StateMachine) OnAuthFailure(token string) {
	m.logger.Info("access token rejected downstream", "matches_current", token != "" && token == m.AuthToken())
}

// HealthChecker is implemented by stores that can report on their backend.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// CheckHealth fails once the flow hit an unrecoverable error, or when the
// credential store reports a problem.
func (m *StateMachine) CheckHealth(ctx context.Context) error {
	if state, authErr := m.AuthState(); state == UnrecoverableError {
		return fmt.Errorf("authorization failed: %s", authErr)
	}
	if hc, ok := m.store.(HealthChecker); ok {
		if err := hc.CheckHealth(ctx); err != nil {
			return fmt.Errorf("credential store: %w", err)
		}
	}
	return nil
}

// ClearData stops the worker and erases the stored refresh token.
func (m *StateMachine) ClearData(ctx context.Context) error {
	m.Stop()
	if err := m.store.ClearRefreshToken(ctx); err != nil {
		m.logger.Error("clearing refresh token failed", "error", err)
		return fmt.Errorf("clearing refresh token: %w", err)
	}
	return nil
}

func (m *StateMachine) setAuthError(code oauth.ErrorCode) {
	m.mu.Lock()
	m.authError = code
	m.mu.Unlock()
}

func (m *StateMachine) currentAuthState() AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authState
}

// setAuthState moves to state. Any state but Refreshed drops the token.
func (m *StateMachine) setAuthState(state AuthState) {
	m.updateAuth(state, nil)
}

// updateAuth installs token and state together and notifies observers
// when the state changed.
func (m *StateMachine) updateAuth(state AuthState, token *oauth2.Token) {
	m.mu.Lock()
	if state == Refreshed {
		m.token = token
	} else {
		m.token = nil
	}
	if m.authState == state {
		m.mu.Unlock()
		return
	}
	m.authState = state
	authErr := m.authError
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	m.logger.Info("auth state changed", "state", state, "error", authErr)
	for _, o := range observers {
		o.OnAuthStateChange(state, authErr)
	}
}

// sleepUntil waits for t or cancellation. It reports whether the wait
// completed.
func (m *StateMachine) sleepUntil(ctx context.Context, t time.Time) bool {
	if ctx.Err() != nil {
		return false
	}
	timer := m.clock.NewTimer(t.Sub(m.clock.Now()))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
