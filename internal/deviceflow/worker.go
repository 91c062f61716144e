package deviceflow

import (
	"context"
	"time"

	"github.com/wrale/cbl-authd/internal/oauth"
)

const (
	// MinTokenRequestInterval is the initial wait between token polls.
	MinTokenRequestInterval = 5 * time.Second

	// MaxTokenRequestInterval caps the poll interval after slow_down.
	MaxTokenRequestInterval = 60 * time.Second

	slowDownFactor = 2
)

// session is owned by the worker goroutine.
type session struct {
	codePair       *oauth.CodePair
	codePairExpiry time.Time

	tokenExpiry time.Time
	refreshDue  time.Time

	retryCount int
	// newRefreshToken is set while the refresh token from the device code
	// grant has not been exchanged yet.
	newRefreshToken bool

	reason StopReason
}

func (m *StateMachine) run(ctx context.Context) {
	s := &session{}
	state := Starting

	for {
		if state != Stopping && ctx.Err() != nil {
			state = Stopping
		}

		switch state {
		case Starting:
			state = m.handleStarting(ctx, s)
		case RequestingCodePair:
			state = m.handleRequestingCodePair(ctx, s)
		case RequestingToken:
			state = m.handleRequestingToken(ctx, s)
		case RefreshingToken:
			state = m.handleRefreshingToken(ctx, s)
		default:
			if s.reason == StopReasonNone {
				s.reason = StopReasonSuccess
			}
			m.notifyFlowState(Stopping, s.reason)
			return
		}
	}
}

func (m *StateMachine) handleStarting(ctx context.Context, s *session) FlowState {
	m.notifyFlowState(Starting, StopReasonNone)

	token, err := m.store.RefreshToken(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Error("reading refresh token failed", "error", err)
			s.reason = StopReasonError
		}
		return Stopping
	}
	if token != "" {
		return RefreshingToken
	}
	return RequestingCodePair
}

func (m *StateMachine) handleRequestingCodePair(ctx context.Context, s *session) FlowState {
	m.notifyFlowState(RequestingCodePair, StopReasonNone)

	s.retryCount = 0
	deadline := m.clock.Now().Add(m.cfg.CodePairRequestTimeout())

	for {
		if !m.clock.Now().Before(deadline) {
			s.reason = StopReasonTimeout
			return Stopping
		}

		pair, result := m.requestCodePair(ctx)
		if ctx.Err() != nil {
			return Stopping
		}
		m.setAuthError(result)

		switch result.Class() {
		case oauth.ClassSuccess:
			s.codePair = pair
			s.codePairExpiry = m.clock.Now().Add(pair.ExpiresIn)
			m.notifyCodePair(pair.VerificationURI, pair.UserCode)
			return RequestingToken
		case oauth.ClassFatal:
			m.logger.Error("code pair request rejected", "error", result)
			m.setAuthState(UnrecoverableError)
			s.reason = StopReasonError
			return Stopping
		}

		// Restart codes mean nothing before a code pair exists, so they
		// are retried like transient failures.
		retryAt := m.retry.TimeToRetry(m.clock.Now(), s.retryCount)
		s.retryCount++
		if retryAt.After(deadline) {
			retryAt = deadline
		}
		m.logger.Debug("retrying code pair request", "error", result, "attempt", s.retryCount, "at", retryAt)
		if !m.sleepUntil(ctx, retryAt) {
			return Stopping
		}
	}
}

func (m *StateMachine) handleRequestingToken(ctx context.Context, s *session) FlowState {
	m.notifyFlowState(RequestingToken, StopReasonNone)

	interval := MinTokenRequestInterval
	for {
		if !m.clock.Now().Before(s.codePairExpiry) {
			s.reason = StopReasonCodePairExpired
			return Stopping
		}

		requestTime := m.clock.Now()
		grant, result := m.requestToken(ctx, s.codePair)
		if ctx.Err() != nil {
			return Stopping
		}
		if result == oauth.Success {
			result = m.persistRefreshToken(ctx, grant.RefreshToken)
		}
		m.setAuthError(result)

		switch {
		case result == oauth.Success:
			// The device code grant is exchanged right away so that a bad
			// client registration shows up before the token is used.
			s.newRefreshToken = true
			s.tokenExpiry = requestTime
			s.refreshDue = requestTime.Add(-m.cfg.RefreshHeadStart())
			return RefreshingToken
		case result == oauth.SlowDown:
			interval = min(interval*slowDownFactor, MaxTokenRequestInterval)
		case result.Class() == oauth.ClassRestart:
			return RequestingCodePair
		case result.Class() == oauth.ClassFatal:
			m.logger.Error("token request rejected", "error", result)
			m.setAuthState(UnrecoverableError)
			s.reason = StopReasonError
			return Stopping
		}

		wake := m.clock.Now().Add(interval)
		if wake.After(s.codePairExpiry) {
			wake = s.codePairExpiry
		}
		m.logger.Debug("waiting for user authorization", "error", result, "interval", interval)
		if !m.sleepUntil(ctx, wake) {
			return Stopping
		}
	}
}

func (m *StateMachine) handleRefreshingToken(ctx context.Context, s *session) FlowState {
	m.notifyFlowState(RefreshingToken, StopReasonNone)

	s.retryCount = 0
	for {
		aboutToExpire := m.currentAuthState() == Refreshed && s.tokenExpiry.Before(s.refreshDue)
		next := s.refreshDue
		if aboutToExpire {
			next = s.tokenExpiry
		}
		if !m.sleepUntil(ctx, next) {
			return Stopping
		}

		if aboutToExpire {
			m.setAuthState(Expired)
			continue
		}

		newRefreshToken := s.newRefreshToken
		s.newRefreshToken = false

		requestTime := m.clock.Now()
		grant, result := m.refresh(ctx, s, requestTime)
		if ctx.Err() != nil {
			return Stopping
		}
		if result == oauth.Success {
			result = m.persistRefreshToken(ctx, grant.RefreshToken)
		}
		m.setAuthError(result)

		switch result.Class() {
		case oauth.ClassSuccess:
			s.retryCount = 0
			s.tokenExpiry = requestTime.Add(grant.ExpiresIn)
			s.refreshDue = s.tokenExpiry.Add(-m.cfg.RefreshHeadStart())
			m.updateAuth(Refreshed, grant.OAuth2Token(requestTime))
		case oauth.ClassTransient:
			s.refreshDue = m.retry.TimeToRetry(m.clock.Now(), s.retryCount)
			s.retryCount++
			m.logger.Warn("refresh failed, retrying", "error", result, "attempt", s.retryCount, "at", s.refreshDue)
		case oauth.ClassRestart:
			m.logger.Warn("refresh token no longer valid, relinking", "error", result)
			m.clearRefreshToken(ctx)
			m.discardToken()
			return RequestingCodePair
		default:
			if result == oauth.InvalidRequest && newRefreshToken {
				result = oauth.InvalidClientID
				m.setAuthError(result)
			}
			m.logger.Error("refresh rejected", "error", result)
			m.clearRefreshToken(ctx)
			m.setAuthState(UnrecoverableError)
			s.reason = StopReasonError
			return Stopping
		}
	}
}

// discardToken drops the access token, reporting Expired if it was live.
func (m *StateMachine) discardToken() {
	if m.currentAuthState() == Refreshed {
		m.setAuthState(Expired)
		return
	}
	m.mu.Lock()
	m.token = nil
	m.mu.Unlock()
}

func (m *StateMachine) requestCodePair(ctx context.Context) (*oauth.CodePair, oauth.ErrorCode) {
	m.logger.Debug("requesting code pair")
	resp, err := m.transport.Post(ctx, oauth.NewCodePairRequest(m.cfg))
	if err != nil {
		m.logger.Warn("code pair request failed", "error", err)
		return nil, oauth.UnknownError
	}
	pair, result := oauth.ParseCodePair(resp)
	m.logger.Debug("code pair response", "status", resp.StatusCode, "result", result)
	return pair, result
}

func (m *StateMachine) requestToken(ctx context.Context, pair *oauth.CodePair) (*oauth.TokenGrant, oauth.ErrorCode) {
	m.logger.Debug("requesting token")
	resp, err := m.transport.Post(ctx, oauth.NewTokenRequest(m.cfg, pair))
	if err != nil {
		m.logger.Warn("token request failed", "error", err)
		return nil, oauth.UnknownError
	}
	grant, result := oauth.ParseToken(resp)
	m.logger.Debug("token response", "status", resp.StatusCode, "result", result)
	return grant, result
}

// refresh exchanges the stored refresh token. While a token is live the
// request timeout is cut to its remaining lifetime so expiry is reported
// on time.
func (m *StateMachine) refresh(ctx context.Context, s *session, requestTime time.Time) (*oauth.TokenGrant, oauth.ErrorCode) {
	refreshToken, err := m.store.RefreshToken(ctx)
	if err != nil {
		m.logger.Warn("reading refresh token failed", "error", err)
		return nil, oauth.UnknownError
	}

	timeout := m.cfg.RequestTimeout()
	if m.currentAuthState() == Refreshed {
		if remaining := s.tokenExpiry.Sub(requestTime); remaining > 0 && remaining < timeout {
			timeout = remaining
		}
	}

	m.logger.Debug("refreshing token", "timeout", timeout)
	resp, err := m.transport.Post(ctx, oauth.NewRefreshRequest(m.cfg, refreshToken, timeout))
	if err != nil {
		m.logger.Warn("refresh request failed", "error", err)
		return nil, oauth.UnknownError
	}
	grant, result := oauth.ParseToken(resp)
	m.logger.Debug("refresh response", "status", resp.StatusCode, "result", result)
	return grant, result
}

// persistRefreshToken hands token to the store. A store failure is
// treated as a transient error so the exchange is retried.
func (m *StateMachine) persistRefreshToken(ctx context.Context, token string) oauth.ErrorCode {
	if err := m.store.SetRefreshToken(ctx, token); err != nil {
		m.logger.Error("storing refresh token failed", "error", err)
		return oauth.UnknownError
	}
	return oauth.Success
}

func (m *StateMachine) clearRefreshToken(ctx context.Context) {
	if err := m.store.ClearRefreshToken(ctx); err != nil {
		m.logger.Error("clearing refresh token failed", "error", err)
	}
}
