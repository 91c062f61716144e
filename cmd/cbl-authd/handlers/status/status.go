// Package status exposes the authorization progress of the agent over HTTP.
package status

import (
	"net/http"
	"sync"
	"time"

	"github.com/wrale/cbl-authd/cmd/cbl-authd/handlers/common"
	"github.com/wrale/cbl-authd/internal/deviceflow"
	"github.com/wrale/cbl-authd/internal/oauth"
)

// TokenReporter reports whether an access token is available.
type TokenReporter interface {
	AuthToken() string
}

// CodePair is what the user needs to link the device.
type CodePair struct {
	VerificationURI string `json:"verification_uri"`
	UserCode        string `json:"user_code"`
}

// Snapshot is the body of a status reply.
type Snapshot struct {
	AuthState  deviceflow.AuthState  `json:"auth_state"`
	AuthError  oauth.ErrorCode       `json:"auth_error"`
	FlowState  deviceflow.FlowState  `json:"flow_state"`
	StopReason deviceflow.StopReason `json:"stop_reason,omitempty"`
	CodePair   *CodePair             `json:"code_pair,omitempty"`
	HasToken   bool                  `json:"has_token"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// Tracker is a deviceflow.Observer that remembers the latest events and
// serves them as JSON. The code pair is only reported while the flow is
// waiting for the user.
type Tracker struct {
	tokens TokenReporter
	now    func() time.Time

	mu   sync.Mutex
	snap Snapshot
}

var _ deviceflow.Observer = (*Tracker)(nil)

// NewTracker creates a tracker. tokens may be nil.
func NewTracker(tokens TokenReporter) *Tracker {
	return &Tracker{
		tokens: tokens,
		now:    time.Now,
		snap:   Snapshot{FlowState: deviceflow.Stopping},
	}
}

func (t *Tracker) OnAuthStateChange(state deviceflow.AuthState, err oauth.ErrorCode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.AuthState = state
	t.snap.AuthError = err
	t.snap.UpdatedAt = t.now()
}

func (t *Tracker) OnFlowStateChange(state deviceflow.FlowState, reason deviceflow.StopReason) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.FlowState = state
	t.snap.StopReason = reason
	if state != deviceflow.RequestingToken {
		t.snap.CodePair = nil
	}
	t.snap.UpdatedAt = t.now()
}

func (t *Tracker) OnCodePairReceived(uri, userCode string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.CodePair = &CodePair{VerificationURI: uri, UserCode: userCode}
	t.snap.UpdatedAt = t.now()
}

// Snapshot returns a copy of the tracked state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	snap := t.snap
	if snap.CodePair != nil {
		pair := *snap.CodePair
		snap.CodePair = &pair
	}
	t.mu.Unlock()

	if t.tokens != nil {
		snap.HasToken = t.tokens.AuthToken() != ""
	}
	return snap
}

// ServeHTTP writes the current snapshot. The access token itself is never
// exposed.
func (t *Tracker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	common.WriteJSON(w, http.StatusOK, t.Snapshot())
}
