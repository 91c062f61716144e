package deviceflow

import "github.com/wrale/cbl-authd/internal/oauth"

// Observer receives authorization events. Callbacks run synchronously on
// the goroutine that caused the change, without any state machine lock
// held, so they may call back into the machine. Observers are compared
// with ==, so implementations must be comparable; pointer types are.
type Observer interface {
	// OnAuthStateChange reports a new auth state with the last error.
	OnAuthStateChange(state AuthState, err oauth.ErrorCode)

	// OnFlowStateChange reports entry into a flow state. reason is
	// StopReasonNone unless state is Stopping.
	OnFlowStateChange(state FlowState, reason StopReason)

	// OnCodePairReceived asks the user to visit uri and enter userCode.
	OnCodePairReceived(uri, userCode string)
}

// ObserverFuncs adapts optional callbacks to Observer. Use it by pointer.
type ObserverFuncs struct {
	AuthStateChange  func(AuthState, oauth.ErrorCode)
	FlowStateChange  func(FlowState, StopReason)
	CodePairReceived func(uri, userCode string)
}

func (f *ObserverFuncs) OnAuthStateChange(state AuthState, err oauth.ErrorCode) {
	if f.AuthStateChange != nil {
		f.AuthStateChange(state, err)
	}
}

func (f *ObserverFuncs) OnFlowStateChange(state FlowState, reason StopReason) {
	if f.FlowStateChange != nil {
		f.FlowStateChange(state, reason)
	}
}

func (f *ObserverFuncs) OnCodePairReceived(uri, userCode string) {
	if f.CodePairReceived != nil {
		f.CodePairReceived(uri, userCode)
	}
}

// AddObserver registers o and immediately reports the current auth state
// to it.
func (m *StateMachine) AddObserver(o Observer) error {
	if o == nil {
		m.logger.Error("adding observer failed", "error", ErrNilObserver)
		return ErrNilObserver
	}

	m.mu.Lock()
	for _, existing := range m.observers {
		if existing == o {
			m.mu.Unlock()
			m.logger.Error("adding observer failed", "error", ErrObserverExists)
			return ErrObserverExists
		}
	}
	m.observers = append(m.observers, o)
	state, authErr := m.authState, m.authError
	m.mu.Unlock()

	o.OnAuthStateChange(state, authErr)
	return nil
}

// RemoveObserver unregisters o.
func (m *StateMachine) RemoveObserver(o Observer) error {
	if o == nil {
		m.logger.Error("removing observer failed", "error", ErrNilObserver)
		return ErrNilObserver
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.observers {
		if existing == o {
			m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
			return nil
		}
	}
	m.logger.Error("removing observer failed", "error", ErrObserverNotFound)
	return ErrObserverNotFound
}

func (m *StateMachine) snapshotObservers() []Observer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Observer(nil), m.observers...)
}

func (m *StateMachine) notifyFlowState(state FlowState, reason StopReason) {
	m.logger.Info("flow state changed", "state", state, "reason", reason)
	for _, o := range m.snapshotObservers() {
		o.OnFlowStateChange(state, reason)
	}
}

func (m *StateMachine) notifyCodePair(uri, userCode string) {
	m.logger.Info("code pair received", "verification_uri", uri, "user_code", userCode)
	for _, o := range m.snapshotObservers() {
		o.OnCodePairReceived(uri, userCode)
	}
}
