package deviceflow

// FlowState is the step of the authorization flow the worker is in.
type FlowState int

const (
	Starting FlowState = iota
	RequestingCodePair
	RequestingToken
	RefreshingToken
	Stopping
)

func (s FlowState) String() string {
	switch s {
	case Starting:
		return "STARTING"
	case RequestingCodePair:
		return "REQUESTING_CODE_PAIR"
	case RequestingToken:
		return "REQUESTING_TOKEN"
	case RefreshingToken:
		return "REFRESHING_TOKEN"
	case Stopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the state by name.
func (s FlowState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AuthState is the observable authorization state.
type AuthState int

const (
	Uninitialized AuthState = iota
	Refreshed
	Expired
	UnrecoverableError
)

func (s AuthState) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case Refreshed:
		return "REFRESHED"
	case Expired:
		return "EXPIRED"
	case UnrecoverableError:
		return "UNRECOVERABLE_ERROR"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the state by name.
func (s AuthState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StopReason explains a transition to Stopping. Other flow states are
// reported with StopReasonNone.
type StopReason int

const (
	StopReasonNone StopReason = iota
	// StopReasonSuccess is a cooperative stop requested by the owner.
	StopReasonSuccess
	StopReasonError
	// StopReasonTimeout means no code pair was obtained in time.
	StopReasonTimeout
	// StopReasonCodePairExpired means the user did not authorize the code
	// pair before it expired.
	StopReasonCodePairExpired
)

func (r StopReason) String() string {
	switch r {
	case StopReasonNone:
		return "NONE"
	case StopReasonSuccess:
		return "SUCCESS"
	case StopReasonError:
		return "ERROR"
	case StopReasonTimeout:
		return "TIMEOUT"
	case StopReasonCodePairExpired:
		return "CODE_PAIR_EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the reason by name.
func (r StopReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}
