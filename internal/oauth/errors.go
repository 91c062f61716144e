package oauth

// ErrorCode is the outcome of an authorization request, as reported to
// observers.
type ErrorCode int

const (
	Success ErrorCode = iota
	AuthorizationPending
	SlowDown
	AuthorizationExpired
	InvalidCodePair
	UnauthorizedClient
	InvalidRequest
	InvalidValue
	UnsupportedGrantType
	ServerError
	InternalError
	UnknownError
	// InvalidClientID is never returned by the server. It replaces
	// InvalidRequest when a refresh token that was just issued is rejected.
	InvalidClientID
)

var errorCodeNames = map[ErrorCode]string{
	Success:              "SUCCESS",
	AuthorizationPending: "AUTHORIZATION_PENDING",
	SlowDown:             "SLOW_DOWN",
	AuthorizationExpired: "AUTHORIZATION_EXPIRED",
	InvalidCodePair:      "INVALID_CODE_PAIR",
	UnauthorizedClient:   "UNAUTHORIZED_CLIENT",
	InvalidRequest:       "INVALID_REQUEST",
	InvalidValue:         "INVALID_VALUE",
	UnsupportedGrantType: "UNSUPPORTED_GRANT_TYPE",
	ServerError:          "SERVER_ERROR",
	InternalError:        "INTERNAL_ERROR",
	UnknownError:         "UNKNOWN_ERROR",
	InvalidClientID:      "INVALID_CLIENT_ID",
}

// String returns the upper snake case name of the code.
func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return "UNKNOWN_ERROR"
}

// MarshalText encodes the code by name.
func (c ErrorCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Class groups error codes by how the state machine reacts to them.
type Class int

const (
	// ClassSuccess means the request succeeded.
	ClassSuccess Class = iota
	// ClassTransient failures are retried in place.
	ClassTransient
	// ClassRestart failures send the flow back to requesting a code pair.
	ClassRestart
	// ClassFatal failures stop the flow with an unrecoverable error.
	ClassFatal
)

// Class returns the handling class of c.
func (c ErrorCode) Class() Class {
	switch c {
	case Success:
		return ClassSuccess
	case AuthorizationExpired, InvalidCodePair:
		return ClassRestart
	case UnauthorizedClient, InvalidRequest, InvalidValue, UnsupportedGrantType, InternalError, InvalidClientID:
		return ClassFatal
	default:
		return ClassTransient
	}
}

// serverErrorNames maps the error field of a response body to an ErrorCode.
var serverErrorNames = map[string]ErrorCode{
	"authorization_pending":  AuthorizationPending,
	"invalid_client":         InvalidValue,
	"invalid_code_pair":      InvalidCodePair,
	"invalid_grant":          AuthorizationExpired,
	"invalid_request":        InvalidRequest,
	"InvalidValue":           InvalidValue,
	"servererror":            ServerError,
	"slow_down":              SlowDown,
	"unauthorized_client":    UnauthorizedClient,
	"unsupported_grant_type": UnsupportedGrantType,
}

// ErrorFromName maps a server error name to an ErrorCode. The empty name
// is Success; unrecognized names are UnknownError.
func ErrorFromName(name string) ErrorCode {
	if name == "" {
		return Success
	}
	if code, ok := serverErrorNames[name]; ok {
		return code
	}
	return UnknownError
}

// ErrorFromStatus maps an HTTP status code to a coarse ErrorCode.
func ErrorFromStatus(status int) ErrorCode {
	switch {
	case status == 200:
		return Success
	case status == 400:
		return InvalidRequest
	case status >= 500 && status <= 599:
		return ServerError
	default:
		return UnknownError
	}
}
