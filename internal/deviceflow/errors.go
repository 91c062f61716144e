package deviceflow

import "errors"

// Errors returned by the state machine's public API
var (
	// ErrMissingCollaborator indicates New was called without a required dependency
	ErrMissingCollaborator = errors.New("missing collaborator")

	// ErrNilObserver indicates a nil observer was passed
	ErrNilObserver = errors.New("nil observer")

	// ErrObserverExists indicates the observer is already registered
	ErrObserverExists = errors.New("observer already registered")

	// ErrObserverNotFound indicates the observer was never registered
	ErrObserverNotFound = errors.New("observer not registered")

	// ErrNoToken indicates no usable access token is held
	ErrNoToken = errors.New("no access token available")
)
