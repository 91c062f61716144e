package health

import (
	"context"
	"net/http"

	"github.com/wrale/cbl-authd/cmd/cbl-authd/handlers/common"
	"github.com/wrale/cbl-authd/internal/deviceflow"
	"github.com/wrale/cbl-authd/internal/oauth"
)

// Checker is the part of the state machine the handler reports on.
type Checker interface {
	CheckHealth(ctx context.Context) error
	AuthState() (deviceflow.AuthState, oauth.ErrorCode)
}

// Handler processes health check requests
type Handler struct {
	checker Checker
	version string
}

// Response represents the health check response.
type Response struct {
	Status  string         `json:"status"`
	Version string         `json:"version,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// New creates a new health check handler
func New(checker Checker) *Handler {
	return &Handler{
		checker: checker,
		version: "unknown",
	}
}

// WithVersion sets the version for health check responses
func (h *Handler) WithVersion(version string) *Handler {
	h.version = version
	return h
}

// ServeHTTP handles health check requests. An unrecoverable authorization
// error or a failing credential store makes the agent unhealthy; a device
// that is merely unlinked is still healthy.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := Response{
		Status:  "healthy",
		Version: h.version,
		Details: make(map[string]any),
	}

	state, authErr := h.checker.AuthState()
	detail := map[string]any{
		"status": "healthy",
		"state":  state.String(),
		"error":  authErr.String(),
	}
	if err := h.checker.CheckHealth(r.Context()); err != nil {
		response.Status = "unhealthy"
		detail["status"] = "unhealthy"
		detail["message"] = err.Error()
	}
	response.Details["authorization"] = detail

	status := http.StatusOK
	if response.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	common.WriteJSON(w, status, response)
}
