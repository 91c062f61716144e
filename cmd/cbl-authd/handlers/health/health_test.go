package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wrale/cbl-authd/internal/deviceflow"
	"github.com/wrale/cbl-authd/internal/oauth"
)

type mockChecker struct {
	state     deviceflow.AuthState
	authErr   oauth.ErrorCode
	healthErr error
}

func (m *mockChecker) CheckHealth(ctx context.Context) error {
	return m.healthErr
}

func (m *mockChecker) AuthState() (deviceflow.AuthState, oauth.ErrorCode) {
	return m.state, m.authErr
}

func TestHealthHandler(t *testing.T) {
	version := "1.0.0"

	tests := []struct {
		name     string
		checker  *mockChecker
		wantCode int
		wantBody Response
	}{
		{
			name:     "linked device",
			checker:  &mockChecker{state: deviceflow.Refreshed, authErr: oauth.Success},
			wantCode: http.StatusOK,
			wantBody: Response{
				Status:  "healthy",
				Version: version,
				Details: map[string]any{
					"authorization": map[string]any{
						"status": "healthy",
						"state":  "REFRESHED",
						"error":  "SUCCESS",
					},
				},
			},
		},
		{
			name:     "waiting for user is healthy",
			checker:  &mockChecker{state: deviceflow.Uninitialized, authErr: oauth.AuthorizationPending},
			wantCode: http.StatusOK,
			wantBody: Response{
				Status:  "healthy",
				Version: version,
				Details: map[string]any{
					"authorization": map[string]any{
						"status": "healthy",
						"state":  "UNINITIALIZED",
						"error":  "AUTHORIZATION_PENDING",
					},
				},
			},
		},
		{
			name: "unrecoverable error",
			checker: &mockChecker{
				state:     deviceflow.UnrecoverableError,
				authErr:   oauth.InvalidClientID,
				healthErr: errors.New("authorization failed: INVALID_CLIENT_ID"),
			},
			wantCode: http.StatusServiceUnavailable,
			wantBody: Response{
				Status:  "unhealthy",
				Version: version,
				Details: map[string]any{
					"authorization": map[string]any{
						"status":  "unhealthy",
						"state":   "UNRECOVERABLE_ERROR",
						"error":   "INVALID_CLIENT_ID",
						"message": "authorization failed: INVALID_CLIENT_ID",
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := New(tt.checker).WithVersion(version)

			req := httptest.NewRequest("GET", "/health", nil)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if got := w.Code; got != tt.wantCode {
				t.Errorf("Health handler status = %v, want %v", got, tt.wantCode)
			}
			if got := w.Header().Get("Cache-Control"); got != "no-store" {
				t.Errorf("Health handler Cache-Control = %v, want no-store", got)
			}
			if got := w.Header().Get("Content-Type"); got != "application/json" {
				t.Errorf("Health handler Content-Type = %v, want application/json", got)
			}

			var got Response
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if diff := cmp.Diff(tt.wantBody, got); diff != "" {
				t.Errorf("Health handler response mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHealthHandlerDefaultVersion(t *testing.T) {
	w := httptest.NewRecorder()
	New(&mockChecker{}).ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	var got Response
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.Version != "unknown" {
		t.Errorf("Version = %q, want unknown", got.Version)
	}
}
