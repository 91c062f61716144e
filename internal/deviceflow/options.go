package deviceflow

import (
	"log/slog"

	"github.com/wrale/cbl-authd/internal/clock"
	"github.com/wrale/cbl-authd/internal/retry"
)

// Option configures the state machine
type Option func(*StateMachine)

// WithClock replaces the real clock, usually with clock.Fake in tests
func WithClock(c clock.Clock) Option {
	return func(m *StateMachine) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithRetryPolicy sets the backoff used after transient failures
func WithRetryPolicy(p *retry.Policy) Option {
	return func(m *StateMachine) {
		if p != nil {
			m.retry = p
		}
	}
}

// WithLogger sets the structured logger. Tokens are never logged.
func WithLogger(l *slog.Logger) Option {
	return func(m *StateMachine) {
		if l != nil {
			m.logger = l
		}
	}
}
