package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/oauth2"

	"github.com/wrale/cbl-authd/internal/deviceflow"
	"github.com/wrale/cbl-authd/internal/oauth"
)

// consoleObserver tells the person at the terminal what to do.
type consoleObserver struct {
	mu  sync.Mutex
	out io.Writer

	// onLinked runs once, the first time a token is available
	onLinked func()
	linked   bool
}

var _ deviceflow.Observer = (*consoleObserver)(nil)

func newConsoleObserver(out io.Writer, onLinked func()) *consoleObserver {
	return &consoleObserver{out: out, onLinked: onLinked}
}

func (c *consoleObserver) OnAuthStateChange(state deviceflow.AuthState, err oauth.ErrorCode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch state {
	case deviceflow.Refreshed:
		if c.linked {
			return
		}
		c.linked = true
		fmt.Fprintln(c.out, "Device authorized.")
		if c.onLinked != nil {
			go c.onLinked()
		}
	case deviceflow.Expired:
		fmt.Fprintf(c.out, "Access token expired (%s), renewing.\n", err)
	case deviceflow.UnrecoverableError:
		fmt.Fprintf(c.out, "Authorization failed: %s\n", err)
	}
}

func (c *consoleObserver) OnFlowStateChange(state deviceflow.FlowState, reason deviceflow.StopReason) {
	if state != deviceflow.Stopping {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch reason {
	case deviceflow.StopReasonTimeout:
		fmt.Fprintln(c.out, "Could not reach the authorization server. Run again to retry.")
	case deviceflow.StopReasonCodePairExpired:
		fmt.Fprintln(c.out, "The code expired before it was entered. Run again for a new code.")
	}
}

func (c *consoleObserver) OnCodePairReceived(uri, userCode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "To link this device, visit %s and enter the code %s\n", uri, userCode)
}

// errTokenRejected means the profile endpoint refused the access token.
var errTokenRejected = errors.New("access token rejected")

// profile is the subset of the Login with Amazon profile we report.
type profile struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// fetchProfile reads the linked user's profile with a token from src.
func fetchProfile(ctx context.Context, src oauth2.TokenSource, profileURL string) (*profile, error) {
	client := oauth2.NewClient(ctx, src)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating profile request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, errTokenRejected
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching profile: unexpected status %d", resp.StatusCode)
	}

	var p profile
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	return &p, nil
}
