package deviceflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wrale/cbl-authd/internal/clock"
	"github.com/wrale/cbl-authd/internal/config"
	"github.com/wrale/cbl-authd/internal/oauth"
	"github.com/wrale/cbl-authd/internal/retry"
)

const testTimeout = 2 * time.Second

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// scriptedTransport hands every request to the test and blocks until the
// test replies.
type scriptedTransport struct {
	requests chan *oauth.Request
	replies  chan transportReply
}

type transportReply struct {
	resp *oauth.Response
	err  error
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{
		requests: make(chan *oauth.Request),
		replies:  make(chan transportReply),
	}
}

func (s *scriptedTransport) Post(ctx context.Context, req *oauth.Request) (*oauth.Response, error) {
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-s.replies:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *scriptedTransport) next(t *testing.T) *oauth.Request {
	t.Helper()
	select {
	case req := <-s.requests:
		return req
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a request")
		return nil
	}
}

func (s *scriptedTransport) expectCodePair(t *testing.T) *oauth.Request {
	t.Helper()
	req := s.next(t)
	if req.Form.Get("response_type") != "device_code" {
		t.Fatalf("got request %s with grant %q, want code pair request", req.URL, req.Form.Get("grant_type"))
	}
	return req
}

func (s *scriptedTransport) expectGrant(t *testing.T, grantType string) *oauth.Request {
	t.Helper()
	req := s.next(t)
	if got := req.Form.Get("grant_type"); got != grantType {
		t.Fatalf("got request %s with grant %q, want %q", req.URL, got, grantType)
	}
	return req
}

func (s *scriptedTransport) reply(t *testing.T, r transportReply) {
	t.Helper()
	select {
	case s.replies <- r:
	case <-time.After(testTimeout):
		t.Fatal("timed out delivering a response")
	}
}

func (s *scriptedTransport) respond(t *testing.T, status int, body string) {
	t.Helper()
	s.reply(t, transportReply{resp: &oauth.Response{StatusCode: status, Body: []byte(body)}})
}

func (s *scriptedTransport) fail(t *testing.T, err error) {
	t.Helper()
	s.reply(t, transportReply{err: err})
}

// mockStore implements CredentialStore with injectable failures
type mockStore struct {
	mu        sync.Mutex
	token     string
	getErr    error
	setErr    error
	healthErr error
	clears    int
}

func (m *mockStore) RefreshToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.getErr
}

func (m *mockStore) SetRefreshToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.token = token
	return nil
}

func (m *mockStore) ClearRefreshToken(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.clears++
	return nil
}

func (m *mockStore) CheckHealth(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthErr
}

func (m *mockStore) stored() (string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.clears
}

type event struct {
	Kind     string
	Auth     AuthState
	Err      oauth.ErrorCode
	Flow     FlowState
	Reason   StopReason
	URI      string
	UserCode string
}

func authEvent(state AuthState, err oauth.ErrorCode) event {
	return event{Kind: "auth", Auth: state, Err: err}
}

func flowEvent(state FlowState, reason StopReason) event {
	return event{Kind: "flow", Flow: state, Reason: reason}
}

func codeEvent(uri, userCode string) event {
	return event{Kind: "code", URI: uri, UserCode: userCode}
}

// recorder is an Observer that queues every callback
type recorder struct {
	events chan event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan event, 256)}
}

func (r *recorder) OnAuthStateChange(state AuthState, err oauth.ErrorCode) {
	r.events <- authEvent(state, err)
}

func (r *recorder) OnFlowStateChange(state FlowState, reason StopReason) {
	r.events <- flowEvent(state, reason)
}

func (r *recorder) OnCodePairReceived(uri, userCode string) {
	r.events <- codeEvent(uri, userCode)
}

func (r *recorder) expect(t *testing.T, want ...event) {
	t.Helper()
	for i, w := range want {
		select {
		case got := <-r.events:
			if diff := cmp.Diff(w, got); diff != "" {
				t.Fatalf("event %d mismatch (-want +got):\n%s", i, diff)
			}
		case <-time.After(testTimeout):
			t.Fatalf("timed out waiting for event %d: %+v", i, w)
		}
	}
}

func (r *recorder) expectNone(t *testing.T) {
	t.Helper()
	select {
	case got := <-r.events:
		t.Fatalf("unexpected event %+v", got)
	default:
	}
}

type harnessOptions struct {
	stored          string
	codePairTimeout time.Duration
	retry           *retry.Policy
	configOptions   []config.Option
}

type harness struct {
	m         *StateMachine
	clock     *clock.FakeClock
	transport *scriptedTransport
	store     *mockStore
	rec       *recorder
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	if opts.codePairTimeout == 0 {
		opts.codePairTimeout = 15 * time.Minute
	}
	if opts.retry == nil {
		opts.retry = retry.New(retry.WithRand(rand.New(rand.NewSource(7))))
	}

	cfg, err := config.New(config.DeviceInfo{
		ClientID:           "amzn1.application-oa2-client.test",
		ProductID:          "kitchen_speaker",
		DeviceSerialNumber: "SN-42",
	}, opts.codePairTimeout, "https://lwa.test/auth/O2/", opts.configOptions...)
	if err != nil {
		t.Fatalf("config.New() error: %v", err)
	}

	h := &harness{
		clock:     clock.Fake(testEpoch),
		transport: newScriptedTransport(),
		store:     &mockStore{token: opts.stored},
		rec:       newRecorder(),
	}
	h.m, err = New(cfg, h.transport, h.store,
		WithClock(h.clock),
		WithRetryPolicy(opts.retry),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(h.m.Stop)

	if err := h.m.AddObserver(h.rec); err != nil {
		t.Fatalf("AddObserver() error: %v", err)
	}
	h.rec.expect(t, authEvent(Uninitialized, oauth.Success))
	return h
}

// waitForTimer blocks until the worker is sleeping on the clock.
func (h *harness) waitForTimer(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		h.clock.WaitForTimers(1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("worker never started waiting")
	}
}

// advanceToNextTimer fires the worker's pending timer and returns how far
// the clock moved.
func (h *harness) advanceToNextTimer(t *testing.T) time.Duration {
	t.Helper()
	h.waitForTimer(t)
	next, ok := h.clock.NextDeadline()
	if !ok {
		t.Fatal("no pending timer")
	}
	d := next.Sub(h.clock.Now())
	h.clock.Advance(d)
	return d
}

func (h *harness) waitStopped(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for h.m.Running() {
		if time.Now().After(deadline) {
			t.Fatal("worker did not exit")
		}
		time.Sleep(time.Millisecond)
	}
}

func codePairBody(userCode, deviceCode string, expiresIn int) string {
	return fmt.Sprintf(`{"user_code":%q,"device_code":%q,"verification_uri":"https://amazon.com/us/code","expires_in":%d,"interval":5}`,
		userCode, deviceCode, expiresIn)
}

func tokenBody(access, refresh string, expiresIn int) string {
	return fmt.Sprintf(`{"access_token":%q,"refresh_token":%q,"token_type":"bearer","expires_in":%d}`,
		access, refresh, expiresIn)
}

// linkDevice drives a fresh machine through the code pair and token steps
// up to the first refresh request, which it returns unanswered.
func (h *harness) linkDevice(t *testing.T) *oauth.Request {
	t.Helper()
	h.m.Start(false)
	h.rec.expect(t, flowEvent(Starting, StopReasonNone), flowEvent(RequestingCodePair, StopReasonNone))

	h.transport.expectCodePair(t)
	h.transport.respond(t, 200, codePairBody("ABC123", "dev-1", 600))
	h.rec.expect(t,
		codeEvent("https://amazon.com/us/code", "ABC123"),
		flowEvent(RequestingToken, StopReasonNone),
	)

	h.transport.expectGrant(t, "device_code")
	h.transport.respond(t, 200, tokenBody("Atza|device", "Atzr|device", 3600))
	h.rec.expect(t, flowEvent(RefreshingToken, StopReasonNone))

	return h.transport.expectGrant(t, "refresh_token")
}
