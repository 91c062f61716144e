package oauth

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name   string
		resp   *Response
		want   ErrorCode
		object bool
	}{
		{name: "nil response", resp: nil, want: UnknownError},
		{name: "no status", resp: &Response{}, want: UnknownError},
		{name: "ok with object", resp: &Response{StatusCode: 200, Body: []byte(`{}`)}, want: Success, object: true},
		{name: "ok with garbage", resp: &Response{StatusCode: 200, Body: []byte(`not json`)}, want: UnknownError},
		{name: "ok with array", resp: &Response{StatusCode: 200, Body: []byte(`[1,2]`)}, want: UnknownError},
		{name: "ok with null", resp: &Response{StatusCode: 200, Body: []byte(`null`)}, want: UnknownError},
		{name: "bad request without body", resp: &Response{StatusCode: 400}, want: InvalidRequest},
		{name: "server error with garbage", resp: &Response{StatusCode: 503, Body: []byte(`<html>`)}, want: ServerError},
		{name: "teapot", resp: &Response{StatusCode: 418, Body: []byte(`{}`)}, want: UnknownError, object: true},
		{name: "pending", resp: &Response{StatusCode: 400, Body: []byte(`{"error":"authorization_pending"}`)}, want: AuthorizationPending, object: true},
		{name: "slow down", resp: &Response{StatusCode: 400, Body: []byte(`{"error":"slow_down"}`)}, want: SlowDown, object: true},
		{name: "invalid grant", resp: &Response{StatusCode: 400, Body: []byte(`{"error":"invalid_grant"}`)}, want: AuthorizationExpired, object: true},
		{name: "invalid client", resp: &Response{StatusCode: 401, Body: []byte(`{"error":"invalid_client"}`)}, want: InvalidValue, object: true},
		{name: "invalid value name", resp: &Response{StatusCode: 400, Body: []byte(`{"error":"InvalidValue"}`)}, want: InvalidValue, object: true},
		{name: "server error name", resp: &Response{StatusCode: 500, Body: []byte(`{"error":"servererror"}`)}, want: ServerError, object: true},
		{name: "unknown name", resp: &Response{StatusCode: 400, Body: []byte(`{"error":"flux_capacitor"}`)}, want: UnknownError, object: true},
		{name: "empty name keeps status", resp: &Response{StatusCode: 400, Body: []byte(`{"error":""}`)}, want: InvalidRequest, object: true},
		{name: "non-string name keeps status", resp: &Response{StatusCode: 400, Body: []byte(`{"error":42}`)}, want: InvalidRequest, object: true},
		{name: "error field ignored on success", resp: &Response{StatusCode: 200, Body: []byte(`{"error":"slow_down"}`)}, want: Success, object: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, body := ParseResponse(tt.resp)
			if got != tt.want {
				t.Errorf("ParseResponse() = %v, want %v", got, tt.want)
			}
			if (body != nil) != tt.object {
				t.Errorf("ParseResponse() body present = %v, want %v", body != nil, tt.object)
			}
		})
	}
}

func TestParseCodePair(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		want     *CodePair
		wantCode ErrorCode
	}{
		{
			name:   "complete",
			status: 200,
			body:   `{"user_code":"ABC123","device_code":"dev-1","verification_uri":"https://amazon.com/us/code","expires_in":600,"interval":5}`,
			want: &CodePair{
				UserCode:        "ABC123",
				DeviceCode:      "dev-1",
				VerificationURI: "https://amazon.com/us/code",
				ExpiresIn:       600 * time.Second,
				Interval:        5 * time.Second,
			},
			wantCode: Success,
		},
		{
			name:     "interval optional",
			status:   200,
			body:     `{"user_code":"A","device_code":"d","verification_uri":"u","expires_in":30}`,
			want:     &CodePair{UserCode: "A", DeviceCode: "d", VerificationURI: "u", ExpiresIn: 30 * time.Second},
			wantCode: Success,
		},
		{name: "missing user code", status: 200, body: `{"device_code":"d","verification_uri":"u","expires_in":30}`, wantCode: UnknownError},
		{name: "empty device code", status: 200, body: `{"user_code":"A","device_code":"","verification_uri":"u","expires_in":30}`, wantCode: UnknownError},
		{name: "missing uri", status: 200, body: `{"user_code":"A","device_code":"d","expires_in":30}`, wantCode: UnknownError},
		{name: "string expiry", status: 200, body: `{"user_code":"A","device_code":"d","verification_uri":"u","expires_in":"30"}`, wantCode: UnknownError},
		{name: "negative expiry", status: 200, body: `{"user_code":"A","device_code":"d","verification_uri":"u","expires_in":-5}`, wantCode: UnknownError},
		{name: "zero expiry", status: 200, body: `{"user_code":"A","device_code":"d","verification_uri":"u","expires_in":0}`, wantCode: UnknownError},
		{name: "server error", status: 500, body: `{"error":"servererror"}`, wantCode: ServerError},
		{name: "unauthorized client", status: 400, body: `{"error":"unauthorized_client"}`, wantCode: UnauthorizedClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, code := ParseCodePair(&Response{StatusCode: tt.status, Body: []byte(tt.body)})
			if code != tt.wantCode {
				t.Errorf("ParseCodePair() code = %v, want %v", code, tt.wantCode)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseCodePair() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseToken(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		want     *TokenGrant
		wantCode ErrorCode
	}{
		{
			name:     "complete",
			status:   200,
			body:     `{"access_token":"Atza|a","refresh_token":"Atzr|r","token_type":"bearer","expires_in":3600}`,
			want:     &TokenGrant{AccessToken: "Atza|a", RefreshToken: "Atzr|r", TokenType: "bearer", ExpiresIn: time.Hour},
			wantCode: Success,
		},
		{name: "zero lifetime", status: 200, body: `{"access_token":"a","refresh_token":"r","token_type":"bearer","expires_in":0}`, wantCode: UnknownError},
		{name: "fractional lifetime", status: 200, body: `{"access_token":"a","refresh_token":"r","token_type":"bearer","expires_in":1.5}`, wantCode: UnknownError},
		{name: "wrong token type", status: 200, body: `{"access_token":"a","refresh_token":"r","token_type":"mac","expires_in":60}`, wantCode: UnknownError},
		{name: "capitalized token type", status: 200, body: `{"access_token":"a","refresh_token":"r","token_type":"Bearer","expires_in":60}`, wantCode: UnknownError},
		{name: "missing refresh token", status: 200, body: `{"access_token":"a","token_type":"bearer","expires_in":60}`, wantCode: UnknownError},
		{name: "missing access token", status: 200, body: `{"refresh_token":"r","token_type":"bearer","expires_in":60}`, wantCode: UnknownError},
		{name: "pending", status: 400, body: `{"error":"authorization_pending"}`, wantCode: AuthorizationPending},
		{name: "expired code", status: 400, body: `{"error":"invalid_code_pair"}`, wantCode: InvalidCodePair},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, code := ParseToken(&Response{StatusCode: tt.status, Body: []byte(tt.body)})
			if code != tt.wantCode {
				t.Errorf("ParseToken() code = %v, want %v", code, tt.wantCode)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseToken() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTokenGrantOAuth2Token(t *testing.T) {
	issued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	grant := &TokenGrant{AccessToken: "a", RefreshToken: "r", TokenType: "bearer", ExpiresIn: time.Hour}

	tok := grant.OAuth2Token(issued)
	if tok.AccessToken != "a" || tok.TokenType != "bearer" {
		t.Errorf("OAuth2Token() = %+v", tok)
	}
	if tok.RefreshToken != "" {
		t.Error("OAuth2Token() must not expose the refresh token")
	}
	if want := issued.Add(time.Hour); !tok.Expiry.Equal(want) {
		t.Errorf("Expiry = %v, want %v", tok.Expiry, want)
	}
}

func TestErrorCodeClass(t *testing.T) {
	tests := map[ErrorCode]Class{
		Success:              ClassSuccess,
		AuthorizationPending: ClassTransient,
		SlowDown:             ClassTransient,
		ServerError:          ClassTransient,
		UnknownError:         ClassTransient,
		AuthorizationExpired: ClassRestart,
		InvalidCodePair:      ClassRestart,
		UnauthorizedClient:   ClassFatal,
		InvalidRequest:       ClassFatal,
		InvalidValue:         ClassFatal,
		UnsupportedGrantType: ClassFatal,
		InternalError:        ClassFatal,
		InvalidClientID:      ClassFatal,
	}
	for code, want := range tests {
		if got := code.Class(); got != want {
			t.Errorf("%v.Class() = %v, want %v", code, got, want)
		}
	}
}

func TestErrorCodeString(t *testing.T) {
	if got := InvalidClientID.String(); got != "INVALID_CLIENT_ID" {
		t.Errorf("String() = %q", got)
	}
	if got := ErrorCode(99).String(); got != "UNKNOWN_ERROR" {
		t.Errorf("String() of out-of-range code = %q", got)
	}
	text, err := SlowDown.MarshalText()
	if err != nil || string(text) != "SLOW_DOWN" {
		t.Errorf("MarshalText() = %q, %v", text, err)
	}
}

func TestErrorFromStatus(t *testing.T) {
	tests := map[int]ErrorCode{
		0:   UnknownError,
		200: Success,
		204: UnknownError,
		400: InvalidRequest,
		401: UnknownError,
		500: ServerError,
		599: ServerError,
		600: UnknownError,
	}
	for status, want := range tests {
		if got := ErrorFromStatus(status); got != want {
			t.Errorf("ErrorFromStatus(%d) = %v, want %v", status, got, want)
		}
	}
}
