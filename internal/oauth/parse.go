package oauth

import (
	"encoding/json"
	"math"
	"time"

	"golang.org/x/oauth2"
)

// TokenTypeBearer is the only token type accepted from the server.
const TokenTypeBearer = "bearer"

const maxSeconds = math.MaxInt64 / int64(time.Second)

// ParseResponse interprets the status and body of resp. It returns the
// resulting ErrorCode and the decoded JSON object, which is nil when the
// body is not a JSON object.
//
// A malformed body turns an HTTP success into UnknownError; otherwise the
// HTTP-derived code stands. On failure, a non-empty string "error" field in
// the body overrides the HTTP-derived code.
func ParseResponse(resp *Response) (ErrorCode, map[string]json.RawMessage) {
	if resp == nil {
		return UnknownError, nil
	}

	result := ErrorFromStatus(resp.StatusCode)

	var body map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body, &body); err != nil || body == nil {
		if result == Success {
			result = UnknownError
		}
		return result, nil
	}

	if result != Success {
		if name := stringField(body, "error"); name != "" {
			result = ErrorFromName(name)
		}
	}
	return result, body
}

// ParseCodePair parses a code pair response. The result is UnknownError
// when a successful response lacks the user code, device code,
// verification URI or a positive integer expires_in.
func ParseCodePair(resp *Response) (*CodePair, ErrorCode) {
	result, body := ParseResponse(resp)
	if result != Success {
		return nil, result
	}

	pair := &CodePair{
		UserCode:        stringField(body, "user_code"),
		DeviceCode:      stringField(body, "device_code"),
		VerificationURI: stringField(body, "verification_uri"),
		ExpiresIn:       secondsField(body, "expires_in"),
		Interval:        secondsField(body, "interval"),
	}
	if pair.UserCode == "" || pair.DeviceCode == "" || pair.VerificationURI == "" || pair.ExpiresIn == 0 {
		return nil, UnknownError
	}
	return pair, Success
}

// ParseToken parses a token or refresh response. The result is
// UnknownError when a successful response lacks the access token, refresh
// token or a positive integer expires_in, or when token_type is not
// "bearer".
func ParseToken(resp *Response) (*TokenGrant, ErrorCode) {
	result, body := ParseResponse(resp)
	if result != Success {
		return nil, result
	}

	grant := &TokenGrant{
		AccessToken:  stringField(body, "access_token"),
		RefreshToken: stringField(body, "refresh_token"),
		TokenType:    stringField(body, "token_type"),
		ExpiresIn:    secondsField(body, "expires_in"),
	}
	if grant.AccessToken == "" || grant.RefreshToken == "" || grant.TokenType != TokenTypeBearer || grant.ExpiresIn == 0 {
		return nil, UnknownError
	}
	return grant, Success
}

// OAuth2Token converts the grant into an oauth2.Token that expires
// ExpiresIn after issuedAt. The refresh token is not copied.
func (g *TokenGrant) OAuth2Token(issuedAt time.Time) *oauth2.Token {
	return &oauth2.Token{
		AccessToken: g.AccessToken,
		TokenType:   g.TokenType,
		Expiry:      issuedAt.Add(g.ExpiresIn),
	}
}

func stringField(body map[string]json.RawMessage, key string) string {
	raw, ok := body[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// secondsField reads a non-negative integer number of seconds. Anything
// else reads as zero.
func secondsField(body map[string]json.RawMessage, key string) time.Duration {
	raw, ok := body[key]
	if !ok {
		return 0
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	if n > uint64(maxSeconds) {
		n = uint64(maxSeconds)
	}
	return time.Duration(n) * time.Second
}
