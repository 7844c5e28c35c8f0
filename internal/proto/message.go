package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	ProtocolVersion = 1

	ModeLogin    = "login"
	ModeRegister = "register"
)

// Error codes sent back in AuthResponse.Error.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeUsernameTaken      = "username_taken"
	CodeDuplicateUsername  = "duplicate_username"
	CodeInvalidUsername    = "invalid_username"
	CodeInvalidPassword    = "invalid_password"
	CodeBadRequest         = "bad_request"
	CodeTooManyAttempts    = "too_many_attempts"
	CodeInternal           = "internal"
)

// Username length bounds shared by registration and /nick.
const (
	MinUsernameLen = 3
	MaxUsernameLen = 32
)

// AuthRequest is the first line a client sends after connecting.
// It is JSON so usernames and secrets may contain any character.
type AuthRequest struct {
	Mode     string `json:"mode"`
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

// AuthResponse answers an AuthRequest.
type AuthResponse struct {
	OK       bool   `json:"ok"`
	Mode     string `json:"mode,omitempty"`
	User     string `json:"user,omitempty"`
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
	Error    *Error `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Msg
}

// ErrBadAuthRequest wraps every decoding failure of an AuthRequest.
var ErrBadAuthRequest = errors.New("malformed auth request")

// DecodeAuthRequest parses one auth line. Unknown fields and trailing data are rejected.
func DecodeAuthRequest(line string) (AuthRequest, error) {
	dec := json.NewDecoder(strings.NewReader(line))
	dec.DisallowUnknownFields()

	var req AuthRequest
	if err := dec.Decode(&req); err != nil {
		return AuthRequest{}, fmt.Errorf("%w: %v", ErrBadAuthRequest, err)
	}
	if dec.More() {
		return AuthRequest{}, fmt.Errorf("%w: trailing data", ErrBadAuthRequest)
	}
	switch req.Mode {
	case ModeLogin, ModeRegister:
	default:
		return AuthRequest{}, fmt.Errorf("%w: unknown mode %q", ErrBadAuthRequest, req.Mode)
	}
	return req, nil
}

// EncodeAuthRequest renders an auth request as a single line (no newline).
func EncodeAuthRequest(req AuthRequest) (string, error) {
	return encodeLine(req)
}

// EncodeAuthResponse renders a response as a single line (no newline).
func EncodeAuthResponse(resp AuthResponse) (string, error) {
	return encodeLine(resp)
}

// DecodeAuthResponse parses a response line.
func DecodeAuthResponse(line string) (AuthResponse, error) {
	var resp AuthResponse
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return AuthResponse{}, fmt.Errorf("decode auth response: %w", err)
	}
	return resp, nil
}

// NewAuthError builds a failed response.
func NewAuthError(code, msg string) AuthResponse {
	return AuthResponse{OK: false, Error: &Error{Code: code, Msg: msg}}
}

func encodeLine(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder escapes control characters, so the only newline is the trailing one.
	return strings.TrimRight(buf.String(), "\n"), nil
}

// ValidUsername reports whether name may be used as a username: 3-32 runes,
// printable, no whitespace.
func ValidUsername(name string) bool {
	n := 0
	for _, r := range name {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return false
		}
		n++
	}
	return n >= MinUsernameLen && n <= MaxUsernameLen
}
