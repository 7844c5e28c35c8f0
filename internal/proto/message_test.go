package proto

import (
	"errors"
	"strings"
	"testing"
)

func TestAuthRequestSurvivesDelimiterCharacters(t *testing.T) {
	req := AuthRequest{
		Mode:     ModeRegister,
		Username: `a|b:c"d`,
		Secret:   "pass|word:with\nnewline and \"quotes\"",
	}

	line, err := EncodeAuthRequest(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.ContainsAny(line, "\r\n") {
		t.Fatalf("encoded request must be a single line: %q", line)
	}

	got, err := DecodeAuthRequest(line)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != req {
		t.Fatalf("decoded %+v, want %+v", got, req)
	}
}

func TestDecodeAuthRequestRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "legacy pipe format", line: "login|alice|pw1"},
		{name: "unknown mode", line: `{"mode":"guest","username":"alice","secret":"x"}`},
		{name: "missing mode", line: `{"username":"alice","secret":"x"}`},
		{name: "unknown field", line: `{"mode":"login","username":"alice","secret":"x","admin":true}`},
		{name: "trailing data", line: `{"mode":"login","username":"alice","secret":"x"} {}`},
		{name: "empty", line: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeAuthRequest(tt.line); !errors.Is(err, ErrBadAuthRequest) {
				t.Fatalf("expected ErrBadAuthRequest, got %v", err)
			}
		})
	}
}

func TestAuthResponseEncoding(t *testing.T) {
	line, err := EncodeAuthResponse(NewAuthError(CodeUsernameTaken, "username already taken"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	resp, err := DecodeAuthResponse(line)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OK || resp.Error == nil || resp.Error.Code != CodeUsernameTaken {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestValidUsername(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"alice", true},
		{"bob_42", true},
		{"üñï", true},
		{"ab", false},
		{"has space", false},
		{"ctrl\x07", false},
		{strings.Repeat("x", MaxUsernameLen), true},
		{strings.Repeat("x", MaxUsernameLen+1), false},
	}
	for _, tt := range tests {
		if got := ValidUsername(tt.name); got != tt.ok {
			t.Errorf("ValidUsername(%q) = %v, want %v", tt.name, got, tt.ok)
		}
	}
}
