package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeDuplicateUsername = "duplicate_username"
	ErrCodeNameTaken         = "name_taken"
	ErrCodeInvalidUsername   = "invalid_username"
	ErrCodeWrongSecret       = "wrong_secret"
	ErrCodeInvalidName       = "invalid_name"
	ErrCodeNotMember         = "not_member"
	ErrCodeUserNotFound      = "user_not_found"
	ErrCodeSessionNotFound   = "session_not_found"
	ErrCodeInvalidStatus     = "invalid_status"
)

// Registry and channel errors. They are comparable with errors.Is.
var (
	ErrDuplicateUsername = coreError(ErrCodeDuplicateUsername, "username is already online")
	ErrNameTaken         = coreError(ErrCodeNameTaken, "username is already taken")
	ErrInvalidUsername   = coreError(ErrCodeInvalidUsername, "invalid username")
	ErrWrongSecret       = coreError(ErrCodeWrongSecret, "wrong channel secret")
	ErrInvalidName       = coreError(ErrCodeInvalidName, "invalid channel name")
	ErrNotMember         = coreError(ErrCodeNotMember, "not in a channel")
	ErrUserNotFound      = coreError(ErrCodeUserNotFound, "user not found")
	ErrSessionNotFound   = coreError(ErrCodeSessionNotFound, "session not found")
	ErrInvalidStatus     = coreError(ErrCodeInvalidStatus, "invalid status")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// Code extracts the CoreError code from err, or "" if err is not a CoreError.
func Code(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
