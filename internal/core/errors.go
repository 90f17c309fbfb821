package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeMissingIdentity   = "missing_identity"
	ErrCodeAlreadyBound      = "already_bound"
	ErrCodeNotBound          = "not_bound"
	ErrCodeBadRequest        = "bad_request"
	ErrCodeSessionClosed     = "session_closed"
	ErrCodePersistenceFailed = "persistence_failed"
	ErrCodeUnavailable       = "unavailable"
)

var (
	ErrMissingIdentity = errors.New("missing user id")
	ErrAlreadyBound    = errors.New("session already bound to another user")
	ErrNotBound        = errors.New("session not bound")
	ErrBadRequest      = errors.New("bad request")
	ErrSessionClosed   = errors.New("session closed")
	ErrHubStopped      = errors.New("hub stopped")
)

// CoreError wraps a code, a human-readable message and the underlying cause.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

// ClientFault reports whether the error was caused by the client's input or session
// state rather than by infrastructure.
func (e *CoreError) ClientFault() bool {
	switch e.Code {
	case ErrCodeMissingIdentity, ErrCodeAlreadyBound, ErrCodeNotBound, ErrCodeBadRequest, ErrCodeSessionClosed:
		return true
	}
	return false
}

func coreError(code, msg string, cause error) *CoreError {
	return &CoreError{Code: code, Message: msg, Err: cause}
}

// ErrorCode extracts the CoreError code from err, or "" when err is not a CoreError.
func ErrorCode(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
