package protocol

import "fmt"

// ErrorCode identifies a machine-readable rejection reason.
type ErrorCode string

const (
	CodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	CodeSessionExpired       ErrorCode = "SESSION_EXPIRED"
	CodeDuplicate            ErrorCode = "DUPLICATE"
	CodeRateLimited          ErrorCode = "RATE_LIMITED"
	CodeChecksumMismatch     ErrorCode = "CHECKSUM_MISMATCH"
	CodeTimestampSkew        ErrorCode = "TIMESTAMP_SKEW"
	CodeBatchTooLarge        ErrorCode = "BATCH_TOO_LARGE"
	CodeMalformed            ErrorCode = "MALFORMED"
	CodeActorLimit           ErrorCode = "ACTOR_LIMIT"
	CodeUnsupportedVersion   ErrorCode = "UNSUPPORTED_VERSION"
	CodeUnknownType          ErrorCode = "UNKNOWN_TYPE"
)

// Error is the structured rejection returned for every invalid message. It
// never closes the connection by itself; unrecoverable authentication
// failures are escalated by the session gate.
type Error struct {
	Code          ErrorCode      `json:"code"`
	Message       string         `json:"message"`
	Context       map[string]any `json:"context,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds a structured error for the given code.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithContext attaches a context field, allocating the map lazily.
func (e *Error) WithContext(key string, value any) *Error {
	if e == nil {
		return nil
	}
	if e.Context == nil {
		e.Context = make(map[string]any, 1)
	}
	e.Context[key] = value
	return e
}

// WithCorrelation tags the error with the envelope sequence it rejects.
func (e *Error) WithCorrelation(id string) *Error {
	if e == nil {
		return nil
	}
	e.CorrelationID = id
	return e
}

// Fatal reports whether the error should close the connection. Only
// authentication and session failures qualify.
func (e *Error) Fatal() bool {
	if e == nil {
		return false
	}
	switch e.Code {
	case CodeAuthenticationFailed, CodeSessionExpired:
		return true
	}
	return false
}
