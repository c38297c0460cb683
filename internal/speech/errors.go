package speech

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a hard failure. Callers switch on it; messages are for humans.
type ErrorCode string

const (
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
	CodeInvalidVoice       ErrorCode = "INVALID_VOICE"
	CodeDialogueEmpty      ErrorCode = "DIALOGUE_EMPTY"
	CodeTooManySpeakers    ErrorCode = "DIALOGUE_TOO_MANY_SPEAKERS"
	CodeTooManyCues        ErrorCode = "DIALOGUE_TOO_MANY_CUES"
	CodeBusy               ErrorCode = "BUSY"
	CodeRateLimited        ErrorCode = "RATE_LIMITED"
	CodeTimeout            ErrorCode = "TIMEOUT"
	CodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	CodeSynthesisFailed    ErrorCode = "SYNTHESIS_FAILED"
	CodeJobNotFound        ErrorCode = "JOB_NOT_FOUND"
)

// Error is a typed hard failure with a stable code.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so sentinel values work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the code of the outermost *Error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
