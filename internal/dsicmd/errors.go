package dsicmd

import (
	"errors"
	"fmt"
)

// Error is a panel session failure with a stable code.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Error codes
const (
	ErrCodeResourceUnavailable = "RESOURCE_UNAVAILABLE"
	ErrCodeAlreadyInTransition = "ALREADY_IN_TRANSITION"
	ErrCodeHardwareTimeout     = "HARDWARE_TIMEOUT"
	ErrCodePipeAlloc           = "PIPE_ALLOC_FAILED"
	ErrCodeNotBound            = "NOT_BOUND"
	ErrCodePanelOff            = "PANEL_OFF"
	ErrCodeInvalidConfig       = "INVALID_CONFIG"
)

// NewError creates a new session error
func NewError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsCode reports whether err is a session error carrying code.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
