package utils

import (
	"errors"
	"strings"
)

// ChatError is the project-wide error type. Sentinels are declared per package
// with NewChatError and decorated at the call site with WithDetails or Wrap;
// errors.Is matches a decorated error against its sentinel.
type ChatError struct {
	msg     string
	details string
	cause   error
}

func NewChatError(msg string) *ChatError {
	return &ChatError{msg: msg}
}

func (e *ChatError) Error() string {
	var b strings.Builder
	b.WriteString(e.msg)
	if e.details != "" {
		b.WriteString(": ")
		b.WriteString(e.details)
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// WithDetails returns a copy of e carrying extra context.
func (e *ChatError) WithDetails(details string) *ChatError {
	return &ChatError{msg: e.msg, details: details, cause: e.cause}
}

// Wrap returns a copy of e with cause attached, reachable through errors.Unwrap.
func (e *ChatError) Wrap(cause error) *ChatError {
	return &ChatError{msg: e.msg, details: e.details, cause: cause}
}

func (e *ChatError) Unwrap() error {
	return e.cause
}

func (e *ChatError) Is(target error) bool {
	t, ok := target.(*ChatError)
	if !ok {
		return false
	}
	return t.msg == e.msg
}

var (
	ErrValidation = NewChatError("validation failed")
	ErrTheme      = NewChatError("theme error")
)

func ValidationError(details string) error {
	return ErrValidation.WithDetails(details)
}

func ThemeError(details string) error {
	return ErrTheme.WithDetails(details)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}
