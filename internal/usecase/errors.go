package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorConfiguration  ErrorCode = "CONFIGURATION_ERROR"
	ErrorInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrorInvalidMessage ErrorCode = "INVALID_MESSAGE"
	ErrorUpstream       ErrorCode = "UPSTREAM_ERROR"
	ErrorRunIncomplete  ErrorCode = "RUN_INCOMPLETE"
	ErrorInternal       ErrorCode = "INTERNAL_ERROR"
)

const (
	msgConfiguration = "The story service is not configured correctly."
	msgUpstream      = "I'm sorry, I'm having trouble connecting right now. Please try again in a moment."
	msgInternal      = "Something went wrong. Please try again."
	msgFlagged       = "That message can't be used for a children's story. Could you try saying it another way?"
)

// Error is the only error type returned by StoryService. Message is safe to
// show to the end user; Err is for logs.
type Error struct {
	Code    ErrorCode
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UserMessage returns Message, falling back to the generic text for Code.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Code {
	case ErrorConfiguration:
		return msgConfiguration
	case ErrorUpstream:
		return msgUpstream
	case ErrorInvalidMessage:
		return msgFlagged
	default:
		return msgInternal
	}
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

func invalidInput(reason, message string) *Error {
	return &Error{Code: ErrorInvalidInput, Reason: reason, Message: message}
}

// misconfigured is implemented by integration errors that stem from missing
// or malformed deployment configuration.
type misconfigured interface {
	Misconfigured() bool
}

// gatewayError classifies an error returned by the assistant gateway.
func gatewayError(reason string, err error) *Error {
	var mc misconfigured
	if errors.As(err, &mc) && mc.Misconfigured() {
		return newError(ErrorConfiguration, "credentials_error", err)
	}
	return newError(ErrorUpstream, reason, err)
}
