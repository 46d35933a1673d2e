package domain

import (
	"errors"
	"fmt"
)

// ErrorType classifies recommendation failures.
type ErrorType string

const (
	ErrorTypeInvalidInput        ErrorType = "invalid_input"
	ErrorTypeUpstreamUnavailable ErrorType = "upstream_unavailable"
	ErrorTypeEmptyIntermediate   ErrorType = "empty_intermediate"
	ErrorTypeConfig              ErrorType = "config"
)

// Error is a classified error with the pipeline stage it came from.
type Error struct {
	Type    ErrorType
	Stage   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	prefix := string(e.Type)
	if e.Stage != "" {
		prefix += "/" + e.Stage
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new classified error.
func NewError(errType ErrorType, message string, err error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// AtStage returns a copy of e tagged with stage.
func (e *Error) AtStage(stage string) *Error {
	cp := *e
	cp.Stage = stage
	return &cp
}

func InvalidInput(message string, err error) *Error {
	return NewError(ErrorTypeInvalidInput, message, err)
}

func UpstreamUnavailable(message string, err error) *Error {
	return NewError(ErrorTypeUpstreamUnavailable, message, err)
}

func EmptyIntermediate(message string) *Error {
	return NewError(ErrorTypeEmptyIntermediate, message, nil)
}

func ConfigError(message string, err error) *Error {
	return NewError(ErrorTypeConfig, message, err)
}

// IsType reports whether any error in err's chain is an *Error of type t.
func IsType(err error, t ErrorType) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Type == t
	}
	return false
}
