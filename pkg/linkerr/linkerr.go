// Unified error handling for the uartlink host
//
// Copyright (C) 2026  uartlink developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package linkerr

import "fmt"

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Configuration errors
	ErrConfigFile       ErrorCode = "CONFIG_FILE"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Startup / runtime errors
	ErrLinkInit  ErrorCode = "LINK_INIT"
	ErrLinkQueue ErrorCode = "LINK_QUEUE"
	ErrLinkIO    ErrorCode = "LINK_IO"
)

// LinkError is the unified error type for the uartlink host.
type LinkError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Option is the config option name (if applicable)
	Option string

	// Err wraps the underlying error
	Err error
}

// Error implements the error interface
func (e *LinkError) Error() string {
	if e.Option != "" {
		return fmt.Sprintf("[%s:%s] %s", e.Code, e.Option, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *LinkError) Unwrap() error {
	return e.Err
}

// SetOption sets the config option
func (e *LinkError) SetOption(option string) *LinkError {
	e.Option = option
	return e
}

// New creates a new LinkError
func New(code ErrorCode, message string) *LinkError {
	return &LinkError{Code: code, Message: message}
}

// Wrap wraps an existing error with a category and context message
func Wrap(err error, code ErrorCode, message string) *LinkError {
	return &LinkError{Code: code, Message: message, Err: err}
}

// NewConfigFileError creates an error for an unreadable or malformed config file
func NewConfigFileError(path string, err error) *LinkError {
	return Wrap(err, ErrConfigFile, fmt.Sprintf("config file '%s'", path))
}

// NewConfigOptionError creates an error for an invalid config option
func NewConfigOptionError(option, reason string) *LinkError {
	return New(ErrConfigValidation, reason).SetOption(option)
}

// NewInitError creates an error for a startup resource failure.
// These are fatal: the pipeline cannot run without its core channels.
func NewInitError(message string, err error) *LinkError {
	return Wrap(err, ErrLinkInit, message)
}

// NewQueueError creates an error for a queue operation failure
func NewQueueError(operation, reason string) *LinkError {
	return New(ErrLinkQueue, fmt.Sprintf("queue %s failed: %s", operation, reason))
}

// IsCode reports whether err is a LinkError with the given code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		if le, ok := err.(*LinkError); ok {
			return le.Code == code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
