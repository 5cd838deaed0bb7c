// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-mq.

package api

import (
	"errors"
	"fmt"
)

// Control-flow signals. These are expected outcomes, not failures.
var (
	ErrWouldBlock = errors.New("operation would block")
	ErrTimedOut   = errors.New("operation timed out")
)

// Common errors used across the library.
var (
	ErrClosed            = errors.New("resource is closed")
	ErrTerminated        = errors.New("context is terminated")
	ErrProtocolViolation = errors.New("messaging pattern protocol violation")
	ErrFrameTooLarge     = errors.New("frame exceeds maximum size")
	ErrTerminateTimeout  = errors.New("linger expired before queued messages were flushed")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotSupported      = errors.New("operation not supported")
	ErrAlreadyExists     = errors.New("resource already exists")
	ErrNotFound          = errors.New("resource not found")
	ErrReactorFailed     = errors.New("reactor failed")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeResourceExhausted
	ErrCodeTimeout
	ErrCodeNotSupported
	ErrCodeAlreadyExists
	ErrCodeNotFound
	ErrCodeConnection
	ErrCodeProtocol
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Unwrap exposes the sentinel the error was built from, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WrapError creates a structured error that matches cause with errors.Is.
func WrapError(code ErrorCode, cause error, message string) *Error {
	e := NewError(code, message)
	e.cause = cause
	return e
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ConnectionError is a transient, peer-level failure. It never affects other
// peers of the same socket.
type ConnectionError struct {
	Endpoint string
	PeerID   string
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.PeerID != "" {
		return fmt.Sprintf("connection %s (peer %s): %v", e.Endpoint, e.PeerID, e.Err)
	}
	return fmt.Sprintf("connection %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// FrameError reports a frame whose declared length exceeds the configured limit.
type FrameError struct {
	Declared uint64
	Limit    uint64
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame length %d exceeds limit %d", e.Declared, e.Limit)
}

func (e *FrameError) Is(target error) bool {
	return target == ErrFrameTooLarge
}

// IsTransient reports whether err is a control-flow signal the caller is
// expected to retry (WouldBlock, TimedOut).
func IsTransient(err error) bool {
	return errors.Is(err, ErrWouldBlock) || errors.Is(err, ErrTimedOut)
}
