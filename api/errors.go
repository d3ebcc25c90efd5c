// File: api/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Unified error and status codes for the hioload-archive public API.

package api

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the archive packages.
var (
	// ErrArchiveClosed is returned by control operations after Close.
	ErrArchiveClosed = errors.New("archive is closed")

	// ErrClientClosed is returned by control operations on a closed client.
	ErrClientClosed = errors.New("control client is closed")
)

// ErrorCode classifies a control protocol failure.
type ErrorCode int32

const (
	ErrCodeGeneric ErrorCode = iota
	ErrCodeInvalidChannel
	ErrCodeRecordingActive
	ErrCodeRecordingUnknown
	ErrCodeReplayRange
	ErrCodeStorage
)

// String returns the symbolic name of the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeGeneric:
		return "GENERIC"
	case ErrCodeInvalidChannel:
		return "INVALID_CHANNEL"
	case ErrCodeRecordingActive:
		return "RECORDING_ACTIVE"
	case ErrCodeRecordingUnknown:
		return "RECORDING_UNKNOWN"
	case ErrCodeReplayRange:
		return "REPLAY_RANGE"
	case ErrCodeStorage:
		return "STORAGE"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int32(c))
	}
}

// Error is a structured archive error carrying a protocol error code.
type Error struct {
	Code    ErrorCode
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("archive error [%s]: %s", e.Code, e.Message)
}

// NewError constructs an Error with the given code and formatted message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
