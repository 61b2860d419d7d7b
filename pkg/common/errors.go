package common

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when the required value is not found.
type NotFoundError struct {
	Message string
}

func (nf NotFoundError) Error() string {
	return nf.Message
}

// NewNotFoundError creates a new instance of NotFoundError with the given message.
func NewNotFoundError(message string) NotFoundError {
	return NotFoundError{
		Message: message,
	}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// CorruptionError is returned when persisted data fails to decode or references
// state that doesn't exist.
type CorruptionError struct {
	Message string
}

func (ce CorruptionError) Error() string {
	return fmt.Sprintf("corruption: %s", ce.Message)
}

// NewCorruptionError creates a new instance of CorruptionError with the given message.
func NewCorruptionError(message string) CorruptionError {
	return CorruptionError{
		Message: message,
	}
}

// IsCorruption returns true if the error is a CorruptionError.
func IsCorruption(err error) bool {
	var ce CorruptionError
	return errors.As(err, &ce)
}

// IncompleteError is returned when an operation could not be served without
// doing IO and the caller asked for no IO.
type IncompleteError struct {
	Message string
}

func (ie IncompleteError) Error() string {
	return ie.Message
}

// NewIncompleteError creates a new instance of IncompleteError with the given message.
func NewIncompleteError(message string) IncompleteError {
	return IncompleteError{
		Message: message,
	}
}

// IsIncomplete returns true if the error is an IncompleteError.
func IsIncomplete(err error) bool {
	var ie IncompleteError
	return errors.As(err, &ie)
}

// IOError wraps an error coming out of the file system.
type IOError struct {
	Message string
	Cause   error
}

func (ioe IOError) Error() string {
	if ioe.Cause != nil {
		return fmt.Sprintf("%s: %s", ioe.Message, ioe.Cause)
	}
	return ioe.Message
}

func (ioe IOError) Unwrap() error {
	return ioe.Cause
}

// NewIOError creates a new instance of IOError wrapping the given cause.
func NewIOError(message string, cause error) IOError {
	return IOError{
		Message: message,
		Cause:   cause,
	}
}

// IsIOError returns true if the error is an IOError.
func IsIOError(err error) bool {
	var ioe IOError
	return errors.As(err, &ioe)
}

// SpaceLimitError is returned when writing a file would exceed the configured
// space limit.
type SpaceLimitError struct {
	Message string
}

func (sl SpaceLimitError) Error() string {
	return sl.Message
}

// NewSpaceLimitError creates a new instance of SpaceLimitError with the given message.
func NewSpaceLimitError(message string) SpaceLimitError {
	return SpaceLimitError{
		Message: message,
	}
}

// IsSpaceLimit returns true if the error is a SpaceLimitError.
func IsSpaceLimit(err error) bool {
	var sl SpaceLimitError
	return errors.As(err, &sl)
}
