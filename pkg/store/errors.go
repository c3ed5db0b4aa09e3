// Package store holds the error taxonomy shared by the metadata store and the
// journal.
//
// Both subsystems report business logic failures (duplicate creation, missing
// records, corrupt sectors, exhausted capacity) as *StoreError values carrying
// an ErrorCode. Callers above this layer translate the codes into their own
// operation failures (e.g. "cannot create VDI").
package store

import (
	"errors"
	"fmt"
)

// ErrorCode represents the category of a store error.
type ErrorCode int

const (
	// ErrAlreadyExists indicates a duplicate create: the SR already carries
	// metadata, or a journal entry is already present for (type, id).
	ErrAlreadyExists ErrorCode = iota

	// ErrNotFound indicates a missing journal entry, VDI uuid or slot.
	ErrNotFound

	// ErrCorrupt indicates an unparsable header or record.
	ErrCorrupt

	// ErrIO indicates a read or write at a specific offset failed.
	ErrIO

	// ErrNoSpace indicates the backing volume cannot hold the requested records.
	ErrNoSpace

	// ErrInvalidArgument indicates invalid parameters were provided.
	// Examples: empty journal type, separator inside an id, negative count.
	ErrInvalidArgument
)

// String returns the name of the error code.
func (c ErrorCode) String() string {
	switch c {
	case ErrAlreadyExists:
		return "AlreadyExists"
	case ErrNotFound:
		return "NotFound"
	case ErrCorrupt:
		return "Corrupt"
	case ErrIO:
		return "IOFailure"
	case ErrNoSpace:
		return "SpaceExhausted"
	case ErrInvalidArgument:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}

// Error lets a bare ErrorCode be used as an errors.Is target:
//
//	if errors.Is(err, store.ErrNotFound) { ... }
func (c ErrorCode) Error() string {
	return c.String()
}

// StoreError represents a domain error from metadata store or journal
// operations.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Offset is the byte offset the failure relates to, or -1 if none.
	// Only meaningful for ErrIO and ErrCorrupt.
	Offset int64

	// Err is the lower-level cause, if any
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := e.Message
	if e.Offset >= 0 {
		msg = fmt.Sprintf("%s at offset %d", msg, e.Offset)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the lower-level cause.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the same error category.
//
// Both ErrorCode values and other *StoreError values are accepted as targets.
func (e *StoreError) Is(target error) bool {
	switch t := target.(type) {
	case ErrorCode:
		return e.Code == t
	case *StoreError:
		return e.Code == t.Code
	}
	return false
}

// NewError creates a StoreError without an offset.
func NewError(code ErrorCode, format string, args ...any) *StoreError {
	return &StoreError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Offset:  -1,
	}
}

// WrapIO wraps a low-level I/O failure with the offset it happened at.
func WrapIO(err error, offset int64, format string, args ...any) *StoreError {
	return &StoreError{
		Code:    ErrIO,
		Message: fmt.Sprintf(format, args...),
		Offset:  offset,
		Err:     err,
	}
}

// Wrap attaches a code and message to a lower-level error.
func Wrap(err error, code ErrorCode, format string, args ...any) *StoreError {
	return &StoreError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Offset:  -1,
		Err:     err,
	}
}

// CodeOf extracts the ErrorCode from err.
//
// Returns false if err does not wrap a *StoreError.
func CodeOf(err error) (ErrorCode, bool) {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}
