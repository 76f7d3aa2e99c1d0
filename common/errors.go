package common

import (
	"errors"
	"fmt"
)

type GoDBErrorCode int

const (
	// DuplicateObjectError indicates an attempt to create a table that already
	// exists in the catalog.
	DuplicateObjectError GoDBErrorCode = iota
	// NoSuchObjectError indicates a request for a table or column that does
	// not exist in the catalog.
	NoSuchObjectError
	// ConfigurationError indicates an operator was set up with parameters it
	// cannot run under, e.g. a page budget too small to hold one partition.
	ConfigurationError
	// StorageError indicates the storage layer could not create, extend or
	// read an object.
	StorageError
	// EmptyIterationError is returned when a cursor is consumed while it has
	// no row pending.
	EmptyIterationError
	// UnsupportedOperationError is returned for mutations requested through a
	// read-only interface.
	UnsupportedOperationError
	// TypeMismatchError indicates values that do not fit the schema they are
	// written to.
	TypeMismatchError
)

func (ec GoDBErrorCode) String() string {
	switch ec {
	case DuplicateObjectError:
		return "DuplicateObjectError"
	case NoSuchObjectError:
		return "NoSuchObjectError"
	case ConfigurationError:
		return "ConfigurationError"
	case StorageError:
		return "StorageError"
	case EmptyIterationError:
		return "EmptyIterationError"
	case UnsupportedOperationError:
		return "UnsupportedOperationError"
	case TypeMismatchError:
		return "TypeMismatchError"
	}
	return "unknown"
}

// GoDBError is the custom error type for the engine.
// It wraps a specific GoDBErrorCode with a detailed message.
type GoDBError struct {
	Code      GoDBErrorCode
	ErrString string
}

func (e GoDBError) Error() string {
	return fmt.Sprintf("err: %s; msg: %s", e.Code.String(), e.ErrString)
}

// NewGoDBError builds a GoDBError with a formatted message.
func NewGoDBError(code GoDBErrorCode, format string, args ...any) GoDBError {
	return GoDBError{Code: code, ErrString: fmt.Sprintf(format, args...)}
}

// IsErrorCode reports whether err, or any error it wraps, is a GoDBError with the given code.
func IsErrorCode(err error, code GoDBErrorCode) bool {
	var gerr GoDBError
	if errors.As(err, &gerr) {
		return gerr.Code == code
	}
	return false
}
