// Package errors provides error handling for the collector.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints for operators
//
// Usage:
//
//	// Wrap with context
//	if err := store.Write(key, status, payload); err != nil {
//	    return errors.Wrapf(err, "persist %s report", key.Phase)
//	}
//
//	// Add hints for users
//	return errors.WithHint(err, "clear the recorded error with: collector reset <project> <phase>")
//
//	// Check errors
//	if errors.Is(err, errors.ErrDependencyUnmet) {
//	    // predecessor phase has not succeeded
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Sentinel errors for the pipeline error taxonomy.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrTimeout indicates an external command exceeded its deadline
	ErrTimeout = New("operation timed out")

	// ErrDependencyUnmet indicates the predecessor phase has no SUCCESS report.
	// Nothing was run and nothing was written.
	ErrDependencyUnmet = New("dependency unmet")

	// ErrCommandFailed indicates an external command concluded with a non-zero exit
	ErrCommandFailed = New("command failed")

	// ErrConfigurationMissing indicates an optional configuration value or
	// metadata field was absent; callers proceed with a default.
	ErrConfigurationMissing = New("configuration missing")

	// ErrToolAcquisitionFailed indicates a required tool could not be placed in
	// the tool cache. Batch setup cannot proceed.
	ErrToolAcquisitionFailed = New("tool acquisition failed")

	// ErrMalformedReport indicates a report file exists but its status line
	// is not a known keyword
	ErrMalformedReport = New("malformed report")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsDependencyUnmet checks if an error is or wraps ErrDependencyUnmet
func IsDependencyUnmet(err error) bool {
	return err != nil && Is(err, ErrDependencyUnmet)
}

// IsToolAcquisitionFailed checks if an error is or wraps ErrToolAcquisitionFailed
func IsToolAcquisitionFailed(err error) bool {
	return err != nil && Is(err, ErrToolAcquisitionFailed)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
