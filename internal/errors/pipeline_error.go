// Package errors provides standardized error types for the escalation pipeline.
// Every stage reports failures as a PipelineError carrying the operation,
// the offending column and, where it applies, the 1-based data row.
package errors

import (
	"fmt"
)

// PipelineError represents standardized errors across all pipeline stages
type PipelineError struct {
	Op      string // Operation name (e.g., "schema.Resolve", "features.ParseDate")
	Column  string // Column name if applicable
	Row     int    // 1-based data row if applicable, 0 otherwise
	Message string // Human-readable error description
	Cause   error  // Underlying error cause
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	var msg string
	switch {
	case e.Column != "" && e.Row > 0:
		msg = fmt.Sprintf("%s failed on column '%s' row %d: %s", e.Op, e.Column, e.Row, e.Message)
	case e.Column != "":
		msg = fmt.Sprintf("%s failed on column '%s': %s", e.Op, e.Column, e.Message)
	default:
		msg = fmt.Sprintf("%s failed: %s", e.Op, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for error wrapping support
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is implements error equality checking for errors.Is(). Row is not compared so
// that a sentinel matches every occurrence of the same failure.
func (e *PipelineError) Is(target error) bool {
	if pe, ok := target.(*PipelineError); ok {
		return e.Op == pe.Op && e.Column == pe.Column && e.Message == pe.Message
	}
	return false
}

// NewColumnNotFoundError creates an error for lookups of non-existent columns
func NewColumnNotFoundError(op, column string) *PipelineError {
	return &PipelineError{
		Op:      op,
		Column:  column,
		Message: "column does not exist",
	}
}

// NewInvalidInputError creates an error for invalid operation inputs
func NewInvalidInputError(op, message string) *PipelineError {
	return &PipelineError{
		Op:      op,
		Message: message,
	}
}

// NewUnsupportedTypeError creates an error for unsupported data types
func NewUnsupportedTypeError(op, column, typeName string) *PipelineError {
	return &PipelineError{
		Op:      op,
		Column:  column,
		Message: fmt.Sprintf("unsupported type: %s", typeName),
	}
}

// NewValidationError creates an error for input validation failures
func NewValidationError(op, column, message string) *PipelineError {
	return &PipelineError{
		Op:      op,
		Column:  column,
		Message: message,
	}
}

// NewRowError creates an error pointing at a single data row
func NewRowError(op, column string, row int, message string) *PipelineError {
	return &PipelineError{
		Op:      op,
		Column:  column,
		Row:     row,
		Message: message,
	}
}

// NewSchemaError creates an error for schema resolution failures
func NewSchemaError(column, message string) *PipelineError {
	return &PipelineError{
		Op:      "schema.Resolve",
		Column:  column,
		Message: message,
	}
}

// NewInternalError creates an error for internal operation failures
func NewInternalError(op string, cause error) *PipelineError {
	return &PipelineError{
		Op:      op,
		Message: "internal error occurred",
		Cause:   cause,
	}
}

// Predefined error variables for common cases
var (
	// ErrEmptyDataset indicates a stage received no rows
	ErrEmptyDataset = &PipelineError{
		Op:      "validation",
		Message: "dataset has no rows",
	}

	// ErrMismatchedLength indicates length mismatches between features and labels
	ErrMismatchedLength = &PipelineError{
		Op:      "validation",
		Message: "arrays must have the same length",
	}

	// ErrSingleClass indicates the target holds only one class
	ErrSingleClass = &PipelineError{
		Op:      "validation",
		Message: "target must contain both classes",
	}

	// ErrNotFitted indicates use of a transformer or model before Fit
	ErrNotFitted = &PipelineError{
		Op:      "validation",
		Message: "component has not been fitted",
	}

	// ErrChecksumMismatch indicates a corrupted model artifact
	ErrChecksumMismatch = &PipelineError{
		Op:      "persist.Load",
		Message: "artifact checksum mismatch",
	}
)
