// Package validation provides reusable input validators for frames, feature
// matrices and label vectors.
package validation

import (
	"fmt"

	"github.com/paveg/escalation/internal/errors"
)

// Validator interface for input validation
type Validator interface {
	Validate() error
}

// ValidatorFunc adapts a function to Validator
type ValidatorFunc func() error

// Validate implements Validator
func (f ValidatorFunc) Validate() error { return f() }

// ColumnProvider interface for types that provide column information
type ColumnProvider interface {
	HasColumn(name string) bool
	Columns() []string
	Len() int
	Width() int
}

// ColumnValidator validates column existence
type ColumnValidator struct {
	df      ColumnProvider
	columns []string
	op      string
}

// NewColumnValidator creates a validator for column lookups
func NewColumnValidator(df ColumnProvider, op string, columns ...string) *ColumnValidator {
	return &ColumnValidator{
		df:      df,
		columns: columns,
		op:      op,
	}
}

// Validate checks if all columns exist in the frame
func (v *ColumnValidator) Validate() error {
	for _, column := range v.columns {
		if !v.df.HasColumn(column) {
			return errors.NewColumnNotFoundError(v.op, column)
		}
	}
	return nil
}

// LengthValidator validates length consistency
type LengthValidator struct {
	expected int
	actual   int
	op       string
	context  string
}

// NewLengthValidator creates a validator for length consistency
func NewLengthValidator(expected, actual int, op, context string) *LengthValidator {
	return &LengthValidator{
		expected: expected,
		actual:   actual,
		op:       op,
		context:  context,
	}
}

// Validate checks if lengths match. The error wraps ErrMismatchedLength.
func (v *LengthValidator) Validate() error {
	if v.expected != v.actual {
		return &errors.PipelineError{
			Op:      v.op,
			Message: fmt.Sprintf("%s: expected length %d, got %d", v.context, v.expected, v.actual),
			Cause:   errors.ErrMismatchedLength,
		}
	}
	return nil
}

// MatrixValidator checks that a feature matrix is non-empty and rectangular
type MatrixValidator struct {
	X  [][]float64
	op string
}

// NewMatrixValidator creates a validator for feature matrices
func NewMatrixValidator(X [][]float64, op string) *MatrixValidator {
	return &MatrixValidator{X: X, op: op}
}

// Validate returns ErrEmptyDataset for zero rows and an invalid input error
// for zero-width or ragged rows
func (v *MatrixValidator) Validate() error {
	if len(v.X) == 0 {
		return errors.ErrEmptyDataset
	}
	p := len(v.X[0])
	if p == 0 {
		return errors.NewInvalidInputError(v.op, "rows have no features")
	}
	for i, row := range v.X {
		if len(row) != p {
			return errors.NewInvalidInputError(v.op, fmt.Sprintf("row %d has %d features, expected %d", i, len(row), p))
		}
	}
	return nil
}

// LabelValidator checks that labels are 0/1 and, when both are required,
// that each class occurs
type LabelValidator struct {
	y           []int
	op          string
	bothClasses bool
}

// NewLabelValidator creates a validator for binary labels
func NewLabelValidator(y []int, op string, bothClasses bool) *LabelValidator {
	return &LabelValidator{y: y, op: op, bothClasses: bothClasses}
}

// Validate checks the labels. A single-class vector wraps ErrSingleClass.
func (v *LabelValidator) Validate() error {
	var pos int
	for i, label := range v.y {
		switch label {
		case 0:
		case 1:
			pos++
		default:
			return errors.NewInvalidInputError(v.op, fmt.Sprintf("label %d at row %d is not 0 or 1", label, i))
		}
	}
	if v.bothClasses && (pos == 0 || pos == len(v.y)) {
		return &errors.PipelineError{
			Op:      v.op,
			Message: fmt.Sprintf("%d of %d labels are positive", pos, len(v.y)),
			Cause:   errors.ErrSingleClass,
		}
	}
	return nil
}

// EmptyValidator rejects frames without rows
type EmptyValidator struct {
	df ColumnProvider
	op string
}

// NewEmptyValidator creates a validator for empty frame checks
func NewEmptyValidator(df ColumnProvider, op string) *EmptyValidator {
	return &EmptyValidator{
		df: df,
		op: op,
	}
}

// Validate checks if the frame has rows
func (v *EmptyValidator) Validate() error {
	if v.df.Len() == 0 {
		return &errors.PipelineError{
			Op:      v.op,
			Message: "frame has no rows",
			Cause:   errors.ErrEmptyDataset,
		}
	}
	return nil
}

// CompoundValidator combines multiple validators
type CompoundValidator struct {
	validators []Validator
}

// NewCompoundValidator creates a validator that checks multiple conditions
func NewCompoundValidator(validators ...Validator) *CompoundValidator {
	return &CompoundValidator{
		validators: validators,
	}
}

// Validate runs all validators and returns the first error encountered
func (v *CompoundValidator) Validate() error {
	for _, validator := range v.validators {
		if err := validator.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Convenience validation functions

// ValidateColumns is a convenience function for column validation
func ValidateColumns(df ColumnProvider, op string, columns ...string) error {
	return NewColumnValidator(df, op, columns...).Validate()
}

// ValidateLength is a convenience function for length validation
func ValidateLength(expected, actual int, op, context string) error {
	return NewLengthValidator(expected, actual, op, context).Validate()
}

// ValidateNotEmpty is a convenience function for empty frame validation
func ValidateNotEmpty(df ColumnProvider, op string) error {
	return NewEmptyValidator(df, op).Validate()
}

// ValidateTraining checks a feature matrix and its labels before fitting
// and returns the feature count
func ValidateTraining(X [][]float64, y []int, op string) (int, error) {
	err := NewCompoundValidator(
		NewMatrixValidator(X, op),
		NewLengthValidator(len(X), len(y), op, "labels"),
		NewLabelValidator(y, op, true),
	).Validate()
	if err != nil {
		return 0, err
	}
	return len(X[0]), nil
}
