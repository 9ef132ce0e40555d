// Package dataframe provides the ordered, column-typed table that carries
// complaint records through ingestion, feature derivation and splitting.
package dataframe

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/escalation/internal/errors"
	"github.com/paveg/escalation/internal/series"
	"golang.org/x/exp/constraints"
)

// DataFrame represents a table of data with typed columns
type DataFrame struct {
	columns map[string]ISeries
	order   []string // Maintains column order
}

// New creates a new DataFrame from a slice of ISeries. The DataFrame takes
// ownership of the series; later series replace earlier ones of the same name.
func New(series ...ISeries) *DataFrame {
	columns := make(map[string]ISeries)
	order := make([]string, 0, len(series))

	for _, s := range series {
		name := s.Name()
		if old, exists := columns[name]; exists {
			old.Release()
		} else {
			order = append(order, name)
		}
		columns[name] = s
	}

	return &DataFrame{
		columns: columns,
		order:   order,
	}
}

// Columns returns the names of all columns in order
func (df *DataFrame) Columns() []string {
	return append([]string{}, df.order...)
}

// Len returns the number of rows (assumes all columns have same length)
func (df *DataFrame) Len() int {
	if len(df.order) == 0 {
		return 0
	}
	return df.columns[df.order[0]].Len()
}

// Width returns the number of columns
func (df *DataFrame) Width() int {
	return len(df.columns)
}

// Column returns the series for the given column name
func (df *DataFrame) Column(name string) (ISeries, bool) {
	s, exists := df.columns[name]
	return s, exists
}

// HasColumn checks if a column exists
func (df *DataFrame) HasColumn(name string) bool {
	_, exists := df.columns[name]
	return exists
}

// Select returns a new DataFrame with only the specified columns.
// Unknown names are skipped.
func (df *DataFrame) Select(names ...string) *DataFrame {
	selected := make([]ISeries, 0, len(names))
	for _, name := range names {
		if s, exists := df.columns[name]; exists {
			s.Retain()
			selected = append(selected, s)
		}
	}
	return New(selected...)
}

// Drop returns a new DataFrame without the specified columns
func (df *DataFrame) Drop(names ...string) *DataFrame {
	dropSet := make(map[string]bool, len(names))
	for _, name := range names {
		dropSet[name] = true
	}

	kept := make([]ISeries, 0, len(df.order))
	for _, name := range df.order {
		if !dropSet[name] {
			s := df.columns[name]
			s.Retain()
			kept = append(kept, s)
		}
	}
	return New(kept...)
}

// WithColumns returns a new DataFrame with the given series appended, or
// replacing existing columns of the same name in place. Ownership of the
// added series passes to the returned DataFrame.
func (df *DataFrame) WithColumns(added ...ISeries) (*DataFrame, error) {
	rows := df.Len()
	for _, s := range added {
		if df.Width() > 0 && s.Len() != rows {
			return nil, errors.NewValidationError("WithColumns", s.Name(),
				fmt.Sprintf("expected %d rows, got %d", rows, s.Len()))
		}
	}

	replace := make(map[string]ISeries, len(added))
	for _, s := range added {
		replace[s.Name()] = s
	}

	out := make([]ISeries, 0, len(df.order)+len(added))
	for _, name := range df.order {
		if s, ok := replace[name]; ok {
			out = append(out, s)
			delete(replace, name)
			continue
		}
		s := df.columns[name]
		s.Retain()
		out = append(out, s)
	}
	for _, s := range added {
		if _, pending := replace[s.Name()]; pending {
			out = append(out, s)
		}
	}
	return New(out...), nil
}

// Rename returns a new DataFrame whose columns are renamed per mapping.
// Columns absent from mapping keep their names.
func (df *DataFrame) Rename(mapping map[string]string) (*DataFrame, error) {
	renamed := make([]ISeries, 0, len(df.order))
	for _, name := range df.order {
		s := df.columns[name]
		target, ok := mapping[name]
		if !ok || target == name {
			s.Retain()
			renamed = append(renamed, s)
			continue
		}
		r, err := renameSeries(s, target)
		if err != nil {
			for _, done := range renamed {
				done.Release()
			}
			return nil, err
		}
		renamed = append(renamed, r)
	}
	return New(renamed...), nil
}

func renameSeries(s ISeries, name string) (ISeries, error) {
	switch typed := s.(type) {
	case *series.Series[string]:
		return typed.Rename(name), nil
	case *series.Series[int64]:
		return typed.Rename(name), nil
	case *series.Series[float64]:
		return typed.Rename(name), nil
	case *series.Series[bool]:
		return typed.Rename(name), nil
	default:
		return nil, errors.NewUnsupportedTypeError("Rename", s.Name(), fmt.Sprintf("%T", s))
	}
}

// Take returns a new DataFrame holding the rows at indices, in that order.
// Nulls are preserved.
func (df *DataFrame) Take(indices []int) (*DataFrame, error) {
	rows := df.Len()
	for _, idx := range indices {
		if idx < 0 || idx >= rows {
			return nil, errors.NewValidationError("Take", "", fmt.Sprintf("row index %d out of range [0,%d)", idx, rows))
		}
	}

	mem := memory.NewGoAllocator()
	taken := make([]ISeries, 0, len(df.order))
	for _, name := range df.order {
		s, err := takeSeries(df.columns[name], indices, mem)
		if err != nil {
			for _, done := range taken {
				done.Release()
			}
			return nil, err
		}
		taken = append(taken, s)
	}
	return New(taken...), nil
}

func takeSeries(s ISeries, indices []int, mem memory.Allocator) (ISeries, error) {
	arr := s.Array()
	defer arr.Release()

	valid := make([]bool, len(indices))
	for i, idx := range indices {
		valid[i] = arr.IsValid(idx)
	}

	switch typed := arr.(type) {
	case *array.String:
		return series.NewWithValidity(s.Name(), gather(indices, typed.Value), valid, mem)
	case *array.Int64:
		return series.NewWithValidity(s.Name(), gather(indices, typed.Value), valid, mem)
	case *array.Float64:
		return series.NewWithValidity(s.Name(), gather(indices, typed.Value), valid, mem)
	case *array.Boolean:
		return series.NewWithValidity(s.Name(), gather(indices, typed.Value), valid, mem)
	default:
		return nil, errors.NewUnsupportedTypeError("Take", s.Name(), arr.DataType().String())
	}
}

func gather[T any](indices []int, value func(int) T) []T {
	out := make([]T, len(indices))
	for i, idx := range indices {
		out[i] = value(idx)
	}
	return out
}

// Float64s returns a numeric view of the column with NaN for nulls.
// Integer and boolean columns are widened; string columns are parsed and a
// cell that is not a number fails with its 1-based row.
func (df *DataFrame) Float64s(name string) ([]float64, error) {
	s, exists := df.columns[name]
	if !exists {
		return nil, errors.NewColumnNotFoundError("Float64s", name)
	}
	arr := s.Array()
	defer arr.Release()

	switch typed := arr.(type) {
	case *array.Float64:
		return widen(typed.Float64Values(), typed), nil
	case *array.Int64:
		return widen(typed.Int64Values(), typed), nil
	case *array.Boolean:
		out := make([]float64, typed.Len())
		for i := range out {
			switch {
			case typed.IsNull(i):
				out[i] = math.NaN()
			case typed.Value(i):
				out[i] = 1
			}
		}
		return out, nil
	case *array.String:
		out := make([]float64, typed.Len())
		for i := range out {
			raw := strings.TrimSpace(typed.Value(i))
			if typed.IsNull(i) || raw == "" {
				out[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, errors.NewRowError("Float64s", name, i+1, fmt.Sprintf("%q is not numeric", raw))
			}
			out[i] = v
		}
		return out, nil
	default:
		return nil, errors.NewUnsupportedTypeError("Float64s", name, arr.DataType().String())
	}
}

func widen[T constraints.Integer | constraints.Float](values []T, nulls arrow.Array) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if nulls.IsNull(i) {
			out[i] = math.NaN()
			continue
		}
		out[i] = float64(v)
	}
	return out
}

// Strings returns the column rendered as text together with its validity.
func (df *DataFrame) Strings(name string) ([]string, []bool, error) {
	s, exists := df.columns[name]
	if !exists {
		return nil, nil, errors.NewColumnNotFoundError("Strings", name)
	}
	values := make([]string, s.Len())
	valid := make([]bool, s.Len())
	for i := range values {
		valid[i] = !s.IsNull(i)
		values[i] = s.GetAsString(i)
	}
	return values, valid, nil
}

// String returns a string representation of the DataFrame
func (df *DataFrame) String() string {
	if len(df.columns) == 0 {
		return "DataFrame[empty]"
	}

	parts := []string{fmt.Sprintf("DataFrame[%dx%d]", df.Len(), df.Width())}
	for _, name := range df.order {
		parts = append(parts, fmt.Sprintf("  %s: %s", name, df.columns[name].DataType().String()))
	}
	return strings.Join(parts, "\n")
}

// Release frees the memory used by the DataFrame
func (df *DataFrame) Release() {
	for _, s := range df.columns {
		s.Release()
	}
}
