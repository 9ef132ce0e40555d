// Package features cleans raw complaint columns and derives the ratio, log
// and calendar features the models train on.
//
// Engineer is a pure row-wise transformation: the same input frame always
// yields the same output frame. Denominators are shifted by one and negative
// inputs are clamped to zero, so every derived ratio that is present is
// finite and non-negative. A missing input propagates as a missing output and
// is left for the imputers.
package features

import (
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/escalation/internal/dataframe"
	"github.com/paveg/escalation/internal/errors"
	"github.com/paveg/escalation/internal/schema"
	"github.com/paveg/escalation/internal/series"
)

// Derived column names
const (
	EscalationResolutionRatio    = "escalation_resolution_ratio"
	SatisfactionPerLength        = "satisfaction_per_length"
	LogEscalationResolutionRatio = "log_escalation_resolution_ratio"
	LogSatisfactionPerLength     = "log_satisfaction_per_length"
	LogComplaintLength           = "log_complaint_length"
	ComplaintDayOfWeek           = "complaint_day_of_week"
	ComplaintMonth               = "complaint_month"
	ComplaintIsWeekend           = "complaint_is_weekend"
)

// Options lists the columns Engineer cleans. Dates is fixed at fit time and
// gates the calendar features; a complaint_date column is ignored without it.
type Options struct {
	Categorical []string
	Numeric     []string
	Dates       bool
}

// OptionsFor returns Options matching a schema
func OptionsFor(s schema.Schema) Options {
	return Options{Categorical: s.Categorical, Numeric: s.Numeric}
}

// WithDates enables calendar features when df carries a complaint_date column
func (o Options) WithDates(df *dataframe.DataFrame) Options {
	o.Dates = df.HasColumn(schema.ComplaintDate)
	return o
}

// Result holds the engineered frame and the names of the derived numeric
// columns, in the order they were appended.
type Result struct {
	Frame   *dataframe.DataFrame
	Derived []string
}

// Engineer normalises categorical columns, coerces numeric columns to
// float64 and appends derived features. Every listed column must exist, and
// so must complaint_date when opts.Dates is set.
func Engineer(df *dataframe.DataFrame, opts Options, mem memory.Allocator) (*Result, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}

	var replaced []dataframe.ISeries
	release := func() {
		for _, s := range replaced {
			s.Release()
		}
	}

	for _, name := range opts.Categorical {
		s, err := normalizedCategory(df, name, mem)
		if err != nil {
			release()
			return nil, err
		}
		replaced = append(replaced, s)
	}

	numeric := make(map[string][]float64, len(opts.Numeric))
	for _, name := range opts.Numeric {
		values, err := df.Float64s(name)
		if err != nil {
			release()
			return nil, fmt.Errorf("features.Engineer: %w", err)
		}
		numeric[name] = values
		s, err := floatSeries(name, values, mem)
		if err != nil {
			release()
			return nil, err
		}
		replaced = append(replaced, s)
	}

	derived, names, err := derive(df, opts, numeric, mem)
	if err != nil {
		release()
		return nil, err
	}
	replaced = append(replaced, derived...)

	out, err := df.WithColumns(replaced...)
	if err != nil {
		release()
		return nil, err
	}
	return &Result{Frame: out, Derived: names}, nil
}

func normalizedCategory(df *dataframe.DataFrame, name string, mem memory.Allocator) (dataframe.ISeries, error) {
	values, valid, err := df.Strings(name)
	if err != nil {
		return nil, fmt.Errorf("features.Engineer: %w", err)
	}
	out := make([]string, len(values))
	outValid := make([]bool, len(values))
	for i, v := range values {
		if !valid[i] {
			continue
		}
		out[i], outValid[i] = NormalizeCategory(v)
	}
	return series.NewWithValidity(name, out, outValid, mem)
}

func derive(df *dataframe.DataFrame, opts Options, numeric map[string][]float64, mem memory.Allocator) ([]dataframe.ISeries, []string, error) {
	column := func(name string) ([]float64, error) {
		if v, ok := numeric[name]; ok {
			return v, nil
		}
		return df.Float64s(name)
	}

	var out []dataframe.ISeries
	var names []string
	add := func(name string, values []float64) error {
		s, err := floatSeries(name, values, mem)
		if err != nil {
			return err
		}
		out = append(out, s)
		names = append(names, name)
		return nil
	}
	fail := func(err error) ([]dataframe.ISeries, []string, error) {
		for _, s := range out {
			s.Release()
		}
		return nil, nil, fmt.Errorf("features.Engineer: %w", err)
	}

	history, err := column(schema.EscalationHistory)
	if err != nil {
		return fail(err)
	}
	resolution, err := column(schema.ResolutionTime)
	if err != nil {
		return fail(err)
	}
	satisfaction, err := column(schema.SatisfactionScore)
	if err != nil {
		return fail(err)
	}
	length, err := column(schema.ComplaintLength)
	if err != nil {
		return fail(err)
	}

	ratio := ShiftedRatio(history, resolution)
	perLength := ShiftedRatio(satisfaction, length)
	for _, step := range []struct {
		name   string
		values []float64
	}{
		{EscalationResolutionRatio, ratio},
		{SatisfactionPerLength, perLength},
		{LogEscalationResolutionRatio, Log1p(ratio)},
		{LogSatisfactionPerLength, Log1p(perLength)},
		{LogComplaintLength, Log1p(length)},
	} {
		if err := add(step.name, step.values); err != nil {
			return fail(err)
		}
	}

	if opts.Dates {
		if !df.HasColumn(schema.ComplaintDate) {
			return fail(errors.NewColumnNotFoundError("features.Engineer", schema.ComplaintDate))
		}
		dow, month, weekend, err := dateParts(df)
		if err != nil {
			return fail(err)
		}
		for _, step := range []struct {
			name   string
			values []float64
		}{
			{ComplaintDayOfWeek, dow},
			{ComplaintMonth, month},
			{ComplaintIsWeekend, weekend},
		} {
			if err := add(step.name, step.values); err != nil {
				return fail(err)
			}
		}
	}

	return out, names, nil
}

// ShiftedRatio computes num / (den + 1) with negative inputs clamped to 0.
// NaN in either input yields NaN.
func ShiftedRatio(num, den []float64) []float64 {
	out := make([]float64, len(num))
	for i := range num {
		if math.IsNaN(num[i]) || math.IsNaN(den[i]) {
			out[i] = math.NaN()
			continue
		}
		out[i] = clamp(num[i]) / (clamp(den[i]) + 1)
	}
	return out
}

// Log1p applies log(1+x) with negatives clamped to 0; NaN passes through.
func Log1p(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = v
			continue
		}
		out[i] = math.Log1p(clamp(v))
	}
	return out
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func dateParts(df *dataframe.DataFrame) (dow, month, weekend []float64, err error) {
	values, valid, err := df.Strings(schema.ComplaintDate)
	if err != nil {
		return nil, nil, nil, err
	}
	n := len(values)
	dow, month, weekend = make([]float64, n), make([]float64, n), make([]float64, n)
	for i, raw := range values {
		if !valid[i] || raw == "" {
			dow[i], month[i], weekend[i] = math.NaN(), math.NaN(), math.NaN()
			continue
		}
		t, ok := ParseDate(raw)
		if !ok {
			return nil, nil, nil, errors.NewRowError("features.ParseDate", schema.ComplaintDate, i+1,
				fmt.Sprintf("unparsable date %q", raw))
		}
		d := DayOfWeek(t)
		dow[i] = float64(d)
		month[i] = float64(t.Month())
		if d >= 5 {
			weekend[i] = 1
		}
	}
	return dow, month, weekend, nil
}

func floatSeries(name string, values []float64, mem memory.Allocator) (dataframe.ISeries, error) {
	valid := make([]bool, len(values))
	clean := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		clean[i] = v
		valid[i] = true
	}
	return series.NewWithValidity(name, clean, valid, mem)
}
