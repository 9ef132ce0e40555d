package features_test

import (
	stderrors "errors"
	"math"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/escalation/internal/dataframe"
	"github.com/paveg/escalation/internal/errors"
	"github.com/paveg/escalation/internal/features"
	"github.com/paveg/escalation/internal/schema"
	"github.com/paveg/escalation/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawFrame(t *testing.T, dates []string) *dataframe.DataFrame {
	t.Helper()
	mem := memory.NewGoAllocator()
	str := func(name string, values []string, valid []bool) dataframe.ISeries {
		s, err := series.NewWithValidity(name, values, valid, mem)
		require.NoError(t, err)
		return s
	}
	num := func(name string, values []float64, valid []bool) dataframe.ISeries {
		s, err := series.NewWithValidity(name, values, valid, mem)
		require.NoError(t, err)
		return s
	}

	cols := []dataframe.ISeries{
		str(schema.AccountType, []string{"  Premium ", "Basic", ""}, []bool{true, true, true}),
		str(schema.Channel, []string{"Phone\t Call", "Ｅｍａｉｌ", "Chat"}, []bool{true, true, false}),
		str(schema.ComplaintReason, []string{"Billing", "Billing", "Service"}, nil),
		str(schema.LineOfBusiness, []string{"Retail", "Retail", "Commercial"}, nil),
		num(schema.ComplaintLength, []float64{99, 0, 10}, nil),
		num(schema.PriorComplaints, []float64{1, 2, 3}, nil),
		num(schema.ResolutionTime, []float64{3, -5, 0}, []bool{true, true, false}),
		num(schema.SatisfactionScore, []float64{4, 2, 5}, nil),
		num(schema.EscalationHistory, []float64{2, 4, 1}, nil),
		num(schema.CustomerAge, []float64{30, 40, 50}, nil),
	}
	if dates != nil {
		cols = append(cols, str(schema.ComplaintDate, dates, nil))
	}
	return dataframe.New(cols...)
}

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		valid bool
	}{
		{"  Premium ", "Premium", true},
		{"Phone\t  Call", "Phone Call", true},
		{"Ｅｍａｉｌ", "Email", true},
		{"   ", "", false},
	}
	for _, tt := range tests {
		got, ok := features.NormalizeCategory(tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.valid, ok)
	}
}

func TestEngineer(t *testing.T) {
	df := rawFrame(t, nil)
	defer df.Release()

	res, err := features.Engineer(df, features.OptionsFor(schema.Default()), nil)
	require.NoError(t, err)
	defer res.Frame.Release()

	assert.Equal(t, []string{
		features.EscalationResolutionRatio,
		features.SatisfactionPerLength,
		features.LogEscalationResolutionRatio,
		features.LogSatisfactionPerLength,
		features.LogComplaintLength,
	}, res.Derived)

	accounts, valid, err := res.Frame.Strings(schema.AccountType)
	require.NoError(t, err)
	assert.Equal(t, "Premium", accounts[0])
	assert.False(t, valid[2])

	channels, _, err := res.Frame.Strings(schema.Channel)
	require.NoError(t, err)
	assert.Equal(t, []string{"Phone Call", "Email", ""}, channels)

	ratio, err := res.Frame.Float64s(features.EscalationResolutionRatio)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, ratio[0], 1e-12)
	assert.InDelta(t, 4.0, ratio[1], 1e-12) // negative resolution time clamps to 0
	assert.True(t, math.IsNaN(ratio[2]))

	perLength, err := res.Frame.Float64s(features.SatisfactionPerLength)
	require.NoError(t, err)
	assert.InDelta(t, 0.04, perLength[0], 1e-12)
	assert.InDelta(t, 2.0, perLength[1], 1e-12)

	logLength, err := res.Frame.Float64s(features.LogComplaintLength)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(100), logLength[0], 1e-12)

	for _, name := range res.Derived {
		values, err := res.Frame.Float64s(name)
		require.NoError(t, err)
		for _, v := range values {
			if !math.IsNaN(v) {
				assert.False(t, math.IsInf(v, 0), name)
				assert.GreaterOrEqual(t, v, 0.0, name)
			}
		}
	}
}

func TestEngineerDeterministic(t *testing.T) {
	df := rawFrame(t, []string{"2024-03-16", "2024-03-18", ""})
	defer df.Release()
	opts := features.OptionsFor(schema.Default()).WithDates(df)
	require.True(t, opts.Dates)

	first, err := features.Engineer(df, opts, nil)
	require.NoError(t, err)
	defer first.Frame.Release()
	second, err := features.Engineer(df, opts, nil)
	require.NoError(t, err)
	defer second.Frame.Release()

	assert.Equal(t, first.Derived, second.Derived)
	assert.Equal(t, first.Frame.Columns(), second.Frame.Columns())
	for _, name := range first.Derived {
		a, _ := first.Frame.Float64s(name)
		b, _ := second.Frame.Float64s(name)
		assert.Equal(t, len(a), len(b))
		for i := range a {
			if math.IsNaN(a[i]) {
				assert.True(t, math.IsNaN(b[i]))
				continue
			}
			assert.Equal(t, a[i], b[i])
		}
	}

	again, err := features.Engineer(first.Frame, opts, nil)
	require.NoError(t, err)
	defer again.Frame.Release()
	assert.Equal(t, first.Frame.Columns(), again.Frame.Columns())
}

func TestEngineerDates(t *testing.T) {
	// 2024-03-16 is a Saturday; 45369 is the Excel serial for 2024-03-18 (Monday)
	df := rawFrame(t, []string{"2024-03-16", "45369", ""})
	defer df.Release()

	res, err := features.Engineer(df, features.OptionsFor(schema.Default()).WithDates(df), nil)
	require.NoError(t, err)
	defer res.Frame.Release()

	assert.Contains(t, res.Derived, features.ComplaintDayOfWeek)

	dow, _ := res.Frame.Float64s(features.ComplaintDayOfWeek)
	month, _ := res.Frame.Float64s(features.ComplaintMonth)
	weekend, _ := res.Frame.Float64s(features.ComplaintIsWeekend)
	assert.Equal(t, 5.0, dow[0])
	assert.Equal(t, 0.0, dow[1])
	assert.Equal(t, 3.0, month[1])
	assert.Equal(t, 1.0, weekend[0])
	assert.Equal(t, 0.0, weekend[1])
	assert.True(t, math.IsNaN(dow[2]))
}

func TestEngineerIgnoresDatesWhenDisabled(t *testing.T) {
	df := rawFrame(t, []string{"2024-03-16", "not a date", "??"})
	defer df.Release()

	opts := features.OptionsFor(schema.Default())
	require.False(t, opts.Dates)
	res, err := features.Engineer(df, opts, nil)
	require.NoError(t, err)
	defer res.Frame.Release()

	assert.NotContains(t, res.Derived, features.ComplaintDayOfWeek)
	assert.NotContains(t, res.Derived, features.ComplaintMonth)
	assert.NotContains(t, res.Derived, features.ComplaintIsWeekend)
	assert.Len(t, res.Derived, 5)
}

func TestEngineerErrors(t *testing.T) {
	t.Run("bad date", func(t *testing.T) {
		df := rawFrame(t, []string{"2024-03-16", "not a date", ""})
		defer df.Release()
		_, err := features.Engineer(df, features.OptionsFor(schema.Default()).WithDates(df), nil)
		require.Error(t, err)
		var pe *errors.PipelineError
		require.True(t, stderrors.As(err, &pe))
		assert.Equal(t, "features.ParseDate", pe.Op)
		assert.Equal(t, 2, pe.Row)
	})

	t.Run("dates enabled without a date column", func(t *testing.T) {
		df := rawFrame(t, nil)
		defer df.Release()
		opts := features.OptionsFor(schema.Default())
		opts.Dates = true
		_, err := features.Engineer(df, opts, nil)
		require.Error(t, err)
		var pe *errors.PipelineError
		require.True(t, stderrors.As(err, &pe))
		assert.Equal(t, schema.ComplaintDate, pe.Column)
	})

	t.Run("missing column", func(t *testing.T) {
		df := rawFrame(t, nil)
		defer df.Release()
		opts := features.OptionsFor(schema.Default())
		opts.Numeric = append(opts.Numeric, "tenure_months")
		_, err := features.Engineer(df, opts, nil)
		require.Error(t, err)
	})
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2024-01-15", "2024-01-15 00:00:00", "2024-01-15T00:00:00Z", "01/15/2024", "15.01.2024", "45306"} {
		got, ok := features.ParseDate(raw)
		require.True(t, ok, raw)
		assert.True(t, want.Equal(got), raw)
	}
	_, ok := features.ParseDate("yesterday")
	assert.False(t, ok)
	assert.Equal(t, 0, features.DayOfWeek(want))
}
