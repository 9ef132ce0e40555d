package preprocess_test

import (
	stderrors "errors"
	"math"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/escalation/internal/dataframe"
	"github.com/paveg/escalation/internal/errors"
	"github.com/paveg/escalation/internal/preprocess"
	"github.com/paveg/escalation/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedian(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"odd", []float64{3, 1, 2}, 2},
		{"even", []float64{4, 1, 3, 2}, 2.5},
		{"ignores NaN", []float64{nan, 10, nan, 20, 30}, 20},
		{"all missing", []float64{nan, nan}, 0},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, preprocess.Median(tt.values))
		})
	}
}

func TestNumericImputerAndScaler(t *testing.T) {
	nan := math.NaN()
	imputer := &preprocess.NumericImputer{}
	_, err := imputer.Transform([][]float64{{1}})
	require.ErrorIs(t, err, errors.ErrNotFitted)

	imputer.Fit([][]float64{{1, nan, 3}, {5, 5, 5}})
	filled, err := imputer.Transform([][]float64{{nan, 2, nan}, {nan, 1, 9}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2, 2, 2}, {5, 1, 9}}, filled)

	scaler := &preprocess.StandardScaler{}
	scaler.Fit([][]float64{{1, 2, 3}, {5, 5, 5}})
	assert.InDelta(t, 2.0, scaler.Means[0], 1e-12)
	assert.InDelta(t, math.Sqrt(2.0/3.0), scaler.Scales[0], 1e-12)
	assert.Equal(t, 1.0, scaler.Scales[1])

	scaled, err := scaler.Transform([][]float64{{2, 3}, {5, 6}})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, scaled[0][0], 1e-12)
	assert.InDelta(t, 1/math.Sqrt(2.0/3.0), scaled[0][1], 1e-12)
	assert.Equal(t, []float64{0, 1}, scaled[1])

	_, err = scaler.Transform([][]float64{{1}})
	require.Error(t, err)
}

func TestCategoricalImputer(t *testing.T) {
	_, err := preprocess.NewCategoricalImputer("median")
	require.Error(t, err)

	constant, err := preprocess.NewCategoricalImputer("")
	require.NoError(t, err)
	constant.Fit([][]string{{"a", ""}})
	out, err := constant.Transform([][]string{{"", "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"missing", "b"}, out[0])

	frequent, err := preprocess.NewCategoricalImputer(preprocess.StrategyMostFrequent)
	require.NoError(t, err)
	frequent.Fit([][]string{{"b", "a", "b", "a", ""}, {"", ""}})
	assert.Equal(t, []string{"a", "missing"}, frequent.Fill)
}

func TestOneHotEncoder(t *testing.T) {
	enc := &preprocess.OneHotEncoder{}
	enc.Fit([]string{"channel"}, [][]string{{"Phone", "Chat", "Email", "Chat"}})

	assert.Equal(t, []string{"channel=Chat", "channel=Email", "channel=Phone"}, enc.FeatureNames())
	out, err := enc.Transform([][]string{{"Email", "Fax"}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 0}, {1, 0}, {0, 0}}, out)

	dropped := &preprocess.OneHotEncoder{DropFirst: true}
	dropped.Fit([]string{"channel"}, [][]string{{"Phone", "Chat", "Email"}})
	assert.Equal(t, []string{"channel=Email", "channel=Phone"}, dropped.FeatureNames())
	assert.Equal(t, 2, dropped.Width())
}

func TestColumnTransformer(t *testing.T) {
	mem := memory.NewGoAllocator()
	channel, err := series.NewWithValidity("channel", []string{"Phone", "Chat", "", "Phone"}, []bool{true, true, false, true}, mem)
	require.NoError(t, err)
	age, err := series.NewWithValidity("customer_age", []float64{20, 0, 40, 60}, []bool{true, false, true, true}, mem)
	require.NoError(t, err)
	train := dataframe.New(channel, age)
	defer train.Release()

	ct, err := preprocess.NewColumnTransformer(preprocess.Options{
		Numeric:     []string{"customer_age"},
		Categorical: []string{"channel"},
	})
	require.NoError(t, err)

	_, err = ct.Transform(train)
	require.ErrorIs(t, err, errors.ErrNotFitted)

	rows, err := ct.FitTransform(train)
	require.NoError(t, err)
	assert.Equal(t, []string{"customer_age", "channel=Chat", "channel=Phone", "channel=missing"}, ct.FeatureNames())
	require.Len(t, rows, 4)
	for _, row := range rows {
		assert.Len(t, row, 4)
	}
	// median of {20,40,60} imputes row 1 to the mean, which scales to 0
	assert.InDelta(t, 0.0, rows[1][0], 1e-12)
	assert.Equal(t, []float64{0, 0, 1}, rows[2][1:])

	unseen := dataframe.New(series.New("channel", []string{"Fax"}, mem), series.New("customer_age", []float64{40}, mem))
	defer unseen.Release()
	out, err := ct.Transform(unseen)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, out[0][1:])

	missing := dataframe.New(series.New("channel", []string{"Fax"}, mem))
	defer missing.Release()
	_, err = ct.Transform(missing)
	require.Error(t, err)
	var pe *errors.PipelineError
	assert.True(t, stderrors.As(err, &pe))

	empty := dataframe.New()
	_, err = ct.FitTransform(empty)
	require.ErrorIs(t, err, errors.ErrEmptyDataset)
}
