package preprocess

import (
	"math"
	"sort"

	"github.com/paveg/escalation/internal/errors"
	"gonum.org/v1/gonum/stat"
)

// NumericImputer fills NaN with the per-column median of the fitted data.
type NumericImputer struct {
	Medians []float64 `msgpack:"medians"`
	Fitted  bool      `msgpack:"fitted"`
}

// Fit learns one median per column. NaNs are ignored; an all-missing column
// gets 0.
func (m *NumericImputer) Fit(columns [][]float64) {
	m.Medians = make([]float64, len(columns))
	for j, col := range columns {
		m.Medians[j] = Median(col)
	}
	m.Fitted = true
}

// Transform returns copies of columns with NaNs replaced.
func (m *NumericImputer) Transform(columns [][]float64) ([][]float64, error) {
	if !m.Fitted {
		return nil, errors.ErrNotFitted
	}
	if len(columns) != len(m.Medians) {
		return nil, errors.NewInvalidInputError("NumericImputer.Transform", "column count differs from fit")
	}
	out := make([][]float64, len(columns))
	for j, col := range columns {
		out[j] = make([]float64, len(col))
		for i, v := range col {
			if math.IsNaN(v) {
				v = m.Medians[j]
			}
			out[j][i] = v
		}
	}
	return out, nil
}

// Median returns the median of the non-NaN values, averaging the middle pair
// for even counts, or 0 when there are none.
func Median(values []float64) float64 {
	present := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	n := len(present)
	if n == 0 {
		return 0
	}
	sort.Float64s(present)
	if n%2 == 1 {
		return present[n/2]
	}
	return (present[n/2-1] + present[n/2]) / 2
}

// StandardScaler centres each column on its mean and divides by its
// population standard deviation. Constant columns use a scale of 1.
type StandardScaler struct {
	Means  []float64 `msgpack:"means"`
	Scales []float64 `msgpack:"scales"`
	Fitted bool      `msgpack:"fitted"`
}

// Fit learns mean and scale per column. Columns must be free of NaN.
func (s *StandardScaler) Fit(columns [][]float64) {
	s.Means = make([]float64, len(columns))
	s.Scales = make([]float64, len(columns))
	for j, col := range columns {
		if len(col) == 0 {
			s.Scales[j] = 1
			continue
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Means[j], s.Scales[j] = mean, std
	}
	s.Fitted = true
}

// Transform returns standardised copies of columns.
func (s *StandardScaler) Transform(columns [][]float64) ([][]float64, error) {
	if !s.Fitted {
		return nil, errors.ErrNotFitted
	}
	if len(columns) != len(s.Means) {
		return nil, errors.NewInvalidInputError("StandardScaler.Transform", "column count differs from fit")
	}
	out := make([][]float64, len(columns))
	for j, col := range columns {
		out[j] = make([]float64, len(col))
		for i, v := range col {
			out[j][i] = (v - s.Means[j]) / s.Scales[j]
		}
	}
	return out, nil
}
