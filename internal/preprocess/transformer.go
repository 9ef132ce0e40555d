// Package preprocess turns an engineered complaint frame into the dense
// numeric matrix the tree models consume.
//
// Numeric columns are median-imputed then standardised; categorical columns
// are imputed then one-hot encoded. Every component is fitted on the
// training partition only and carries its learned state in exported fields
// so a fitted transformer can be persisted and restored.
package preprocess

import (
	"fmt"

	"github.com/paveg/escalation/internal/dataframe"
	"github.com/paveg/escalation/internal/errors"
)

// Options configures a ColumnTransformer
type Options struct {
	Numeric             []string
	Categorical         []string
	CategoricalStrategy string
	DropFirst           bool
}

// ColumnTransformer applies the numeric and categorical branches and
// concatenates their outputs: scaled numerics first, then indicators.
type ColumnTransformer struct {
	Numeric     []string            `msgpack:"numeric"`
	Categorical []string            `msgpack:"categorical"`
	NumImputer  *NumericImputer     `msgpack:"num_imputer"`
	Scaler      *StandardScaler     `msgpack:"scaler"`
	CatImputer  *CategoricalImputer `msgpack:"cat_imputer"`
	Encoder     *OneHotEncoder      `msgpack:"encoder"`
}

// NewColumnTransformer returns an unfitted transformer.
func NewColumnTransformer(opts Options) (*ColumnTransformer, error) {
	catImputer, err := NewCategoricalImputer(opts.CategoricalStrategy)
	if err != nil {
		return nil, err
	}
	return &ColumnTransformer{
		Numeric:     append([]string{}, opts.Numeric...),
		Categorical: append([]string{}, opts.Categorical...),
		NumImputer:  &NumericImputer{},
		Scaler:      &StandardScaler{},
		CatImputer:  catImputer,
		Encoder:     &OneHotEncoder{DropFirst: opts.DropFirst},
	}, nil
}

func (t *ColumnTransformer) numericColumns(df *dataframe.DataFrame) ([][]float64, error) {
	cols := make([][]float64, len(t.Numeric))
	for j, name := range t.Numeric {
		values, err := df.Float64s(name)
		if err != nil {
			return nil, fmt.Errorf("preprocess: %w", err)
		}
		cols[j] = values
	}
	return cols, nil
}

func (t *ColumnTransformer) categoricalColumns(df *dataframe.DataFrame) ([][]string, error) {
	cols := make([][]string, len(t.Categorical))
	for j, name := range t.Categorical {
		values, valid, err := df.Strings(name)
		if err != nil {
			return nil, fmt.Errorf("preprocess: %w", err)
		}
		for i := range values {
			if !valid[i] {
				values[i] = ""
			}
		}
		cols[j] = values
	}
	return cols, nil
}

// Fit learns every branch from df.
func (t *ColumnTransformer) Fit(df *dataframe.DataFrame) error {
	if df.Len() == 0 {
		return errors.ErrEmptyDataset
	}

	numeric, err := t.numericColumns(df)
	if err != nil {
		return err
	}
	t.NumImputer.Fit(numeric)
	imputed, err := t.NumImputer.Transform(numeric)
	if err != nil {
		return err
	}
	t.Scaler.Fit(imputed)

	categorical, err := t.categoricalColumns(df)
	if err != nil {
		return err
	}
	t.CatImputer.Fit(categorical)
	filled, err := t.CatImputer.Transform(categorical)
	if err != nil {
		return err
	}
	t.Encoder.Fit(t.Categorical, filled)
	return nil
}

// Transform returns one row per record in FeatureNames order.
func (t *ColumnTransformer) Transform(df *dataframe.DataFrame) ([][]float64, error) {
	numeric, err := t.numericColumns(df)
	if err != nil {
		return nil, err
	}
	imputed, err := t.NumImputer.Transform(numeric)
	if err != nil {
		return nil, err
	}
	scaled, err := t.Scaler.Transform(imputed)
	if err != nil {
		return nil, err
	}

	categorical, err := t.categoricalColumns(df)
	if err != nil {
		return nil, err
	}
	filled, err := t.CatImputer.Transform(categorical)
	if err != nil {
		return nil, err
	}
	indicators, err := t.Encoder.Transform(filled)
	if err != nil {
		return nil, err
	}

	columns := append(scaled, indicators...)
	return Rows(columns, df.Len()), nil
}

// FitTransform fits on df and transforms it.
func (t *ColumnTransformer) FitTransform(df *dataframe.DataFrame) ([][]float64, error) {
	if err := t.Fit(df); err != nil {
		return nil, err
	}
	return t.Transform(df)
}

// FeatureNames names the output columns.
func (t *ColumnTransformer) FeatureNames() []string {
	names := append([]string{}, t.Numeric...)
	return append(names, t.Encoder.FeatureNames()...)
}

// Rows transposes column-major data into n rows.
func Rows(columns [][]float64, n int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		row := make([]float64, len(columns))
		for j, col := range columns {
			row[j] = col[i]
		}
		rows[i] = row
	}
	return rows
}
