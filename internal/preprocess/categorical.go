package preprocess

import (
	"fmt"
	"sort"

	"github.com/paveg/escalation/internal/errors"
)

// Imputation strategies for categorical columns
const (
	StrategyConstant     = "constant"
	StrategyMostFrequent = "most_frequent"
)

// MissingCategory is the constant fill value
const MissingCategory = "missing"

// CategoricalImputer fills empty categorical values. Empty strings mark
// missing cells.
type CategoricalImputer struct {
	Strategy string   `msgpack:"strategy"`
	Fill     []string `msgpack:"fill"`
	Fitted   bool     `msgpack:"fitted"`
}

// NewCategoricalImputer validates strategy and returns an unfitted imputer.
func NewCategoricalImputer(strategy string) (*CategoricalImputer, error) {
	switch strategy {
	case "":
		strategy = StrategyConstant
	case StrategyConstant, StrategyMostFrequent:
	default:
		return nil, errors.NewInvalidInputError("preprocess.NewCategoricalImputer",
			fmt.Sprintf("unknown strategy %q", strategy))
	}
	return &CategoricalImputer{Strategy: strategy}, nil
}

// Fit picks the fill value per column. most_frequent breaks ties by the
// lexicographically smallest level and falls back to "missing" for an
// all-empty column.
func (c *CategoricalImputer) Fit(columns [][]string) {
	c.Fill = make([]string, len(columns))
	for j, col := range columns {
		c.Fill[j] = MissingCategory
		if c.Strategy != StrategyMostFrequent {
			continue
		}
		counts := make(map[string]int)
		for _, v := range col {
			if v != "" {
				counts[v]++
			}
		}
		best, bestN := "", 0
		for level, n := range counts {
			if n > bestN || (n == bestN && level < best) {
				best, bestN = level, n
			}
		}
		if bestN > 0 {
			c.Fill[j] = best
		}
	}
	c.Fitted = true
}

// Transform returns copies of columns with empty values filled.
func (c *CategoricalImputer) Transform(columns [][]string) ([][]string, error) {
	if !c.Fitted {
		return nil, errors.ErrNotFitted
	}
	if len(columns) != len(c.Fill) {
		return nil, errors.NewInvalidInputError("CategoricalImputer.Transform", "column count differs from fit")
	}
	out := make([][]string, len(columns))
	for j, col := range columns {
		out[j] = make([]string, len(col))
		for i, v := range col {
			if v == "" {
				v = c.Fill[j]
			}
			out[j][i] = v
		}
	}
	return out, nil
}

// OneHotEncoder expands each categorical column into one indicator per
// level seen during Fit. Levels are sorted; unseen values encode as all
// zeros.
type OneHotEncoder struct {
	Columns   []string   `msgpack:"columns"`
	Levels    [][]string `msgpack:"levels"`
	DropFirst bool       `msgpack:"drop_first"`
	Fitted    bool       `msgpack:"fitted"`
}

// Fit records the sorted distinct levels of each column.
func (e *OneHotEncoder) Fit(names []string, columns [][]string) {
	e.Columns = append([]string{}, names...)
	e.Levels = make([][]string, len(columns))
	for j, col := range columns {
		seen := make(map[string]bool)
		for _, v := range col {
			seen[v] = true
		}
		levels := make([]string, 0, len(seen))
		for v := range seen {
			levels = append(levels, v)
		}
		sort.Strings(levels)
		e.Levels[j] = levels
	}
	e.Fitted = true
}

func (e *OneHotEncoder) encoded(j int) []string {
	if e.DropFirst && len(e.Levels[j]) > 0 {
		return e.Levels[j][1:]
	}
	return e.Levels[j]
}

// Width is the number of indicator columns produced.
func (e *OneHotEncoder) Width() int {
	w := 0
	for j := range e.Levels {
		w += len(e.encoded(j))
	}
	return w
}

// FeatureNames names the indicator columns as column=level.
func (e *OneHotEncoder) FeatureNames() []string {
	names := make([]string, 0, e.Width())
	for j, col := range e.Columns {
		for _, level := range e.encoded(j) {
			names = append(names, col+"="+level)
		}
	}
	return names
}

// Transform returns indicator columns in FeatureNames order.
func (e *OneHotEncoder) Transform(columns [][]string) ([][]float64, error) {
	if !e.Fitted {
		return nil, errors.ErrNotFitted
	}
	if len(columns) != len(e.Levels) {
		return nil, errors.NewInvalidInputError("OneHotEncoder.Transform", "column count differs from fit")
	}
	out := make([][]float64, 0, e.Width())
	for j, col := range columns {
		levels := e.encoded(j)
		index := make(map[string]int, len(levels))
		block := make([][]float64, len(levels))
		for k, level := range levels {
			index[level] = k
			block[k] = make([]float64, len(col))
		}
		for i, v := range col {
			if k, ok := index[v]; ok {
				block[k][i] = 1
			}
		}
		out = append(out, block...)
	}
	return out, nil
}
