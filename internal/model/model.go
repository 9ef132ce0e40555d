// Package model implements the tree-ensemble classifiers that predict
// complaint escalation: a random forest and gradient-boosted trees.
//
// Both models consume dense rows produced by the preprocessing stage and
// predict P(escalated). Fitted state lives in exported fields so models can
// be serialised by the persistence layer.
package model

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/paveg/escalation/internal/errors"
	"github.com/paveg/escalation/internal/validation"
	"golang.org/x/exp/constraints"
)

// Model kinds
const (
	KindRandomForest     = "random_forest"
	KindGradientBoosting = "gradient_boosting"
)

// DefaultThreshold is the probability at or above which Predict returns 1
const DefaultThreshold = 0.5

// Classifier is a fitted binary classifier over dense rows
type Classifier interface {
	// Fit trains on rows X with labels y in {0,1}.
	Fit(X [][]float64, y []int) error
	// PredictProba returns P(y=1) per row, or nil before Fit.
	PredictProba(X [][]float64) []float64
	// Predict thresholds PredictProba at 0.5.
	Predict(X [][]float64) []int
	// FeatureImportances returns impurity-based importances summing to 1.
	FeatureImportances() []float64
	// Name returns the model kind
	Name() string
	// Params returns the hyperparameters in grid-key form
	Params() map[string]any
}

// Options carries settings that are not hyperparameters
type Options struct {
	Seed    uint64
	Workers int
}

// NormalizeKind maps accepted spellings onto a model kind.
func NormalizeKind(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindRandomForest, "rf", "random-forest", "randomforest":
		return KindRandomForest, nil
	case KindGradientBoosting, "gbm", "gb", "gradient-boosting", "gradientboosting":
		return KindGradientBoosting, nil
	default:
		return "", errors.NewInvalidInputError("model.New", fmt.Sprintf("unknown model kind %q", kind))
	}
}

// New builds an unfitted model of kind with defaults overridden by params.
// Param values may be any numeric type, numeric strings or bools, as they
// arrive from YAML, JSON or TOML.
func New(kind string, params map[string]any, opts Options) (Classifier, error) {
	kind, err := NormalizeKind(kind)
	if err != nil {
		return nil, err
	}

	var c Classifier
	switch kind {
	case KindRandomForest:
		rf := NewRandomForest()
		rf.Seed, rf.Workers = opts.Seed, opts.Workers
		err = rf.apply(params)
		c = rf
	default:
		gb := NewGradientBoosting()
		gb.Seed = opts.Seed
		err = gb.apply(params)
		c = gb
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// PredictWithThreshold labels probabilities at or above threshold as 1.
func PredictWithThreshold(proba []float64, threshold float64) []int {
	out := make([]int, len(proba))
	for i, p := range proba {
		if p >= threshold {
			out[i] = 1
		}
	}
	return out
}

// validate checks shapes and classes and returns the feature count.
func validate(op string, X [][]float64, y []int) (int, error) {
	return validation.ValidateTraining(X, y, op)
}

func sigmoid(f float64) float64 {
	return 1 / (1 + math.Exp(-f))
}

// paramSetter applies one coerced grid value
type paramSetter func(v any) error

func applyParams(op string, params map[string]any, setters map[string]paramSetter) error {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		set, ok := setters[k]
		if !ok {
			return errors.NewInvalidInputError(op, fmt.Sprintf("unknown parameter %q", k))
		}
		if err := set(params[k]); err != nil {
			return errors.NewValidationError(op, k, err.Error())
		}
	}
	return nil
}

func fromNumber[T constraints.Integer | constraints.Float](v T) float64 {
	return float64(v)
}

func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return fromNumber(n), nil
	case int:
		return fromNumber(n), nil
	case int8:
		return fromNumber(n), nil
	case int16:
		return fromNumber(n), nil
	case int32:
		return fromNumber(n), nil
	case int64:
		return fromNumber(n), nil
	case uint:
		return fromNumber(n), nil
	case uint8:
		return fromNumber(n), nil
	case uint16:
		return fromNumber(n), nil
	case uint32:
		return fromNumber(n), nil
	case uint64:
		return fromNumber(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func asInt(v any) (int, error) {
	if v == nil {
		return 0, nil
	}
	f, err := asFloat(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("expected an integer, got %v", v)
	}
	return int(f), nil
}

func asBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(b)
	default:
		return false, fmt.Errorf("expected a bool, got %T", v)
	}
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func setInt(dst *int, lowest int) paramSetter {
	return func(v any) error {
		n, err := asInt(v)
		if err != nil {
			return err
		}
		if n < lowest {
			return fmt.Errorf("must be at least %d, got %d", lowest, n)
		}
		*dst = n
		return nil
	}
}

func setFloat(dst *float64, lo, hi float64) paramSetter {
	return func(v any) error {
		f, err := asFloat(v)
		if err != nil {
			return err
		}
		if f <= lo || f > hi {
			return fmt.Errorf("must be in (%g, %g], got %g", lo, hi, f)
		}
		*dst = f
		return nil
	}
}
