// Package pipeline holds a fitted escalation pipeline (schema resolution,
// feature engineering, column preprocessing and a classifier) and trains
// one from a labelled complaint frame.
package pipeline

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cespare/xxhash/v2"
	"github.com/paveg/escalation/internal/dataframe"
	"github.com/paveg/escalation/internal/errors"
	"github.com/paveg/escalation/internal/features"
	"github.com/paveg/escalation/internal/model"
	"github.com/paveg/escalation/internal/preprocess"
	"github.com/paveg/escalation/internal/schema"
)

// CVSummary records the grid search outcome
type CVSummary struct {
	Candidates int     `json:"candidates" msgpack:"candidates"`
	Folds      int     `json:"folds" msgpack:"folds"`
	BestF1     float64 `json:"best_f1" msgpack:"best_f1"`
	BestStd    float64 `json:"best_std" msgpack:"best_std"`
}

// TestScores records held-out performance
type TestScores struct {
	F1        float64 `json:"f1" msgpack:"f1"`
	Precision float64 `json:"precision" msgpack:"precision"`
	Recall    float64 `json:"recall" msgpack:"recall"`
	Accuracy  float64 `json:"accuracy" msgpack:"accuracy"`
	ROCAUC    float64 `json:"roc_auc" msgpack:"roc_auc"`
}

// Metadata describes how a pipeline was trained
type Metadata struct {
	RunID       string         `json:"run_id" msgpack:"run_id"`
	CreatedAt   time.Time      `json:"created_at" msgpack:"created_at"`
	ToolVersion string         `json:"tool_version" msgpack:"tool_version"`
	Variant     string         `json:"variant,omitempty" msgpack:"variant"`
	Source      string         `json:"source,omitempty" msgpack:"source"`
	ModelKind   string         `json:"model_kind" msgpack:"model_kind"`
	Params      map[string]any `json:"params" msgpack:"params"`
	Seed        uint64         `json:"seed" msgpack:"seed"`
	Balance     string         `json:"balance" msgpack:"balance"`

	TrainRows     int `json:"train_rows" msgpack:"train_rows"`
	ResampledRows int `json:"resampled_rows" msgpack:"resampled_rows"`
	TestRows      int `json:"test_rows" msgpack:"test_rows"`

	Features    []string `json:"features" msgpack:"features"`
	Fingerprint uint64   `json:"fingerprint" msgpack:"fingerprint"`

	CV   *CVSummary  `json:"cv,omitempty" msgpack:"cv"`
	Test *TestScores `json:"test,omitempty" msgpack:"test"`
}

// Pipeline is a fitted end-to-end predictor
type Pipeline struct {
	Schema      schema.Schema
	Features    features.Options
	Transformer *preprocess.ColumnTransformer
	Model       model.Classifier
	Threshold   float64
	Metadata    Metadata
}

// Fingerprint hashes an ordered feature layout.
func Fingerprint(names []string) uint64 {
	d := xxhash.New()
	for _, name := range names {
		_, _ = d.WriteString(name)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}

// Layout is the ordered column list the transformer reads from a prepared
// frame: schema numerics, then derived features, then categoricals.
func Layout(s schema.Schema, derived []string) []string {
	out := make([]string, 0, len(s.Numeric)+len(derived)+len(s.Categorical))
	out = append(out, s.Numeric...)
	out = append(out, derived...)
	return append(out, s.Categorical...)
}

// Prepare resolves df onto the canonical schema and engineers features.
// The caller releases the returned frame.
func Prepare(s schema.Schema, opts features.Options, df *dataframe.DataFrame, requireTarget bool, mem memory.Allocator) (*features.Result, error) {
	resolved, err := s.Resolve(df, requireTarget)
	if err != nil {
		return nil, err
	}
	defer resolved.Release()

	return features.Engineer(resolved, opts, mem)
}

// Matrix turns a raw frame into model rows using the fitted layout. The
// prepared frame's layout must hash to the fingerprint recorded at fit time.
func (p *Pipeline) Matrix(df *dataframe.DataFrame, mem memory.Allocator) ([][]float64, error) {
	if p.Transformer == nil || p.Model == nil {
		return nil, errors.ErrNotFitted
	}

	prepared, err := Prepare(p.Schema, p.Features, df, false, mem)
	if err != nil {
		return nil, err
	}
	defer prepared.Frame.Release()

	if got := Fingerprint(Layout(p.Schema, prepared.Derived)); got != p.Metadata.Fingerprint {
		return nil, errors.NewValidationError("pipeline.Predict", "",
			fmt.Sprintf("feature layout fingerprint %016x does not match trained %016x", got, p.Metadata.Fingerprint))
	}

	return p.Transformer.Transform(prepared.Frame)
}

// Predict labels every row of a raw frame and returns P(escalated) per row.
// Labels use the pipeline threshold.
func (p *Pipeline) Predict(df *dataframe.DataFrame, mem memory.Allocator) ([]int, []float64, error) {
	X, err := p.Matrix(df, mem)
	if err != nil {
		return nil, nil, err
	}
	if len(X) == 0 {
		return []int{}, []float64{}, nil
	}
	proba := p.Model.PredictProba(X)
	if proba == nil {
		return nil, nil, errors.ErrNotFitted
	}
	return model.PredictWithThreshold(proba, p.threshold()), proba, nil
}

func (p *Pipeline) threshold() float64 {
	if p.Threshold <= 0 || p.Threshold >= 1 {
		return model.DefaultThreshold
	}
	return p.Threshold
}
