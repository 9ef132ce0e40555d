package model

import (
	"math"

	"github.com/paveg/escalation/internal/errors"
	"github.com/paveg/escalation/internal/split"
)

// GradientBoosting fits regression trees to the gradient of the binary
// log-loss. Boosting starts from the training log-odds and each leaf takes
// a single Newton step.
type GradientBoosting struct {
	NEstimators     int     `msgpack:"n_estimators"`
	LearningRate    float64 `msgpack:"learning_rate"`
	MaxDepth        int     `msgpack:"max_depth"`
	MinSamplesSplit int     `msgpack:"min_samples_split"`
	MinSamplesLeaf  int     `msgpack:"min_samples_leaf"`
	Subsample       float64 `msgpack:"subsample"`
	Seed            uint64  `msgpack:"seed"`

	Init        float64   `msgpack:"init"`
	Trees       []*Tree   `msgpack:"trees"`
	Importances []float64 `msgpack:"importances"`
	NFeatures   int       `msgpack:"n_features"`
}

// NewGradientBoosting returns a booster with default hyperparameters
func NewGradientBoosting() *GradientBoosting {
	return &GradientBoosting{
		NEstimators:     100,
		LearningRate:    0.1,
		MaxDepth:        3,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Subsample:       1.0,
	}
}

// Name implements Classifier
func (gb *GradientBoosting) Name() string { return KindGradientBoosting }

// Params implements Classifier
func (gb *GradientBoosting) Params() map[string]any {
	return map[string]any{
		"n_estimators":      gb.NEstimators,
		"learning_rate":     gb.LearningRate,
		"max_depth":         gb.MaxDepth,
		"min_samples_split": gb.MinSamplesSplit,
		"min_samples_leaf":  gb.MinSamplesLeaf,
		"subsample":         gb.Subsample,
	}
}

func (gb *GradientBoosting) apply(params map[string]any) error {
	return applyParams("model.GradientBoosting", params, map[string]paramSetter{
		"n_estimators":      setInt(&gb.NEstimators, 1),
		"learning_rate":     setFloat(&gb.LearningRate, 0, math.Inf(1)),
		"max_depth":         setInt(&gb.MaxDepth, 0),
		"min_samples_split": setInt(&gb.MinSamplesSplit, 2),
		"min_samples_leaf":  setInt(&gb.MinSamplesLeaf, 1),
		"subsample":         setFloat(&gb.Subsample, 0, 1),
	})
}

// Fit implements Classifier
func (gb *GradientBoosting) Fit(X [][]float64, y []int) error {
	p, err := validate("model.GradientBoosting.Fit", X, y)
	if err != nil {
		return err
	}
	if gb.NEstimators < 1 || gb.LearningRate <= 0 {
		return errors.NewInvalidInputError("model.GradientBoosting.Fit", "n_estimators and learning_rate must be positive")
	}
	if gb.Subsample <= 0 || gb.Subsample > 1 {
		return errors.NewInvalidInputError("model.GradientBoosting.Fit", "subsample must be in (0, 1]")
	}

	n := len(X)
	var pos float64
	for _, v := range y {
		pos += float64(v)
	}
	prior := pos / float64(n)
	gb.Init = math.Log(prior / (1 - prior))

	raw := make([]float64, n)
	for i := range raw {
		raw[i] = gb.Init
	}
	prob := make([]float64, n)
	residual := make([]float64, n)
	weight := make([]float64, n)
	for i := range weight {
		weight[i] = 1
	}

	// Newton step for log-loss: sum of residuals over sum of p(1-p).
	leaf := func(idx []int) float64 {
		var num, den float64
		for _, i := range idx {
			num += residual[i]
			den += prob[i] * (1 - prob[i])
		}
		if den < 1e-150 {
			return 0
		}
		return num / den
	}

	params := treeParams{
		maxDepth:        gb.MaxDepth,
		minSamplesSplit: max(gb.MinSamplesSplit, 2),
		minSamplesLeaf:  max(gb.MinSamplesLeaf, 1),
	}
	rng := split.NewRand(gb.Seed)
	sampleSize := max(1, int(gb.Subsample*float64(n)))

	gb.Trees = make([]*Tree, 0, gb.NEstimators)
	total := make([]float64, p)
	for range gb.NEstimators {
		for i := range raw {
			prob[i] = sigmoid(raw[i])
			residual[i] = float64(y[i]) - prob[i]
		}

		var idx []int
		if sampleSize < n {
			idx = rng.Perm(n)[:sampleSize]
		} else {
			idx = make([]int, n)
			for i := range idx {
				idx[i] = i
			}
		}

		tree, imp := growTree(X, residual, weight, idx, params, rng, leaf)
		gb.Trees = append(gb.Trees, tree)
		for j, v := range imp {
			total[j] += v
		}
		for i, x := range X {
			raw[i] += gb.LearningRate * tree.Predict(x)
		}
	}

	gb.Importances = normalize(total)
	gb.NFeatures = p
	return nil
}

// DecisionFunction returns the raw log-odds per row
func (gb *GradientBoosting) DecisionFunction(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		f := gb.Init
		for _, t := range gb.Trees {
			f += gb.LearningRate * t.Predict(x)
		}
		out[i] = f
	}
	return out
}

// PredictProba implements Classifier
func (gb *GradientBoosting) PredictProba(X [][]float64) []float64 {
	if len(gb.Trees) == 0 {
		return nil
	}
	out := gb.DecisionFunction(X)
	for i, f := range out {
		out[i] = sigmoid(f)
	}
	return out
}

// Predict implements Classifier
func (gb *GradientBoosting) Predict(X [][]float64) []int {
	return PredictWithThreshold(gb.PredictProba(X), DefaultThreshold)
}

// FeatureImportances implements Classifier
func (gb *GradientBoosting) FeatureImportances() []float64 {
	return append([]float64{}, gb.Importances...)
}
