package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paveg/escalation/internal/errors"
	"github.com/paveg/escalation/internal/parallel"
	"github.com/paveg/escalation/internal/split"
)

// RandomForest averages the probabilities of CART trees grown on bootstrap
// samples with a random feature subset tried at every split.
type RandomForest struct {
	NEstimators     int    `msgpack:"n_estimators"`
	MaxDepth        int    `msgpack:"max_depth"`
	MinSamplesSplit int    `msgpack:"min_samples_split"`
	MinSamplesLeaf  int    `msgpack:"min_samples_leaf"`
	MaxFeatures     string `msgpack:"max_features"` // sqrt, log2, all or a count
	Bootstrap       bool   `msgpack:"bootstrap"`
	ClassWeight     string `msgpack:"class_weight"` // balanced or empty
	Seed            uint64 `msgpack:"seed"`
	Workers         int    `msgpack:"-"`

	Trees       []*Tree   `msgpack:"trees"`
	Importances []float64 `msgpack:"importances"`
	NFeatures   int       `msgpack:"n_features"`
}

// NewRandomForest returns a forest with default hyperparameters
func NewRandomForest() *RandomForest {
	return &RandomForest{
		NEstimators:     100,
		MaxDepth:        0,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     "sqrt",
		Bootstrap:       true,
	}
}

// Name implements Classifier
func (rf *RandomForest) Name() string { return KindRandomForest }

// Params implements Classifier
func (rf *RandomForest) Params() map[string]any {
	return map[string]any{
		"n_estimators":      rf.NEstimators,
		"max_depth":         rf.MaxDepth,
		"min_samples_split": rf.MinSamplesSplit,
		"min_samples_leaf":  rf.MinSamplesLeaf,
		"max_features":      rf.MaxFeatures,
		"bootstrap":         rf.Bootstrap,
		"class_weight":      rf.ClassWeight,
	}
}

func (rf *RandomForest) apply(params map[string]any) error {
	return applyParams("model.RandomForest", params, map[string]paramSetter{
		"n_estimators":      setInt(&rf.NEstimators, 1),
		"max_depth":         setInt(&rf.MaxDepth, 0),
		"min_samples_split": setInt(&rf.MinSamplesSplit, 2),
		"min_samples_leaf":  setInt(&rf.MinSamplesLeaf, 1),
		"max_features": func(v any) error {
			s := strings.ToLower(asString(v))
			if _, err := resolveMaxFeatures(s, 1); err != nil {
				return err
			}
			rf.MaxFeatures = s
			return nil
		},
		"bootstrap": func(v any) error {
			b, err := asBool(v)
			rf.Bootstrap = b
			return err
		},
		"class_weight": func(v any) error {
			s := strings.ToLower(asString(v))
			if s != "" && s != "balanced" && s != "none" {
				return fmt.Errorf("unknown class weight %q", s)
			}
			if s == "none" {
				s = ""
			}
			rf.ClassWeight = s
			return nil
		},
	})
}

// resolveMaxFeatures turns the max_features setting into a count for p features.
func resolveMaxFeatures(spec string, p int) (int, error) {
	switch spec {
	case "", "all", "none":
		return p, nil
	case "sqrt", "auto":
		return max(1, int(math.Sqrt(float64(p)))), nil
	case "log2":
		return max(1, int(math.Log2(float64(p)))), nil
	}
	n, err := strconv.Atoi(spec)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("max_features must be sqrt, log2, all or a positive count, got %q", spec)
	}
	return min(n, p), nil
}

// classWeights returns per-class weights; balanced uses n / (2 * n_c).
func classWeights(y []int, mode string) [2]float64 {
	if mode != "balanced" {
		return [2]float64{1, 1}
	}
	var counts [2]int
	for _, v := range y {
		counts[v]++
	}
	n := float64(len(y))
	return [2]float64{n / (2 * float64(counts[0])), n / (2 * float64(counts[1]))}
}

// Fit implements Classifier. Trees are fitted concurrently; tree i draws
// from a generator seeded with Seed+i so results do not depend on the
// number of workers.
func (rf *RandomForest) Fit(X [][]float64, y []int) error {
	p, err := validate("model.RandomForest.Fit", X, y)
	if err != nil {
		return err
	}
	if rf.NEstimators < 1 {
		return errors.NewInvalidInputError("model.RandomForest.Fit", "n_estimators must be positive")
	}
	maxFeatures, err := resolveMaxFeatures(rf.MaxFeatures, p)
	if err != nil {
		return errors.NewInvalidInputError("model.RandomForest.Fit", err.Error())
	}

	n := len(X)
	target := make([]float64, n)
	for i, v := range y {
		target[i] = float64(v)
	}
	cw := classWeights(y, rf.ClassWeight)
	params := treeParams{
		maxDepth:        rf.MaxDepth,
		minSamplesSplit: max(rf.MinSamplesSplit, 2),
		minSamplesLeaf:  max(rf.MinSamplesLeaf, 1),
		maxFeatures:     maxFeatures,
	}

	trees := make([]*Tree, rf.NEstimators)
	importances := make([][]float64, rf.NEstimators)

	pool := parallel.NewWorkerPool(rf.Workers)
	defer pool.Close()

	err = parallel.Range(pool, rf.NEstimators, func(t int) error {
		rng := split.NewRand(rf.Seed + uint64(t))
		weight := make([]float64, n)
		var idx []int
		if rf.Bootstrap {
			counts := make([]int, n)
			for range n {
				counts[rng.IntN(n)]++
			}
			for i, c := range counts {
				if c > 0 {
					idx = append(idx, i)
					weight[i] = float64(c) * cw[y[i]]
				}
			}
		} else {
			idx = make([]int, n)
			for i := range idx {
				idx[i] = i
				weight[i] = cw[y[i]]
			}
		}
		tree, imp := growTree(X, target, weight, idx, params, rng, weightedMean(target, weight))
		trees[t], importances[t] = tree, normalize(imp)
		return nil
	})
	if err != nil {
		return err
	}

	total := make([]float64, p)
	for _, imp := range importances {
		for j, v := range imp {
			total[j] += v
		}
	}
	rf.Trees = trees
	rf.Importances = normalize(total)
	rf.NFeatures = p
	return nil
}

// PredictProba implements Classifier
func (rf *RandomForest) PredictProba(X [][]float64) []float64 {
	if len(rf.Trees) == 0 {
		return nil
	}
	out := make([]float64, len(X))
	for i, x := range X {
		var sum float64
		for _, t := range rf.Trees {
			sum += t.Predict(x)
		}
		out[i] = sum / float64(len(rf.Trees))
	}
	return out
}

// Predict implements Classifier
func (rf *RandomForest) Predict(X [][]float64) []int {
	return PredictWithThreshold(rf.PredictProba(X), DefaultThreshold)
}

// FeatureImportances implements Classifier
func (rf *RandomForest) FeatureImportances() []float64 {
	return append([]float64{}, rf.Importances...)
}
