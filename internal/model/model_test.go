package model_test

import (
	"math"
	"testing"

	"github.com/paveg/escalation/internal/errors"
	"github.com/paveg/escalation/internal/model"
	"github.com/paveg/escalation/internal/split"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// separable builds rows where feature 0 decides the label and feature 1 is noise.
func separable(n int, seed uint64) ([][]float64, []int) {
	rng := split.NewRand(seed)
	X := make([][]float64, n)
	y := make([]int, n)
	for i := range X {
		signal := rng.Float64()*2 - 1
		X[i] = []float64{signal, rng.Float64()}
		if signal > 0.3 {
			y[i] = 1
		}
	}
	return X, y
}

func accuracy(y, pred []int) float64 {
	var ok int
	for i := range y {
		if y[i] == pred[i] {
			ok++
		}
	}
	return float64(ok) / float64(len(y))
}

func TestRandomForest(t *testing.T) {
	X, y := separable(300, 1)
	Xt, yt := separable(200, 2)

	rf := model.NewRandomForest()
	rf.NEstimators = 30
	rf.MaxFeatures = "all"
	rf.ClassWeight = "balanced"
	rf.Seed = 7
	rf.Workers = 4
	require.NoError(t, rf.Fit(X, y))

	assert.Equal(t, model.KindRandomForest, rf.Name())
	assert.Len(t, rf.Trees, 30)
	assert.Greater(t, accuracy(yt, rf.Predict(Xt)), 0.95)

	proba := rf.PredictProba(Xt)
	for _, p := range proba {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}

	imp := rf.FeatureImportances()
	require.Len(t, imp, 2)
	assert.InDelta(t, 1.0, imp[0]+imp[1], 1e-9)
	assert.Greater(t, imp[0], imp[1])

	t.Run("deterministic across worker counts", func(t *testing.T) {
		other := model.NewRandomForest()
		other.NEstimators = 30
		other.MaxFeatures = "all"
		other.ClassWeight = "balanced"
		other.Seed = 7
		other.Workers = 1
		require.NoError(t, other.Fit(X, y))
		assert.Equal(t, proba, other.PredictProba(Xt))
	})

	t.Run("depth limit", func(t *testing.T) {
		shallow := model.NewRandomForest()
		shallow.NEstimators = 5
		shallow.MaxDepth = 2
		require.NoError(t, shallow.Fit(X, y))
		for _, tree := range shallow.Trees {
			assert.LessOrEqual(t, tree.Depth(), 2)
		}
	})
}

func TestGradientBoosting(t *testing.T) {
	X, y := separable(300, 3)
	Xt, yt := separable(200, 4)

	gb := model.NewGradientBoosting()
	gb.NEstimators = 40
	gb.Subsample = 0.8
	gb.Seed = 11
	require.NoError(t, gb.Fit(X, y))

	assert.Equal(t, model.KindGradientBoosting, gb.Name())
	assert.Greater(t, accuracy(yt, gb.Predict(Xt)), 0.95)

	var pos float64
	for _, v := range y {
		pos += float64(v)
	}
	prior := pos / float64(len(y))
	assert.InDelta(t, math.Log(prior/(1-prior)), gb.Init, 1e-12)

	imp := gb.FeatureImportances()
	assert.InDelta(t, 1.0, imp[0]+imp[1], 1e-9)
	assert.Greater(t, imp[0], imp[1])

	again := model.NewGradientBoosting()
	again.NEstimators = 40
	again.Subsample = 0.8
	again.Seed = 11
	require.NoError(t, again.Fit(X, y))
	assert.Equal(t, gb.PredictProba(Xt), again.PredictProba(Xt))
}

func TestFitErrors(t *testing.T) {
	for _, c := range []model.Classifier{model.NewRandomForest(), model.NewGradientBoosting()} {
		t.Run(c.Name(), func(t *testing.T) {
			assert.Nil(t, c.PredictProba([][]float64{{1}}))
			require.ErrorIs(t, c.Fit(nil, nil), errors.ErrEmptyDataset)
			require.ErrorIs(t, c.Fit([][]float64{{1}, {2}}, []int{1}), errors.ErrMismatchedLength)
			require.ErrorIs(t, c.Fit([][]float64{{1}, {2}}, []int{1, 1}), errors.ErrSingleClass)
			require.Error(t, c.Fit([][]float64{{1}, {2}}, []int{0, 2}))
			require.Error(t, c.Fit([][]float64{{1}, {2, 3}}, []int{0, 1}))
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("random forest from grid values", func(t *testing.T) {
		c, err := model.New("rf", map[string]any{
			"n_estimators":     int64(50),
			"max_depth":        10.0,
			"max_features":     "log2",
			"min_samples_leaf": "2",
			"bootstrap":        false,
			"class_weight":     "balanced",
		}, model.Options{Seed: 3, Workers: 2})
		require.NoError(t, err)
		rf, ok := c.(*model.RandomForest)
		require.True(t, ok)
		assert.Equal(t, 50, rf.NEstimators)
		assert.Equal(t, 10, rf.MaxDepth)
		assert.Equal(t, "log2", rf.MaxFeatures)
		assert.Equal(t, 2, rf.MinSamplesLeaf)
		assert.False(t, rf.Bootstrap)
		assert.Equal(t, uint64(3), rf.Seed)
		assert.Equal(t, 50, c.Params()["n_estimators"])
	})

	t.Run("gradient boosting", func(t *testing.T) {
		c, err := model.New("gradient_boosting", map[string]any{"learning_rate": 0.05, "subsample": 0.5}, model.Options{})
		require.NoError(t, err)
		gb := c.(*model.GradientBoosting)
		assert.Equal(t, 0.05, gb.LearningRate)
		assert.Equal(t, 3, gb.MaxDepth)
	})

	tests := []struct {
		name   string
		kind   string
		params map[string]any
	}{
		{"unknown kind", "svm", nil},
		{"unknown param", "rf", map[string]any{"gamma": 1}},
		{"fractional int", "rf", map[string]any{"n_estimators": 2.5}},
		{"bad max_features", "rf", map[string]any{"max_features": "half"}},
		{"bad learning rate", "gbm", map[string]any{"learning_rate": 0}},
		{"subsample above one", "gbm", map[string]any{"subsample": 1.5}},
		{"bad bool", "rf", map[string]any{"bootstrap": 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := model.New(tt.kind, tt.params, model.Options{})
			require.Error(t, err)
		})
	}
}

func TestPredictWithThreshold(t *testing.T) {
	assert.Equal(t, []int{0, 1, 1}, model.PredictWithThreshold([]float64{0.2, 0.5, 0.9}, 0.5))
	assert.Equal(t, []int{0, 0, 1}, model.PredictWithThreshold([]float64{0.2, 0.5, 0.9}, 0.6))
}

func TestTreePredict(t *testing.T) {
	tree := &model.Tree{Nodes: []model.Node{
		{Feature: 0, Threshold: 1.5, Left: 1, Right: 2},
		{Left: -1, Right: -1, Value: 0.1},
		{Left: -1, Right: -1, Value: 0.9},
	}}
	assert.Equal(t, 0.1, tree.Predict([]float64{1.5}))
	assert.Equal(t, 0.9, tree.Predict([]float64{2}))
	assert.Equal(t, 1, tree.Depth())
}
