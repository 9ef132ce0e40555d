package tuning

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/paveg/escalation/internal/balance"
	"github.com/paveg/escalation/internal/errors"
	"github.com/paveg/escalation/internal/metrics"
	"github.com/paveg/escalation/internal/model"
	"github.com/paveg/escalation/internal/split"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Candidate is one grid point and its fold scores
type Candidate struct {
	Params map[string]any `json:"params" msgpack:"params"`
	Scores []float64      `json:"scores" msgpack:"scores"`
	Mean   float64        `json:"mean_f1" msgpack:"mean_f1"`
	Std    float64        `json:"std_f1" msgpack:"std_f1"`
}

// Result lists every candidate in expansion order
type Result struct {
	Candidates []Candidate `json:"candidates" msgpack:"candidates"`
	Best       int         `json:"best" msgpack:"best"`
	Folds      int         `json:"folds" msgpack:"folds"`
}

// BestCandidate returns the candidate with the highest mean F1
func (r *Result) BestCandidate() Candidate {
	return r.Candidates[r.Best]
}

// Search runs grid search cross-validation. The sampler is applied to the
// training rows of each fold only; validate rows keep their natural class
// balance.
type Search struct {
	Kind    string
	Grid    Grid
	Folds   int
	Seed    uint64
	Sampler balance.Sampler
	// Concurrency bounds the fits in flight; 0 uses every CPU.
	Concurrency int
	Logger      *logrus.Logger
}

type task struct {
	candidate int
	fold      int
}

// Run scores every candidate on every fold. Cancelling ctx stops
// scheduling new fits and returns the context error.
func (s *Search) Run(ctx context.Context, X [][]float64, y []int) (*Result, error) {
	if len(X) != len(y) {
		return nil, errors.ErrMismatchedLength
	}
	folds, err := split.StratifiedKFold(y, s.Folds, s.Seed)
	if err != nil {
		return nil, err
	}
	candidates := s.Grid.Expand()
	sampler := s.Sampler
	if sampler == nil {
		sampler = balance.Passthrough{}
	}

	scores := make([][]float64, len(candidates))
	for i := range scores {
		scores[i] = make([]float64, len(folds))
	}

	limit := s.Concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for c := range candidates {
		for f := range folds {
			if gctx.Err() != nil {
				break
			}
			t := task{candidate: c, fold: f}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				score, err := s.score(candidates[t.candidate], folds[t.fold], X, y, sampler)
				if err != nil {
					return fmt.Errorf("candidate %d fold %d: %w", t.candidate, t.fold, err)
				}
				scores[t.candidate][t.fold] = score
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{Candidates: make([]Candidate, len(candidates)), Folds: len(folds)}
	for c, params := range candidates {
		mean, std := metrics.MeanStd(scores[c])
		result.Candidates[c] = Candidate{Params: params, Scores: scores[c], Mean: mean, Std: std}
		if mean > result.Candidates[result.Best].Mean {
			result.Best = c
		}
		if s.Logger != nil {
			s.Logger.WithFields(logrus.Fields{
				"stage":   "grid_search",
				"params":  FormatParams(params),
				"mean_f1": mean,
				"std_f1":  std,
			}).Debug("candidate scored")
		}
	}
	return result, nil
}

func (s *Search) score(params map[string]any, fold split.Fold, X [][]float64, y []int, sampler balance.Sampler) (float64, error) {
	trainX, trainY := split.Take(X, y, fold.Train)
	trainX, trainY, err := sampler.Resample(trainX, trainY)
	if err != nil {
		return 0, err
	}
	clf, err := model.New(s.Kind, params, model.Options{Seed: s.Seed, Workers: 1})
	if err != nil {
		return 0, err
	}
	if err := clf.Fit(trainX, trainY); err != nil {
		return 0, err
	}
	valX, valY := split.Take(X, y, fold.Validate)
	return metrics.F1(valY, clf.Predict(valX))
}

// Fit runs the search, then refits the best parameters on the whole
// resampled training set.
func (s *Search) Fit(ctx context.Context, X [][]float64, y []int, opts model.Options) (model.Classifier, *Result, error) {
	start := time.Now()
	result, err := s.Run(ctx, X, y)
	if err != nil {
		return nil, nil, err
	}
	best := result.BestCandidate()
	if s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"stage":      "grid_search",
			"candidates": len(result.Candidates),
			"folds":      result.Folds,
			"best":       FormatParams(best.Params),
			"mean_f1":    best.Mean,
			"duration":   time.Since(start),
		}).Info("grid search finished")
	}

	sampler := s.Sampler
	if sampler == nil {
		sampler = balance.Passthrough{}
	}
	balancedX, balancedY, err := sampler.Resample(X, y)
	if err != nil {
		return nil, nil, err
	}
	clf, err := model.New(s.Kind, best.Params, opts)
	if err != nil {
		return nil, nil, err
	}
	if err := clf.Fit(balancedX, balancedY); err != nil {
		return nil, nil, err
	}
	return clf, result, nil
}
