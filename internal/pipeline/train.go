package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"github.com/paveg/escalation/internal/balance"
	"github.com/paveg/escalation/internal/dataframe"
	"github.com/paveg/escalation/internal/features"
	"github.com/paveg/escalation/internal/metrics"
	"github.com/paveg/escalation/internal/model"
	"github.com/paveg/escalation/internal/monitoring"
	"github.com/paveg/escalation/internal/preprocess"
	"github.com/paveg/escalation/internal/schema"
	"github.com/paveg/escalation/internal/split"
	"github.com/paveg/escalation/internal/tuning"
	"github.com/paveg/escalation/internal/validation"
	"github.com/paveg/escalation/internal/version"
	"github.com/sirupsen/logrus"
)

// Stage names recorded by Train
const (
	StageResolve    = "resolve"
	StageFeatures   = "features"
	StageSplit      = "split"
	StagePreprocess = "preprocess"
	StageBalance    = "balance"
	StageFit        = "fit"
	StageGridSearch = "grid_search"
	StageEvaluate   = "evaluate"
)

// TrainOptions configures a training run
type TrainOptions struct {
	Schema    schema.Schema
	TestRatio float64
	Seed      uint64

	BalanceMethod string
	BalanceRatio  float64
	SMOTEK        int

	ModelKind string
	Params    map[string]any
	Grid      tuning.Grid
	Folds     int

	CategoricalStrategy string
	DropFirst           bool
	Threshold           float64
	Workers             int

	Variant string
	Source  string

	Logger    *logrus.Logger
	Collector *monitoring.Collector
	Allocator memory.Allocator
}

func (o TrainOptions) withDefaults() TrainOptions {
	if len(o.Schema.Required()) == 0 {
		aliases := o.Schema.Aliases
		o.Schema = schema.Default()
		o.Schema.Aliases = aliases
	}
	if o.TestRatio == 0 {
		o.TestRatio = 0.2
	}
	if o.BalanceRatio == 0 {
		o.BalanceRatio = 1
	}
	if o.SMOTEK == 0 {
		o.SMOTEK = 5
	}
	if o.Folds == 0 {
		o.Folds = 5
	}
	if o.Threshold == 0 {
		o.Threshold = model.DefaultThreshold
	}
	return o
}

// Importance is one feature's share of the model's impurity reduction
type Importance struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// TrainResult is everything a run produced
type TrainResult struct {
	Pipeline *Pipeline
	Report   metrics.Report
	Search   *tuning.Result

	TestIDs       []string
	TestActual    []int
	TestPredicted []int
	TestProba     []float64

	TrainCounts     map[int]int
	ResampledCounts map[int]int
	TestCounts      map[int]int

	Importances []Importance
}

// Train fits a pipeline on a labelled raw frame and evaluates it on a
// stratified held-out partition. Resampling only ever sees training rows.
func Train(ctx context.Context, df *dataframe.DataFrame, opts TrainOptions) (*TrainResult, error) {
	if err := validation.ValidateNotEmpty(df, "pipeline.Train"); err != nil {
		return nil, err
	}
	mem := opts.Allocator
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	collector := opts.Collector
	if collector == nil {
		collector = monitoring.NewCollector(nil)
	}
	kind, err := model.NormalizeKind(opts.ModelKind)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	threshold := opts.Threshold

	runID := uuid.NewString()
	if opts.Logger != nil {
		opts.Logger.WithFields(logrus.Fields{
			"run_id":  runID,
			"model":   kind,
			"variant": opts.Variant,
			"rows":    df.Len(),
		}).Info("training started")
	}

	var resolved *dataframe.DataFrame
	err = collector.RecordStage(StageResolve, df.Len(), func() error {
		var err error
		resolved, err = opts.Schema.Resolve(df, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer resolved.Release()

	featureOpts := features.OptionsFor(opts.Schema).WithDates(resolved)
	var engineered *features.Result
	err = collector.RecordStage(StageFeatures, resolved.Len(), func() error {
		var err error
		engineered, err = features.Engineer(resolved, featureOpts, mem)
		return err
	})
	if err != nil {
		return nil, err
	}
	frame := engineered.Frame
	defer frame.Release()

	labels, err := schema.Labels(frame)
	if err != nil {
		return nil, err
	}
	ids, err := schema.IDs(frame)
	if err != nil {
		return nil, err
	}

	var trainIdx, testIdx []int
	err = collector.RecordStage(StageSplit, len(labels), func() error {
		var err error
		trainIdx, testIdx, err = split.StratifiedTrainTest(labels, opts.TestRatio, opts.Seed)
		return err
	})
	if err != nil {
		return nil, err
	}
	trainFrame, err := frame.Take(trainIdx)
	if err != nil {
		return nil, err
	}
	defer trainFrame.Release()
	testFrame, err := frame.Take(testIdx)
	if err != nil {
		return nil, err
	}
	defer testFrame.Release()
	yTrain := gatherInts(labels, trainIdx)
	yTest := gatherInts(labels, testIdx)

	transformer, err := preprocess.NewColumnTransformer(preprocess.Options{
		Numeric:             append(append([]string{}, opts.Schema.Numeric...), engineered.Derived...),
		Categorical:         opts.Schema.Categorical,
		CategoricalStrategy: opts.CategoricalStrategy,
		DropFirst:           opts.DropFirst,
	})
	if err != nil {
		return nil, err
	}
	var XTrain, XTest [][]float64
	err = collector.RecordStage(StagePreprocess, len(trainIdx), func() error {
		var err error
		if XTrain, err = transformer.FitTransform(trainFrame); err != nil {
			return err
		}
		XTest, err = transformer.Transform(testFrame)
		return err
	})
	if err != nil {
		return nil, err
	}

	sampler, err := balance.New(opts.BalanceMethod, opts.SMOTEK, opts.BalanceRatio, opts.Seed)
	if err != nil {
		return nil, err
	}
	modelOpts := model.Options{Seed: opts.Seed, Workers: opts.Workers}

	var (
		clf        model.Classifier
		search     *tuning.Result
		resampledN int
		resampledC map[int]int
	)
	if len(opts.Grid) > 0 {
		s := &tuning.Search{
			Kind:        kind,
			Grid:        opts.Grid,
			Folds:       opts.Folds,
			Seed:        opts.Seed,
			Sampler:     sampler,
			Concurrency: opts.Workers,
			Logger:      opts.Logger,
		}
		err = collector.RecordStage(StageGridSearch, len(XTrain), func() error {
			var err error
			clf, search, err = s.Fit(ctx, XTrain, yTrain, modelOpts)
			return err
		})
		if err != nil {
			return nil, err
		}
		// the refit inside Search saw the same resampled rows
		_, yRes, err := sampler.Resample(XTrain, yTrain)
		if err != nil {
			return nil, err
		}
		resampledN, resampledC = len(yRes), split.Counts(yRes)
	} else {
		var XRes [][]float64
		var yRes []int
		err = collector.RecordStage(StageBalance, len(XTrain), func() error {
			var err error
			XRes, yRes, err = sampler.Resample(XTrain, yTrain)
			return err
		})
		if err != nil {
			return nil, err
		}
		resampledN, resampledC = len(yRes), split.Counts(yRes)

		if clf, err = model.New(kind, opts.Params, modelOpts); err != nil {
			return nil, err
		}
		err = collector.RecordStage(StageFit, len(XRes), func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return clf.Fit(XRes, yRes)
		})
		if err != nil {
			return nil, err
		}
	}

	var (
		report    metrics.Report
		proba     []float64
		predicted []int
	)
	err = collector.RecordStage(StageEvaluate, len(XTest), func() error {
		proba = clf.PredictProba(XTest)
		predicted = model.PredictWithThreshold(proba, threshold)
		var err error
		report, err = metrics.ClassificationReport(yTest, predicted, proba)
		return err
	})
	if err != nil {
		return nil, err
	}

	names := transformer.FeatureNames()
	meta := Metadata{
		RunID:         runID,
		CreatedAt:     time.Now().UTC(),
		ToolVersion:   version.Version,
		Variant:       opts.Variant,
		Source:        opts.Source,
		ModelKind:     kind,
		Params:        clf.Params(),
		Seed:          opts.Seed,
		Balance:       describeBalance(opts),
		TrainRows:     len(trainIdx),
		ResampledRows: resampledN,
		TestRows:      len(testIdx),
		Features:      names,
		Fingerprint:   Fingerprint(Layout(opts.Schema, engineered.Derived)),
		Test: &TestScores{
			F1:        report.F1(),
			Precision: report.Precision(),
			Recall:    report.Recall(),
			Accuracy:  report.Accuracy,
			ROCAUC:    report.ROCAUC,
		},
	}
	if search != nil {
		best := search.BestCandidate()
		meta.CV = &CVSummary{
			Candidates: len(search.Candidates),
			Folds:      search.Folds,
			BestF1:     best.Mean,
			BestStd:    best.Std,
		}
	}

	result := &TrainResult{
		Pipeline: &Pipeline{
			Schema:      opts.Schema,
			Features:    featureOpts,
			Transformer: transformer,
			Model:       clf,
			Threshold:   threshold,
			Metadata:    meta,
		},
		Report:          report,
		Search:          search,
		TestIDs:         gatherStrings(ids, testIdx),
		TestActual:      yTest,
		TestPredicted:   predicted,
		TestProba:       proba,
		TrainCounts:     split.Counts(yTrain),
		ResampledCounts: resampledC,
		TestCounts:      split.Counts(yTest),
		Importances:     rankImportances(names, clf.FeatureImportances()),
	}

	if opts.Logger != nil {
		opts.Logger.WithFields(logrus.Fields{
			"run_id":    runID,
			"f1":        report.F1(),
			"precision": report.Precision(),
			"recall":    report.Recall(),
			"roc_auc":   report.ROCAUC,
		}).Info("training finished")
	}
	return result, nil
}

func describeBalance(opts TrainOptions) string {
	switch opts.BalanceMethod {
	case balance.MethodNone:
		return balance.MethodNone
	case balance.MethodRandom:
		return fmt.Sprintf("random(ratio=%g)", opts.BalanceRatio)
	default:
		return fmt.Sprintf("smote(k=%d, ratio=%g)", opts.SMOTEK, opts.BalanceRatio)
	}
}

func rankImportances(names []string, values []float64) []Importance {
	out := make([]Importance, 0, len(values))
	for i, v := range values {
		if i < len(names) {
			out = append(out, Importance{Feature: names[i], Value: v})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out
}

func gatherInts(values, idx []int) []int {
	out := make([]int, len(idx))
	for i, r := range idx {
		out[i] = values[r]
	}
	return out
}

func gatherStrings(values []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, r := range idx {
		out[i] = values[r]
	}
	return out
}
