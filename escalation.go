// Package escalation trains and applies a classifier that predicts whether
// a customer complaint will be escalated.
//
// This package is the sole public API of the module. A typical run loads a
// configuration, trains, and saves the artifact:
//
//	cfg, err := config.Variant(config.VariantGBMGrid)
//	cfg.DataPath = "complaints.xlsx"
//	res, err := escalation.Run(ctx, cfg)
//
// Scoring new complaints reuses the saved artifact:
//
//	m, err := escalation.LoadModel("escalation_model.escm")
//	ds, err := escalation.LoadDataset("new.csv", "", nil)
//	defer ds.Release()
//	preds, err := m.Predict(ctx, ds)
package escalation

import (
	"context"
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/escalation/internal/config"
	"github.com/paveg/escalation/internal/dataframe"
	"github.com/paveg/escalation/internal/io"
	"github.com/paveg/escalation/internal/logging"
	"github.com/paveg/escalation/internal/monitoring"
	"github.com/paveg/escalation/internal/persist"
	"github.com/paveg/escalation/internal/pipeline"
	"github.com/paveg/escalation/internal/report"
	"github.com/paveg/escalation/internal/schema"
	"github.com/paveg/escalation/internal/tuning"
	"github.com/sirupsen/logrus"
)

// Dataset is a loaded complaint table.
type Dataset struct {
	df     *dataframe.DataFrame
	source string
}

// LoadDataset reads a CSV, XLSX or Parquet file. sheet selects the XLSX
// worksheet; empty means the first. A nil allocator uses the Go allocator.
func LoadDataset(path, sheet string, mem memory.Allocator) (*Dataset, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	opts := io.DefaultFileOptions()
	opts.XLSX.Sheet = sheet
	df, err := io.ReadFile(path, opts, mem)
	if err != nil {
		return nil, err
	}
	return &Dataset{df: df, source: path}, nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return d.df.Len() }

// Columns returns the column names as they appear in the source.
func (d *Dataset) Columns() []string { return d.df.Columns() }

// Source returns the path the dataset was read from.
func (d *Dataset) Source() string { return d.source }

// Release frees the memory used by the dataset.
func (d *Dataset) Release() {
	if d != nil && d.df != nil {
		d.df.Release()
	}
}

// Option adjusts how Train and Run execute.
type Option func(*options)

type options struct {
	logger    *logrus.Logger
	collector *monitoring.Collector
	mem       memory.Allocator
	dataset   *Dataset
}

// WithLogger replaces the logger built from the configuration.
func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCollector records stage timings into c.
func WithCollector(c *monitoring.Collector) Option {
	return func(o *options) { o.collector = c }
}

// WithAllocator sets the Arrow allocator for every frame the run builds.
func WithAllocator(mem memory.Allocator) Option {
	return func(o *options) { o.mem = mem }
}

// WithDataset makes Run use an already loaded dataset instead of reading
// Config.DataPath. The caller keeps ownership.
func WithDataset(ds *Dataset) Option {
	return func(o *options) { o.dataset = ds }
}

func buildOptions(cfg config.Config, opts []Option) (*options, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
		if err != nil {
			return nil, err
		}
		o.logger = logger
	}
	if o.collector == nil {
		o.collector = monitoring.NewCollector(o.logger)
	}
	if o.mem == nil {
		o.mem = memory.NewGoAllocator()
	}
	return o, nil
}

// TrainOptions maps a configuration onto pipeline options.
func TrainOptions(cfg config.Config) pipeline.TrainOptions {
	s := schema.Default()
	if len(cfg.Categorical) > 0 {
		s.Categorical = append([]string{}, cfg.Categorical...)
	}
	if len(cfg.Numeric) > 0 {
		s.Numeric = append([]string{}, cfg.Numeric...)
	}
	s.Aliases = cfg.Aliases

	folds := 0
	if len(cfg.Grid) > 0 {
		folds = cfg.CVFolds
	}
	return pipeline.TrainOptions{
		Schema:              s,
		TestRatio:           cfg.TestRatio,
		Seed:                cfg.Seed,
		BalanceMethod:       cfg.BalanceMethod,
		BalanceRatio:        cfg.BalanceRatio,
		SMOTEK:              cfg.SMOTEK,
		ModelKind:           cfg.ModelKind,
		Params:              cfg.ModelParams,
		Grid:                tuning.Grid(cfg.Grid),
		Folds:               folds,
		CategoricalStrategy: cfg.CategoricalImpute,
		DropFirst:           cfg.DropFirst,
		Threshold:           cfg.Threshold,
		Workers:             cfg.Workers,
		Variant:             cfg.Variant,
	}
}

// Train fits a pipeline on ds without writing anything to disk.
func Train(ctx context.Context, ds *Dataset, cfg config.Config, opts ...Option) (*Model, *pipeline.TrainResult, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	o, err := buildOptions(cfg, opts)
	if err != nil {
		return nil, nil, err
	}
	return train(ctx, ds, cfg, o)
}

func train(ctx context.Context, ds *Dataset, cfg config.Config, o *options) (*Model, *pipeline.TrainResult, error) {
	topts := TrainOptions(cfg)
	topts.Source = ds.source
	topts.Logger = o.logger
	topts.Collector = o.collector
	topts.Allocator = o.mem

	result, err := pipeline.Train(ctx, ds.df, topts)
	if err != nil {
		return nil, nil, err
	}
	return &Model{p: result.Pipeline, mem: o.mem}, result, nil
}

// RunResult is everything Run produced.
type RunResult struct {
	Model           *Model
	Training        *pipeline.TrainResult
	ArtifactPath    string
	PredictionsPath string
	Plots           []string
	MetricsFile     string
	Stages          []monitoring.StageMetrics
}

// Run executes a full training run from configuration: load the data,
// train, save the artifact, then write whichever of the predictions
// export, plots and metrics textfile the configuration asks for.
func Run(ctx context.Context, cfg config.Config, opts ...Option) (*RunResult, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o, err := buildOptions(cfg, opts)
	if err != nil {
		return nil, err
	}
	for _, w := range cfg.Warnings() {
		o.logger.Warn(w)
	}

	ds := o.dataset
	if ds == nil {
		if cfg.DataPath == "" {
			return nil, fmt.Errorf("no input data: set data_path or pass a dataset")
		}
		err = o.collector.RecordStage("load", 0, func() error {
			var err error
			ds, err = LoadDataset(cfg.DataPath, cfg.Sheet, o.mem)
			return err
		})
		if err != nil {
			return nil, err
		}
		defer ds.Release()
	}

	m, result, err := train(ctx, ds, cfg, o)
	if err != nil {
		return nil, err
	}
	log := logging.WithRun(o.logger, result.Pipeline.Metadata.RunID)
	res := &RunResult{Model: m, Training: result}

	if cfg.ArtifactPath != "" {
		if err := m.Save(cfg.ArtifactPath); err != nil {
			return nil, err
		}
		res.ArtifactPath = cfg.ArtifactPath
		log.WithField("path", cfg.ArtifactPath).Info("artifact saved")
	}

	if cfg.PredictionsPath != "" {
		err := pipeline.ExportPredictions(cfg.PredictionsPath,
			result.TestIDs, result.TestActual, result.TestPredicted, result.TestProba, o.mem)
		if err != nil {
			return nil, fmt.Errorf("exporting predictions: %w", err)
		}
		res.PredictionsPath = cfg.PredictionsPath
		log.WithFields(logrus.Fields{"path": cfg.PredictionsPath, "rows": len(result.TestIDs)}).Info("predictions exported")
	}

	if cfg.PlotDir != "" {
		plots, err := report.WritePlots(cfg.PlotDir, result, 20)
		if err != nil {
			return nil, err
		}
		res.Plots = plots
		log.WithField("plots", len(plots)).Info("plots written")
	}

	res.Stages = o.collector.Stages()
	if cfg.MetricsFile != "" {
		if err := o.collector.WriteTextfile(cfg.MetricsFile, runMetrics(result)); err != nil {
			return nil, err
		}
		res.MetricsFile = cfg.MetricsFile
		log.WithField("path", cfg.MetricsFile).Debug("metrics textfile written")
	}
	return res, nil
}

func runMetrics(result *pipeline.TrainResult) monitoring.RunMetrics {
	run := monitoring.RunMetrics{
		TestF1:        result.Report.F1(),
		TestPrecision: result.Report.Precision(),
		TestRecall:    result.Report.Recall(),
	}
	if cv := result.Pipeline.Metadata.CV; cv != nil {
		run.CVBestF1 = cv.BestF1
		run.HasCV = true
	}
	return run
}

// Model is a fitted pipeline ready to score complaints.
type Model struct {
	p   *pipeline.Pipeline
	mem memory.Allocator
}

// LoadModel reads an artifact written by Save.
func LoadModel(path string) (*Model, error) {
	p, err := persist.Load(path)
	if err != nil {
		return nil, err
	}
	return &Model{p: p, mem: memory.NewGoAllocator()}, nil
}

// Save writes the model artifact atomically.
func (m *Model) Save(path string) error {
	return persist.Save(path, m.p)
}

// Metadata describes the training run that produced the model.
func (m *Model) Metadata() pipeline.Metadata { return m.p.Metadata }

// Threshold is the probability cut-off for the escalated label.
func (m *Model) Threshold() float64 { return m.p.Threshold }

// Pipeline exposes the fitted pipeline.
func (m *Model) Pipeline() *pipeline.Pipeline { return m.p }

// Predictions holds one score per input row.
type Predictions struct {
	IDs           []string
	Actual        []int // nil unless every row carries a valid label
	Labels        []int
	Probabilities []float64
}

// Export writes the predictions to path as CSV, XLSX or Parquet.
func (p *Predictions) Export(path string, mem memory.Allocator) error {
	return pipeline.ExportPredictions(path, p.IDs, p.Actual, p.Labels, p.Probabilities, mem)
}
