package escalation_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/escalation"
	"github.com/paveg/escalation/internal/config"
	"github.com/paveg/escalation/internal/logging"
	"github.com/paveg/escalation/internal/monitoring"
	"github.com/paveg/escalation/internal/report"
	"github.com/paveg/escalation/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig(t *testing.T, variant string) config.Config {
	t.Helper()
	cfg, err := config.Variant(variant)
	require.NoError(t, err)
	cfg.ModelParams = map[string]any{"n_estimators": 15, "max_depth": 3}
	cfg.Seed = 5
	return cfg
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	data := testutil.NewComplaints(testutil.WithRows(200), testutil.WithNulls())

	cfg := smallConfig(t, config.VariantGBMExport)
	cfg.DataPath = data.WriteCSV(t, dir, "complaints.csv")
	cfg.ArtifactPath = filepath.Join(dir, "model.escm")
	cfg.PredictionsPath = filepath.Join(dir, "predictions.xlsx")
	cfg.PlotDir = filepath.Join(dir, "plots")
	cfg.MetricsFile = filepath.Join(dir, "metrics", "escalation.prom")

	collector := monitoring.NewCollector(nil)
	res, err := escalation.Run(context.Background(), cfg,
		escalation.WithLogger(logging.Discard()),
		escalation.WithCollector(collector))
	require.NoError(t, err)

	for _, path := range []string{res.ArtifactPath, res.PredictionsPath, res.MetricsFile} {
		_, err := os.Stat(path)
		assert.NoError(t, err, path)
	}
	assert.Contains(t, res.Plots, filepath.Join(cfg.PlotDir, report.ConfusionPlotFile))
	assert.NotEmpty(t, res.Stages)
	assert.Equal(t, "load", res.Stages[0].Stage)

	meta := res.Training.Pipeline.Metadata
	assert.Equal(t, config.VariantGBMExport, meta.Variant)
	assert.Equal(t, cfg.DataPath, meta.Source)

	prom, err := os.ReadFile(res.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "escalation_test_f1")

	// the saved artifact scores the source file exactly like the in-memory model
	loaded, err := escalation.LoadModel(res.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, meta.RunID, loaded.Metadata().RunID)

	ds, err := escalation.LoadDataset(cfg.DataPath, "", nil)
	require.NoError(t, err)
	defer ds.Release()

	want, err := res.Model.Predict(context.Background(), ds)
	require.NoError(t, err)
	got, err := loaded.Predict(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, want.Labels, got.Labels)
	assert.InDeltaSlice(t, want.Probabilities, got.Probabilities, 1e-12)
	assert.Len(t, got.IDs, 200)
	assert.Len(t, got.Actual, 200)
}

func TestRun_Errors(t *testing.T) {
	ctx := context.Background()
	quiet := escalation.WithLogger(logging.Discard())

	t.Run("no data", func(t *testing.T) {
		_, err := escalation.Run(ctx, smallConfig(t, config.VariantRFSMOTE), quiet)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no input data")
	})

	t.Run("missing file", func(t *testing.T) {
		cfg := smallConfig(t, config.VariantRFSMOTE)
		cfg.DataPath = filepath.Join(t.TempDir(), "nope.csv")
		_, err := escalation.Run(ctx, cfg, quiet)
		require.Error(t, err)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := smallConfig(t, config.VariantRFSMOTE)
		cfg.TestRatio = 1.5
		_, err := escalation.Run(ctx, cfg, quiet)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TestRatio")
	})

	t.Run("missing column", func(t *testing.T) {
		data := testutil.NewComplaints(testutil.WithRows(50))
		data.Headers[1] = "mystery"
		cfg := smallConfig(t, config.VariantRFSMOTE)
		cfg.DataPath = data.WriteCSV(t, t.TempDir(), "c.csv")
		cfg.ArtifactPath = filepath.Join(t.TempDir(), "m.escm")
		_, err := escalation.Run(ctx, cfg, quiet)
		require.Error(t, err)
	})
}

func TestRun_WithDataset(t *testing.T) {
	mem := memory.NewGoAllocator()
	dir := t.TempDir()
	path := testutil.NewComplaints(testutil.WithRows(150)).WriteCSV(t, dir, "c.csv")
	ds, err := escalation.LoadDataset(path, "", mem)
	require.NoError(t, err)
	defer ds.Release()
	assert.Equal(t, 150, ds.Len())
	assert.Equal(t, path, ds.Source())

	cfg := smallConfig(t, config.VariantRFSMOTE)
	cfg.ArtifactPath = filepath.Join(dir, "m.escm")
	res, err := escalation.Run(context.Background(), cfg,
		escalation.WithDataset(ds),
		escalation.WithAllocator(mem),
		escalation.WithLogger(logging.Discard()))
	require.NoError(t, err)
	assert.Empty(t, res.PredictionsPath)
	assert.Empty(t, res.Plots)
	assert.Equal(t, "random_forest", res.Training.Pipeline.Metadata.ModelKind)

	// the dataset still belongs to the caller
	assert.Equal(t, 150, ds.Len())
}

func TestTrain_NoSideEffects(t *testing.T) {
	dir := t.TempDir()
	path := testutil.NewComplaints(testutil.WithRows(120)).WriteCSV(t, dir, "c.csv")
	ds, err := escalation.LoadDataset(path, "", nil)
	require.NoError(t, err)
	defer ds.Release()

	cfg := smallConfig(t, config.VariantGBMExport)
	cfg.ArtifactPath = filepath.Join(dir, "m.escm")
	m, result, err := escalation.Train(context.Background(), ds, cfg, escalation.WithLogger(logging.Discard()))
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, result.Pipeline, m.Pipeline())
	assert.InDelta(t, cfg.Threshold, m.Threshold(), 1e-12)

	_, err = os.Stat(cfg.ArtifactPath)
	assert.True(t, os.IsNotExist(err))
}

func TestModel_Predict(t *testing.T) {
	dir := t.TempDir()
	train := testutil.NewComplaints(testutil.WithRows(150)).WriteCSV(t, dir, "train.csv")
	ds, err := escalation.LoadDataset(train, "", nil)
	require.NoError(t, err)
	defer ds.Release()
	m, _, err := escalation.Train(context.Background(), ds, smallConfig(t, config.VariantRFSMOTE),
		escalation.WithLogger(logging.Discard()))
	require.NoError(t, err)

	fresh := testutil.NewComplaints(testutil.WithRows(45), testutil.WithSeed(77), testutil.WithoutID())
	freshDS, err := escalation.LoadDataset(fresh.WriteCSV(t, dir, "fresh.csv"), "", nil)
	require.NoError(t, err)
	defer freshDS.Release()

	t.Run("chunking does not change scores", func(t *testing.T) {
		whole, err := m.Predict(context.Background(), freshDS)
		require.NoError(t, err)
		chunked, err := m.PredictChunked(context.Background(), freshDS, 7)
		require.NoError(t, err)
		assert.Equal(t, whole.Labels, chunked.Labels)
		assert.InDeltaSlice(t, whole.Probabilities, chunked.Probabilities, 1e-12)
		assert.Equal(t, "1", whole.IDs[0], "row numbers stand in for missing ids")
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := m.Predict(ctx, freshDS)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("export", func(t *testing.T) {
		preds, err := m.Predict(context.Background(), freshDS)
		require.NoError(t, err)
		out := filepath.Join(dir, "scored.parquet")
		require.NoError(t, preds.Export(out, nil))

		back, err := escalation.LoadDataset(out, "", nil)
		require.NoError(t, err)
		defer back.Release()
		assert.Equal(t, 45, back.Len())
		assert.Contains(t, back.Columns(), "probability")
	})
}
