package report_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/escalation/internal/metrics"
	"github.com/paveg/escalation/internal/monitoring"
	"github.com/paveg/escalation/internal/pipeline"
	"github.com/paveg/escalation/internal/report"
	"github.com/paveg/escalation/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainSmall(t *testing.T) *pipeline.TrainResult {
	t.Helper()
	mem := memory.NewGoAllocator()
	df := testutil.NewComplaints(testutil.WithRows(160)).Frame(mem)
	defer df.Release()

	result, err := pipeline.Train(context.Background(), df, pipeline.TrainOptions{
		Seed:          3,
		BalanceMethod: "smote",
		ModelKind:     "random_forest",
		Params:        map[string]any{"n_estimators": 10, "max_depth": 5},
		Variant:       "rf-smote",
		Allocator:     mem,
	})
	require.NoError(t, err)
	return result
}

func TestUseColor(t *testing.T) {
	var buf bytes.Buffer
	tests := []struct {
		mode    string
		want    bool
		wantErr bool
	}{
		{mode: report.ColorAlways, want: true},
		{mode: report.ColorNever, want: false},
		{mode: report.ColorAuto, want: false},
		{mode: "", want: false},
		{mode: "rainbow", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			got, err := report.UseColor(&buf, tt.mode)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("NO_COLOR", func(t *testing.T) {
		t.Setenv("NO_COLOR", "1")
		got, err := report.UseColor(os.Stdout, report.ColorAuto)
		require.NoError(t, err)
		assert.False(t, got)
	})
}

func TestPrinter_Training(t *testing.T) {
	result := trainSmall(t)

	var buf bytes.Buffer
	report.NewPrinter(&buf, false).Training(result, 5)
	out := buf.String()

	assert.Contains(t, out, result.Pipeline.Metadata.RunID)
	assert.Contains(t, out, "variant    rf-smote")
	assert.Contains(t, out, "Held-out evaluation")
	assert.Contains(t, out, "Confusion matrix")
	assert.Contains(t, out, metrics.ClassNames[1])
	assert.Contains(t, out, result.Importances[0].Feature)
	assert.NotContains(t, out, "\x1b[", "colour disabled")
	assert.NotContains(t, out, "Grid search")
}

func TestPrinter_Colored(t *testing.T) {
	var buf bytes.Buffer
	report.NewPrinter(&buf, true).Predictions([]int{0, 1, 1, 0}, "")
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestPrinter_Predictions(t *testing.T) {
	var buf bytes.Buffer
	report.NewPrinter(&buf, false).Predictions([]int{0, 1, 1, 0}, "out.csv")
	assert.Equal(t, "4 rows scored, 2 predicted escalated (50.0%), written to out.csv\n", buf.String())

	buf.Reset()
	report.NewPrinter(&buf, false).Predictions(nil, "")
	assert.Equal(t, "0 rows scored, 0 predicted escalated (0.0%)\n", buf.String())
}

func TestPrinter_Metadata(t *testing.T) {
	meta := pipeline.Metadata{
		RunID:       "run-1",
		CreatedAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		ToolVersion: "1.2.0",
		ModelKind:   "gradient_boosting",
		Params:      map[string]any{"max_depth": 3},
		Balance:     "smote",
		Features:    []string{"a", "b"},
		Fingerprint: 0xabc,
		CV:          &pipeline.CVSummary{Candidates: 8, Folds: 5, BestF1: 0.8, BestStd: 0.02},
		Test:        &pipeline.TestScores{F1: 0.7},
	}
	var buf bytes.Buffer
	report.NewPrinter(&buf, false).Metadata(meta, 0.4)
	out := buf.String()

	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "2024-05-01 12:00:00 UTC")
	assert.Contains(t, out, "threshold    0.4")
	assert.Contains(t, out, "fingerprint 0000000000000abc")
	assert.Contains(t, out, "8 candidates, 5 folds")
	assert.Contains(t, out, "F1           0.7000")
}

func TestPrinter_Confusion(t *testing.T) {
	var buf bytes.Buffer
	report.NewPrinter(&buf, false).Confusion(metrics.Confusion{TN: 50, FP: 4, FN: 3, TP: 11})
	out := buf.String()
	assert.Contains(t, out, "not_escalated")
	assert.Contains(t, out, "50")
	assert.Contains(t, out, "11")
}

func TestPrinter_Stages(t *testing.T) {
	var buf bytes.Buffer
	p := report.NewPrinter(&buf, false)
	p.Stages(nil)
	assert.Empty(t, buf.String())

	p.Stages([]monitoring.StageMetrics{{Stage: "split", Rows: 100, Duration: time.Millisecond}})
	assert.Contains(t, buf.String(), "split")
	assert.Contains(t, buf.String(), "100 rows")
}

func TestWritePlots(t *testing.T) {
	result := trainSmall(t)
	dir := filepath.Join(t.TempDir(), "plots")

	written, err := report.WritePlots(dir, result, 10)
	require.NoError(t, err)
	require.Len(t, written, 3)

	for _, name := range []string{report.ImportancePlotFile, report.ConfusionPlotFile, report.ROCPlotFile} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Positive(t, info.Size(), name)
	}
}

func TestPlots_Errors(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, report.ImportancePlot(filepath.Join(dir, "i.png"), nil, 5))
	assert.Error(t, report.ROCPlot(filepath.Join(dir, "r.png"), []int{1, 1}, []float64{0.2, 0.9}))
	assert.NoError(t, report.ConfusionPlot(filepath.Join(dir, "c.png"), metrics.Confusion{TN: 1}))
}
