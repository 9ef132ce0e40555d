package pipeline

import (
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/escalation/internal/dataframe"
	"github.com/paveg/escalation/internal/errors"
	"github.com/paveg/escalation/internal/io"
	"github.com/paveg/escalation/internal/schema"
	"github.com/paveg/escalation/internal/series"
)

// Prediction export columns
const (
	ColActual      = "actual"
	ColPredicted   = "predicted"
	ColProbability = "probability"
)

// PredictionFrame builds the row-level export. actual may be nil for
// unlabeled data, in which case the actual column is left out.
func PredictionFrame(ids []string, actual, predicted []int, proba []float64, mem memory.Allocator) (*dataframe.DataFrame, error) {
	const op = "pipeline.PredictionFrame"
	n := len(predicted)
	if len(ids) != n || len(proba) != n || (actual != nil && len(actual) != n) {
		return nil, errors.NewValidationError(op, "", "ids, labels and probabilities must have the same length")
	}
	if mem == nil {
		mem = memory.NewGoAllocator()
	}

	cols := []dataframe.ISeries{series.New(schema.ComplaintID, ids, mem)}
	if actual != nil {
		cols = append(cols, series.New(ColActual, toInt64(actual), mem))
	}
	cols = append(cols,
		series.New(ColPredicted, toInt64(predicted), mem),
		series.New(ColProbability, proba, mem),
	)
	return dataframe.New(cols...), nil
}

// ExportPredictions writes the prediction frame to path in the format
// matching its extension.
func ExportPredictions(path string, ids []string, actual, predicted []int, proba []float64, mem memory.Allocator) error {
	df, err := PredictionFrame(ids, actual, predicted, proba, mem)
	if err != nil {
		return err
	}
	defer df.Release()

	opts := io.DefaultFileOptions()
	opts.XLSX.Sheet = "predictions"
	return io.WriteFile(path, df, opts)
}

func toInt64(v []int) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}
	return out
}
