package escalation

import (
	"context"
	"fmt"

	"github.com/paveg/escalation/internal/dataframe"
	"github.com/paveg/escalation/internal/schema"
)

// DefaultChunkSize is the number of rows scored per batch
const DefaultChunkSize = 10000

// chunkRanges splits n rows into [start, end) ranges of at most size rows.
func chunkRanges(n, size int) [][2]int {
	if size <= 0 {
		size = DefaultChunkSize
	}
	ranges := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		ranges = append(ranges, [2]int{start, min(start+size, n)})
	}
	return ranges
}

func rowIndices(start, end int) []int {
	idx := make([]int, end-start)
	for i := range idx {
		idx[i] = start + i
	}
	return idx
}

// Predict scores every row of ds. Rows are processed in chunks of
// DefaultChunkSize and ctx is checked between chunks.
func (m *Model) Predict(ctx context.Context, ds *Dataset) (*Predictions, error) {
	return m.PredictChunked(ctx, ds, DefaultChunkSize)
}

// PredictChunked scores ds in chunks of chunkSize rows. The result does not
// depend on the chunk size.
func (m *Model) PredictChunked(ctx context.Context, ds *Dataset, chunkSize int) (*Predictions, error) {
	resolved, err := m.p.Schema.Resolve(ds.df, false)
	if err != nil {
		return nil, err
	}
	defer resolved.Release()

	out := &Predictions{
		Labels:        make([]int, 0, ds.Len()),
		Probabilities: make([]float64, 0, ds.Len()),
	}
	if out.IDs, err = schema.IDs(resolved); err != nil {
		return nil, err
	}
	if resolved.HasColumn(schema.Target) {
		if labels, err := schema.Labels(resolved); err == nil {
			out.Actual = labels
		}
	}

	err = WithMemoryManager(m.mem, func(manager *MemoryManager) error {
		for _, r := range chunkRanges(ds.Len(), chunkSize) {
			if err := ctx.Err(); err != nil {
				return err
			}
			labels, proba, err := m.scoreChunk(ds.df, r, manager)
			if err != nil {
				return err
			}
			out.Labels = append(out.Labels, labels...)
			out.Probabilities = append(out.Probabilities, proba...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scoreChunk predicts rows [r[0], r[1]) of df. The chunk frame is released
// before returning.
func (m *Model) scoreChunk(df *dataframe.DataFrame, r [2]int, manager *MemoryManager) ([]int, []float64, error) {
	chunk, err := m.chunk(df, r, manager)
	if err != nil {
		return nil, nil, err
	}
	if chunk != df {
		defer manager.Release(chunk)
	}
	labels, proba, err := m.p.Predict(chunk, m.mem)
	if err != nil {
		return nil, nil, fmt.Errorf("scoring rows %d-%d: %w", r[0]+1, r[1], err)
	}
	return labels, proba, nil
}

func (m *Model) chunk(df *dataframe.DataFrame, r [2]int, manager *MemoryManager) (*dataframe.DataFrame, error) {
	if r[0] == 0 && r[1] == df.Len() {
		return df, nil
	}
	chunk, err := df.Take(rowIndices(r[0], r[1]))
	if err != nil {
		return nil, err
	}
	manager.Track(chunk)
	return chunk, nil
}
