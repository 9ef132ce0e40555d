package balance_test

import (
	"testing"

	"github.com/paveg/escalation/internal/balance"
	"github.com/paveg/escalation/internal/errors"
	"github.com/paveg/escalation/internal/split"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dataset(nNeg, nPos int) ([][]float64, []int) {
	X := make([][]float64, 0, nNeg+nPos)
	y := make([]int, 0, nNeg+nPos)
	for i := 0; i < nNeg; i++ {
		X = append(X, []float64{float64(i), 0})
		y = append(y, 0)
	}
	for i := 0; i < nPos; i++ {
		X = append(X, []float64{float64(i), 10 + float64(i)})
		y = append(y, 1)
	}
	return X, y
}

func TestSMOTE(t *testing.T) {
	X, y := dataset(40, 8)

	t.Run("balances to equal counts", func(t *testing.T) {
		s := &balance.SMOTE{K: 5, Ratio: 1.0, Seed: 42}
		outX, outY, err := s.Resample(X, y)
		require.NoError(t, err)
		assert.Equal(t, map[int]int{0: 40, 1: 40}, split.Counts(outY))
		assert.Equal(t, X, outX[:len(X)], "original rows keep their order")
		assert.Equal(t, y, outY[:len(y)])

		// synthetic rows lie on segments between minority rows
		for _, row := range outX[len(X):] {
			assert.GreaterOrEqual(t, row[0], 0.0)
			assert.LessOrEqual(t, row[0], 7.0)
			assert.GreaterOrEqual(t, row[1], 10.0)
			assert.LessOrEqual(t, row[1], 17.0)
			assert.InDelta(t, row[0]+10, row[1], 1e-9)
		}
	})

	t.Run("configured ratio", func(t *testing.T) {
		s := &balance.SMOTE{K: 3, Ratio: 0.5, Seed: 1}
		_, outY, err := s.Resample(X, y)
		require.NoError(t, err)
		assert.Equal(t, map[int]int{0: 40, 1: 20}, split.Counts(outY))
	})

	t.Run("deterministic for a seed", func(t *testing.T) {
		a, _, err := (&balance.SMOTE{K: 5, Ratio: 1, Seed: 9}).Resample(X, y)
		require.NoError(t, err)
		b, _, err := (&balance.SMOTE{K: 5, Ratio: 1, Seed: 9}).Resample(X, y)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("already balanced", func(t *testing.T) {
		bx, by := dataset(10, 10)
		outX, outY, err := (&balance.SMOTE{K: 5, Ratio: 1, Seed: 1}).Resample(bx, by)
		require.NoError(t, err)
		assert.Equal(t, bx, outX)
		assert.Equal(t, by, outY)
	})

	t.Run("single minority row duplicates", func(t *testing.T) {
		sx, sy := dataset(5, 1)
		outX, outY, err := (&balance.SMOTE{K: 5, Ratio: 1, Seed: 1}).Resample(sx, sy)
		require.NoError(t, err)
		assert.Equal(t, map[int]int{0: 5, 1: 5}, split.Counts(outY))
		for _, row := range outX[len(sx):] {
			assert.Equal(t, sx[5], row)
		}
	})

	t.Run("errors", func(t *testing.T) {
		_, _, err := (&balance.SMOTE{K: 5, Ratio: 1}).Resample(X, y[:3])
		require.ErrorIs(t, err, errors.ErrMismatchedLength)
		_, _, err = (&balance.SMOTE{K: 5, Ratio: 1}).Resample([][]float64{{1}, {2}}, []int{0, 0})
		require.ErrorIs(t, err, errors.ErrSingleClass)
		_, _, err = (&balance.SMOTE{K: 5, Ratio: 1.5}).Resample(X, y)
		require.Error(t, err)
	})
}

func TestRandomOverSampler(t *testing.T) {
	X, y := dataset(30, 6)
	outX, outY, err := (&balance.RandomOverSampler{Ratio: 1, Seed: 3}).Resample(X, y)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{0: 30, 1: 30}, split.Counts(outY))
	for _, row := range outX[len(X):] {
		assert.Contains(t, X[30:], row)
	}
}

func TestNew(t *testing.T) {
	for _, method := range []string{"smote", "random", "none", ""} {
		s, err := balance.New(method, 5, 1, 1)
		require.NoError(t, err)
		assert.NotNil(t, s)
	}
	_, err := balance.New("adasyn", 5, 1, 1)
	require.Error(t, err)

	X, y := dataset(4, 2)
	outX, outY, err := balance.Passthrough{}.Resample(X, y)
	require.NoError(t, err)
	assert.Equal(t, X, outX)
	assert.Equal(t, y, outY)
}
