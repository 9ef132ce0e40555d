package series_test

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/escalation/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	mem := memory.NewGoAllocator()

	t.Run("string series", func(t *testing.T) {
		s := series.New("channel", []string{"Phone", "Email", "Chat"}, mem)
		defer s.Release()

		assert.Equal(t, "channel", s.Name())
		assert.Equal(t, 3, s.Len())
		assert.Equal(t, arrow.BinaryTypes.String, s.DataType())
		assert.Equal(t, []string{"Phone", "Email", "Chat"}, s.Values())
		assert.Equal(t, "Email", s.Value(1))
	})

	t.Run("float series", func(t *testing.T) {
		s := series.New("resolution_time", []float64{1.5, 2.5}, mem)
		defer s.Release()

		assert.Equal(t, arrow.PrimitiveTypes.Float64, s.DataType())
		assert.InDelta(t, 2.5, s.Value(1), 1e-12)
		assert.Equal(t, "1.5", s.GetAsString(0))
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := series.NewSafe("x", []uint8{1}, mem)
		require.Error(t, err)
		assert.Panics(t, func() { series.New("x", []uint8{1}, mem) })
	})
}

func TestNewWithValidity(t *testing.T) {
	mem := memory.NewGoAllocator()

	s, err := series.NewWithValidity("customer_age", []int64{30, 0, 45}, []bool{true, false, true}, mem)
	require.NoError(t, err)
	defer s.Release()

	assert.Equal(t, 1, s.NullN())
	assert.True(t, s.IsNull(1))
	assert.Equal(t, []int64{30, 0, 45}, s.Values())
	assert.Equal(t, []bool{true, false, true}, s.Validity())
	assert.Equal(t, "", s.GetAsString(1))
	assert.Equal(t, "45", s.GetAsString(2))
	assert.Contains(t, s.String(), "nulls=1")

	_, err = series.NewWithValidity("bad", []int64{1, 2}, []bool{true}, mem)
	require.Error(t, err)
}

func TestSeries_OutOfRange(t *testing.T) {
	s := series.New("flag", []bool{true}, memory.NewGoAllocator())
	defer s.Release()

	assert.False(t, s.Value(5))
	assert.Equal(t, "", s.GetAsString(-1))
	assert.Equal(t, "true", s.GetAsString(0))
}

func TestSeries_Rename(t *testing.T) {
	s := series.New("Account Type", []string{"Gold"}, memory.NewGoAllocator())
	renamed := s.Rename("account_type")
	s.Release()
	defer renamed.Release()

	assert.Equal(t, "account_type", renamed.Name())
	assert.Equal(t, "Gold", renamed.Value(0))
}
