package testutil_test

import (
	"os"
	"strings"
	"testing"

	"github.com/paveg/escalation/internal/schema"
	"github.com/paveg/escalation/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewComplaints(t *testing.T) {
	data := testutil.NewComplaints(testutil.WithRows(300))

	require.Len(t, data.Rows, 300)
	assert.Equal(t, schema.ComplaintID, data.Headers[0])
	assert.Equal(t, schema.Target, data.Headers[len(data.Headers)-1])

	pos := data.Positives()
	assert.Greater(t, pos, 20)
	assert.Less(t, pos, 200)
}

func TestNewComplaints_Deterministic(t *testing.T) {
	a := testutil.NewComplaints(testutil.WithSeed(3), testutil.WithRows(50))
	b := testutil.NewComplaints(testutil.WithSeed(3), testutil.WithRows(50))
	c := testutil.NewComplaints(testutil.WithSeed(4), testutil.WithRows(50))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a.Rows, c.Rows)
}

func TestNewComplaints_Options(t *testing.T) {
	data := testutil.NewComplaints(testutil.WithoutDate(), testutil.WithoutID(), testutil.WithNulls(), testutil.WithRows(400))

	assert.NotContains(t, data.Headers, schema.ComplaintDate)
	assert.NotContains(t, data.Headers, schema.ComplaintID)

	var blanks int
	for _, row := range data.Rows {
		assert.NotEmpty(t, row[len(row)-1])
		for _, cell := range row {
			if cell == "" {
				blanks++
			}
		}
	}
	assert.Positive(t, blanks)
}

func TestComplaints_Frame(t *testing.T) {
	mem := testutil.SetupMemoryTest(t)
	defer mem.Release()

	data := testutil.NewComplaints(testutil.WithRows(20), testutil.WithNulls())
	df := data.Frame(mem.Allocator)
	defer df.Release()

	assert.Equal(t, 20, df.Len())
	testutil.AssertFrameHasColumns(t, df, schema.Channel, schema.Target)
}

func TestComplaints_WriteCSV(t *testing.T) {
	data := testutil.NewComplaints(testutil.WithRows(5))
	path := data.WriteCSV(t, t.TempDir(), "complaints.csv")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], schema.ComplaintID+","))
}
