// Package testutil builds synthetic complaint datasets and memory contexts
// shared by the package tests.
package testutil

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/escalation/internal/dataframe"
	"github.com/paveg/escalation/internal/schema"
	"github.com/paveg/escalation/internal/series"
	"github.com/paveg/escalation/internal/split"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultRowCount = 200

// TestMemoryContext provides a checked allocator that fails the test when
// Arrow buffers leak.
type TestMemoryContext struct {
	Allocator *memory.CheckedAllocator
	tb        testing.TB
}

// Release asserts that every allocation was freed.
func (tmc *TestMemoryContext) Release() {
	tmc.Allocator.AssertSize(tmc.tb, 0)
}

// SetupMemoryTest creates a checked allocator for tests.
//
//	mem := testutil.SetupMemoryTest(t)
//	defer mem.Release()
func SetupMemoryTest(tb testing.TB) *TestMemoryContext {
	tb.Helper()
	return &TestMemoryContext{
		Allocator: memory.NewCheckedAllocator(memory.NewGoAllocator()),
		tb:        tb,
	}
}

// ComplaintOption configures synthetic complaint data.
type ComplaintOption func(*complaintConfig)

type complaintConfig struct {
	rows     int
	seed     uint64
	nulls    bool
	withDate bool
	withID   bool
}

// WithRows sets the number of rows.
func WithRows(n int) ComplaintOption {
	return func(cfg *complaintConfig) { cfg.rows = n }
}

// WithSeed sets the generator seed.
func WithSeed(seed uint64) ComplaintOption {
	return func(cfg *complaintConfig) { cfg.seed = seed }
}

// WithNulls blanks roughly one cell in twenty in the feature columns.
func WithNulls() ComplaintOption {
	return func(cfg *complaintConfig) { cfg.nulls = true }
}

// WithoutDate omits the complaint_date column.
func WithoutDate() ComplaintOption {
	return func(cfg *complaintConfig) { cfg.withDate = false }
}

// WithoutID omits the complaint_id column.
func WithoutID() ComplaintOption {
	return func(cfg *complaintConfig) { cfg.withID = false }
}

// Complaints is a synthetic dataset in row-major string form, keyed by the
// canonical column names.
type Complaints struct {
	Headers []string
	Rows    [][]string
}

var (
	accountTypes = []string{"Retail", "Business", "Premium"}
	channels     = []string{"Phone", "Email", "Web", "Branch"}
	reasons      = []string{"Billing", "Service", "Fraud", "Delivery", "Other"}
	lines        = []string{"Cards", "Mortgages", "Savings"}
)

// NewComplaints generates an imbalanced dataset (about a quarter escalated)
// whose target depends on prior escalations, satisfaction, resolution time
// and the Fraud reason, so models can learn it.
func NewComplaints(opts ...ComplaintOption) Complaints {
	cfg := complaintConfig{rows: defaultRowCount, seed: 7, withDate: true, withID: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	rng := split.NewRand(cfg.seed)

	headers := []string{}
	if cfg.withID {
		headers = append(headers, schema.ComplaintID)
	}
	headers = append(headers, schema.DefaultCategorical...)
	headers = append(headers, schema.DefaultNumeric...)
	if cfg.withDate {
		headers = append(headers, schema.ComplaintDate)
	}
	headers = append(headers, schema.Target)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([][]string, cfg.rows)
	for i := range rows {
		account := accountTypes[rng.IntN(len(accountTypes))]
		channel := channels[rng.IntN(len(channels))]
		reason := reasons[rng.IntN(len(reasons))]
		line := lines[rng.IntN(len(lines))]
		length := 50 + rng.IntN(950)
		prior := rng.IntN(6)
		resolution := 1 + rng.IntN(30)
		satisfaction := 1 + rng.IntN(5)
		history := rng.IntN(4)
		age := 18 + rng.IntN(60)

		score := 0.9*float64(history) - 0.7*float64(satisfaction) + 0.08*float64(resolution) + 0.2*float64(prior)
		if reason == "Fraud" {
			score += 1.5
		}
		p := 1 / (1 + math.Exp(-(score - 0.5)))
		escalated := 0
		if rng.Float64() < p {
			escalated = 1
		}

		var row []string
		if cfg.withID {
			row = append(row, fmt.Sprintf("C%05d", i+1))
		}
		row = append(row, account, channel, reason, line,
			strconv.Itoa(length), strconv.Itoa(prior), strconv.Itoa(resolution),
			strconv.Itoa(satisfaction), strconv.Itoa(history), strconv.Itoa(age))
		if cfg.withDate {
			row = append(row, start.AddDate(0, 0, rng.IntN(365)).Format("2006-01-02"))
		}
		row = append(row, strconv.Itoa(escalated))

		if cfg.nulls {
			first := 0
			if cfg.withID {
				first = 1
			}
			// never blank the target or the id
			for j := first; j < len(row)-1; j++ {
				if rng.IntN(20) == 0 {
					row[j] = ""
				}
			}
		}
		rows[i] = row
	}
	return Complaints{Headers: headers, Rows: rows}
}

// Frame builds a string-typed frame from the dataset; empty cells are null.
func (c Complaints) Frame(mem memory.Allocator) *dataframe.DataFrame {
	cols := make([]dataframe.ISeries, len(c.Headers))
	for j, name := range c.Headers {
		values := make([]string, len(c.Rows))
		valid := make([]bool, len(c.Rows))
		for i, row := range c.Rows {
			values[i] = row[j]
			valid[i] = row[j] != ""
		}
		s, err := series.NewWithValidity(name, values, valid, mem)
		if err != nil {
			panic(err)
		}
		cols[j] = s
	}
	return dataframe.New(cols...)
}

// WriteCSV writes the dataset to dir/name and returns the path.
func (c Complaints) WriteCSV(tb testing.TB, dir, name string) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(tb, err)
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	require.NoError(tb, w.Write(c.Headers))
	require.NoError(tb, w.WriteAll(c.Rows))
	return path
}

// Positives counts escalated rows.
func (c Complaints) Positives() int {
	var n int
	last := len(c.Headers) - 1
	for _, row := range c.Rows {
		if row[last] == "1" {
			n++
		}
	}
	return n
}

// AssertFrameHasColumns checks that every expected column exists.
func AssertFrameHasColumns(t *testing.T, df *dataframe.DataFrame, expected ...string) {
	t.Helper()
	for _, name := range expected {
		assert.True(t, df.HasColumn(name), "missing column %s", name)
	}
}
