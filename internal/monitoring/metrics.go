// Package monitoring records per-stage timings of a pipeline run and exports
// run metrics as a Prometheus textfile.
package monitoring

import (
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// StageMetrics represents the measurements of a single pipeline stage.
type StageMetrics struct {
	Stage      string        `json:"stage"`
	Duration   time.Duration `json:"duration"`
	Rows       int           `json:"rows"`
	MemoryUsed int64         `json:"memory_used"`
	Failed     bool          `json:"failed"`
}

// Collector collects stage metrics in recording order.
type Collector struct {
	mu     sync.RWMutex
	stages []StageMetrics
	logger *logrus.Logger
}

// NewCollector creates a collector. A nil logger disables stage logging.
func NewCollector(logger *logrus.Logger) *Collector {
	return &Collector{
		stages: make([]StageMetrics, 0),
		logger: logger,
	}
}

// RecordStage executes fn and records its duration against stage. rows is
// the number of rows the stage works on.
func (c *Collector) RecordStage(stage string, rows int, fn func() error) error {
	var memBefore runtime.MemStats
	runtime.ReadMemStats(&memBefore)

	start := time.Now()
	err := fn()
	duration := time.Since(start)

	var memAfter runtime.MemStats
	runtime.ReadMemStats(&memAfter)

	m := StageMetrics{
		Stage:      stage,
		Duration:   duration,
		Rows:       rows,
		MemoryUsed: int64(memAfter.TotalAlloc - memBefore.TotalAlloc), //nolint:gosec // allocation deltas fit in int64
		Failed:     err != nil,
	}

	c.mu.Lock()
	c.stages = append(c.stages, m)
	c.mu.Unlock()

	if c.logger != nil {
		entry := c.logger.WithFields(logrus.Fields{
			"stage":    stage,
			"rows":     rows,
			"duration": duration.Round(time.Microsecond).String(),
		})
		if err != nil {
			entry.WithError(err).Error("stage failed")
		} else {
			entry.Info("stage complete")
		}
	}

	return err
}

// Stages returns a copy of the recorded stages.
func (c *Collector) Stages() []StageMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]StageMetrics, len(c.stages))
	copy(result, c.stages)
	return result
}

// Clear removes all recorded stages.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stages = c.stages[:0]
}

// Summary returns aggregate statistics over the recorded stages.
func (c *Collector) Summary() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Summary{StageDurations: make(map[string]time.Duration)}
	if len(c.stages) == 0 {
		return s
	}

	for _, m := range c.stages {
		s.TotalDuration += m.Duration
		s.TotalMemory += m.MemoryUsed
		s.StageDurations[m.Stage] += m.Duration
		if m.Failed {
			s.Failed++
		}
		if m.Duration > s.Slowest.Duration {
			s.Slowest = m
		}
	}
	s.Stages = len(c.stages)
	return s
}

// Summary provides aggregate statistics for a run.
type Summary struct {
	Stages         int                      `json:"stages"`
	Failed         int                      `json:"failed"`
	TotalDuration  time.Duration            `json:"total_duration"`
	TotalMemory    int64                    `json:"total_memory"`
	StageDurations map[string]time.Duration `json:"stage_durations"`
	Slowest        StageMetrics             `json:"slowest"`
}
