package monitoring

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics are the evaluation scores exported alongside stage timings.
type RunMetrics struct {
	TestF1        float64
	TestPrecision float64
	TestRecall    float64
	CVBestF1      float64
	HasCV         bool
}

// Registry builds a private registry holding the stage durations and the
// run scores. The default registry is never touched.
func (c *Collector) Registry(run RunMetrics) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()

	stageDuration := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "escalation_stage_duration_seconds",
			Help: "Wall-clock duration of each pipeline stage",
		},
		[]string{"stage"},
	)
	testF1 := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "escalation_test_f1",
		Help: "F1 score of the escalated class on the held-out partition",
	})
	testPrecision := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "escalation_test_precision",
		Help: "Precision of the escalated class on the held-out partition",
	})
	testRecall := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "escalation_test_recall",
		Help: "Recall of the escalated class on the held-out partition",
	})

	collectors := []prometheus.Collector{stageDuration, testF1, testPrecision, testRecall}
	if run.HasCV {
		cvBest := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "escalation_cv_best_f1",
			Help: "Mean cross-validated F1 of the selected grid candidate",
		})
		cvBest.Set(run.CVBestF1)
		collectors = append(collectors, cvBest)
	}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("registering metric: %w", err)
		}
	}

	for stage, d := range c.Summary().StageDurations {
		stageDuration.WithLabelValues(stage).Set(d.Seconds())
	}
	testF1.Set(run.TestF1)
	testPrecision.Set(run.TestPrecision)
	testRecall.Set(run.TestRecall)

	return reg, nil
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (c *Collector) WriteTextfile(path string, run RunMetrics) error {
	reg, err := c.Registry(run)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}
	return nil
}
