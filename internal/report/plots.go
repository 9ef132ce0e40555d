package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"

	"github.com/paveg/escalation/internal/metrics"
	"github.com/paveg/escalation/internal/pipeline"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Plot file names written by WritePlots
const (
	ImportancePlotFile = "feature_importance.png"
	ConfusionPlotFile  = "confusion_matrix.png"
	ROCPlotFile        = "roc_curve.png"
)

// ImportancePlot draws the topN importances as horizontal bars, largest on
// top.
func ImportancePlot(path string, imps []pipeline.Importance, topN int) error {
	if len(imps) == 0 {
		return fmt.Errorf("no feature importances to plot")
	}
	if topN <= 0 || topN > len(imps) {
		topN = len(imps)
	}

	// plot rows run bottom-up, so reverse the ranking
	values := make(plotter.Values, topN)
	names := make([]string, topN)
	for i := 0; i < topN; i++ {
		imp := imps[topN-1-i]
		values[i] = imp.Value
		names[i] = imp.Feature
	}

	p := plot.New()
	p.Title.Text = "Feature importance"
	p.X.Label.Text = "share of impurity reduction"

	bars, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return err
	}
	bars.Horizontal = true
	bars.Color = color.RGBA{R: 46, G: 134, B: 193, A: 255}
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalY(names...)

	height := vg.Length(topN)*vg.Points(18) + 1.5*vg.Inch
	return save(p, 7*vg.Inch, height, path)
}

// confusionGrid exposes a confusion matrix as a heat map grid with
// predicted class on X and actual class on Y.
type confusionGrid [2][2]int

func (g confusionGrid) Dims() (c, r int)   { return 2, 2 }
func (g confusionGrid) Z(c, r int) float64 { return float64(g[r][c]) }
func (g confusionGrid) X(c int) float64    { return float64(c) }
func (g confusionGrid) Y(r int) float64    { return float64(r) }

// ConfusionPlot draws the confusion matrix as an annotated heat map.
func ConfusionPlot(path string, c metrics.Confusion) error {
	grid := confusionGrid(c.Matrix())

	p := plot.New()
	p.Title.Text = "Confusion matrix"
	p.X.Label.Text = "predicted"
	p.Y.Label.Text = "actual"

	heat := plotter.NewHeatMap(grid, palette.Heat(16, 1))
	p.Add(heat)

	var labels plotter.XYLabels
	for r := 0; r < 2; r++ {
		for col := 0; col < 2; col++ {
			labels.XYs = append(labels.XYs, plotter.XY{X: grid.X(col), Y: grid.Y(r)})
			labels.Labels = append(labels.Labels, strconv.Itoa(grid[r][col]))
		}
	}
	annotations, err := plotter.NewLabels(labels)
	if err != nil {
		return err
	}
	p.Add(annotations)
	p.NominalX(metrics.ClassNames[0], metrics.ClassNames[1])
	p.NominalY(metrics.ClassNames[0], metrics.ClassNames[1])

	return save(p, 5*vg.Inch, 5*vg.Inch, path)
}

// ROCPlot draws the ROC curve with the chance diagonal.
func ROCPlot(path string, actual []int, proba []float64) error {
	fpr, tpr, err := metrics.ROCCurve(actual, proba)
	if err != nil {
		return err
	}
	auc, err := metrics.ROCAUC(actual, proba)
	if err != nil {
		return err
	}

	pts := make(plotter.XYs, len(fpr))
	for i := range fpr {
		pts[i] = plotter.XY{X: fpr[i], Y: tpr[i]}
	}

	p := plot.New()
	p.Title.Text = "ROC curve"
	p.X.Label.Text = "false positive rate"
	p.Y.Label.Text = "true positive rate"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1

	curve, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	curve.LineStyle.Width = vg.Points(2)
	curve.LineStyle.Color = color.RGBA{R: 192, G: 57, B: 43, A: 255}

	chance, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
	if err != nil {
		return err
	}
	chance.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}

	p.Add(curve, chance)
	p.Legend.Add(fmt.Sprintf("model (AUC %.3f)", auc), curve)
	p.Legend.Add("chance", chance)
	p.Legend.Top = false
	p.Legend.Left = false

	return save(p, 5*vg.Inch, 5*vg.Inch, path)
}

// WritePlots writes every plot for a training run into dir and returns the
// written paths. The ROC curve is skipped when the held-out partition has a
// single class.
func WritePlots(dir string, result *pipeline.TrainResult, topN int) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating plot directory: %w", err)
	}
	var written []string

	path := filepath.Join(dir, ImportancePlotFile)
	if err := ImportancePlot(path, result.Importances, topN); err != nil {
		return written, fmt.Errorf("importance plot: %w", err)
	}
	written = append(written, path)

	path = filepath.Join(dir, ConfusionPlotFile)
	if err := ConfusionPlot(path, result.Report.Confusion); err != nil {
		return written, fmt.Errorf("confusion plot: %w", err)
	}
	written = append(written, path)

	if _, _, err := metrics.ROCCurve(result.TestActual, result.TestProba); err == nil {
		path = filepath.Join(dir, ROCPlotFile)
		if err := ROCPlot(path, result.TestActual, result.TestProba); err != nil {
			return written, fmt.Errorf("roc plot: %w", err)
		}
		written = append(written, path)
	}
	return written, nil
}

func save(p *plot.Plot, w, h vg.Length, path string) error {
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}
