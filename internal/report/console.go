// Package report renders training and inspection results for people: a
// colourised console summary and PNG plots.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/paveg/escalation/internal/metrics"
	"github.com/paveg/escalation/internal/monitoring"
	"github.com/paveg/escalation/internal/pipeline"
	"github.com/paveg/escalation/internal/tuning"
	"golang.org/x/term"
)

// Colour modes
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// UseColor decides whether output to w should be colourised. auto colours
// only terminals and honours NO_COLOR.
func UseColor(w io.Writer, mode string) (bool, error) {
	switch strings.ToLower(mode) {
	case ColorAlways, "on":
		return true, nil
	case ColorNever, "off":
		return false, nil
	case ColorAuto, "":
		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			return false, nil
		}
		f, ok := w.(*os.File)
		return ok && term.IsTerminal(int(f.Fd())), nil
	default:
		return false, fmt.Errorf("invalid color mode %q (want auto, always or never)", mode)
	}
}

// Printer writes human-readable summaries
type Printer struct {
	out     io.Writer
	heading *color.Color
	good    *color.Color
	warn    *color.Color
	bad     *color.Color
	dim     *color.Color
}

// NewPrinter returns a printer writing to out.
func NewPrinter(out io.Writer, colored bool) *Printer {
	p := &Printer{
		out:     out,
		heading: color.New(color.FgCyan, color.Bold),
		good:    color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		bad:     color.New(color.FgRed),
		dim:     color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.heading, p.good, p.warn, p.bad, p.dim} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p *Printer) section(title string) {
	fmt.Fprintln(p.out)
	p.heading.Fprintln(p.out, title)
}

// score colours a metric: green from 0.75, yellow from 0.5, red below.
func (p *Printer) score(v float64) string {
	s := fmt.Sprintf("%.4f", v)
	switch {
	case v >= 0.75:
		return p.good.Sprint(s)
	case v >= 0.5:
		return p.warn.Sprint(s)
	default:
		return p.bad.Sprint(s)
	}
}

// Training prints the outcome of a training run.
func (p *Printer) Training(result *pipeline.TrainResult, topN int) {
	meta := result.Pipeline.Metadata

	p.section("Run")
	fmt.Fprintf(p.out, "  run id     %s\n", meta.RunID)
	if meta.Variant != "" {
		fmt.Fprintf(p.out, "  variant    %s\n", meta.Variant)
	}
	fmt.Fprintf(p.out, "  model      %s %s\n", meta.ModelKind, tuning.FormatParams(meta.Params))
	fmt.Fprintf(p.out, "  balancing  %s\n", meta.Balance)
	fmt.Fprintf(p.out, "  rows       train %d (%s) -> resampled %d (%s), test %d (%s)\n",
		meta.TrainRows, counts(result.TrainCounts),
		meta.ResampledRows, counts(result.ResampledCounts),
		meta.TestRows, counts(result.TestCounts))

	if result.Search != nil {
		p.Search(result.Search)
	}

	p.section("Held-out evaluation")
	fmt.Fprintf(p.out, "  F1         %s\n", p.score(result.Report.F1()))
	fmt.Fprintf(p.out, "  precision  %s\n", p.score(result.Report.Precision()))
	fmt.Fprintf(p.out, "  recall     %s\n", p.score(result.Report.Recall()))
	fmt.Fprintf(p.out, "  ROC AUC    %s\n", p.score(result.Report.ROCAUC))

	p.section("Classification report")
	fmt.Fprint(p.out, indent(result.Report.String()))

	p.section("Confusion matrix")
	p.Confusion(result.Report.Confusion)

	if len(result.Importances) > 0 {
		p.section("Feature importances")
		p.Importances(result.Importances, topN)
	}
}

// Search prints grid search candidates ordered by mean F1.
func (p *Printer) Search(res *tuning.Result) {
	p.section(fmt.Sprintf("Grid search (%d candidates x %d folds)", len(res.Candidates), res.Folds))
	order := make([]int, len(res.Candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return res.Candidates[order[a]].Mean > res.Candidates[order[b]].Mean
	})
	for _, i := range order {
		c := res.Candidates[i]
		line := fmt.Sprintf("  %.4f +/- %.4f  %s", c.Mean, c.Std, tuning.FormatParams(c.Params))
		if i == res.Best {
			fmt.Fprintln(p.out, p.good.Sprint(line+"  <- best"))
		} else {
			fmt.Fprintln(p.out, line)
		}
	}
}

// Confusion prints the 2x2 matrix with actual classes as rows.
func (p *Printer) Confusion(c metrics.Confusion) {
	width := len(metrics.ClassNames[0])
	fmt.Fprintf(p.out, "  %*s  %*s  %*s\n", width, "actual \\ pred", width, metrics.ClassNames[0], width, metrics.ClassNames[1])
	m := c.Matrix()
	for i, row := range m {
		fmt.Fprintf(p.out, "  %*s  %*d  %*d\n", width, metrics.ClassNames[i], width, row[0], width, row[1])
	}
}

// Importances prints the topN features as a text bar chart. topN <= 0
// prints all.
func (p *Printer) Importances(imps []pipeline.Importance, topN int) {
	if topN <= 0 || topN > len(imps) {
		topN = len(imps)
	}
	width := 0
	for _, imp := range imps[:topN] {
		width = max(width, len(imp.Feature))
	}
	for _, imp := range imps[:topN] {
		bar := strings.Repeat("#", int(imp.Value*50+0.5))
		fmt.Fprintf(p.out, "  %-*s %.4f %s\n", width, imp.Feature, imp.Value, p.dim.Sprint(bar))
	}
}

// Metadata prints what an artifact records about its training run.
func (p *Printer) Metadata(meta pipeline.Metadata, threshold float64) {
	p.section("Model")
	fmt.Fprintf(p.out, "  run id       %s\n", meta.RunID)
	fmt.Fprintf(p.out, "  created      %s\n", meta.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(p.out, "  written by   %s\n", meta.ToolVersion)
	if meta.Variant != "" {
		fmt.Fprintf(p.out, "  variant      %s\n", meta.Variant)
	}
	if meta.Source != "" {
		fmt.Fprintf(p.out, "  trained on   %s\n", meta.Source)
	}
	fmt.Fprintf(p.out, "  model        %s %s\n", meta.ModelKind, tuning.FormatParams(meta.Params))
	fmt.Fprintf(p.out, "  threshold    %g\n", threshold)
	fmt.Fprintf(p.out, "  balancing    %s\n", meta.Balance)
	fmt.Fprintf(p.out, "  seed         %d\n", meta.Seed)
	fmt.Fprintf(p.out, "  rows         train %d, resampled %d, test %d\n", meta.TrainRows, meta.ResampledRows, meta.TestRows)
	fmt.Fprintf(p.out, "  features     %d (fingerprint %016x)\n", len(meta.Features), meta.Fingerprint)

	if meta.CV != nil {
		p.section("Cross-validation")
		fmt.Fprintf(p.out, "  best F1      %s +/- %.4f (%d candidates, %d folds)\n",
			p.score(meta.CV.BestF1), meta.CV.BestStd, meta.CV.Candidates, meta.CV.Folds)
	}
	if meta.Test != nil {
		p.section("Held-out evaluation")
		fmt.Fprintf(p.out, "  F1           %s\n", p.score(meta.Test.F1))
		fmt.Fprintf(p.out, "  precision    %s\n", p.score(meta.Test.Precision))
		fmt.Fprintf(p.out, "  recall       %s\n", p.score(meta.Test.Recall))
		fmt.Fprintf(p.out, "  accuracy     %s\n", p.score(meta.Test.Accuracy))
		fmt.Fprintf(p.out, "  ROC AUC      %s\n", p.score(meta.Test.ROCAUC))
	}
}

// Predictions prints a one-line summary of a prediction run.
func (p *Printer) Predictions(labels []int, path string) {
	var pos int
	for _, l := range labels {
		pos += l
	}
	share := 0.0
	if len(labels) > 0 {
		share = float64(pos) / float64(len(labels))
	}
	fmt.Fprintf(p.out, "%d rows scored, %s predicted escalated (%.1f%%)", len(labels), p.warn.Sprint(pos), share*100)
	if path != "" {
		fmt.Fprintf(p.out, ", written to %s", path)
	}
	fmt.Fprintln(p.out)
}

// Stages prints stage timings.
func (p *Printer) Stages(stages []monitoring.StageMetrics) {
	if len(stages) == 0 {
		return
	}
	p.section("Stages")
	for _, s := range stages {
		fmt.Fprintf(p.out, "  %-12s %8d rows  %s\n", s.Stage, s.Rows, p.dim.Sprint(s.Duration.String()))
	}
}

func counts(c map[int]int) string {
	return fmt.Sprintf("%d/%d", c[0], c[1])
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = "  " + l
		}
	}
	return strings.Join(lines, "\n") + "\n"
}
