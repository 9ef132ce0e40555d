// Package metrics scores binary escalation predictions.
//
// Every ratio with a zero denominator is reported as 0 rather than NaN so
// reports stay printable for degenerate folds.
package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/paveg/escalation/internal/errors"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Class names used in reports
var ClassNames = [2]string{"not_escalated", "escalated"}

// Confusion is a binary confusion matrix with escalated as the positive class
type Confusion struct {
	TN int `json:"tn" msgpack:"tn"`
	FP int `json:"fp" msgpack:"fp"`
	FN int `json:"fn" msgpack:"fn"`
	TP int `json:"tp" msgpack:"tp"`
}

// NewConfusion tallies predictions against actual labels.
func NewConfusion(actual, predicted []int) (Confusion, error) {
	var c Confusion
	if len(actual) != len(predicted) {
		return c, errors.ErrMismatchedLength
	}
	for i, a := range actual {
		switch {
		case a == 1 && predicted[i] == 1:
			c.TP++
		case a == 1:
			c.FN++
		case predicted[i] == 1:
			c.FP++
		default:
			c.TN++
		}
	}
	return c, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func harmonic(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Total is the number of rows counted
func (c Confusion) Total() int { return c.TN + c.FP + c.FN + c.TP }

// Precision of the escalated class
func (c Confusion) Precision() float64 { return ratio(c.TP, c.TP+c.FP) }

// Recall of the escalated class
func (c Confusion) Recall() float64 { return ratio(c.TP, c.TP+c.FN) }

// F1 of the escalated class
func (c Confusion) F1() float64 { return harmonic(c.Precision(), c.Recall()) }

// Accuracy over both classes
func (c Confusion) Accuracy() float64 { return ratio(c.TP+c.TN, c.Total()) }

// Matrix returns [[TN FP] [FN TP]], rows actual and columns predicted.
func (c Confusion) Matrix() [2][2]int {
	return [2][2]int{{c.TN, c.FP}, {c.FN, c.TP}}
}

// F1 scores predictions directly.
func F1(actual, predicted []int) (float64, error) {
	c, err := NewConfusion(actual, predicted)
	if err != nil {
		return 0, err
	}
	return c.F1(), nil
}

// ClassRow is one line of a classification report
type ClassRow struct {
	Label     string  `json:"label" msgpack:"label"`
	Precision float64 `json:"precision" msgpack:"precision"`
	Recall    float64 `json:"recall" msgpack:"recall"`
	F1        float64 `json:"f1" msgpack:"f1"`
	Support   int     `json:"support" msgpack:"support"`
}

// Report summarises held-out performance
type Report struct {
	Confusion Confusion   `json:"confusion" msgpack:"confusion"`
	Classes   [2]ClassRow `json:"classes" msgpack:"classes"`
	Accuracy  float64     `json:"accuracy" msgpack:"accuracy"`
	Macro     ClassRow    `json:"macro_avg" msgpack:"macro_avg"`
	Weighted  ClassRow    `json:"weighted_avg" msgpack:"weighted_avg"`
	ROCAUC    float64     `json:"roc_auc" msgpack:"roc_auc"`
}

// F1 of the escalated class
func (r Report) F1() float64 { return r.Classes[1].F1 }

// Precision of the escalated class
func (r Report) Precision() float64 { return r.Classes[1].Precision }

// Recall of the escalated class
func (r Report) Recall() float64 { return r.Classes[1].Recall }

// ClassificationReport builds per-class, macro and support-weighted rows.
// proba may be nil, in which case ROCAUC is left at 0.
func ClassificationReport(actual, predicted []int, proba []float64) (Report, error) {
	c, err := NewConfusion(actual, predicted)
	if err != nil {
		return Report{}, err
	}

	// the negative class is scored as if it were positive
	neg := Confusion{TN: c.TP, FP: c.FN, FN: c.FP, TP: c.TN}
	r := Report{
		Confusion: c,
		Accuracy:  c.Accuracy(),
		Classes: [2]ClassRow{
			{Label: ClassNames[0], Precision: neg.Precision(), Recall: neg.Recall(), F1: neg.F1(), Support: c.TN + c.FP},
			{Label: ClassNames[1], Precision: c.Precision(), Recall: c.Recall(), F1: c.F1(), Support: c.TP + c.FN},
		},
	}

	total := c.Total()
	r.Macro = ClassRow{Label: "macro avg", Support: total}
	r.Weighted = ClassRow{Label: "weighted avg", Support: total}
	for _, row := range r.Classes {
		r.Macro.Precision += row.Precision / 2
		r.Macro.Recall += row.Recall / 2
		r.Macro.F1 += row.F1 / 2
		w := ratio(row.Support, total)
		r.Weighted.Precision += row.Precision * w
		r.Weighted.Recall += row.Recall * w
		r.Weighted.F1 += row.F1 * w
	}

	if proba != nil {
		auc, err := ROCAUC(actual, proba)
		if err == nil {
			r.ROCAUC = auc
		}
	}
	return r, nil
}

// String renders the report as a fixed-width table
func (r Report) String() string {
	var b strings.Builder
	width := len(ClassNames[0]) + 1
	fmt.Fprintf(&b, "%*s %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	for _, row := range r.Classes {
		fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, row.Label, row.Precision, row.Recall, row.F1, row.Support)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.Macro.Support)
	for _, row := range []ClassRow{r.Macro, r.Weighted} {
		fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, row.Label, row.Precision, row.Recall, row.F1, row.Support)
	}
	return b.String()
}

// ROCCurve returns the false and true positive rates of proba against
// actual labels, from the highest threshold down.
func ROCCurve(actual []int, proba []float64) (fpr, tpr []float64, err error) {
	if len(actual) != len(proba) {
		return nil, nil, errors.ErrMismatchedLength
	}
	order := make([]int, len(proba))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return proba[order[a]] < proba[order[b]] })

	scores := make([]float64, len(order))
	classes := make([]bool, len(order))
	var pos int
	for k, i := range order {
		scores[k] = proba[i]
		classes[k] = actual[i] == 1
		if classes[k] {
			pos++
		}
	}
	if pos == 0 || pos == len(actual) {
		return nil, nil, errors.ErrSingleClass
	}

	tpr, fpr, _ = stat.ROC(nil, scores, classes, nil)
	return fpr, tpr, nil
}

// ROCAUC is the area under the ROC curve of proba against actual labels.
func ROCAUC(actual []int, proba []float64) (float64, error) {
	fpr, tpr, err := ROCCurve(actual, proba)
	if err != nil {
		return 0, err
	}
	return integrate.Trapezoidal(fpr, tpr), nil
}

// MeanStd returns the mean and population standard deviation of scores.
func MeanStd(scores []float64) (float64, float64) {
	if len(scores) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(scores, nil)
}
