// Package balance oversamples the minority class of a training partition.
//
// Samplers only ever see training rows: original rows are returned first in
// their input order and synthetic rows are appended after them.
package balance

import (
	"fmt"
	"math"
	"sort"

	"github.com/paveg/escalation/internal/errors"
	"github.com/paveg/escalation/internal/split"
	"gonum.org/v1/gonum/floats"
)

// Balancing methods
const (
	MethodSMOTE  = "smote"
	MethodRandom = "random"
	MethodNone   = "none"
)

// Sampler resamples a labelled training set
type Sampler interface {
	Resample(X [][]float64, y []int) ([][]float64, []int, error)
}

// New builds the sampler for method.
func New(method string, k int, ratio float64, seed uint64) (Sampler, error) {
	switch method {
	case MethodSMOTE, "":
		return &SMOTE{K: k, Ratio: ratio, Seed: seed}, nil
	case MethodRandom:
		return &RandomOverSampler{Ratio: ratio, Seed: seed}, nil
	case MethodNone:
		return Passthrough{}, nil
	default:
		return nil, errors.NewInvalidInputError("balance.New", fmt.Sprintf("unknown balance method %q", method))
	}
}

// Passthrough returns its input unchanged
type Passthrough struct{}

// Resample implements Sampler
func (Passthrough) Resample(X [][]float64, y []int) ([][]float64, []int, error) {
	if len(X) != len(y) {
		return nil, nil, errors.ErrMismatchedLength
	}
	return X, y, nil
}

// plan works out which class is the minority and how many rows to add so
// that minority/majority reaches ratio.
type plan struct {
	minority int
	members  []int
	need     int
}

func makePlan(op string, X [][]float64, y []int, ratio float64) (plan, error) {
	if len(X) != len(y) {
		return plan{}, errors.ErrMismatchedLength
	}
	if ratio <= 0 || ratio > 1 {
		return plan{}, errors.NewInvalidInputError(op, fmt.Sprintf("ratio must be in (0, 1], got %g", ratio))
	}
	counts := split.Counts(y)
	if len(counts) != 2 {
		return plan{}, errors.ErrSingleClass
	}

	classes := make([]int, 0, 2)
	for c := range counts {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	minority, majority := classes[1], classes[0]
	if counts[classes[0]] < counts[classes[1]] {
		minority, majority = classes[0], classes[1]
	}

	target := int(math.Floor(ratio*float64(counts[majority]) + 1e-9))
	p := plan{minority: minority, need: target - counts[minority]}
	for i, v := range y {
		if v == minority {
			p.members = append(p.members, i)
		}
	}
	return p, nil
}

func appendRows(X [][]float64, y []int, extra [][]float64, label int) ([][]float64, []int) {
	outX := make([][]float64, 0, len(X)+len(extra))
	outX = append(outX, X...)
	outX = append(outX, extra...)
	outY := make([]int, 0, len(y)+len(extra))
	outY = append(outY, y...)
	for range extra {
		outY = append(outY, label)
	}
	return outX, outY
}

// SMOTE synthesises minority rows by interpolating between a minority row
// and one of its K nearest minority neighbours.
type SMOTE struct {
	// K is the neighbourhood size; it is clamped to minority size - 1.
	K int
	// Ratio is the desired minority/majority ratio after resampling.
	Ratio float64
	Seed  uint64
}

// Resample implements Sampler. Input that already meets Ratio is returned
// unchanged; a single minority row is duplicated.
func (s *SMOTE) Resample(X [][]float64, y []int) ([][]float64, []int, error) {
	p, err := makePlan("balance.SMOTE", X, y, s.Ratio)
	if err != nil {
		return nil, nil, err
	}
	if p.need <= 0 {
		return X, y, nil
	}

	rng := split.NewRand(s.Seed)
	k := min(max(s.K, 1), len(p.members)-1)
	neighbours := nearest(X, p.members, k)

	synthetic := make([][]float64, p.need)
	diff := make([]float64, len(X[0]))
	for n := range synthetic {
		pos := rng.IntN(len(p.members))
		base := X[p.members[pos]]
		row := make([]float64, len(base))
		if k == 0 {
			copy(row, base)
			synthetic[n] = row
			continue
		}
		other := X[neighbours[pos][rng.IntN(k)]]
		floats.SubTo(diff, other, base)
		floats.AddScaledTo(row, base, rng.Float64(), diff)
		synthetic[n] = row
	}

	outX, outY := appendRows(X, y, synthetic, p.minority)
	return outX, outY, nil
}

// nearest returns, for each member, the row indices of its k nearest other
// members by Euclidean distance. Ties keep the lower index.
func nearest(X [][]float64, members []int, k int) [][]int {
	out := make([][]int, len(members))
	if k == 0 {
		return out
	}
	type cand struct {
		row  int
		dist float64
	}
	cands := make([]cand, 0, len(members)-1)
	for i, a := range members {
		cands = cands[:0]
		for j, b := range members {
			if i == j {
				continue
			}
			cands = append(cands, cand{row: b, dist: floats.Distance(X[a], X[b], 2)})
		}
		sort.SliceStable(cands, func(p, q int) bool { return cands[p].dist < cands[q].dist })
		nb := make([]int, k)
		for j := range nb {
			nb[j] = cands[j].row
		}
		out[i] = nb
	}
	return out
}

// RandomOverSampler duplicates randomly chosen minority rows.
type RandomOverSampler struct {
	Ratio float64
	Seed  uint64
}

// Resample implements Sampler
func (r *RandomOverSampler) Resample(X [][]float64, y []int) ([][]float64, []int, error) {
	p, err := makePlan("balance.RandomOverSampler", X, y, r.Ratio)
	if err != nil {
		return nil, nil, err
	}
	if p.need <= 0 {
		return X, y, nil
	}

	rng := split.NewRand(r.Seed)
	dup := make([][]float64, p.need)
	for n := range dup {
		src := X[p.members[rng.IntN(len(p.members))]]
		dup[n] = append([]float64{}, src...)
	}
	outX, outY := appendRows(X, y, dup, p.minority)
	return outX, outY, nil
}
