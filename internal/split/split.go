// Package split partitions labelled rows while preserving class proportions.
package split

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/paveg/escalation/internal/errors"
)

// Fold is one cross-validation round
type Fold struct {
	Train    []int
	Validate []int
}

// NewRand returns the deterministic generator used for a seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// byClass groups row indices by label with classes in ascending order.
func byClass(labels []int) ([]int, map[int][]int) {
	members := make(map[int][]int)
	for i, y := range labels {
		members[y] = append(members[y], i)
	}
	classes := make([]int, 0, len(members))
	for c := range members {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	return classes, members
}

// StratifiedTrainTest sends round(n_c * testRatio) rows of each class to the
// test partition, keeping at least one row of each class on both sides when
// the class has two or more rows. The partitions are disjoint, cover every
// row and are returned in ascending order.
func StratifiedTrainTest(labels []int, testRatio float64, seed uint64) ([]int, []int, error) {
	if len(labels) == 0 {
		return nil, nil, errors.ErrEmptyDataset
	}
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, errors.NewInvalidInputError("split.StratifiedTrainTest",
			fmt.Sprintf("test ratio must be in (0, 1), got %g", testRatio))
	}

	rng := NewRand(seed)
	classes, members := byClass(labels)

	var train, test []int
	for _, c := range classes {
		idx := append([]int{}, members[c]...)
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		n := len(idx)
		nTest := int(math.Round(float64(n) * testRatio))
		if n >= 2 {
			nTest = max(1, min(nTest, n-1))
		}
		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	}

	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// StratifiedKFold deals the shuffled members of each class round-robin
// across k folds, so each validate set holds every class within one row of
// its share.
func StratifiedKFold(labels []int, k int, seed uint64) ([]Fold, error) {
	if k < 2 {
		return nil, errors.NewInvalidInputError("split.StratifiedKFold", fmt.Sprintf("k must be at least 2, got %d", k))
	}
	classes, members := byClass(labels)
	for _, c := range classes {
		if n := len(members[c]); n < k {
			return nil, errors.NewInvalidInputError("split.StratifiedKFold",
				fmt.Sprintf("k=%d exceeds the %d rows of class %d", k, n, c))
		}
	}

	rng := NewRand(seed)
	assignment := make([]int, len(labels))
	offset := 0
	for _, c := range classes {
		idx := append([]int{}, members[c]...)
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		for j, row := range idx {
			assignment[row] = (offset + j) % k
		}
		offset += len(idx)
	}

	folds := make([]Fold, k)
	for row, f := range assignment {
		for g := range folds {
			if g == f {
				folds[g].Validate = append(folds[g].Validate, row)
			} else {
				folds[g].Train = append(folds[g].Train, row)
			}
		}
	}
	return folds, nil
}

// Take gathers rows and labels at idx.
func Take(X [][]float64, y []int, idx []int) ([][]float64, []int) {
	xs := make([][]float64, len(idx))
	ys := make([]int, len(idx))
	for i, r := range idx {
		xs[i] = X[r]
		ys[i] = y[r]
	}
	return xs, ys
}

// Counts tallies labels
func Counts(y []int) map[int]int {
	counts := make(map[int]int)
	for _, v := range y {
		counts[v]++
	}
	return counts
}
