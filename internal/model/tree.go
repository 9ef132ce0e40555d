package model

import (
	"math/rand/v2"
	"sort"
)

// Node is one entry of a flattened binary tree. Leaves have Left == -1.
type Node struct {
	Feature   int     `msgpack:"f"`
	Threshold float64 `msgpack:"t"`
	Left      int     `msgpack:"l"`
	Right     int     `msgpack:"r"`
	Value     float64 `msgpack:"v"`
}

// IsLeaf reports whether the node has no children
func (n Node) IsLeaf() bool {
	return n.Left < 0
}

// Tree is a fitted CART tree; rows with x[Feature] <= Threshold go left.
type Tree struct {
	Nodes []Node `msgpack:"nodes"`
}

// Predict returns the leaf value reached by x.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.IsLeaf() {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.IsLeaf() {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(0)
}

type treeParams struct {
	maxDepth        int // 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // features tried per split; 0 means all
}

// builder grows a tree that minimises weighted squared error of target.
// With 0/1 targets that is the Gini criterion up to a constant factor, so
// the same builder serves forest classification trees and boosting
// regression trees; only the leaf value differs.
type builder struct {
	X          [][]float64
	target     []float64
	weight     []float64
	params     treeParams
	rng        *rand.Rand
	leaf       func(idx []int) float64
	nodes      []Node
	importance []float64
}

// growTree fits a tree on the rows in idx and returns it together with the
// total weighted impurity decrease credited to each feature.
func growTree(X [][]float64, target, weight []float64, idx []int, params treeParams, rng *rand.Rand, leaf func([]int) float64) (*Tree, []float64) {
	b := &builder{
		X:          X,
		target:     target,
		weight:     weight,
		params:     params,
		rng:        rng,
		leaf:       leaf,
		importance: make([]float64, len(X[0])),
	}
	b.build(idx, 0)
	return &Tree{Nodes: b.nodes}, b.importance
}

func (b *builder) build(idx []int, depth int) int {
	pos := len(b.nodes)
	b.nodes = append(b.nodes, Node{Left: -1, Right: -1, Value: b.leaf(idx)})

	p := b.params
	if len(idx) < p.minSamplesSplit || len(idx) < 2*p.minSamplesLeaf {
		return pos
	}
	if p.maxDepth > 0 && depth >= p.maxDepth {
		return pos
	}

	feature, threshold, gain, ok := b.bestSplit(idx)
	if !ok {
		return pos
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.importance[feature] += gain

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[pos].Feature = feature
	b.nodes[pos].Threshold = threshold
	b.nodes[pos].Left = l
	b.nodes[pos].Right = r
	return pos
}

func (b *builder) candidates() []int {
	p := len(b.X[0])
	if b.params.maxFeatures <= 0 || b.params.maxFeatures >= p {
		all := make([]int, p)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rng.Perm(p)[:b.params.maxFeatures]
}

// bestSplit scans every boundary between distinct sorted values. The gain
// of a split is S_L^2/W_L + S_R^2/W_R - S^2/W where S sums weight*target
// and W sums weight.
func (b *builder) bestSplit(idx []int) (feature int, threshold, gain float64, ok bool) {
	var W, S float64
	for _, i := range idx {
		W += b.weight[i]
		S += b.weight[i] * b.target[i]
	}
	if W <= 0 {
		return 0, 0, 0, false
	}
	parent := S * S / W

	n := len(idx)
	sorted := make([]int, n)
	const eps = 1e-12
	bestGain := eps

	for _, f := range b.candidates() {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })

		var wl, sl float64
		for k := 0; k < n-1; k++ {
			i := sorted[k]
			wl += b.weight[i]
			sl += b.weight[i] * b.target[i]

			lo, hi := b.X[i][f], b.X[sorted[k+1]][f]
			if lo == hi {
				continue
			}
			nl := k + 1
			if nl < b.params.minSamplesLeaf || n-nl < b.params.minSamplesLeaf {
				continue
			}
			wr, sr := W-wl, S-sl
			if wl <= 0 || wr <= 0 {
				continue
			}
			g := sl*sl/wl + sr*sr/wr - parent
			if g > bestGain {
				mid := lo + (hi-lo)/2
				if mid >= hi {
					mid = lo
				}
				feature, threshold, gain, bestGain, ok = f, mid, g, g, true
			}
		}
	}
	return feature, threshold, gain, ok
}

// weightedMean is the leaf value of a classification tree: the weighted
// share of positive rows.
func weightedMean(target, weight []float64) func([]int) float64 {
	return func(idx []int) float64 {
		var w, s float64
		for _, i := range idx {
			w += weight[i]
			s += weight[i] * target[i]
		}
		if w == 0 {
			return 0
		}
		return s / w
	}
}

// normalize scales values to sum to 1; an all-zero slice stays zero.
func normalize(values []float64) []float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	out := make([]float64, len(values))
	if total <= 0 {
		return out
	}
	for i, v := range values {
		out[i] = v / total
	}
	return out
}
