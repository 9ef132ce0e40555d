// Package tuning selects model hyperparameters by stratified k-fold grid
// search scored on F1.
package tuning

import (
	"fmt"
	"sort"
	"strings"
)

// Grid maps a parameter name to the values to try
type Grid map[string][]any

// Keys returns the parameter names in sorted order
func (g Grid) Keys() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Expand returns the cartesian product of the grid. Keys are taken in
// sorted order with the last key varying fastest. An empty grid yields one
// empty candidate.
func (g Grid) Expand() []map[string]any {
	out := []map[string]any{{}}
	for _, key := range g.Keys() {
		values := g[key]
		if len(values) == 0 {
			continue
		}
		next := make([]map[string]any, 0, len(out)*len(values))
		for _, base := range out {
			for _, v := range values {
				params := make(map[string]any, len(base)+1)
				for k, bv := range base {
					params[k] = bv
				}
				params[key] = v
				next = append(next, params)
			}
		}
		out = next
	}
	return out
}

// Size is the number of candidates Expand returns
func (g Grid) Size() int {
	n := 1
	for _, values := range g {
		if len(values) > 0 {
			n *= len(values)
		}
	}
	return n
}

// FormatParams renders params as k=v pairs in key order
func FormatParams(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, params[k])
	}
	return strings.Join(parts, " ")
}
