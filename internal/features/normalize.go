package features

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeCategory trims a categorical value, collapses whitespace runs to a
// single space and applies Unicode NFKC. An empty result reports false.
func NormalizeCategory(s string) (string, bool) {
	n := norm.NFKC.String(s)
	n = strings.Join(strings.Fields(n), " ")
	return n, n != ""
}
