package gum

import (
	"cmp"
	"iter"
	"math"
	"slices"
)

type budgetEntry struct {
	label string
	u     float64
}

// Budget returns the uncertainty components of q as (label, component) pairs,
// largest magnitude first. Ranking happens when iteration starts.
func (q Quantity) Budget() iter.Seq2[string, float64] {
	return q.ranked(func(k key) bool { return !k.intermediate() })
}

// IntermediateBudget is like Budget but reports the components with respect
// to labelled intermediate results instead of leaf sources.
func (q Quantity) IntermediateBudget() iter.Seq2[string, float64] {
	return q.ranked(key.intermediate)
}

func (q Quantity) ranked(keep func(key) bool) iter.Seq2[string, float64] {
	return func(yield func(string, float64) bool) {
		entries := make([]budgetEntry, 0, len(q.comps))
		for k, u := range q.comps {
			if keep(k) {
				entries = append(entries, budgetEntry{label: k.label(), u: u})
			}
		}
		slices.SortFunc(entries, func(a, b budgetEntry) int {
			if c := cmp.Compare(math.Abs(b.u), math.Abs(a.u)); c != 0 {
				return c
			}
			return cmp.Compare(a.label, b.label)
		})
		for _, e := range entries {
			if !yield(e.label, e.u) {
				return
			}
		}
	}
}
