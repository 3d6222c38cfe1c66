package indicator

import (
	"math"
	"sort"
)

// Rank ranks the defined values of row in descending order. Rank 1 is the
// highest value; ties share the lowest rank of their group. NaN cells stay
// NaN.
func Rank(row []float64) []float64 {
	out := nanSlice(len(row))
	idx := make([]int, 0, len(row))
	for i, v := range row {
		if !math.IsNaN(v) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return row[idx[a]] > row[idx[b]] })

	for pos, i := range idx {
		if pos > 0 && row[idx[pos-1]] == row[i] {
			out[i] = out[idx[pos-1]]
			continue
		}
		out[i] = float64(pos + 1)
	}
	return out
}

// Delta returns prev - cur for every cell, NaN where either side is NaN.
// Applied to rank rows it yields the growth: positive when a symbol moved
// up the ranking.
func Delta(prev, cur []float64) []float64 {
	out := nanSlice(len(cur))
	if prev == nil {
		return out
	}
	for i := range cur {
		if math.IsNaN(prev[i]) || math.IsNaN(cur[i]) {
			continue
		}
		out[i] = prev[i] - cur[i]
	}
	return out
}

// Ordered returns the members whose value in row is defined, sorted by
// value descending. Equal values keep member order.
func Ordered(row []float64, members []int, symbols []string) []string {
	type entry struct {
		col int
		v   float64
	}
	entries := make([]entry, 0, len(members))
	for _, c := range members {
		if !math.IsNaN(row[c]) {
			entries = append(entries, entry{c, row[c]})
		}
	}
	sort.SliceStable(entries, func(a, b int) bool { return entries[a].v > entries[b].v })
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = symbols[e.col]
	}
	return out
}

// PercentileCutoff returns how many leading entries of a list of length n
// fall within the top percentile: max(1, ceil(n * percentile / 100)).
func PercentileCutoff(n int, percentile float64) int {
	k := int(math.Ceil(float64(n) * percentile / 100))
	if k < 1 {
		return 1
	}
	return k
}
