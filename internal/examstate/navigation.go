package examstate

import "sort"

// NavigationSet returns the question numbers to step through: 1..total
// when the filter is off, otherwise the flagged numbers in ascending
// order. Flagged numbers outside 1..total are dropped.
func NavigationSet(total int, showOnlyFlagged bool, flagged []int) []int {
	if !showOnlyFlagged {
		out := make([]int, 0, max(total, 0))
		for n := 1; n <= total; n++ {
			out = append(out, n)
		}
		return out
	}

	seen := map[int]bool{}
	out := make([]int, 0, len(flagged))
	for _, n := range flagged {
		if n < 1 || n > total || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Position returns the index of current in set, or -1.
func Position(set []int, current int) int {
	for i, n := range set {
		if n == current {
			return i
		}
	}
	return -1
}

// Neighbours returns the previous and next question numbers around
// current. When current is not a member of set both are disabled.
func Neighbours(set []int, current int) (prev, next int, hasPrev, hasNext bool) {
	pos := Position(set, current)
	if pos < 0 {
		return 0, 0, false, false
	}
	if pos > 0 {
		prev, hasPrev = set[pos-1], true
	}
	if pos < len(set)-1 {
		next, hasNext = set[pos+1], true
	}
	return prev, next, hasPrev, hasNext
}
