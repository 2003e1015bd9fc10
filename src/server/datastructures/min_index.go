package datastructures

import "golang.org/x/exp/constraints"

// Returns the index of the smallest key among n items, or -1 if n is 0.
//
// Items are scanned from 0 to n-1 and only a strictly smaller key replaces the
// current minimum, so on ties the lowest index wins.
func MinIndex[K constraints.Ordered](n int, key func(i int) K) int {
	if n <= 0 {
		return -1
	}

	best := 0
	bestKey := key(0)
	for i := 1; i < n; i++ {
		if k := key(i); k < bestKey {
			best = i
			bestKey = k
		}
	}
	return best
}
