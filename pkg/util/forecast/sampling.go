package forecast

// sampleCategorical picks an index with probability proportional to its
// weight, walking the cumulative distribution with u in [0, 1). Negative
// weights count as zero. If the total weight is below epsilon every index is
// equally likely.
func sampleCategorical(weights []float64, u, epsilon float64) int {
	if len(weights) == 0 {
		return -1
	}

	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total < epsilon {
		i := int(u * float64(len(weights)))
		if i >= len(weights) {
			i = len(weights) - 1
		}
		return i
	}

	target := u * total
	cumulative := 0.0
	last := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		cumulative += w
		last = i
		if target < cumulative {
			return i
		}
	}
	// rounding can leave target a hair above the final cumulative value
	return last
}
