package indicator

// extremes returns, for every i >= period-1, the index of the highest (or
// lowest) value in values[i-period+1 : i+1]. Ties resolve to the most recent
// index. Entries before period-1 are -1. Monotonic deque, O(n).
func extremes(values []float64, period int, highest bool) []int {
	n := len(values)
	idx := make([]int, n)
	dq := make([]int, 0, period)
	for i := 0; i < n; i++ {
		for len(dq) > 0 && dq[0] <= i-period {
			dq = dq[1:]
		}
		for len(dq) > 0 {
			back := values[dq[len(dq)-1]]
			if (highest && back <= values[i]) || (!highest && back >= values[i]) {
				dq = dq[:len(dq)-1]
				continue
			}
			break
		}
		dq = append(dq, i)
		if i >= period-1 {
			idx[i] = dq[0]
		} else {
			idx[i] = -1
		}
	}
	return idx
}

func sameLen(n int, cols ...[]float64) bool {
	for _, c := range cols {
		if len(c) != n {
			return false
		}
	}
	return true
}

func typical(h, l, c []float64) []float64 {
	out := make([]float64, len(c))
	for i := range c {
		out[i] = (h[i] + l[i] + c[i]) / 3
	}
	return out
}

func median(h, l []float64) []float64 {
	out := make([]float64, len(h))
	for i := range h {
		out[i] = (h[i] + l[i]) / 2
	}
	return out
}
