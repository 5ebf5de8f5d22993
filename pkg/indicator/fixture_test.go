package indicator

import (
	"math"
	"testing"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// wave builds a deterministic, non-monotonic OHLCV fixture of n bars.
func wave(n int) OHLCV {
	d := OHLCV{
		Open:   make([]float64, n),
		High:   make([]float64, n),
		Low:    make([]float64, n),
		Close:  make([]float64, n),
		Volume: make([]float64, n),
	}
	prev := 100.0
	for i := 0; i < n; i++ {
		x := float64(i)
		c := 100 + 10*math.Sin(x/5) + 0.3*x + 2*math.Cos(x*1.7)
		d.Open[i] = prev
		d.Close[i] = c
		d.High[i] = math.Max(prev, c) + 1 + 0.5*math.Abs(math.Sin(x))
		d.Low[i] = math.Min(prev, c) - 1 - 0.5*math.Abs(math.Cos(x))
		d.Volume[i] = 1000 + 100*float64(i%7)
		prev = c
	}
	return d
}

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

// checkAligned fails when s has the wrong length or a value before first.
func checkAligned(t *testing.T, name string, s Series, n, first int) {
	t.Helper()
	if len(s) != n {
		t.Fatalf("%s: len %d, want %d", name, len(s), n)
	}
	if got := s.FirstValid(); got != first {
		t.Errorf("%s: first valid index %d, want %d", name, got, first)
	}
}

func allNull(s Series) bool {
	for _, v := range s {
		if v.Valid {
			return false
		}
	}
	return true
}
