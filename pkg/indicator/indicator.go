// Package indicator provides technical indicators and candlestick pattern
// recognition over price arrays.
//
// Every function is pure and returns a Series aligned with its input:
// len(out) == len(in), and out[i] is null until enough history exists.
// A non-positive period or one longer than the input yields an all-null
// Series of the right length. Multi-line indicators return a struct of
// Series.
//
// The streaming types (SMAStream, EMAStream, SMMAStream, RSIStream) keep
// O(1) running state and can be fed live prices one at a time; the array
// functions are built on them.
package indicator

import (
	"github.com/guregu/null/v6"
)

// Series is an indicator output aligned with its input.
type Series []null.Float

// OHLCV is the column view of a candle array.
type OHLCV struct {
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

// Len returns the number of bars.
func (d OHLCV) Len() int { return len(d.Close) }

// Streamer is a technical indicator fed one value at a time.
type Streamer interface {
	// Name returns the indicator name (e.g., "SMA", "RSI").
	Name() string

	// Update feeds the next value and recalculates.
	Update(v float64)

	// Value returns the current value. Meaningless until Ready.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Peek computes what Value() would be if v were fed next, without
	// mutating state. Used for previews on a still-forming bar.
	Peek(v float64) float64

	// Reset clears all state.
	Reset()
}

func nulls(n int) Series {
	return make(Series, n)
}

func some(v float64) null.Float {
	return null.FloatFrom(v)
}

func badPeriod(period, n int) bool {
	return period <= 0 || period > n
}

// FromFloats wraps plain values as a fully valid Series.
func FromFloats(values []float64) Series {
	out := make(Series, len(values))
	for i, v := range values {
		out[i] = some(v)
	}
	return out
}

// Last returns the final element, which may be null.
func (s Series) Last() null.Float {
	if len(s) == 0 {
		return null.Float{}
	}
	return s[len(s)-1]
}

// FirstValid returns the index of the first non-null element or -1.
func (s Series) FirstValid() int {
	for i, v := range s {
		if v.Valid {
			return i
		}
	}
	return -1
}

// At returns s[i] as (value, ok), tolerating out-of-range i.
func (s Series) At(i int) (float64, bool) {
	if i < 0 || i >= len(s) || !s[i].Valid {
		return 0, false
	}
	return s[i].Float64, true
}

// run drives a Streamer across values, recording its value once Ready.
func run(values []float64, s Streamer) Series {
	out := nulls(len(values))
	for i, v := range values {
		s.Update(v)
		if s.Ready() {
			out[i] = some(s.Value())
		}
	}
	return out
}

// runSeries is run over a Series; a null input resets the streamer and
// emits null, so gaps restart the look-back.
func runSeries(in Series, s Streamer) Series {
	out := nulls(len(in))
	for i, v := range in {
		if !v.Valid {
			s.Reset()
			continue
		}
		s.Update(v.Float64)
		if s.Ready() {
			out[i] = some(s.Value())
		}
	}
	return out
}

// combine applies fn element-wise where every input is valid.
func combine(fn func(vs ...float64) (float64, bool), in ...Series) Series {
	if len(in) == 0 {
		return nil
	}
	n := len(in[0])
	out := nulls(n)
	vals := make([]float64, len(in))
outer:
	for i := 0; i < n; i++ {
		for j, s := range in {
			if !s[i].Valid {
				continue outer
			}
			vals[j] = s[i].Float64
		}
		if v, ok := fn(vals...); ok {
			out[i] = some(v)
		}
	}
	return out
}
