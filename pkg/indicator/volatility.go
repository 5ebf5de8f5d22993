package indicator

import "math"

// Bands is an upper/middle/lower channel.
type Bands struct {
	Upper  Series `json:"upper"`
	Middle Series `json:"middle"`
	Lower  Series `json:"lower"`
}

func nullBands(n int) Bands {
	return Bands{Upper: nulls(n), Middle: nulls(n), Lower: nulls(n)}
}

func trueRange(high, low, close []float64, i int) float64 {
	if i == 0 {
		return high[0] - low[0]
	}
	pc := close[i-1]
	return math.Max(high[i]-low[i], math.Max(math.Abs(high[i]-pc), math.Abs(low[i]-pc)))
}

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|); the
// first bar has no previous close and uses high-low.
func TrueRange(high, low, close []float64) Series {
	n := len(close)
	out := nulls(n)
	if !sameLen(n, high, low) {
		return out
	}
	for i := 0; i < n; i++ {
		out[i] = some(trueRange(high, low, close, i))
	}
	return out
}

// ATR returns Wilder's average true range. The first value, at index
// period, is the mean true range of bars 1..period.
func ATR(high, low, close []float64, period int) Series {
	n := len(close)
	if badPeriod(period, n-1) || !sameLen(n, high, low) {
		return nulls(n)
	}
	tr := make([]float64, n-1)
	for i := 1; i < n; i++ {
		tr[i-1] = trueRange(high, low, close, i)
	}
	smoothed := SMMA(tr, period)
	return append(Series{{}}, smoothed...)
}

// StdDev returns the rolling population standard deviation.
func StdDev(values []float64, period int) Series {
	n := len(values)
	out := nulls(n)
	if badPeriod(period, n) {
		return out
	}
	// Shifting by the first value keeps sum-of-squares well conditioned.
	ref := values[0]
	var sum, sumsq float64
	p := float64(period)
	for i := 0; i < n; i++ {
		x := values[i] - ref
		sum += x
		sumsq += x * x
		if i >= period {
			y := values[i-period] - ref
			sum -= y
			sumsq -= y * y
		}
		if i >= period-1 {
			mean := sum / p
			v := sumsq/p - mean*mean
			if v < 0 {
				v = 0
			}
			out[i] = some(math.Sqrt(v))
		}
	}
	return out
}

// Bollinger returns SMA(period) +/- k population standard deviations.
func Bollinger(values []float64, period int, k float64) Bands {
	n := len(values)
	if badPeriod(period, n) {
		return nullBands(n)
	}
	mid := SMA(values, period)
	sd := StdDev(values, period)
	return Bands{
		Upper:  combine(func(v ...float64) (float64, bool) { return v[0] + k*v[1], true }, mid, sd),
		Middle: mid,
		Lower:  combine(func(v ...float64) (float64, bool) { return v[0] - k*v[1], true }, mid, sd),
	}
}

// Keltner returns EMA(period) +/- mult*ATR(atrPeriod).
func Keltner(high, low, close []float64, period int, mult float64, atrPeriod int) Bands {
	n := len(close)
	if badPeriod(period, n) || !sameLen(n, high, low) {
		return nullBands(n)
	}
	mid := EMA(close, period)
	atr := ATR(high, low, close, atrPeriod)
	return Bands{
		Upper:  combine(func(v ...float64) (float64, bool) { return v[0] + mult*v[1], true }, mid, atr),
		Middle: mid,
		Lower:  combine(func(v ...float64) (float64, bool) { return v[0] - mult*v[1], true }, mid, atr),
	}
}

// Donchian returns the highest high, lowest low and their midpoint over
// period bars.
func Donchian(high, low []float64, period int) Bands {
	n := len(high)
	if badPeriod(period, n) || !sameLen(n, low) {
		return nullBands(n)
	}
	hi := extremes(high, period, true)
	lo := extremes(low, period, false)
	b := nullBands(n)
	for i := period - 1; i < n; i++ {
		u, l := high[hi[i]], low[lo[i]]
		b.Upper[i] = some(u)
		b.Lower[i] = some(l)
		b.Middle[i] = some((u + l) / 2)
	}
	return b
}
