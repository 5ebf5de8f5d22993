package indicator

import "math"

// SMA returns the simple moving average. First value at index period-1.
func SMA(values []float64, period int) Series {
	if badPeriod(period, len(values)) {
		return nulls(len(values))
	}
	return run(values, NewSMA(period))
}

// EMA returns the exponential moving average seeded with SMA(period) at
// index period-1.
func EMA(values []float64, period int) Series {
	if badPeriod(period, len(values)) {
		return nulls(len(values))
	}
	return run(values, NewEMA(period))
}

// SMMA returns Wilder's smoothed moving average.
func SMMA(values []float64, period int) Series {
	if badPeriod(period, len(values)) {
		return nulls(len(values))
	}
	return run(values, NewSMMA(period))
}

// WMA returns the linearly weighted moving average, weights period..1 from
// newest to oldest, normalized by period*(period+1)/2.
func WMA(values []float64, period int) Series {
	return wmaOf(FromFloats(values), period)
}

func emaOf(in Series, period int) Series {
	if period <= 0 {
		return nulls(len(in))
	}
	return runSeries(in, NewEMA(period))
}

func smaOf(in Series, period int) Series {
	if period <= 0 {
		return nulls(len(in))
	}
	return runSeries(in, NewSMA(period))
}

// wmaOf keeps a running weighted sum: moving the window forward adds
// period*x_new and subtracts the previous plain window sum.
func wmaOf(in Series, period int) Series {
	n := len(in)
	out := nulls(n)
	if badPeriod(period, n) {
		return out
	}
	denom := float64(period*(period+1)) / 2
	streak := 0 // consecutive valid values ending at i
	var num, sum float64
	for i, v := range in {
		if !v.Valid {
			streak, num, sum = 0, 0, 0
			continue
		}
		x := v.Float64
		streak++
		if streak <= period {
			num += float64(streak) * x
			sum += x
			if streak == period {
				out[i] = some(num / denom)
			}
			continue
		}
		num += float64(period)*x - sum
		sum += x - in[i-period].Float64
		out[i] = some(num / denom)
	}
	return out
}

// VWMA returns the volume-weighted moving average. A window with zero total
// volume is null.
func VWMA(close, volume []float64, period int) Series {
	n := len(close)
	out := nulls(n)
	if badPeriod(period, n) || len(volume) != n {
		return out
	}
	var pv, vol float64
	for i := 0; i < n; i++ {
		pv += close[i] * volume[i]
		vol += volume[i]
		if i >= period {
			pv -= close[i-period] * volume[i-period]
			vol -= volume[i-period]
		}
		if i >= period-1 && vol != 0 {
			out[i] = some(pv / vol)
		}
	}
	return out
}

// DEMA returns the double exponential moving average 2*EMA - EMA(EMA).
// First value at index 2*(period-1).
func DEMA(values []float64, period int) Series {
	if badPeriod(period, len(values)) {
		return nulls(len(values))
	}
	e1 := EMA(values, period)
	e2 := emaOf(e1, period)
	return combine(func(v ...float64) (float64, bool) {
		return 2*v[0] - v[1], true
	}, e1, e2)
}

// TEMA returns the triple exponential moving average 3*E1 - 3*E2 + E3.
// First value at index 3*(period-1).
func TEMA(values []float64, period int) Series {
	if badPeriod(period, len(values)) {
		return nulls(len(values))
	}
	e1 := EMA(values, period)
	e2 := emaOf(e1, period)
	e3 := emaOf(e2, period)
	return combine(func(v ...float64) (float64, bool) {
		return 3*v[0] - 3*v[1] + v[2], true
	}, e1, e2, e3)
}

// HMA returns the Hull moving average WMA(2*WMA(p/2) - WMA(p), sqrt(p)).
func HMA(values []float64, period int) Series {
	if badPeriod(period, len(values)) || period < 2 {
		return nulls(len(values))
	}
	half := WMA(values, period/2)
	full := WMA(values, period)
	diff := combine(func(v ...float64) (float64, bool) {
		return 2*v[0] - v[1], true
	}, half, full)
	return wmaOf(diff, int(math.Sqrt(float64(period))))
}

// KAMA returns Kaufman's adaptive moving average with the usual fast=2 and
// slow=30 smoothing constants. Seeded with the close at index period-1.
func KAMA(values []float64, period int) Series {
	n := len(values)
	out := nulls(n)
	if badPeriod(period, n) {
		return out
	}
	fast := 2.0 / (2 + 1)
	slow := 2.0 / (30 + 1)

	var noise float64 // sum of |x_j - x_{j-1}| over the last period changes
	for j := 1; j < period; j++ {
		noise += math.Abs(values[j] - values[j-1])
	}
	kama := values[period-1]
	out[period-1] = some(kama)
	for i := period; i < n; i++ {
		noise += math.Abs(values[i] - values[i-1])
		if i-period > 0 {
			noise -= math.Abs(values[i-period] - values[i-period-1])
		}
		er := 0.0
		if noise > 0 {
			er = math.Abs(values[i]-values[i-period]) / noise
		}
		sc := math.Pow(er*(fast-slow)+slow, 2)
		kama += sc * (values[i] - kama)
		out[i] = some(kama)
	}
	return out
}

// ALMA returns the Arnaud Legoux moving average with offset 0.85 and
// sigma 6.
func ALMA(values []float64, period int) Series {
	n := len(values)
	out := nulls(n)
	if badPeriod(period, n) {
		return out
	}
	const offset, sigma = 0.85, 6.0
	m := offset * float64(period-1)
	s := float64(period) / sigma
	w := make([]float64, period)
	var norm float64
	for j := range w {
		d := float64(j) - m
		w[j] = math.Exp(-(d * d) / (2 * s * s))
		norm += w[j]
	}
	for i := period - 1; i < n; i++ {
		var acc float64
		base := i - period + 1
		for j, wj := range w {
			acc += wj * values[base+j]
		}
		out[i] = some(acc / norm)
	}
	return out
}

// McGinley returns the McGinley dynamic, seeded with SMA(period).
func McGinley(values []float64, period int) Series {
	n := len(values)
	out := nulls(n)
	if badPeriod(period, n) {
		return out
	}
	var md float64
	for i := 0; i < period; i++ {
		md += values[i]
	}
	md /= float64(period)
	out[period-1] = some(md)
	for i := period; i < n; i++ {
		x := values[i]
		if md != 0 {
			ratio := x / md
			md += (x - md) / (float64(period) * math.Pow(ratio, 4))
		} else {
			md = x
		}
		out[i] = some(md)
	}
	return out
}

// VWAP returns the cumulative volume-weighted average of the typical price
// from the first bar. Bars before any volume has traded are null.
func VWAP(d OHLCV) Series {
	n := d.Len()
	out := nulls(n)
	if len(d.High) != n || len(d.Low) != n || len(d.Volume) != n {
		return out
	}
	var pv, vol float64
	for i := 0; i < n; i++ {
		tp := (d.High[i] + d.Low[i] + d.Close[i]) / 3
		pv += tp * d.Volume[i]
		vol += d.Volume[i]
		if vol != 0 {
			out[i] = some(pv / vol)
		}
	}
	return out
}
