package indicator

import "math"

// Oscillator is a %K line with its %D signal.
type Oscillator struct {
	K Series `json:"k"`
	D Series `json:"d"`
}

// MACDResult holds the three MACD lines, each aligned independently.
type MACDResult struct {
	Line      Series `json:"line"`
	Signal    Series `json:"signal"`
	Histogram Series `json:"histogram"`
}

// ElderRayResult holds bull and bear power.
type ElderRayResult struct {
	Bull Series `json:"bull"`
	Bear Series `json:"bear"`
}

// RSI returns the Wilder relative strength index. First value at index
// period; avg_loss == 0 yields 100.
func RSI(values []float64, period int) Series {
	if badPeriod(period, len(values)) {
		return nulls(len(values))
	}
	return run(values, NewRSI(period))
}

// Stochastic returns %K = 100*(close-LL)/(HH-LL) over kPeriod bars and
// %D = SMA(%K, dPeriod). A window with HH == LL has no defined %K and is null.
func Stochastic(high, low, close []float64, kPeriod, dPeriod int) Oscillator {
	n := len(close)
	k := nulls(n)
	if badPeriod(kPeriod, n) || dPeriod <= 0 || !sameLen(n, high, low) {
		return Oscillator{K: k, D: nulls(n)}
	}
	hi := extremes(high, kPeriod, true)
	lo := extremes(low, kPeriod, false)
	for i := kPeriod - 1; i < n; i++ {
		hh, ll := high[hi[i]], low[lo[i]]
		if hh == ll {
			continue
		}
		k[i] = some(100 * (close[i] - ll) / (hh - ll))
	}
	return Oscillator{K: k, D: smaOf(k, dPeriod)}
}

// StochRSI applies the stochastic formula to RSI values: the raw value is
// smoothed by kPeriod into K, and K by dPeriod into D.
func StochRSI(values []float64, rsiPeriod, stochPeriod, kPeriod, dPeriod int) Oscillator {
	n := len(values)
	if badPeriod(rsiPeriod, n) || stochPeriod <= 0 || kPeriod <= 0 || dPeriod <= 0 {
		return Oscillator{K: nulls(n), D: nulls(n)}
	}
	rsi := RSI(values, rsiPeriod)
	raw := nulls(n)
	start := rsi.FirstValid()
	if start < 0 || n-start < stochPeriod {
		return Oscillator{K: nulls(n), D: nulls(n)}
	}
	vals := make([]float64, n-start)
	for i := range vals {
		vals[i] = rsi[start+i].Float64
	}
	hi := extremes(vals, stochPeriod, true)
	lo := extremes(vals, stochPeriod, false)
	for j := stochPeriod - 1; j < len(vals); j++ {
		hh, ll := vals[hi[j]], vals[lo[j]]
		if hh == ll {
			continue
		}
		raw[start+j] = some(100 * (vals[j] - ll) / (hh - ll))
	}
	k := smaOf(raw, kPeriod)
	return Oscillator{K: k, D: smaOf(k, dPeriod)}
}

// MACD returns EMA(fast) - EMA(slow), its EMA(signal) and the difference.
func MACD(values []float64, fast, slow, signal int) MACDResult {
	n := len(values)
	if badPeriod(fast, n) || badPeriod(slow, n) || signal <= 0 {
		return MACDResult{Line: nulls(n), Signal: nulls(n), Histogram: nulls(n)}
	}
	line := combine(func(v ...float64) (float64, bool) {
		return v[0] - v[1], true
	}, EMA(values, fast), EMA(values, slow))
	sig := emaOf(line, signal)
	hist := combine(func(v ...float64) (float64, bool) {
		return v[0] - v[1], true
	}, line, sig)
	return MACDResult{Line: line, Signal: sig, Histogram: hist}
}

// PPO is MACD expressed as a percentage of the slow EMA.
func PPO(values []float64, fast, slow, signal int) MACDResult {
	n := len(values)
	if badPeriod(fast, n) || badPeriod(slow, n) || signal <= 0 {
		return MACDResult{Line: nulls(n), Signal: nulls(n), Histogram: nulls(n)}
	}
	line := combine(func(v ...float64) (float64, bool) {
		if v[1] == 0 {
			return 0, false
		}
		return 100 * (v[0] - v[1]) / v[1], true
	}, EMA(values, fast), EMA(values, slow))
	sig := emaOf(line, signal)
	hist := combine(func(v ...float64) (float64, bool) {
		return v[0] - v[1], true
	}, line, sig)
	return MACDResult{Line: line, Signal: sig, Histogram: hist}
}

// ROC returns the percentage rate of change over period bars.
func ROC(values []float64, period int) Series {
	n := len(values)
	out := nulls(n)
	if badPeriod(period, n) {
		return out
	}
	for i := period; i < n; i++ {
		if prev := values[i-period]; prev != 0 {
			out[i] = some(100 * (values[i] - prev) / prev)
		}
	}
	return out
}

// Momentum returns values[i] - values[i-period].
func Momentum(values []float64, period int) Series {
	n := len(values)
	out := nulls(n)
	if badPeriod(period, n) {
		return out
	}
	for i := period; i < n; i++ {
		out[i] = some(values[i] - values[i-period])
	}
	return out
}

// WilliamsR returns -100*(HH-close)/(HH-LL). Zero range is null.
func WilliamsR(high, low, close []float64, period int) Series {
	n := len(close)
	out := nulls(n)
	if badPeriod(period, n) || !sameLen(n, high, low) {
		return out
	}
	hi := extremes(high, period, true)
	lo := extremes(low, period, false)
	for i := period - 1; i < n; i++ {
		hh, ll := high[hi[i]], low[lo[i]]
		if hh == ll {
			continue
		}
		out[i] = some(-100 * (hh - close[i]) / (hh - ll))
	}
	return out
}

// CCI returns the commodity channel index with the 0.015 constant.
// A window with zero mean deviation is null.
func CCI(high, low, close []float64, period int) Series {
	n := len(close)
	out := nulls(n)
	if badPeriod(period, n) || !sameLen(n, high, low) {
		return out
	}
	tp := typical(high, low, close)
	avg := SMA(tp, period)
	for i := period - 1; i < n; i++ {
		mean := avg[i].Float64
		var dev float64
		for j := i - period + 1; j <= i; j++ {
			dev += math.Abs(tp[j] - mean)
		}
		dev /= float64(period)
		if dev == 0 {
			continue
		}
		out[i] = some((tp[i] - mean) / (0.015 * dev))
	}
	return out
}

// AwesomeOscillator returns SMA(median, 5) - SMA(median, 34).
func AwesomeOscillator(high, low []float64) Series {
	n := len(high)
	if !sameLen(n, low) {
		return nulls(n)
	}
	mid := median(high, low)
	return combine(func(v ...float64) (float64, bool) {
		return v[0] - v[1], true
	}, SMA(mid, 5), SMA(mid, 34))
}

// UltimateOscillator blends buying pressure over three windows with
// weights 4:2:1. A window with zero true range is null.
func UltimateOscillator(high, low, close []float64, p1, p2, p3 int) Series {
	n := len(close)
	out := nulls(n)
	longest := max(p1, p2, p3)
	if p1 <= 0 || p2 <= 0 || p3 <= 0 || longest >= n || !sameLen(n, high, low) {
		return out
	}
	bp := make([]float64, n)
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		lo := math.Min(low[i], close[i-1])
		hi := math.Max(high[i], close[i-1])
		bp[i] = close[i] - lo
		tr[i] = hi - lo
	}
	avg := func(i, p int) (float64, bool) {
		var b, t float64
		for j := i - p + 1; j <= i; j++ {
			b += bp[j]
			t += tr[j]
		}
		if t == 0 {
			return 0, false
		}
		return b / t, true
	}
	for i := longest; i < n; i++ {
		a1, ok1 := avg(i, p1)
		a2, ok2 := avg(i, p2)
		a3, ok3 := avg(i, p3)
		if !ok1 || !ok2 || !ok3 {
			continue
		}
		out[i] = some(100 * (4*a1 + 2*a2 + a3) / 7)
	}
	return out
}

// TRIX returns the one-bar percentage change of a triple-smoothed EMA.
func TRIX(values []float64, period int) Series {
	n := len(values)
	out := nulls(n)
	if badPeriod(period, n) {
		return out
	}
	e3 := emaOf(emaOf(EMA(values, period), period), period)
	for i := 1; i < n; i++ {
		if e3[i].Valid && e3[i-1].Valid && e3[i-1].Float64 != 0 {
			out[i] = some(100 * (e3[i].Float64 - e3[i-1].Float64) / e3[i-1].Float64)
		}
	}
	return out
}

// TSI returns the true strength index: double-smoothed momentum over
// double-smoothed absolute momentum.
func TSI(values []float64, long, short int) Series {
	n := len(values)
	if badPeriod(long, n) || short <= 0 {
		return nulls(n)
	}
	mom := nulls(n)
	abs := nulls(n)
	for i := 1; i < n; i++ {
		d := values[i] - values[i-1]
		mom[i] = some(d)
		abs[i] = some(math.Abs(d))
	}
	num := emaOf(emaOf(mom, long), short)
	den := emaOf(emaOf(abs, long), short)
	return combine(func(v ...float64) (float64, bool) {
		if v[1] == 0 {
			return 0, false
		}
		return 100 * v[0] / v[1], true
	}, num, den)
}

// CMO returns the Chande momentum oscillator over period price changes.
// A window without any change is null.
func CMO(values []float64, period int) Series {
	n := len(values)
	out := nulls(n)
	if badPeriod(period, n) {
		return out
	}
	var up, down float64
	for i := 1; i < n; i++ {
		g, l := split(values[i] - values[i-1])
		up += g
		down += l
		if i > period {
			g0, l0 := split(values[i-period] - values[i-period-1])
			up -= g0
			down -= l0
		}
		if i >= period && up+down != 0 {
			out[i] = some(100 * (up - down) / (up + down))
		}
	}
	return out
}

// ElderRay returns bull power high-EMA and bear power low-EMA.
func ElderRay(high, low, close []float64, period int) ElderRayResult {
	n := len(close)
	if badPeriod(period, n) || !sameLen(n, high, low) {
		return ElderRayResult{Bull: nulls(n), Bear: nulls(n)}
	}
	ema := EMA(close, period)
	return ElderRayResult{
		Bull: combine(func(v ...float64) (float64, bool) { return v[0] - v[1], true }, FromFloats(high), ema),
		Bear: combine(func(v ...float64) (float64, bool) { return v[0] - v[1], true }, FromFloats(low), ema),
	}
}
