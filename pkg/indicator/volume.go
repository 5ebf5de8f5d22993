package indicator

// OBV returns on-balance volume starting at zero on the first bar.
func OBV(close, volume []float64) Series {
	n := len(close)
	out := nulls(n)
	if n == 0 || !sameLen(n, volume) {
		return out
	}
	var obv float64
	out[0] = some(0)
	for i := 1; i < n; i++ {
		switch {
		case close[i] > close[i-1]:
			obv += volume[i]
		case close[i] < close[i-1]:
			obv -= volume[i]
		}
		out[i] = some(obv)
	}
	return out
}

// MFI returns the money flow index. A window with only positive flow reads
// 100; a window with no flow at all is null.
func MFI(high, low, close, volume []float64, period int) Series {
	n := len(close)
	out := nulls(n)
	if badPeriod(period, n-1) || !sameLen(n, high, low, volume) {
		return out
	}
	tp := typical(high, low, close)
	pos := make([]float64, n)
	neg := make([]float64, n)
	for i := 1; i < n; i++ {
		flow := tp[i] * volume[i]
		switch {
		case tp[i] > tp[i-1]:
			pos[i] = flow
		case tp[i] < tp[i-1]:
			neg[i] = flow
		}
	}
	var sp, sn float64
	for i := 1; i < n; i++ {
		sp += pos[i]
		sn += neg[i]
		if i > period {
			sp -= pos[i-period]
			sn -= neg[i-period]
		}
		if i < period {
			continue
		}
		switch {
		case sp == 0 && sn == 0:
		case sn == 0:
			out[i] = some(100)
		default:
			out[i] = some(100 - 100/(1+sp/sn))
		}
	}
	return out
}

func moneyFlowMultiplier(h, l, c float64) float64 {
	if h == l {
		return 0
	}
	return ((c - l) - (h - c)) / (h - l)
}

// ADLine returns the accumulation/distribution line.
func ADLine(high, low, close, volume []float64) Series {
	n := len(close)
	if !sameLen(n, high, low, volume) {
		return nulls(n)
	}
	return FromFloats(adValues(high, low, close, volume))
}

func adValues(high, low, close, volume []float64) []float64 {
	out := make([]float64, len(close))
	var ad float64
	for i := range close {
		ad += moneyFlowMultiplier(high[i], low[i], close[i]) * volume[i]
		out[i] = ad
	}
	return out
}

// CMF returns Chaikin money flow over period bars; zero volume reads null.
func CMF(high, low, close, volume []float64, period int) Series {
	n := len(close)
	out := nulls(n)
	if badPeriod(period, n) || !sameLen(n, high, low, volume) {
		return out
	}
	var mfv, vol float64
	for i := 0; i < n; i++ {
		mfv += moneyFlowMultiplier(high[i], low[i], close[i]) * volume[i]
		vol += volume[i]
		if i >= period {
			j := i - period
			mfv -= moneyFlowMultiplier(high[j], low[j], close[j]) * volume[j]
			vol -= volume[j]
		}
		if i >= period-1 && vol != 0 {
			out[i] = some(mfv / vol)
		}
	}
	return out
}

// ChaikinOscillator returns EMA(fast) - EMA(slow) of the A/D line
// (classically 3 and 10).
func ChaikinOscillator(high, low, close, volume []float64, fast, slow int) Series {
	n := len(close)
	if badPeriod(fast, n) || badPeriod(slow, n) || !sameLen(n, high, low, volume) {
		return nulls(n)
	}
	ad := adValues(high, low, close, volume)
	return combine(func(v ...float64) (float64, bool) { return v[0] - v[1], true },
		EMA(ad, fast), EMA(ad, slow))
}

// ForceIndex returns the EMA of (close - prevClose) * volume.
func ForceIndex(close, volume []float64, period int) Series {
	n := len(close)
	if badPeriod(period, n-1) || !sameLen(n, volume) {
		return nulls(n)
	}
	raw := make(Series, n)
	for i := 1; i < n; i++ {
		raw[i] = some((close[i] - close[i-1]) * volume[i])
	}
	return emaOf(raw, period)
}

// VPT returns volume price trend, starting at zero on the first bar.
func VPT(close, volume []float64) Series {
	n := len(close)
	out := nulls(n)
	if n == 0 || !sameLen(n, volume) {
		return out
	}
	var vpt float64
	out[0] = some(0)
	for i := 1; i < n; i++ {
		if close[i-1] != 0 {
			vpt += volume[i] * (close[i] - close[i-1]) / close[i-1]
		}
		out[i] = some(vpt)
	}
	return out
}
