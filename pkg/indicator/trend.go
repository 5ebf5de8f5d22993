package indicator

import (
	"math"

	"github.com/guregu/null/v6"
)

// ADXResult holds ADX with its directional indicators.
type ADXResult struct {
	ADX     Series `json:"adx"`
	PlusDI  Series `json:"plus_di"`
	MinusDI Series `json:"minus_di"`
}

// AroonResult holds Aroon up and down.
type AroonResult struct {
	Up   Series `json:"up"`
	Down Series `json:"down"`
}

// SuperTrendResult holds the SuperTrend line and its direction.
type SuperTrendResult struct {
	Value   Series      `json:"value"`
	Uptrend []null.Bool `json:"uptrend"`
}

// IchimokuResult holds the five Ichimoku lines. The senkou spans are shifted
// forward and the chikou span back by the kijun period; values that would
// fall outside the input are dropped so every line keeps the input length.
type IchimokuResult struct {
	Tenkan  Series `json:"tenkan"`
	Kijun   Series `json:"kijun"`
	SenkouA Series `json:"senkou_a"`
	SenkouB Series `json:"senkou_b"`
	Chikou  Series `json:"chikou"`
}

// ADX returns Wilder's average directional index. +DI/-DI start at index
// period, ADX at 2*period-1. A window without any range reads as no
// directional movement (DI = 0).
func ADX(high, low, close []float64, period int) ADXResult {
	n := len(close)
	res := ADXResult{ADX: nulls(n), PlusDI: nulls(n), MinusDI: nulls(n)}
	if badPeriod(period, n-1) || !sameLen(n, high, low) {
		return res
	}
	p := float64(period)
	var sTR, sPlus, sMinus, sumDX, adx float64
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		var pdm, mdm float64
		if up > down && up > 0 {
			pdm = up
		}
		if down > up && down > 0 {
			mdm = down
		}
		tr := trueRange(high, low, close, i)

		if i < period {
			sTR += tr
			sPlus += pdm
			sMinus += mdm
			continue
		}
		sTR = sTR - sTR/p + tr
		sPlus = sPlus - sPlus/p + pdm
		sMinus = sMinus - sMinus/p + mdm

		var pdi, mdi float64
		if sTR != 0 {
			pdi = 100 * sPlus / sTR
			mdi = 100 * sMinus / sTR
		}
		res.PlusDI[i] = some(pdi)
		res.MinusDI[i] = some(mdi)

		var dx float64
		if pdi+mdi != 0 {
			dx = 100 * math.Abs(pdi-mdi) / (pdi + mdi)
		}
		k := i - period
		switch {
		case k < period-1:
			sumDX += dx
		case k == period-1:
			sumDX += dx
			adx = sumDX / p
			res.ADX[i] = some(adx)
		default:
			adx = (adx*(p-1) + dx) / p
			res.ADX[i] = some(adx)
		}
	}
	return res
}

// Aroon returns 100*(period - bars since the highest high / lowest low)/period
// over the last period+1 bars. Ties use the most recent extreme.
func Aroon(high, low []float64, period int) AroonResult {
	n := len(high)
	res := AroonResult{Up: nulls(n), Down: nulls(n)}
	if badPeriod(period, n-1) || !sameLen(n, low) {
		return res
	}
	hi := extremes(high, period+1, true)
	lo := extremes(low, period+1, false)
	p := float64(period)
	for i := period; i < n; i++ {
		res.Up[i] = some(100 * (p - float64(i-hi[i])) / p)
		res.Down[i] = some(100 * (p - float64(i-lo[i])) / p)
	}
	return res
}

// AroonOscillator returns Aroon up minus Aroon down.
func AroonOscillator(high, low []float64, period int) Series {
	a := Aroon(high, low, period)
	return combine(func(v ...float64) (float64, bool) { return v[0] - v[1], true }, a.Up, a.Down)
}

// SuperTrend returns the ATR band trailing stop. The first value is at the
// first ATR index; the initial direction is up when close is above the bar
// midpoint.
func SuperTrend(high, low, close []float64, period int, mult float64) SuperTrendResult {
	n := len(close)
	res := SuperTrendResult{Value: nulls(n), Uptrend: make([]null.Bool, n)}
	atr := ATR(high, low, close, period)
	start := atr.FirstValid()
	if start < 0 {
		return res
	}
	var fu, fl float64
	var up bool
	for i := start; i < n; i++ {
		hl2 := (high[i] + low[i]) / 2
		bu := hl2 + mult*atr[i].Float64
		bl := hl2 - mult*atr[i].Float64
		if i == start {
			fu, fl = bu, bl
			up = close[i] >= hl2
		} else {
			if bu < fu || close[i-1] > fu {
				fu = bu
			}
			if bl > fl || close[i-1] < fl {
				fl = bl
			}
			if up && close[i] < fl {
				up = false
			} else if !up && close[i] > fu {
				up = true
			}
		}
		if up {
			res.Value[i] = some(fl)
		} else {
			res.Value[i] = some(fu)
		}
		res.Uptrend[i] = null.BoolFrom(up)
	}
	return res
}

func midpoint(high, low []float64, period int) Series {
	n := len(high)
	out := nulls(n)
	if badPeriod(period, n) {
		return out
	}
	hi := extremes(high, period, true)
	lo := extremes(low, period, false)
	for i := period - 1; i < n; i++ {
		out[i] = some((high[hi[i]] + low[lo[i]]) / 2)
	}
	return out
}

// Ichimoku returns the cloud lines for the given conversion, base and span-B
// periods (classically 9, 26, 52).
func Ichimoku(high, low, close []float64, tenkan, kijun, senkouB int) IchimokuResult {
	n := len(close)
	res := IchimokuResult{SenkouA: nulls(n), SenkouB: nulls(n), Chikou: nulls(n)}
	if !sameLen(n, high, low) || kijun <= 0 {
		res.Tenkan, res.Kijun = nulls(n), nulls(n)
		return res
	}
	res.Tenkan = midpoint(high, low, tenkan)
	res.Kijun = midpoint(high, low, kijun)
	spanB := midpoint(high, low, senkouB)
	d := kijun
	for i := d; i < n; i++ {
		j := i - d
		if res.Tenkan[j].Valid && res.Kijun[j].Valid {
			res.SenkouA[i] = some((res.Tenkan[j].Float64 + res.Kijun[j].Float64) / 2)
		}
		res.SenkouB[i] = spanB[j]
	}
	for i := 0; i+d < n; i++ {
		res.Chikou[i] = some(close[i+d])
	}
	return res
}

// ParabolicSAR returns Wilder's stop-and-reverse with acceleration step and
// cap (classically 0.02 and 0.2). The first value is at index 1.
func ParabolicSAR(high, low []float64, step, maxStep float64) Series {
	n := len(high)
	out := nulls(n)
	if n < 2 || !sameLen(n, low) || step <= 0 || maxStep < step {
		return out
	}
	downMove := low[0] - low[1]
	upMove := high[1] - high[0]
	up := !(downMove > upMove && downMove > 0)

	var sar, ep float64
	if up {
		sar, ep = low[0], high[1]
	} else {
		sar, ep = high[0], low[1]
	}
	af := step
	out[1] = some(sar)

	for i := 2; i < n; i++ {
		sar += af * (ep - sar)
		if up {
			sar = math.Min(sar, math.Min(low[i-1], low[i-2]))
			if low[i] < sar {
				up = false
				sar, ep, af = ep, low[i], step
			} else if high[i] > ep {
				ep = high[i]
				af = math.Min(af+step, maxStep)
			}
		} else {
			sar = math.Max(sar, math.Max(high[i-1], high[i-2]))
			if high[i] > sar {
				up = true
				sar, ep, af = ep, high[i], step
			} else if low[i] < ep {
				ep = low[i]
				af = math.Min(af+step, maxStep)
			}
		}
		out[i] = some(sar)
	}
	return out
}
