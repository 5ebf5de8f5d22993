package finance

import (
	"time"
)

// Interval is a candle granularity.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval1d  Interval = "1d"
	Interval1wk Interval = "1wk"
	Interval1mo Interval = "1mo"
	Interval3mo Interval = "3mo"
)

// Range is a lookback window ending now.
type Range string

const (
	Range1d  Range = "1d"
	Range5d  Range = "5d"
	Range1mo Range = "1mo"
	Range3mo Range = "3mo"
	Range6mo Range = "6mo"
	Range1y  Range = "1y"
	Range2y  Range = "2y"
	Range5y  Range = "5y"
	Range10y Range = "10y"
	RangeYTD Range = "ytd"
	RangeMax Range = "max"
)

// rangeSpan orders ranges by nominal length; ytd counts as a full year so a
// pair valid in January stays valid in December.
var rangeSpan = map[Range]time.Duration{
	Range1d:  24 * time.Hour,
	Range5d:  5 * 24 * time.Hour,
	Range1mo: 31 * 24 * time.Hour,
	Range3mo: 92 * 24 * time.Hour,
	Range6mo: 183 * 24 * time.Hour,
	Range1y:  366 * 24 * time.Hour,
	RangeYTD: 366 * 24 * time.Hour,
	Range2y:  2 * 366 * 24 * time.Hour,
	Range5y:  5 * 366 * 24 * time.Hour,
	Range10y: 10 * 366 * 24 * time.Hour,
	RangeMax: 1 << 62,
}

// maxRange is the longest range each intraday interval serves. Daily and
// coarser intervals accept any range.
var maxRange = map[Interval]Range{
	Interval1m:  Range5d,
	Interval5m:  Range5d,
	Interval15m: Range1mo,
	Interval30m: Range1mo,
	Interval1h:  Range2y,
	Interval1d:  RangeMax,
	Interval1wk: RangeMax,
	Interval1mo: RangeMax,
	Interval3mo: RangeMax,
}

// periodsPerYear is used to annualize interval returns.
var periodsPerYear = map[Interval]float64{
	Interval1m:  252 * 390,
	Interval5m:  252 * 78,
	Interval15m: 252 * 26,
	Interval30m: 252 * 13,
	Interval1h:  252 * 7,
	Interval1d:  252,
	Interval1wk: 52,
	Interval1mo: 12,
	Interval3mo: 4,
}

// PeriodsPerYear returns how many bars of interval make up a trading year,
// or 0 for an unknown interval.
func PeriodsPerYear(interval Interval) float64 { return periodsPerYear[interval] }

// ValidateChart checks that interval and rng are known and compatible.
func ValidateChart(interval Interval, rng Range) error {
	limit, ok := maxRange[interval]
	if !ok {
		return invalid("interval", string(interval), "unknown interval")
	}
	span, ok := rangeSpan[rng]
	if !ok {
		return invalid("range", string(rng), "unknown range")
	}
	if span > rangeSpan[limit] {
		return invalid("range", string(rng), "exceeds "+string(limit)+" for interval "+string(interval))
	}
	return nil
}

// cutoff returns the earliest instant inside rng as seen at now; the zero
// time means unbounded.
func cutoff(rng Range, now time.Time) (time.Time, error) {
	switch rng {
	case RangeMax:
		return time.Time{}, nil
	case RangeYTD:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), nil
	case Range1d:
		return now.AddDate(0, 0, -1), nil
	case Range5d:
		return now.AddDate(0, 0, -5), nil
	case Range1mo:
		return now.AddDate(0, -1, 0), nil
	case Range3mo:
		return now.AddDate(0, -3, 0), nil
	case Range6mo:
		return now.AddDate(0, -6, 0), nil
	case Range1y:
		return now.AddDate(-1, 0, 0), nil
	case Range2y:
		return now.AddDate(-2, 0, 0), nil
	case Range5y:
		return now.AddDate(-5, 0, 0), nil
	case Range10y:
		return now.AddDate(-10, 0, 0), nil
	}
	return time.Time{}, invalid("range", string(rng), "unknown range")
}
