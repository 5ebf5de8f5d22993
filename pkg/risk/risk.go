// Package risk computes return and risk statistics over a close-price
// series, optionally measured against a benchmark.
package risk

import (
	"errors"
	"math"
	"sort"

	"github.com/guregu/null/v6"
	"gonum.org/v1/gonum/stat"
)

// Annualization factors for common bar sizes.
const (
	Daily   = 252
	Weekly  = 52
	Monthly = 12
)

// DefaultConfidence is the VaR/CVaR level used when Config.Confidence is unset.
const DefaultConfidence = 0.95

// ErrInsufficientData is returned when fewer than three usable prices are given.
var ErrInsufficientData = errors.New("risk: not enough observations")

// Point is one close observation.
type Point struct {
	Time  int64
	Close float64
}

// Config controls annualization and the risk-free rate.
type Config struct {
	PeriodsPerYear float64 // 0 means Daily
	RiskFreeRate   float64 // annual, e.g. 0.04
	Confidence     float64 // 0 means DefaultConfidence
}

func (c Config) withDefaults() Config {
	if c.PeriodsPerYear <= 0 {
		c.PeriodsPerYear = Daily
	}
	if c.Confidence <= 0 || c.Confidence >= 1 {
		c.Confidence = DefaultConfidence
	}
	return c
}

// Report is the result of Analyze. Ratios that are undefined for the data
// (zero volatility, no benchmark overlap) are null.
type Report struct {
	Observations     int        `json:"observations"`
	TotalReturn      float64    `json:"total_return"`
	AnnualizedReturn float64    `json:"annualized_return"`
	Volatility       float64    `json:"volatility"`
	Sharpe           null.Float `json:"sharpe"`
	Sortino          null.Float `json:"sortino"`
	MaxDrawdown      float64    `json:"max_drawdown"`
	DrawdownPeak     int64      `json:"drawdown_peak"`
	DrawdownTrough   int64      `json:"drawdown_trough"`
	Confidence       float64    `json:"confidence"`
	VaR              float64    `json:"var"`
	CVaR             float64    `json:"cvar"`
	Beta             null.Float `json:"beta"`
	Alpha            null.Float `json:"alpha"`
	Correlation      null.Float `json:"correlation"`
}

// Returns computes simple period returns. len(out) == len(values)-1.
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		out[i-1] = values[i]/values[i-1] - 1
	}
	return out
}

// LogReturns computes log period returns. len(out) == len(values)-1.
func LogReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		out[i-1] = math.Log(values[i] / values[i-1])
	}
	return out
}

// MaxDrawdown returns the largest peak-to-trough decline as a positive
// fraction, with the indices of that peak and trough. A monotonically rising
// series has drawdown 0 and peak == trough == 0.
func MaxDrawdown(values []float64) (dd float64, peak, trough int) {
	if len(values) == 0 {
		return 0, 0, 0
	}
	hi, hiIdx := values[0], 0
	for i, v := range values {
		if v > hi {
			hi, hiIdx = v, i
		}
		if hi <= 0 {
			continue
		}
		if d := (hi - v) / hi; d > dd {
			dd, peak, trough = d, hiIdx, i
		}
	}
	return dd, peak, trough
}

// ValueAtRisk returns the historical VaR and CVaR of returns at the given
// confidence, both expressed as positive losses.
func ValueAtRisk(returns []float64, confidence float64) (vr, cvar float64) {
	if len(returns) == 0 {
		return 0, 0
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)

	// 1-0.95 is 0.05000000000000004; the tolerance keeps the tail at 5 of 100.
	alpha := 1 - confidence
	cutoff := int(math.Ceil(alpha*float64(len(sorted)) - 1e-9))
	if cutoff < 1 {
		cutoff = 1
	}
	if cutoff > len(sorted) {
		cutoff = len(sorted)
	}
	return -sorted[cutoff-1], -stat.Mean(sorted[:cutoff], nil)
}

// Analyze computes a Report for asset. benchmark may be nil; when given, the
// two series are aligned on Point.Time before beta, alpha and correlation are
// computed. Non-positive closes are skipped.
func Analyze(asset, benchmark []Point, cfg Config) (*Report, error) {
	cfg = cfg.withDefaults()
	asset = usable(asset)
	if len(asset) < 3 {
		return nil, ErrInsufficientData
	}

	closes := make([]float64, len(asset))
	for i, p := range asset {
		closes[i] = p.Close
	}
	rets := Returns(closes)
	n := float64(len(rets))
	ppy := cfg.PeriodsPerYear
	rfPeriod := cfg.RiskFreeRate / ppy

	first, last := closes[0], closes[len(closes)-1]
	r := &Report{
		Observations:     len(rets),
		TotalReturn:      last/first - 1,
		AnnualizedReturn: math.Pow(last/first, ppy/n) - 1,
		Volatility:       stat.StdDev(rets, nil) * math.Sqrt(ppy),
		Confidence:       cfg.Confidence,
	}

	mean := stat.Mean(rets, nil)
	if r.Volatility > 0 {
		r.Sharpe = null.FloatFrom((mean*ppy - cfg.RiskFreeRate) / r.Volatility)
	}
	if dd := downsideDeviation(rets, rfPeriod) * math.Sqrt(ppy); dd > 0 {
		r.Sortino = null.FloatFrom((mean*ppy - cfg.RiskFreeRate) / dd)
	}

	dd, peak, trough := MaxDrawdown(closes)
	r.MaxDrawdown = dd
	r.DrawdownPeak = asset[peak].Time
	r.DrawdownTrough = asset[trough].Time
	r.VaR, r.CVaR = ValueAtRisk(rets, cfg.Confidence)

	if len(benchmark) > 0 {
		a, b := align(asset, usable(benchmark))
		if len(a) >= 3 {
			ar, br := Returns(a), Returns(b)
			if v := stat.Variance(br, nil); v > 0 {
				beta := stat.Covariance(ar, br, nil) / v
				r.Beta = null.FloatFrom(beta)
				excessA := stat.Mean(ar, nil) - rfPeriod
				excessB := stat.Mean(br, nil) - rfPeriod
				r.Alpha = null.FloatFrom((excessA - beta*excessB) * ppy)
			}
			if c := stat.Correlation(ar, br, nil); !math.IsNaN(c) {
				r.Correlation = null.FloatFrom(c)
			}
		}
	}
	return r, nil
}

func downsideDeviation(rets []float64, target float64) float64 {
	var sum float64
	for _, r := range rets {
		if d := r - target; d < 0 {
			sum += d * d
		}
	}
	return math.Sqrt(sum / float64(len(rets)))
}

func usable(points []Point) []Point {
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if p.Close > 0 && !math.IsInf(p.Close, 0) {
			out = append(out, p)
		}
	}
	return out
}

// align keeps the timestamps present in both series, in asset order.
func align(asset, bench []Point) (a, b []float64) {
	byTime := make(map[int64]float64, len(bench))
	for _, p := range bench {
		byTime[p.Time] = p.Close
	}
	for _, p := range asset {
		if v, ok := byTime[p.Time]; ok {
			a = append(a, p.Close)
			b = append(b, v)
		}
	}
	return a, b
}
