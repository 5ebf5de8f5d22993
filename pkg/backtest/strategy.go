// Package backtest replays a bar series through a trading strategy and
// reports the resulting trades and equity curve.
//
// A Strategy receives bars one at a time and emits BUY/SELL signals. Run
// owns the ledger: it sizes positions, applies commission and marks the
// portfolio to market on every bar.
package backtest

import (
	"fmt"
	"strings"

	"github.com/Verdenroz/finance-query-sub000/pkg/indicator"
)

// Bar is one OHLCV observation.
type Bar struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Action represents a trading action.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Signal is emitted by a strategy when it wants to act on a bar.
type Signal struct {
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

// Strategy is the interface that all strategies must implement.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// OnBar is called for each bar in order.
	// Return a Signal to act, or nil to skip.
	OnBar(bar Bar) *Signal

	// Reset clears all state so the strategy can be replayed.
	Reset()
}

// SMACrossover buys on a golden cross (fast SMA crosses above slow) and
// sells on a death cross. With an RSI filter, buys are skipped while RSI is
// above 70 and sells while it is below 30.
type SMACrossover struct {
	fastPeriod int
	slowPeriod int
	rsiPeriod  int

	fast *indicator.SMAStream
	slow *indicator.SMAStream
	rsi  *indicator.RSIStream

	prevFast float64
	prevSlow float64
	ready    bool
}

// NewSMACrossover creates an SMA crossover strategy. rsiPeriod 0 disables
// the RSI filter.
func NewSMACrossover(fastPeriod, slowPeriod, rsiPeriod int) (*SMACrossover, error) {
	if fastPeriod <= 0 || slowPeriod <= fastPeriod {
		return nil, fmt.Errorf("backtest: sma crossover needs 0 < fast < slow, got %d/%d", fastPeriod, slowPeriod)
	}
	if rsiPeriod < 0 {
		return nil, fmt.Errorf("backtest: negative rsi period %d", rsiPeriod)
	}
	s := &SMACrossover{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		rsiPeriod:  rsiPeriod,
	}
	s.Reset()
	return s, nil
}

func (s *SMACrossover) Name() string {
	return fmt.Sprintf("sma_cross(%d,%d)", s.fastPeriod, s.slowPeriod)
}

func (s *SMACrossover) Reset() {
	s.fast = indicator.NewSMA(s.fastPeriod)
	s.slow = indicator.NewSMA(s.slowPeriod)
	if s.rsiPeriod > 0 {
		s.rsi = indicator.NewRSI(s.rsiPeriod)
	}
	s.prevFast, s.prevSlow, s.ready = 0, 0, false
}

func (s *SMACrossover) OnBar(bar Bar) *Signal {
	s.fast.Update(bar.Close)
	s.slow.Update(bar.Close)
	if s.rsi != nil {
		s.rsi.Update(bar.Close)
	}
	if !s.slow.Ready() {
		return nil
	}

	fast, slow := s.fast.Value(), s.slow.Value()
	defer func() {
		s.prevFast, s.prevSlow = fast, slow
		s.ready = true
	}()
	if !s.ready {
		return nil
	}

	switch {
	case s.prevFast <= s.prevSlow && fast > slow:
		if s.rsi != nil && s.rsi.Ready() && s.rsi.Value() > 70 {
			return nil
		}
		return &Signal{Action: ActionBuy, Reason: "golden cross"}
	case s.prevFast >= s.prevSlow && fast < slow:
		if s.rsi != nil && s.rsi.Ready() && s.rsi.Value() < 30 {
			return nil
		}
		return &Signal{Action: ActionSell, Reason: "death cross"}
	}
	return nil
}

// RSIReversion buys when RSI drops below Lower and sells when it rises
// above Upper.
type RSIReversion struct {
	period int
	lower  float64
	upper  float64
	rsi    *indicator.RSIStream
}

// NewRSIReversion creates an RSI mean-reversion strategy.
func NewRSIReversion(period int, lower, upper float64) (*RSIReversion, error) {
	if period <= 0 {
		return nil, fmt.Errorf("backtest: rsi period must be positive, got %d", period)
	}
	if lower < 0 || upper > 100 || lower >= upper {
		return nil, fmt.Errorf("backtest: rsi bounds need 0 <= lower < upper <= 100, got %v/%v", lower, upper)
	}
	return &RSIReversion{period: period, lower: lower, upper: upper, rsi: indicator.NewRSI(period)}, nil
}

func (r *RSIReversion) Name() string { return fmt.Sprintf("rsi(%d)", r.period) }

func (r *RSIReversion) Reset() { r.rsi.Reset() }

func (r *RSIReversion) OnBar(bar Bar) *Signal {
	r.rsi.Update(bar.Close)
	if !r.rsi.Ready() {
		return nil
	}
	switch v := r.rsi.Value(); {
	case v < r.lower:
		return &Signal{Action: ActionBuy, Reason: fmt.Sprintf("rsi %.1f < %.0f", v, r.lower)}
	case v > r.upper:
		return &Signal{Action: ActionSell, Reason: fmt.Sprintf("rsi %.1f > %.0f", v, r.upper)}
	}
	return nil
}

// MACDCross buys when the MACD line crosses above its signal line and sells
// when it crosses below.
type MACDCross struct {
	fastPeriod, slowPeriod, signalPeriod int

	fast   *indicator.EMAStream
	slow   *indicator.EMAStream
	signal *indicator.EMAStream

	prevDiff float64
	ready    bool
}

// NewMACDCross creates a MACD signal-cross strategy (12/26/9 is standard).
func NewMACDCross(fastPeriod, slowPeriod, signalPeriod int) (*MACDCross, error) {
	if fastPeriod <= 0 || slowPeriod <= fastPeriod || signalPeriod <= 0 {
		return nil, fmt.Errorf("backtest: invalid macd periods %d/%d/%d", fastPeriod, slowPeriod, signalPeriod)
	}
	m := &MACDCross{fastPeriod: fastPeriod, slowPeriod: slowPeriod, signalPeriod: signalPeriod}
	m.Reset()
	return m, nil
}

func (m *MACDCross) Name() string {
	return fmt.Sprintf("macd(%d,%d,%d)", m.fastPeriod, m.slowPeriod, m.signalPeriod)
}

func (m *MACDCross) Reset() {
	m.fast = indicator.NewEMA(m.fastPeriod)
	m.slow = indicator.NewEMA(m.slowPeriod)
	m.signal = indicator.NewEMA(m.signalPeriod)
	m.prevDiff, m.ready = 0, false
}

func (m *MACDCross) OnBar(bar Bar) *Signal {
	m.fast.Update(bar.Close)
	m.slow.Update(bar.Close)
	if !m.slow.Ready() {
		return nil
	}
	line := m.fast.Value() - m.slow.Value()
	m.signal.Update(line)
	if !m.signal.Ready() {
		return nil
	}

	diff := line - m.signal.Value()
	defer func() {
		m.prevDiff = diff
		m.ready = true
	}()
	if !m.ready {
		return nil
	}
	switch {
	case m.prevDiff <= 0 && diff > 0:
		return &Signal{Action: ActionBuy, Reason: "macd crossed above signal"}
	case m.prevDiff >= 0 && diff < 0:
		return &Signal{Action: ActionSell, Reason: "macd crossed below signal"}
	}
	return nil
}

// ParseStrategy builds a strategy with default parameters from its short
// name: "sma_cross" (20/50, RSI 14 filter), "rsi" (14, 30/70) or
// "macd" (12/26/9).
func ParseStrategy(name string) (Strategy, error) {
	var (
		s   Strategy
		err error
	)
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sma_cross", "sma":
		s, err = NewSMACrossover(20, 50, 14)
	case "rsi":
		s, err = NewRSIReversion(14, 30, 70)
	case "macd":
		s, err = NewMACDCross(12, 26, 9)
	default:
		return nil, fmt.Errorf("backtest: unknown strategy %q", name)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
