package backtest

import (
	"errors"
	"fmt"
	"math"

	"github.com/guregu/null/v6"

	"github.com/Verdenroz/finance-query-sub000/pkg/risk"
)

// DefaultInitialCash is used when Config.InitialCash is zero.
const DefaultInitialCash = 10_000

// ErrNoBars is returned by Run for an empty bar series.
var ErrNoBars = errors.New("backtest: no bars")

// Config controls position sizing and costs.
type Config struct {
	InitialCash float64 `json:"initial_cash"`
	Commission  float64 `json:"commission"` // flat, per fill
	Fractional  bool    `json:"fractional"` // allow fractional share quantities
}

// Result summarizes one run.
type Result struct {
	Strategy      string     `json:"strategy"`
	Trades        []Trade    `json:"trades"`
	Equity        []float64  `json:"equity"`
	InitialCash   float64    `json:"initial_cash"`
	FinalEquity   float64    `json:"final_equity"`
	RealizedPnL   float64    `json:"realized_pnl"`
	UnrealizedPnL float64    `json:"unrealized_pnl"`
	OpenQty       float64    `json:"open_qty"`
	TotalReturn   float64    `json:"total_return"`
	BuyHoldReturn float64    `json:"buy_hold_return"`
	WinRate       null.Float `json:"win_rate"`
	MaxDrawdown   float64    `json:"max_drawdown"`
	NumTrades     int        `json:"num_trades"`
}

// Run replays bars through s. The strategy is Reset first. The runner is
// long-only and all-in: a BUY while flat spends available cash at the bar's
// close, a SELL while long closes the whole position. Other signals are
// ignored. An open position at the end is marked to market, not closed.
func Run(bars []Bar, s Strategy, cfg Config) (*Result, error) {
	if len(bars) == 0 {
		return nil, ErrNoBars
	}
	if s == nil {
		return nil, errors.New("backtest: nil strategy")
	}
	if cfg.InitialCash == 0 {
		cfg.InitialCash = DefaultInitialCash
	}
	if cfg.InitialCash < 0 || cfg.Commission < 0 {
		return nil, fmt.Errorf("backtest: invalid config %+v", cfg)
	}

	s.Reset()
	l := newLedger(cfg.InitialCash)
	equity := make([]float64, len(bars))
	var wins, closed int

	for i, bar := range bars {
		if sig := s.OnBar(bar); sig != nil && bar.Close > 0 {
			switch {
			case sig.Action == ActionBuy && l.qty == 0:
				qty := (l.cash - cfg.Commission) / bar.Close
				if !cfg.Fractional {
					qty = math.Floor(qty)
				}
				if qty > 0 {
					l.record(Trade{Time: bar.Time, Action: ActionBuy, Qty: qty, Price: bar.Close, Commission: cfg.Commission, Reason: sig.Reason})
				}
			case sig.Action == ActionSell && l.qty > 0:
				pnl := l.record(Trade{Time: bar.Time, Action: ActionSell, Qty: l.qty, Price: bar.Close, Commission: cfg.Commission, Reason: sig.Reason})
				closed++
				if pnl > 0 {
					wins++
				}
			}
		}
		equity[i] = l.equity(bar.Close)
	}

	last := bars[len(bars)-1].Close
	r := &Result{
		Strategy:      s.Name(),
		Trades:        l.trades,
		Equity:        equity,
		InitialCash:   cfg.InitialCash,
		FinalEquity:   equity[len(equity)-1],
		RealizedPnL:   l.realized,
		UnrealizedPnL: l.unrealized(last),
		OpenQty:       l.qty,
		NumTrades:     len(l.trades),
	}
	r.TotalReturn = r.FinalEquity/cfg.InitialCash - 1
	if first := bars[0].Close; first > 0 {
		r.BuyHoldReturn = last/first - 1
	}
	if closed > 0 {
		r.WinRate = null.FloatFrom(float64(wins) / float64(closed))
	}
	r.MaxDrawdown, _, _ = risk.MaxDrawdown(equity)
	return r, nil
}
