package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted emits fixed signals by bar index.
type scripted struct {
	at map[int]Action
	i  int
}

func (s *scripted) Name() string { return "scripted" }
func (s *scripted) Reset()       { s.i = 0 }
func (s *scripted) OnBar(Bar) *Signal {
	defer func() { s.i++ }()
	if a, ok := s.at[s.i]; ok {
		return &Signal{Action: a}
	}
	return nil
}

func bars(closes ...float64) []Bar {
	out := make([]Bar, len(closes))
	for i, c := range closes {
		out[i] = Bar{Time: int64(i), Open: c, High: c, Low: c, Close: c, Volume: 1000}
	}
	return out
}

func vShape(down, up int) []Bar {
	var closes []float64
	p := 100.0
	for i := 0; i < down; i++ {
		closes = append(closes, p)
		p--
	}
	for i := 0; i < up; i++ {
		closes = append(closes, p)
		p++
	}
	return bars(closes...)
}

func TestLedger_AverageCost(t *testing.T) {
	l := newLedger(10_000)
	l.record(Trade{Action: ActionBuy, Qty: 10, Price: 100})
	l.record(Trade{Action: ActionBuy, Qty: 10, Price: 110})
	assert.InDelta(t, 105, l.avgPrice, 1e-12)

	pnl := l.record(Trade{Action: ActionSell, Qty: 15, Price: 120})
	assert.InDelta(t, 225, pnl, 1e-9)
	assert.InDelta(t, 5, l.qty, 1e-12)
	assert.InDelta(t, 105, l.avgPrice, 1e-12)

	// oversell is clamped to the position
	pnl = l.record(Trade{Action: ActionSell, Qty: 50, Price: 100})
	assert.InDelta(t, -25, pnl, 1e-9)
	assert.Zero(t, l.qty)
	assert.Zero(t, l.avgPrice)
	assert.InDelta(t, 10_000+200, l.cash, 1e-9)
}

func TestRun_RoundTrip(t *testing.T) {
	s := &scripted{at: map[int]Action{0: ActionBuy, 2: ActionSell}}
	r, err := Run(bars(10, 10, 20, 20, 10), s, Config{InitialCash: 1000})
	require.NoError(t, err)

	assert.Equal(t, []float64{1000, 1000, 2000, 2000, 2000}, r.Equity)
	assert.Equal(t, 2, r.NumTrades)
	assert.InDelta(t, 1.0, r.TotalReturn, 1e-12)
	assert.InDelta(t, 0, r.BuyHoldReturn, 1e-12)
	assert.InDelta(t, 1000, r.RealizedPnL, 1e-9)
	assert.True(t, r.WinRate.Valid)
	assert.Equal(t, 1.0, r.WinRate.Float64)
	assert.Zero(t, r.MaxDrawdown)
	assert.Zero(t, r.OpenQty)
}

func TestRun_IgnoresRedundantSignals(t *testing.T) {
	s := &scripted{at: map[int]Action{0: ActionSell, 1: ActionBuy, 2: ActionBuy, 3: ActionSell, 4: ActionSell}}
	r, err := Run(bars(10, 10, 10, 10, 10), s, Config{InitialCash: 100})
	require.NoError(t, err)
	require.Len(t, r.Trades, 2)
	assert.Equal(t, ActionBuy, r.Trades[0].Action)
	assert.Equal(t, ActionSell, r.Trades[1].Action)
	assert.Equal(t, 0.0, r.WinRate.Float64)
}

func TestRun_Commission(t *testing.T) {
	s := &scripted{at: map[int]Action{0: ActionBuy, 1: ActionSell}}
	r, err := Run(bars(10, 20), s, Config{InitialCash: 1000, Commission: 1})
	require.NoError(t, err)
	require.Len(t, r.Trades, 2)
	assert.Equal(t, 99.0, r.Trades[0].Qty)
	assert.InDelta(t, 988, r.Trades[1].PnL, 1e-9)
	assert.InDelta(t, 1988, r.FinalEquity, 1e-9)
}

func TestRun_OpenPositionMarkedToMarket(t *testing.T) {
	s := &scripted{at: map[int]Action{0: ActionBuy}}
	r, err := Run(bars(10, 5, 15), s, Config{InitialCash: 1000})
	require.NoError(t, err)
	assert.InDelta(t, 1500, r.FinalEquity, 1e-9)
	assert.InDelta(t, 500, r.UnrealizedPnL, 1e-9)
	assert.Equal(t, 100.0, r.OpenQty)
	assert.False(t, r.WinRate.Valid)
	assert.InDelta(t, 0.5, r.MaxDrawdown, 1e-12)
}

func TestRun_DefaultsAndErrors(t *testing.T) {
	_, err := Run(nil, &scripted{}, Config{})
	assert.ErrorIs(t, err, ErrNoBars)

	_, err = Run(bars(1), &scripted{}, Config{Commission: -1})
	assert.Error(t, err)

	r, err := Run(bars(1, 2), &scripted{}, Config{})
	require.NoError(t, err)
	assert.Equal(t, float64(DefaultInitialCash), r.InitialCash)
}

func TestSMACrossover_BuysAfterBottom(t *testing.T) {
	s, err := NewSMACrossover(3, 5, 0)
	require.NoError(t, err)
	data := vShape(20, 20)
	r, err := Run(data, s, Config{})
	require.NoError(t, err)
	require.NotEmpty(t, r.Trades)
	assert.Equal(t, ActionBuy, r.Trades[0].Action)
	assert.Greater(t, r.Trades[0].Time, int64(19))

	again, err := Run(data, s, Config{})
	require.NoError(t, err)
	assert.Equal(t, r.Equity, again.Equity)
}

func TestRSIReversion_BuysOversoldSellsOverbought(t *testing.T) {
	s, err := NewRSIReversion(14, 30, 70)
	require.NoError(t, err)
	r, err := Run(vShape(20, 40), s, Config{InitialCash: 1000})
	require.NoError(t, err)
	require.Len(t, r.Trades, 2)
	assert.Equal(t, ActionBuy, r.Trades[0].Action)
	assert.Equal(t, int64(14), r.Trades[0].Time)
	assert.Equal(t, ActionSell, r.Trades[1].Action)
	assert.Greater(t, r.Trades[1].Price, r.Trades[0].Price)
	assert.Equal(t, 1.0, r.WinRate.Float64)
}

func TestStrategyValidation(t *testing.T) {
	_, err := NewSMACrossover(5, 5, 0)
	assert.Error(t, err)
	_, err = NewRSIReversion(14, 70, 30)
	assert.Error(t, err)
	_, err = NewMACDCross(12, 26, 0)
	assert.Error(t, err)

	for _, name := range []string{"sma_cross", "RSI", " macd "} {
		s, err := ParseStrategy(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, s.Name())
	}
	_, err = ParseStrategy("martingale")
	assert.Error(t, err)
}
