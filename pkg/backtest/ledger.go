package backtest

// Trade is one executed fill.
type Trade struct {
	Time       int64   `json:"time"`
	Action     Action  `json:"action"`
	Qty        float64 `json:"qty"`
	Price      float64 `json:"price"`
	Commission float64 `json:"commission"`
	PnL        float64 `json:"pnl"` // realized, SELL only
	Reason     string  `json:"reason,omitempty"`
}

// ledger tracks cash, the open position at average cost and realized P&L.
type ledger struct {
	cash     float64
	qty      float64
	avgPrice float64
	realized float64
	trades   []Trade
}

func newLedger(cash float64) *ledger {
	return &ledger{cash: cash, trades: make([]Trade, 0, 64)}
}

// record applies a fill and returns the realized P&L of a sell, net of
// the sell's commission.
func (l *ledger) record(t Trade) float64 {
	var pnl float64
	switch t.Action {
	case ActionBuy:
		// weighted average price; commission is folded into cost basis
		total := l.avgPrice*l.qty + t.Price*t.Qty + t.Commission
		l.qty += t.Qty
		if l.qty > 0 {
			l.avgPrice = total / l.qty
		}
		l.cash -= t.Price*t.Qty + t.Commission
	case ActionSell:
		qty := t.Qty
		if qty > l.qty {
			qty = l.qty
		}
		t.Qty = qty
		pnl = (t.Price-l.avgPrice)*qty - t.Commission
		l.qty -= qty
		if l.qty <= 0 {
			l.qty, l.avgPrice = 0, 0
		}
		l.cash += t.Price*qty - t.Commission
		l.realized += pnl
		t.PnL = pnl
	}
	l.trades = append(l.trades, t)
	return pnl
}

func (l *ledger) equity(price float64) float64 {
	return l.cash + l.qty*price
}

func (l *ledger) unrealized(price float64) float64 {
	if l.qty <= 0 {
		return 0
	}
	return (price - l.avgPrice) * l.qty
}
