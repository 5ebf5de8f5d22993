package finance

import (
	"context"
	"sort"
	"time"
)

// Dividend is a cash distribution per share.
type Dividend struct {
	Date   int64   `json:"date"`
	Amount float64 `json:"amount"`
}

// Split is a share split; Ratio is numerator/denominator.
type Split struct {
	Date        int64   `json:"date"`
	Numerator   float64 `json:"numerator"`
	Denominator float64 `json:"denominator"`
	Ratio       string  `json:"ratio"`
}

// CapitalGain is a fund capital-gain distribution per share.
type CapitalGain struct {
	Date   int64   `json:"date"`
	Amount float64 `json:"amount"`
}

// CorporateActions is the full event history of a symbol, each list sorted
// by date.
type CorporateActions struct {
	Dividends    []Dividend    `json:"dividends"`
	Splits       []Split       `json:"splits"`
	CapitalGains []CapitalGain `json:"capital_gains"`
}

type rawEvents struct {
	Dividends map[string]struct {
		Amount float64 `json:"amount"`
		Date   int64   `json:"date"`
	} `json:"dividends"`
	Splits map[string]struct {
		Date        int64   `json:"date"`
		Numerator   float64 `json:"numerator"`
		Denominator float64 `json:"denominator"`
		SplitRatio  string  `json:"splitRatio"`
	} `json:"splits"`
	CapitalGains map[string]struct {
		Amount float64 `json:"amount"`
		Date   int64   `json:"date"`
	} `json:"capitalGains"`
}

func (r *rawEvents) actions() *CorporateActions {
	a := &CorporateActions{}
	if r == nil {
		return a
	}
	for _, d := range r.Dividends {
		a.Dividends = append(a.Dividends, Dividend{Date: d.Date, Amount: d.Amount})
	}
	for _, s := range r.Splits {
		a.Splits = append(a.Splits, Split{
			Date:        s.Date,
			Numerator:   s.Numerator,
			Denominator: s.Denominator,
			Ratio:       s.SplitRatio,
		})
	}
	for _, g := range r.CapitalGains {
		a.CapitalGains = append(a.CapitalGains, CapitalGain{Date: g.Date, Amount: g.Amount})
	}
	sort.Slice(a.Dividends, func(i, j int) bool { return a.Dividends[i].Date < a.Dividends[j].Date })
	sort.Slice(a.Splits, func(i, j int) bool { return a.Splits[i].Date < a.Splits[j].Date })
	sort.Slice(a.CapitalGains, func(i, j int) bool { return a.CapitalGains[i].Date < a.CapitalGains[j].Date })
	return a
}

// fetchEvents fetches the whole event history in one daily max-range chart
// request. The result is range independent and filtered by the caller.
func (c *Client) fetchEvents(ctx context.Context, symbol string) (*CorporateActions, error) {
	res, err := c.fetchChartResult(ctx, symbol, c.chartQuery(Interval1d, RangeMax, true))
	if err != nil {
		return nil, err
	}
	return res.Events.actions(), nil
}

// Within returns the events dated at or after the start of rng as seen at
// now. RangeMax returns everything.
func (a *CorporateActions) Within(rng Range, now time.Time) (*CorporateActions, error) {
	from, err := cutoff(rng, now)
	if err != nil {
		return nil, err
	}
	start := from.Unix()
	if from.IsZero() {
		start = -1 << 62
	}
	out := &CorporateActions{}
	for _, d := range a.Dividends {
		if d.Date >= start {
			out.Dividends = append(out.Dividends, d)
		}
	}
	for _, s := range a.Splits {
		if s.Date >= start {
			out.Splits = append(out.Splits, s)
		}
	}
	for _, g := range a.CapitalGains {
		if g.Date >= start {
			out.CapitalGains = append(out.CapitalGains, g)
		}
	}
	return out, nil
}
