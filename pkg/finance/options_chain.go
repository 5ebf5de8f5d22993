package finance

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/guregu/null/v6"

	"github.com/Verdenroz/finance-query-sub000/pkg/yahoo"
)

// OptionContract is one call or put.
type OptionContract struct {
	ContractSymbol    string     `json:"contract_symbol"`
	Strike            float64    `json:"strike"`
	Currency          string     `json:"currency"`
	LastPrice         null.Float `json:"last_price"`
	Change            null.Float `json:"change"`
	PercentChange     null.Float `json:"percent_change"`
	Volume            null.Int   `json:"volume"`
	OpenInterest      null.Int   `json:"open_interest"`
	Bid               null.Float `json:"bid"`
	Ask               null.Float `json:"ask"`
	Expiration        int64      `json:"expiration"`
	LastTradeDate     null.Int   `json:"last_trade_date"`
	ImpliedVolatility null.Float `json:"implied_volatility"`
	InTheMoney        bool       `json:"in_the_money"`
}

// OptionChain is the chain for one expiration plus the list of all
// available expirations.
type OptionChain struct {
	Symbol          string           `json:"symbol"`
	Expiration      int64            `json:"expiration"`
	ExpirationDates []int64          `json:"expiration_dates"`
	Strikes         []float64        `json:"strikes"`
	Calls           []OptionContract `json:"calls"`
	Puts            []OptionContract `json:"puts"`
}

type optionsEnvelope struct {
	OptionChain struct {
		Result []struct {
			UnderlyingSymbol string    `json:"underlyingSymbol"`
			ExpirationDates  []int64   `json:"expirationDates"`
			Strikes          []float64 `json:"strikes"`
			Options          []struct {
				ExpirationDate int64       `json:"expirationDate"`
				Calls          []rawOption `json:"calls"`
				Puts           []rawOption `json:"puts"`
			} `json:"options"`
		} `json:"result"`
		Error *upstreamError `json:"error"`
	} `json:"optionChain"`
}

type rawOption struct {
	ContractSymbol    string   `json:"contractSymbol"`
	Strike            float64  `json:"strike"`
	Currency          string   `json:"currency"`
	LastPrice         *float64 `json:"lastPrice"`
	Change            *float64 `json:"change"`
	PercentChange     *float64 `json:"percentChange"`
	Volume            *int64   `json:"volume"`
	OpenInterest      *int64   `json:"openInterest"`
	Bid               *float64 `json:"bid"`
	Ask               *float64 `json:"ask"`
	Expiration        int64    `json:"expiration"`
	LastTradeDate     *int64   `json:"lastTradeDate"`
	ImpliedVolatility *float64 `json:"impliedVolatility"`
	InTheMoney        bool     `json:"inTheMoney"`
}

func (o rawOption) contract() OptionContract {
	return OptionContract{
		ContractSymbol:    o.ContractSymbol,
		Strike:            o.Strike,
		Currency:          o.Currency,
		LastPrice:         null.FloatFromPtr(o.LastPrice),
		Change:            null.FloatFromPtr(o.Change),
		PercentChange:     null.FloatFromPtr(o.PercentChange),
		Volume:            null.IntFromPtr(o.Volume),
		OpenInterest:      null.IntFromPtr(o.OpenInterest),
		Bid:               null.FloatFromPtr(o.Bid),
		Ask:               null.FloatFromPtr(o.Ask),
		Expiration:        o.Expiration,
		LastTradeDate:     null.IntFromPtr(o.LastTradeDate),
		ImpliedVolatility: null.FloatFromPtr(o.ImpliedVolatility),
		InTheMoney:        o.InTheMoney,
	}
}

// fetchOptions fetches the chain for expiration, or the nearest one when
// expiration is nil.
func (c *Client) fetchOptions(ctx context.Context, symbol string, expiration *time.Time) (*OptionChain, error) {
	q := url.Values{}
	if expiration != nil {
		q.Set("date", strconv.FormatInt(expiration.Unix(), 10))
	}
	var env optionsEnvelope
	if err := c.getJSON(ctx, yahoo.RouteOptions, symbol, q, &env); err != nil {
		return nil, err
	}
	if err := env.OptionChain.Error.err(yahoo.RouteOptions); err != nil {
		return nil, err
	}
	if len(env.OptionChain.Result) == 0 {
		return nil, fmt.Errorf("%w: options for %s", ErrNoData, symbol)
	}
	r := env.OptionChain.Result[0]
	chain := &OptionChain{
		Symbol:          firstNonEmpty(r.UnderlyingSymbol, symbol),
		ExpirationDates: r.ExpirationDates,
		Strikes:         r.Strikes,
	}
	if len(r.Options) > 0 {
		opt := r.Options[0]
		chain.Expiration = opt.ExpirationDate
		for _, o := range opt.Calls {
			chain.Calls = append(chain.Calls, o.contract())
		}
		for _, o := range opt.Puts {
			chain.Puts = append(chain.Puts, o.contract())
		}
	}
	return chain, nil
}
