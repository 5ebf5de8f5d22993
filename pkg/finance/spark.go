package finance

import (
	"context"
	"net/url"
	"strings"

	"github.com/guregu/null/v6"

	"github.com/Verdenroz/finance-query-sub000/pkg/yahoo"
)

// SparkChunkSize is the most symbols sent in one spark request.
const SparkChunkSize = 20

// Spark is a lightweight close-only series for sparkline rendering.
type Spark struct {
	Symbol        string       `json:"symbol"`
	Interval      Interval     `json:"interval"`
	Range         Range        `json:"range"`
	Timestamps    []int64      `json:"timestamps"`
	Closes        []null.Float `json:"closes"`
	PreviousClose null.Float   `json:"previous_close"`
}

type sparkEnvelope struct {
	Spark struct {
		Result []struct {
			Symbol   string `json:"symbol"`
			Response []struct {
				Meta struct {
					ChartPreviousClose *float64 `json:"chartPreviousClose"`
				} `json:"meta"`
				Timestamp  []int64 `json:"timestamp"`
				Indicators struct {
					Quote []struct {
						Close []*float64 `json:"close"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"response"`
		} `json:"result"`
		Error *upstreamError `json:"error"`
	} `json:"spark"`
}

// fetchSpark requests sparks for up to SparkChunkSize symbols at once.
// Symbols without data are absent from the result.
func (c *Client) fetchSpark(ctx context.Context, symbols []string, interval Interval, rng Range) (map[string]*Spark, error) {
	if err := ValidateChart(interval, rng); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	q.Set("interval", string(interval))
	q.Set("range", string(rng))

	var env sparkEnvelope
	if err := c.getJSON(ctx, yahoo.RouteSpark, "", q, &env); err != nil {
		return nil, err
	}
	if err := env.Spark.Error.err(yahoo.RouteSpark); err != nil {
		return nil, err
	}
	out := make(map[string]*Spark, len(env.Spark.Result))
	for _, r := range env.Spark.Result {
		if len(r.Response) == 0 {
			continue
		}
		resp := r.Response[0]
		sp := &Spark{
			Symbol:        strings.ToUpper(r.Symbol),
			Interval:      interval,
			Range:         rng,
			Timestamps:    resp.Timestamp,
			PreviousClose: null.FloatFromPtr(resp.Meta.ChartPreviousClose),
			Closes:        make([]null.Float, len(resp.Timestamp)),
		}
		if len(resp.Indicators.Quote) > 0 {
			closes := resp.Indicators.Quote[0].Close
			for i := range sp.Closes {
				sp.Closes[i] = null.FloatFromPtr(at(closes, i))
			}
		}
		out[sp.Symbol] = sp
	}
	return out, nil
}

// chunk splits symbols into groups of at most size.
func chunk(symbols []string, size int) [][]string {
	var out [][]string
	for len(symbols) > size {
		out = append(out, symbols[:size:size])
		symbols = symbols[size:]
	}
	if len(symbols) > 0 {
		out = append(out, symbols)
	}
	return out
}
