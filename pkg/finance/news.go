package finance

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Verdenroz/finance-query-sub000/pkg/yahoo"
)

// NewsItem is a headline related to a symbol.
type NewsItem struct {
	UUID           string   `json:"uuid"`
	Title          string   `json:"title"`
	Publisher      string   `json:"publisher"`
	Link           string   `json:"link"`
	PublishedAt    int64    `json:"published_at"`
	Type           string   `json:"type"`
	RelatedTickers []string `json:"related_tickers"`
}

// Recommendation is a similar symbol with its similarity score.
type Recommendation struct {
	Symbol string  `json:"symbol"`
	Score  float64 `json:"score"`
}

const newsCount = 20

type searchEnvelope struct {
	News []struct {
		UUID                string   `json:"uuid"`
		Title               string   `json:"title"`
		Publisher           string   `json:"publisher"`
		Link                string   `json:"link"`
		ProviderPublishTime int64    `json:"providerPublishTime"`
		Type                string   `json:"type"`
		RelatedTickers      []string `json:"relatedTickers"`
	} `json:"news"`
}

func (c *Client) fetchNews(ctx context.Context, symbol string) ([]NewsItem, error) {
	q := url.Values{}
	q.Set("q", symbol)
	q.Set("quotesCount", "0")
	q.Set("newsCount", strconv.Itoa(newsCount))

	var env searchEnvelope
	if err := c.getJSON(ctx, yahoo.RouteSearch, "", q, &env); err != nil {
		return nil, err
	}
	items := make([]NewsItem, 0, len(env.News))
	for _, n := range env.News {
		items = append(items, NewsItem{
			UUID:           n.UUID,
			Title:          n.Title,
			Publisher:      n.Publisher,
			Link:           n.Link,
			PublishedAt:    n.ProviderPublishTime,
			Type:           n.Type,
			RelatedTickers: n.RelatedTickers,
		})
	}
	return items, nil
}

type recommendationsEnvelope struct {
	Finance struct {
		Result []struct {
			Symbol             string           `json:"symbol"`
			RecommendedSymbols []Recommendation `json:"recommendedSymbols"`
		} `json:"result"`
		Error *upstreamError `json:"error"`
	} `json:"finance"`
}

func (c *Client) fetchRecommendations(ctx context.Context, symbol string) ([]Recommendation, error) {
	var env recommendationsEnvelope
	if err := c.getJSON(ctx, yahoo.RouteRecommendations, symbol, nil, &env); err != nil {
		return nil, err
	}
	if err := env.Finance.Error.err(yahoo.RouteRecommendations); err != nil {
		return nil, err
	}
	if len(env.Finance.Result) == 0 {
		return nil, fmt.Errorf("%w: recommendations for %s", ErrNoData, symbol)
	}
	return env.Finance.Result[0].RecommendedSymbols, nil
}
