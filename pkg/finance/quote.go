package finance

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/guregu/null/v6"

	"github.com/Verdenroz/finance-query-sub000/pkg/yahoo"
)

// Quote sub-module names.
const (
	ModulePrice                   = "price"
	ModuleSummaryDetail           = "summaryDetail"
	ModuleDefaultKeyStatistics    = "defaultKeyStatistics"
	ModuleFinancialData           = "financialData"
	ModuleAssetProfile            = "assetProfile"
	ModuleCalendarEvents          = "calendarEvents"
	ModuleEarnings                = "earnings"
	ModuleRecommendationTrend     = "recommendationTrend"
	ModuleUpgradeDowngradeHistory = "upgradeDowngradeHistory"
	ModuleMajorHolders            = "majorHoldersBreakdown"
	ModuleInstitutionOwnership    = "institutionOwnership"
	ModuleFundOwnership           = "fundOwnership"
	ModuleInsiderHolders          = "insiderHolders"
	ModuleInsiderTransactions     = "insiderTransactions"
	ModuleESGScores               = "esgScores"
	ModuleEarningsTrend           = "earningsTrend"
	ModuleIndexTrend              = "indexTrend"
	ModuleSecFilings              = "secFilings"
	ModuleQuoteType               = "quoteType"
	ModuleSummaryProfile          = "summaryProfile"
)

// BundleModules are requested together in one quoteSummary call.
var BundleModules = []string{
	ModulePrice,
	ModuleSummaryDetail,
	ModuleDefaultKeyStatistics,
	ModuleFinancialData,
	ModuleAssetProfile,
	ModuleCalendarEvents,
	ModuleEarnings,
	ModuleRecommendationTrend,
	ModuleUpgradeDowngradeHistory,
	ModuleMajorHolders,
	ModuleInstitutionOwnership,
	ModuleFundOwnership,
	ModuleInsiderHolders,
	ModuleInsiderTransactions,
	ModuleESGScores,
	ModuleEarningsTrend,
	ModuleIndexTrend,
	ModuleSecFilings,
	ModuleQuoteType,
	ModuleSummaryProfile,
}

// quotePrecedence is the order in which modules are consulted for a field
// that several of them carry.
var quotePrecedence = []string{
	ModulePrice,
	ModuleSummaryDetail,
	ModuleDefaultKeyStatistics,
	ModuleFinancialData,
	ModuleAssetProfile,
}

// QuoteBundle is the raw quoteSummary result for one symbol, keyed by
// module name.
type QuoteBundle struct {
	Symbol  string            `json:"symbol"`
	Modules map[string]Module `json:"modules"`
}

// Module returns the named sub-module.
func (b *QuoteBundle) Module(name string) (Module, error) {
	m, ok := b.Modules[name]
	if !ok || len(m) == 0 {
		return nil, fmt.Errorf("%w: module %s for %s", ErrNoData, name, b.Symbol)
	}
	return m, nil
}

// Quote merges the bundle's modules into a flat quote.
func (b *QuoteBundle) Quote() Quote {
	sources := make(merger, 0, len(quotePrecedence))
	for _, name := range quotePrecedence {
		if m, ok := b.Modules[name]; ok {
			sources = append(sources, m)
		}
	}
	return sources.quote(b.Symbol)
}

// Quote is the merged snapshot of a symbol. Absent fields are null.
type Quote struct {
	Symbol      string      `json:"symbol"`
	ShortName   null.String `json:"short_name"`
	LongName    null.String `json:"long_name"`
	QuoteType   null.String `json:"quote_type"`
	Currency    null.String `json:"currency"`
	Exchange    null.String `json:"exchange"`
	MarketState null.String `json:"market_state"`

	Price           null.Float `json:"price"`
	Change          null.Float `json:"change"`
	ChangePercent   null.Float `json:"change_percent"`
	Open            null.Float `json:"open"`
	DayHigh         null.Float `json:"day_high"`
	DayLow          null.Float `json:"day_low"`
	PreviousClose   null.Float `json:"previous_close"`
	Volume          null.Int   `json:"volume"`
	MarketTime      null.Int   `json:"market_time"`
	PreMarketPrice  null.Float `json:"pre_market_price"`
	PostMarketPrice null.Float `json:"post_market_price"`
	Bid             null.Float `json:"bid"`
	Ask             null.Float `json:"ask"`
	BidSize         null.Int   `json:"bid_size"`
	AskSize         null.Int   `json:"ask_size"`

	MarketCap            null.Float  `json:"market_cap"`
	AverageVolume        null.Int    `json:"average_volume"`
	AverageVolume10Day   null.Int    `json:"average_volume_10d"`
	FiftyTwoWeekHigh     null.Float  `json:"fifty_two_week_high"`
	FiftyTwoWeekLow      null.Float  `json:"fifty_two_week_low"`
	FiftyDayAverage      null.Float  `json:"fifty_day_average"`
	TwoHundredDayAverage null.Float  `json:"two_hundred_day_average"`
	Beta                 null.Float  `json:"beta"`
	TrailingPE           null.Float  `json:"trailing_pe"`
	ForwardPE            null.Float  `json:"forward_pe"`
	PriceToBook          null.Float  `json:"price_to_book"`
	TrailingEPS          null.Float  `json:"trailing_eps"`
	ForwardEPS           null.Float  `json:"forward_eps"`
	DividendRate         null.Float  `json:"dividend_rate"`
	DividendYield        null.Float  `json:"dividend_yield"`
	ExDividendDate       null.Int    `json:"ex_dividend_date"`
	PayoutRatio          null.Float  `json:"payout_ratio"`
	SharesOutstanding    null.Int    `json:"shares_outstanding"`
	FloatShares          null.Int    `json:"float_shares"`
	ProfitMargins        null.Float  `json:"profit_margins"`
	TotalRevenue         null.Float  `json:"total_revenue"`
	EBITDA               null.Float  `json:"ebitda"`
	TargetMeanPrice      null.Float  `json:"target_mean_price"`
	RecommendationKey    null.String `json:"recommendation_key"`

	Sector    null.String `json:"sector"`
	Industry  null.String `json:"industry"`
	Website   null.String `json:"website"`
	Country   null.String `json:"country"`
	Employees null.Int    `json:"employees"`
	Summary   null.String `json:"summary"`
}

func (ms merger) quote(symbol string) Quote {
	return Quote{
		Symbol:      strings.ToUpper(firstNonEmpty(ms.text("symbol").String, symbol)),
		ShortName:   ms.text("shortName"),
		LongName:    ms.text("longName"),
		QuoteType:   ms.text("quoteType"),
		Currency:    ms.text("currency", "financialCurrency"),
		Exchange:    ms.text("exchangeName", "fullExchangeName", "exchange"),
		MarketState: ms.text("marketState"),

		Price:           ms.float("regularMarketPrice", "currentPrice"),
		Change:          ms.float("regularMarketChange"),
		ChangePercent:   ms.float("regularMarketChangePercent"),
		Open:            ms.float("regularMarketOpen", "open"),
		DayHigh:         ms.float("regularMarketDayHigh", "dayHigh"),
		DayLow:          ms.float("regularMarketDayLow", "dayLow"),
		PreviousClose:   ms.float("regularMarketPreviousClose", "previousClose"),
		Volume:          ms.int("regularMarketVolume", "volume"),
		MarketTime:      ms.int("regularMarketTime"),
		PreMarketPrice:  ms.float("preMarketPrice"),
		PostMarketPrice: ms.float("postMarketPrice"),
		Bid:             ms.float("bid"),
		Ask:             ms.float("ask"),
		BidSize:         ms.int("bidSize"),
		AskSize:         ms.int("askSize"),

		MarketCap:            ms.float("marketCap"),
		AverageVolume:        ms.int("averageDailyVolume3Month", "averageVolume"),
		AverageVolume10Day:   ms.int("averageDailyVolume10Day", "averageVolume10days"),
		FiftyTwoWeekHigh:     ms.float("fiftyTwoWeekHigh"),
		FiftyTwoWeekLow:      ms.float("fiftyTwoWeekLow"),
		FiftyDayAverage:      ms.float("fiftyDayAverage"),
		TwoHundredDayAverage: ms.float("twoHundredDayAverage"),
		Beta:                 ms.float("beta"),
		TrailingPE:           ms.float("trailingPE"),
		ForwardPE:            ms.float("forwardPE"),
		PriceToBook:          ms.float("priceToBook"),
		TrailingEPS:          ms.float("trailingEps", "epsTrailingTwelveMonths"),
		ForwardEPS:           ms.float("forwardEps", "epsForward"),
		DividendRate:         ms.float("dividendRate", "trailingAnnualDividendRate"),
		DividendYield:        ms.float("dividendYield", "trailingAnnualDividendYield"),
		ExDividendDate:       ms.int("exDividendDate", "dividendDate"),
		PayoutRatio:          ms.float("payoutRatio"),
		SharesOutstanding:    ms.int("sharesOutstanding"),
		FloatShares:          ms.int("floatShares"),
		ProfitMargins:        ms.float("profitMargins"),
		TotalRevenue:         ms.float("totalRevenue"),
		EBITDA:               ms.float("ebitda"),
		TargetMeanPrice:      ms.float("targetMeanPrice"),
		RecommendationKey:    ms.text("recommendationKey"),

		Sector:    ms.text("sector"),
		Industry:  ms.text("industry"),
		Website:   ms.text("website"),
		Country:   ms.text("country"),
		Employees: ms.int("fullTimeEmployees"),
		Summary:   ms.text("longBusinessSummary"),
	}
}

type quoteSummaryEnvelope struct {
	QuoteSummary struct {
		Result []map[string]Module `json:"result"`
		Error  *upstreamError      `json:"error"`
	} `json:"quoteSummary"`
}

// fetchQuoteBundle fetches every bundle module in one request.
func (c *Client) fetchQuoteBundle(ctx context.Context, symbol string) (*QuoteBundle, error) {
	q := url.Values{}
	q.Set("modules", strings.Join(BundleModules, ","))
	q.Set("formatted", "false")

	var env quoteSummaryEnvelope
	if err := c.getJSON(ctx, yahoo.RouteQuoteSummary, symbol, q, &env); err != nil {
		return nil, err
	}
	if err := env.QuoteSummary.Error.err(yahoo.RouteQuoteSummary); err != nil {
		return nil, err
	}
	if len(env.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("%w: quote for %s", ErrNoData, symbol)
	}
	return &QuoteBundle{Symbol: symbol, Modules: env.QuoteSummary.Result[0]}, nil
}

type batchQuoteEnvelope struct {
	QuoteResponse struct {
		Result []Module       `json:"result"`
		Error  *upstreamError `json:"error"`
	} `json:"quoteResponse"`
}

// fetchQuotes requests every symbol in a single batch call. Symbols the
// upstream does not know are simply absent from the returned map.
func (c *Client) fetchQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	q.Set("formatted", "false")

	var env batchQuoteEnvelope
	if err := c.getJSON(ctx, yahoo.RouteQuote, "", q, &env); err != nil {
		return nil, err
	}
	if err := env.QuoteResponse.Error.err(yahoo.RouteQuote); err != nil {
		return nil, err
	}
	out := make(map[string]Quote, len(env.QuoteResponse.Result))
	for _, m := range env.QuoteResponse.Result {
		sym, ok := m.Text("symbol")
		if !ok {
			continue
		}
		out[strings.ToUpper(sym.String)] = merger{m}.quote(sym.String)
	}
	return out, nil
}
