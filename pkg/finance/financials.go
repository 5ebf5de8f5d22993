package finance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/guregu/null/v6"

	"github.com/Verdenroz/finance-query-sub000/pkg/yahoo"
)

// Statement selects a financial statement.
type Statement string

const (
	StatementIncome   Statement = "income"
	StatementBalance  Statement = "balance"
	StatementCashFlow Statement = "cashflow"
)

// Frequency selects the reporting period.
type Frequency string

const (
	FrequencyAnnual    Frequency = "annual"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyTrailing  Frequency = "trailing"
)

// statementFields lists the timeseries keys fetched per statement, without
// the frequency prefix.
var statementFields = map[Statement][]string{
	StatementIncome: {
		"TotalRevenue", "CostOfRevenue", "GrossProfit", "OperatingExpense",
		"ResearchAndDevelopment", "SellingGeneralAndAdministration",
		"OperatingIncome", "InterestExpense", "PretaxIncome", "TaxProvision",
		"NetIncome", "NetIncomeCommonStockholders", "BasicEPS", "DilutedEPS",
		"BasicAverageShares", "DilutedAverageShares", "EBIT", "EBITDA",
	},
	StatementBalance: {
		"TotalAssets", "CurrentAssets", "CashAndCashEquivalents",
		"CashCashEquivalentsAndShortTermInvestments", "AccountsReceivable",
		"Inventory", "NetPPE", "Goodwill", "TotalLiabilitiesNetMinorityInterest",
		"CurrentLiabilities", "AccountsPayable", "LongTermDebt", "TotalDebt",
		"StockholdersEquity", "RetainedEarnings", "WorkingCapital",
		"ShareIssued", "NetDebt",
	},
	StatementCashFlow: {
		"OperatingCashFlow", "InvestingCashFlow", "FinancingCashFlow",
		"FreeCashFlow", "CapitalExpenditure", "DepreciationAndAmortization",
		"StockBasedCompensation", "ChangeInWorkingCapital",
		"CashDividendsPaid", "RepurchaseOfCapitalStock", "IssuanceOfDebt",
		"RepaymentOfDebt", "EndCashPosition", "BeginningCashPosition",
	},
}

// timeseriesStart is the earliest period1 the endpoint accepts (2016-01-01).
const timeseriesStart = 1451606400

// FinancialStatement is one statement as a table: Dates are the period end
// dates (YYYY-MM-DD, ascending) and every row holds one value per date.
type FinancialStatement struct {
	Symbol    string                  `json:"symbol"`
	Statement Statement               `json:"statement"`
	Frequency Frequency               `json:"frequency"`
	Dates     []string                `json:"dates"`
	Rows      map[string][]null.Float `json:"rows"`
}

// Row returns the named row, or nil.
func (f *FinancialStatement) Row(name string) []null.Float {
	return f.Rows[name]
}

// ValidateFinancials checks a statement/frequency pair. Trailing figures
// exist only for flow statements.
func ValidateFinancials(st Statement, freq Frequency) error {
	if _, ok := statementFields[st]; !ok {
		return invalid("statement", string(st), "unknown statement")
	}
	switch freq {
	case FrequencyAnnual, FrequencyQuarterly:
	case FrequencyTrailing:
		if st == StatementBalance {
			return invalid("frequency", string(freq), "balance sheet has no trailing figures")
		}
	default:
		return invalid("frequency", string(freq), "unknown frequency")
	}
	return nil
}

type timeseriesEnvelope struct {
	Timeseries struct {
		Result []map[string]json.RawMessage `json:"result"`
		Error  *upstreamError               `json:"error"`
	} `json:"timeseries"`
}

type timeseriesPoint struct {
	AsOfDate      string `json:"asOfDate"`
	ReportedValue struct {
		Raw *float64 `json:"raw"`
	} `json:"reportedValue"`
}

func (c *Client) fetchFinancials(ctx context.Context, symbol string, st Statement, freq Frequency) (*FinancialStatement, error) {
	if err := ValidateFinancials(st, freq); err != nil {
		return nil, err
	}
	fields := statementFields[st]
	types := make([]string, len(fields))
	for i, f := range fields {
		types[i] = string(freq) + f
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("type", strings.Join(types, ","))
	q.Set("period1", strconv.FormatInt(timeseriesStart, 10))
	q.Set("period2", strconv.FormatInt(c.now().Unix(), 10))

	var env timeseriesEnvelope
	if err := c.getJSON(ctx, yahoo.RouteTimeseries, symbol, q, &env); err != nil {
		return nil, err
	}
	if err := env.Timeseries.Error.err(yahoo.RouteTimeseries); err != nil {
		return nil, err
	}
	return buildStatement(symbol, st, freq, env.Timeseries.Result)
}

func buildStatement(symbol string, st Statement, freq Frequency, results []map[string]json.RawMessage) (*FinancialStatement, error) {
	byRow := map[string]map[string]float64{}
	dates := map[string]struct{}{}
	prefix := string(freq)
	for _, res := range results {
		for key, raw := range res {
			if key == "meta" || key == "timestamp" || !strings.HasPrefix(key, prefix) {
				continue
			}
			var points []*timeseriesPoint
			if err := json.Unmarshal(raw, &points); err != nil {
				return nil, yahoo.DecodeError(yahoo.RouteTimeseries, fmt.Errorf("%s: %w", key, err))
			}
			row := strings.TrimPrefix(key, prefix)
			for _, p := range points {
				if p == nil || p.AsOfDate == "" || p.ReportedValue.Raw == nil {
					continue
				}
				if byRow[row] == nil {
					byRow[row] = map[string]float64{}
				}
				byRow[row][p.AsOfDate] = *p.ReportedValue.Raw
				dates[p.AsOfDate] = struct{}{}
			}
		}
	}
	if len(byRow) == 0 {
		return nil, fmt.Errorf("%w: %s %s statement for %s", ErrNoData, freq, st, symbol)
	}

	fs := &FinancialStatement{
		Symbol:    symbol,
		Statement: st,
		Frequency: freq,
		Rows:      make(map[string][]null.Float, len(byRow)),
	}
	for d := range dates {
		fs.Dates = append(fs.Dates, d)
	}
	sort.Strings(fs.Dates)
	for name, vals := range byRow {
		row := make([]null.Float, len(fs.Dates))
		for i, d := range fs.Dates {
			if v, ok := vals[d]; ok {
				row[i] = null.FloatFrom(v)
			}
		}
		fs.Rows[name] = row
	}
	return fs, nil
}
