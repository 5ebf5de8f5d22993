package yahoo

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoints holds the base URLs. Zero fields take the public defaults, so
// tests can point a single host at an httptest server.
type Endpoints struct {
	Query1         string // default: https://query1.finance.yahoo.com
	Query2         string // default: https://query2.finance.yahoo.com
	Cookie         string // default: https://fc.yahoo.com
	Consent        string // default: https://guce.yahoo.com/consent
	CollectConsent string // default: https://consent.yahoo.com/v2/collectConsent
	CopyConsent    string // default: https://guce.yahoo.com/copyConsent
	Streamer       string // default: wss://streamer.finance.yahoo.com/?version=2
}

const (
	defaultQuery1         = "https://query1.finance.yahoo.com"
	defaultQuery2         = "https://query2.finance.yahoo.com"
	defaultCookie         = "https://fc.yahoo.com"
	defaultConsent        = "https://guce.yahoo.com/consent"
	defaultCollectConsent = "https://consent.yahoo.com/v2/collectConsent"
	defaultCopyConsent    = "https://guce.yahoo.com/copyConsent"
	defaultStreamer       = "wss://streamer.finance.yahoo.com/?version=2"
)

// WithDefaults returns e with every empty field filled in.
func (e Endpoints) WithDefaults() Endpoints {
	e.Query1 = firstNonEmpty(e.Query1, defaultQuery1)
	e.Query2 = firstNonEmpty(e.Query2, defaultQuery2)
	e.Cookie = firstNonEmpty(e.Cookie, defaultCookie)
	e.Consent = firstNonEmpty(e.Consent, defaultConsent)
	e.CollectConsent = firstNonEmpty(e.CollectConsent, defaultCollectConsent)
	e.CopyConsent = firstNonEmpty(e.CopyConsent, defaultCopyConsent)
	e.Streamer = firstNonEmpty(e.Streamer, defaultStreamer)
	return e
}

// SingleHost points every HTTP endpoint at base, keeping each default path.
// Used by tests and by local mirrors.
func SingleHost(base string) Endpoints {
	base = strings.TrimRight(base, "/")
	return Endpoints{
		Query1:         base,
		Query2:         base,
		Cookie:         base + "/cookie",
		Consent:        base + "/consent",
		CollectConsent: base + "/v2/collectConsent",
		CopyConsent:    base + "/copyConsent",
		Streamer:       "ws" + strings.TrimPrefix(base, "http") + "/stream",
	}
}

type host uint8

const (
	hostQuery1 host = iota
	hostQuery2
)

type route struct {
	host host
	path string // may contain a single %s for the path-escaped symbol
}

// Route names.
const (
	RouteQuoteSummary    = "quote.summary"
	RouteQuote           = "quote.batch"
	RouteChart           = "chart"
	RouteSpark           = "spark"
	RouteOptions         = "options"
	RouteTimeseries      = "timeseries"
	RouteSearch          = "search"
	RouteRecommendations = "recommendations"
	RouteCrumb           = "crumb"
	RouteCrumbFallback   = "crumb.fallback"
)

var routes = map[string]route{
	RouteQuoteSummary:    {hostQuery2, "/v10/finance/quoteSummary/%s"},
	RouteQuote:           {hostQuery1, "/v7/finance/quote"},
	RouteChart:           {hostQuery2, "/v8/finance/chart/%s"},
	RouteSpark:           {hostQuery1, "/v8/finance/spark"},
	RouteOptions:         {hostQuery2, "/v7/finance/options/%s"},
	RouteTimeseries:      {hostQuery2, "/ws/fundamentals-timeseries/v1/finance/timeseries/%s"},
	RouteSearch:          {hostQuery2, "/v1/finance/search"},
	RouteRecommendations: {hostQuery2, "/v6/finance/recommendationsbysymbol/%s"},
	RouteCrumb:           {hostQuery1, "/v1/test/getcrumb"},
	RouteCrumbFallback:   {hostQuery2, "/v1/test/getcrumb"},
}

// URL builds the absolute URL for a named route. symbol is required for
// routes whose path embeds one and ignored otherwise.
func (e Endpoints) URL(name, symbol string) (string, error) {
	r, ok := routes[name]
	if !ok {
		return "", fmt.Errorf("yahoo: unknown route: %s", name)
	}
	e = e.WithDefaults()
	base := e.Query1
	if r.host == hostQuery2 {
		base = e.Query2
	}
	p := r.path
	if strings.Contains(p, "%s") {
		if symbol == "" {
			return "", fmt.Errorf("yahoo: route %s needs a symbol", name)
		}
		p = fmt.Sprintf(p, url.PathEscape(symbol))
	}
	return strings.TrimRight(base, "/") + p, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
