package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"CoinOracle/internal/model"
)

// DefaultYahooURL is the Yahoo Finance chart API host.
const DefaultYahooURL = "https://query1.finance.yahoo.com"

// yahooInterval maps a timeframe to the Yahoo interval, its history range,
// and how many Yahoo bars fold into one of ours.
var yahooInterval = map[model.Timeframe]struct {
	interval string
	rng      string
	group    int
}{
	model.Timeframe5m:  {"5m", "5d", 1},
	model.Timeframe15m: {"15m", "1mo", 1},
	model.Timeframe1h:  {"60m", "3mo", 1},
	model.Timeframe4h:  {"60m", "1y", 4},
	model.Timeframe1d:  {"1d", "2y", 1},
	model.Timeframe1w:  {"1wk", "5y", 1},
}

// YahooFetcher implements Fetcher using Yahoo Finance public API.
type YahooFetcher struct {
	BaseURL   string
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
	http      *httpClient
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(baseURL string, opts ClientOptions) *YahooFetcher {
	if baseURL == "" {
		baseURL = DefaultYahooURL
	}
	return &YahooFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		SymbolMap: map[string]string{
			"MATIC": "MATIC-USD",
			"AVAX":  "AVAX-USD",
			"UNI":   "UNI7083-USD",
			"DOT":   "DOT-USD",
		},
		http: newHTTPClient(opts),
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

// yahooSymbol maps a crypto ticker to its USD pair, e.g. BTC -> BTC-USD.
func (f *YahooFetcher) yahooSymbol(symbol string) string {
	symbol = strings.ToUpper(symbol)
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	if strings.Contains(symbol, "-") {
		return symbol
	}
	return symbol + "-USD"
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice  float64 `json:"regularMarketPrice"`
				ChartPreviousClose  float64 `json:"chartPreviousClose"`
				RegularMarketVolume float64 `json:"regularMarketVolume"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func at(vs []*float64, i int) float64 {
	if i >= len(vs) || vs[i] == nil {
		return 0
	}
	return *vs[i]
}

func (f *YahooFetcher) fetchChart(ctx context.Context, symbol, interval, rng string) (*yahooChart, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		f.BaseURL, url.PathEscape(f.yahooSymbol(symbol)), interval, rng)

	h := http.Header{}
	h.Set("User-Agent", "Mozilla/5.0")

	var chart yahooChart
	if err := f.http.getJSON(ctx, u, h, &chart); err != nil {
		return nil, fmt.Errorf("yahoo fetch %s: %w", symbol, err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned")
	}
	return &chart, nil
}

func chartBars(chart *yahooChart) []model.OHLCV {
	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil
	}
	quote := result.Indicators.Quote[0]
	bars := make([]model.OHLCV, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, h, l, c := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if o == 0 && h == 0 && l == 0 && c == 0 {
			continue // skip null bars
		}
		bars = append(bars, model.OHLCV{
			Time:   time.Unix(ts, 0).UTC(),
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: at(quote.Volume, i),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars
}

func (f *YahooFetcher) FetchOHLCV(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.OHLCV, error) {
	spec, ok := yahooInterval[tf]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidTimeframe, string(tf))
	}
	chart, err := f.fetchChart(ctx, symbol, spec.interval, spec.rng)
	if err != nil {
		return nil, err
	}
	bars := resample(chartBars(chart), spec.group)
	// Trim to requested count
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

func (f *YahooFetcher) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	chart, err := f.fetchChart(ctx, symbol, "1d", "5d")
	if err != nil {
		return model.Quote{}, err
	}
	meta := chart.Chart.Result[0].Meta
	bars := chartBars(chart)

	price := meta.RegularMarketPrice
	if price == 0 && len(bars) > 0 {
		price = bars[len(bars)-1].Close
	}
	if price == 0 {
		return model.Quote{}, fmt.Errorf("yahoo: no price data for %s", symbol)
	}
	prev := meta.ChartPreviousClose
	if len(bars) >= 2 {
		prev = bars[len(bars)-2].Close
	}
	var change float64
	if prev > 0 {
		change = (price - prev) / prev * 100
	}
	return model.Quote{
		Symbol:    strings.ToUpper(symbol),
		Price:     price,
		Change24h: change,
		Volume24h: meta.RegularMarketVolume,
		FetchedAt: time.Now(),
	}, nil
}

// resample folds every n consecutive bars into one, anchored on the newest bar
// so the latest group is always complete.
func resample(bars []model.OHLCV, n int) []model.OHLCV {
	if n <= 1 || len(bars) == 0 {
		return bars
	}
	skip := len(bars) % n
	out := make([]model.OHLCV, 0, len(bars)/n)
	for i := skip; i+n <= len(bars); i += n {
		group := bars[i : i+n]
		agg := group[0]
		for _, b := range group[1:] {
			if b.High > agg.High {
				agg.High = b.High
			}
			if b.Low < agg.Low {
				agg.Low = b.Low
			}
			agg.Close = b.Close
			agg.Volume += b.Volume
		}
		out = append(out, agg)
	}
	return out
}
