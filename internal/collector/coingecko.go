package collector

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"CoinOracle/internal/model"
)

// DefaultCoinGeckoURL is the public CoinGecko v3 API.
const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

// CoinGeckoSymbols maps ticker symbols to CoinGecko coin ids.
var CoinGeckoSymbols = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"ADA":   "cardano",
	"DOT":   "polkadot",
	"LINK":  "chainlink",
	"MATIC": "matic-network",
	"AVAX":  "avalanche-2",
	"UNI":   "uniswap",
	"ATOM":  "cosmos",
}

// daysPerBar converts one bar of each timeframe into days.
var daysPerBar = map[model.Timeframe]float64{
	model.Timeframe5m:  1.0 / 288,
	model.Timeframe15m: 1.0 / 96,
	model.Timeframe1h:  1.0 / 24,
	model.Timeframe4h:  1.0 / 6,
	model.Timeframe1d:  1,
	model.Timeframe1w:  7,
}

// CoinGeckoFetcher implements Fetcher using the CoinGecko REST API.
type CoinGeckoFetcher struct {
	BaseURL   string
	APIKey    string
	SymbolMap map[string]string
	http      *httpClient
}

// NewCoinGeckoFetcher creates a new fetcher. An empty baseURL selects the public API.
func NewCoinGeckoFetcher(baseURL, apiKey string, opts ClientOptions) *CoinGeckoFetcher {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	return &CoinGeckoFetcher{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		APIKey:    apiKey,
		SymbolMap: CoinGeckoSymbols,
		http:      newHTTPClient(opts),
	}
}

func (f *CoinGeckoFetcher) Name() string { return "coingecko" }

func (f *CoinGeckoFetcher) coinID(symbol string) (string, error) {
	id, ok := f.SymbolMap[strings.ToUpper(symbol)]
	if !ok {
		return "", fmt.Errorf("coingecko: %w: %s", ErrUnknownSymbol, symbol)
	}
	return id, nil
}

func (f *CoinGeckoFetcher) header() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	if f.APIKey != "" {
		h.Set("x-cg-demo-api-key", f.APIKey)
	}
	return h
}

// cgPrice is one entry of the /simple/price response.
type cgPrice struct {
	USD          float64 `json:"usd"`
	USD24hChange float64 `json:"usd_24h_change"`
	USD24hVol    float64 `json:"usd_24h_vol"`
}

func (f *CoinGeckoFetcher) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	id, err := f.coinID(symbol)
	if err != nil {
		return model.Quote{}, err
	}
	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", "usd")
	q.Set("include_24hr_change", "true")
	q.Set("include_24hr_vol", "true")
	endpoint := f.BaseURL + "/simple/price?" + q.Encode()

	var prices map[string]cgPrice
	if err := f.http.getJSON(ctx, endpoint, f.header(), &prices); err != nil {
		return model.Quote{}, fmt.Errorf("coingecko quote %s: %w", symbol, err)
	}
	p, ok := prices[id]
	if !ok {
		return model.Quote{}, fmt.Errorf("coingecko quote %s: no price returned", symbol)
	}
	return model.Quote{
		Symbol:    strings.ToUpper(symbol),
		Price:     p.USD,
		Change24h: p.USD24hChange,
		Volume24h: p.USD24hVol,
		FetchedAt: time.Now(),
	}, nil
}

// FetchOHLCV reads /coins/{id}/ohlc. CoinGecko candles carry no volume.
func (f *CoinGeckoFetcher) FetchOHLCV(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.OHLCV, error) {
	id, err := f.coinID(symbol)
	if err != nil {
		return nil, err
	}
	days, err := ohlcDays(tf, limit)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/coins/%s/ohlc?vs_currency=usd&days=%d", f.BaseURL, url.PathEscape(id), days)

	var rows [][]float64
	if err := f.http.getJSON(ctx, endpoint, f.header(), &rows); err != nil {
		return nil, fmt.Errorf("coingecko ohlc %s: %w", symbol, err)
	}
	bars := make([]model.OHLCV, 0, len(rows))
	for _, r := range rows {
		if len(r) < 5 {
			continue
		}
		bars = append(bars, model.OHLCV{
			Time:  time.UnixMilli(int64(r[0])).UTC(),
			Open:  r[1],
			High:  r[2],
			Low:   r[3],
			Close: r[4],
		})
	}
	// Ensure chronological order
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

// ohlcDays returns how many days of history cover limit bars, at least one.
func ohlcDays(tf model.Timeframe, limit int) (int, error) {
	mult, ok := daysPerBar[tf]
	if !ok {
		return 0, fmt.Errorf("%w: %q", model.ErrInvalidTimeframe, string(tf))
	}
	days := int(math.Ceil(float64(limit) * mult))
	if days < 1 {
		days = 1
	}
	return days, nil
}
