package collector

import (
	"context"
	"fmt"
	"strconv"
)

// DefaultFearGreedURL is the alternative.me Fear & Greed endpoint.
const DefaultFearGreedURL = "https://api.alternative.me/fng/"

// FearGreedClient implements SentimentProvider against alternative.me.
type FearGreedClient struct {
	URL  string
	http *httpClient
}

// NewFearGreedClient creates a client. An empty url selects the public endpoint.
func NewFearGreedClient(url string, opts ClientOptions) *FearGreedClient {
	if url == "" {
		url = DefaultFearGreedURL
	}
	return &FearGreedClient{URL: url, http: newHTTPClient(opts)}
}

type fngResponse struct {
	Data []struct {
		Value          string `json:"value"`
		Classification string `json:"value_classification"`
	} `json:"data"`
}

func (c *FearGreedClient) FetchFearGreed(ctx context.Context) (int, error) {
	var resp fngResponse
	if err := c.http.getJSON(ctx, c.URL, nil, &resp); err != nil {
		return 0, fmt.Errorf("fear/greed: %w", err)
	}
	if len(resp.Data) == 0 {
		return 0, fmt.Errorf("fear/greed: empty data")
	}
	v, err := strconv.Atoi(resp.Data[0].Value)
	if err != nil {
		return 0, fmt.Errorf("fear/greed: parse %q: %w", resp.Data[0].Value, err)
	}
	if v < 0 || v > 100 {
		return 0, fmt.Errorf("fear/greed: value %d out of range", v)
	}
	return v, nil
}

var (
	_ SentimentProvider = (*FearGreedClient)(nil)
	_ SentimentProvider = StaticSentiment(0)
)
