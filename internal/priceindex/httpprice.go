package priceindex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPPriceSource fetches a daily USD close from an external price API.
// Plain net/http rather than a third-party HTTP client: the retry/backoff
// concern this source needs is already owned by withRetry, and nothing in
// the example corpus reaches for an HTTP client library beyond the
// standard one — the teacher's own bitcoin/client.go and mempool/poller.go
// both build on net/http directly.
type HTTPPriceSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPPriceSource builds a source against an endpoint expecting a
// ?date=YYYY-MM-DD query parameter and returning {"price_usd": <float>}.
func NewHTTPPriceSource(baseURL string) *HTTPPriceSource {
	return &HTTPPriceSource{baseURL: baseURL, client: &http.Client{Timeout: 10 * time.Second}}
}

func (s *HTTPPriceSource) FetchPrice(ctx context.Context, date string) (float64, error) {
	url := fmt.Sprintf("%s?date=%s", s.baseURL, date)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("http price source: build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http price source: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("http price source: status %d for %s", resp.StatusCode, date)
	}

	var body struct {
		PriceUSD float64 `json:"price_usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("http price source: decode response: %w", err)
	}
	return body.PriceUSD, nil
}
