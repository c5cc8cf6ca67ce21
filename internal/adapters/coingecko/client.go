package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL 是公共 API；带 pro key 时改用 pro-api 域名。
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

const proHost = "pro-api.coingecko.com"

// Coin 是 coins/list?include_platform=true 的单个条目。
type Coin struct {
	ID        string            `json:"id"`
	Symbol    string            `json:"symbol"`
	Name      string            `json:"name"`
	Platforms map[string]string `json:"platforms"`
}

// Client 调用 CoinGecko REST API。
type Client struct {
	BaseURL string
	APIKey  string

	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{BaseURL: strings.TrimSpace(baseURL), APIKey: strings.TrimSpace(apiKey)}
}

// ListCoins 拉取带 platform 地址的完整币种列表。不做重试，失败直接返回。
func (c *Client) ListCoins(ctx context.Context) ([]Coin, error) {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base + "/coins/list")
	if err != nil {
		return nil, fmt.Errorf("coingecko base url: %w", err)
	}
	q := u.Query()
	q.Set("include_platform", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set(apiKeyHeader(u.Host), c.APIKey)
	}

	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("coingecko http %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(b)), 256))
	}

	var coins []Coin
	if err := json.Unmarshal(b, &coins); err != nil {
		return nil, fmt.Errorf("decode coingecko coins list: %w", err)
	}
	return coins, nil
}

func apiKeyHeader(host string) string {
	if strings.EqualFold(host, proHost) {
		return "x-cg-pro-api-key"
	}
	return "x-cg-demo-api-key"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
