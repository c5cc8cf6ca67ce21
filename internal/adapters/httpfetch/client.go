package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrUnavailable 表示端点在重试上限内一直没有返回 2xx。
var ErrUnavailable = errors.New("endpoint unavailable")

// UnavailableError 携带最后一次响应的状态码，errors.Is(err, ErrUnavailable) 成立。
type UnavailableError struct {
	URL      string
	Attempts int
	Status   int
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s after %d attempts (last status %d): %s", ErrUnavailable, e.Attempts, e.Status, e.URL)
}

func (e *UnavailableError) Unwrap() error { return ErrUnavailable }

// RetryEvent 描述一次重试前的等待。
type RetryEvent struct {
	URL     string
	Attempt int
	Status  int
	Wait    time.Duration
}

const (
	DefaultMaxAttempts  = 20
	DefaultMaxBodyBytes = 64 << 20

	// DefaultMinWait 是两次请求之间的最短等待，Retry-After: 0 也不会立即重发。
	DefaultMinWait = 10 * time.Millisecond
)

// Client 执行 GET，遇到非 2xx 时按 Retry-After 等待后重发同一请求。
type Client struct {
	HTTPClient   *http.Client
	Header       http.Header
	MaxAttempts  int           // 0 表示不设上限
	RetryUnit    time.Duration // 整数 Retry-After 的单位
	MinWait      time.Duration // 为 0 时使用 DefaultMinWait
	MaxBodyBytes int64

	// Sleep 用于等待，测试里可以替换成记录器。
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// New 返回带默认参数的 Client。
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		HTTPClient:   &http.Client{Timeout: timeout},
		MaxAttempts:  DefaultMaxAttempts,
		RetryUnit:    time.Second,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Get 返回 2xx 响应体。传输错误立即返回，不参与重试。
func (c *Client) Get(ctx context.Context, rawURL string, onRetry func(RetryEvent)) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		body, status, header, err := c.do(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if status >= 200 && status < 300 {
			return body, nil
		}
		if c.MaxAttempts > 0 && attempt >= c.MaxAttempts {
			return nil, &UnavailableError{URL: rawURL, Attempts: attempt, Status: status}
		}

		wait := c.retryAfter(header)
		if floor := c.minWait(); wait < floor {
			wait = floor
		}
		if onRetry != nil {
			onRetry(RetryEvent{URL: rawURL, Attempt: attempt, Status: status, Wait: wait})
		}
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (c *Client) do(ctx context.Context, rawURL string) ([]byte, int, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	defer resp.Body.Close()

	limit := c.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, 0, nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, 0, nil, fmt.Errorf("response body exceeds %d bytes: %s", limit, rawURL)
	}
	return body, resp.StatusCode, resp.Header, nil
}

// retryAfter 解析 Retry-After：整数按 RetryUnit 计，也接受 HTTP 日期；缺失或无法解析时等 1 个单位。
func (c *Client) retryAfter(h http.Header) time.Duration {
	unit := c.RetryUnit
	if unit <= 0 {
		unit = time.Second
	}
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return unit
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 {
			return unit
		}
		return time.Duration(n) * unit
	}
	if t, err := http.ParseTime(v); err == nil {
		now := time.Now
		if c.Now != nil {
			now = c.Now
		}
		if d := t.Sub(now()); d > 0 {
			return d
		}
		return 0
	}
	return unit
}

func (c *Client) minWait() time.Duration {
	if c.MinWait > 0 {
		return c.MinWait
	}
	return DefaultMinWait
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
