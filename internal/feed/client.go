package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxBodySize = 1 << 20 // 1MB

// pool limits for many feeds hitting the same few hosts
const (
	maxIdleConns        = 100
	maxIdleConnsPerHost = 10
	maxConnsPerHost     = 10
	idleConnTimeout     = 60 * time.Second
)

// Response is the raw outcome of one GET.
type Response struct {
	// Body is the response body, truncated to 1MB.
	// Nil if the request failed before a response arrived.
	Body []byte

	// StatusCode is the HTTP status code, or 0 if no response arrived.
	StatusCode int

	// Latency is the time from building the request to reading the body,
	// or to the failure.
	Latency time.Duration

	// Err is set on transport failure, timeout or body read failure.
	// A non-2xx status is not an error here; [Response.Decode] rejects it.
	Err error
}

// Client fetches feed documents. Timeouts are applied per request.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a [Client] with a pooled transport.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        maxIdleConns,
				MaxIdleConnsPerHost: maxIdleConnsPerHost,
				MaxConnsPerHost:     maxConnsPerHost,
				IdleConnTimeout:     idleConnTimeout,
			},
		},
	}
}

// Get requests url with headers and reads at most 1MB of body.
// Errors are reported in Response.Err.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string, timeout time.Duration) Response {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{Latency: time.Since(start), Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{Latency: time.Since(start), Err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Err:        fmt.Errorf("read body: %w", err),
		}
	}
	return Response{Body: body, StatusCode: resp.StatusCode, Latency: time.Since(start)}
}

// Decode checks the status code and parses the body as JSON.
func (r Response) Decode() (any, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	if r.StatusCode < 200 || r.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", r.StatusCode)
	}
	var doc any
	if err := json.Unmarshal(r.Body, &doc); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return doc, nil
}

// Close releases idle connections. The client stays usable.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if t, ok := c.httpClient.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}
