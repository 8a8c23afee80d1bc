package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client ходит в HTTP API keyscan. Используется probe-утилитой и тестами.
type Client struct {
	baseURL string
	client  *http.Client
}

// APIError is a non-2xx answer. Applied is set for mutations that failed
// part way through.
type APIError struct {
	StatusCode int
	Message    string
	Applied    *int
}

func (e *APIError) Error() string {
	if e.Applied != nil {
		return fmt.Sprintf("status=%d applied=%d: %s", e.StatusCode, *e.Applied, e.Message)
	}
	return fmt.Sprintf("status=%d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the server classified the failure as transient.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusServiceUnavailable
}

type response struct {
	Status      string                      `json:"status"`
	Error       string                      `json:"error"`
	Pattern     string                      `json:"pattern"`
	Mode        string                      `json:"mode"`
	Routing     string                      `json:"routing"`
	Count       *int                        `json:"count"`
	Deleted     *int                        `json:"deleted"`
	Applied     *int                        `json:"applied"`
	Flushes     *int                        `json:"flushes"`
	Partitions  map[string]PartitionStats   `json:"partitions"`
	LatencyUSec map[string]int64            `json:"latency_usec"`
	Records     map[string]map[string]int64 `json:"records"`
}

type PartitionStats struct {
	Calls       uint64  `json:"calls"`
	USecTotal   int64   `json:"usec_total"`
	USecPerCall float64 `json:"usec_per_call"`
}

// Count is the answer of a counting call.
type Count struct {
	Pattern string
	Mode    string
	Routing string
	Count   int
}

// Applied is the answer of a mutating call.
type Applied struct {
	Applied int
	Flushes int
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	return err
}

// Ping returns per-partition round trip times as measured by the server.
func (c *Client) Ping(ctx context.Context) (map[string]time.Duration, error) {
	resp, err := c.do(ctx, http.MethodGet, "/ping", nil, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Duration, len(resp.LatencyUSec))
	for addr, us := range resp.LatencyUSec {
		out[addr] = time.Duration(us) * time.Microsecond
	}
	return out, nil
}

// CountKeys counts keys matching pattern. mode is "scan" or "keys", tag
// forces routing to the slot of that hash tag.
func (c *Client) CountKeys(ctx context.Context, pattern, mode, tag string) (Count, error) {
	q := url.Values{"pattern": {pattern}}
	if mode != "" {
		q.Set("mode", mode)
	}
	if tag != "" {
		q.Set("tag", tag)
	}
	resp, err := c.do(ctx, http.MethodGet, "/keys/count", q, nil)
	if err != nil {
		return Count{}, err
	}
	return countOf(resp), nil
}

func (c *Client) DeleteKeys(ctx context.Context, pattern, tag string) (int, error) {
	q := url.Values{"pattern": {pattern}}
	if tag != "" {
		q.Set("tag", tag)
	}
	resp, err := c.do(ctx, http.MethodDelete, "/keys", q, nil)
	if err != nil {
		return 0, err
	}
	return deref(resp.Deleted), nil
}

// SeedGroups creates groups 0..groups-1 with perGroup keys each.
func (c *Client) SeedGroups(ctx context.Context, layout string, groups, perGroup int) (Applied, error) {
	body := map[string]any{"layout": layout, "groups": groups, "per_group": perGroup}
	resp, err := c.do(ctx, http.MethodPost, "/groups", nil, body)
	if err != nil {
		return Applied{}, err
	}
	return Applied{Applied: deref(resp.Applied), Flushes: deref(resp.Flushes)}, nil
}

func (c *Client) CountGroup(ctx context.Context, layout, id string) (Count, error) {
	q := url.Values{"layout": {layout}}
	resp, err := c.do(ctx, http.MethodGet, "/groups/"+url.PathEscape(id)+"/count", q, nil)
	if err != nil {
		return Count{}, err
	}
	return countOf(resp), nil
}

// WriteRecords sends activity records for one unit.
func (c *Client) WriteRecords(ctx context.Context, layout, unit string, at []time.Time) (Applied, error) {
	body := make([][]string, len(at))
	for i, ts := range at {
		body[i] = []string{unit, ts.Format(time.RFC3339)}
	}
	resp, err := c.do(ctx, http.MethodPost, "/records/"+url.PathEscape(layout), nil, body)
	if err != nil {
		return Applied{}, err
	}
	return Applied{Applied: deref(resp.Applied), Flushes: deref(resp.Flushes)}, nil
}

// ReadRecords returns day -> hour -> count for a unit.
func (c *Client) ReadRecords(ctx context.Context, layout, unit string) (map[string]map[string]int64, error) {
	q := url.Values{"unit": {unit}}
	resp, err := c.do(ctx, http.MethodGet, "/records/"+url.PathEscape(layout), q, nil)
	if err != nil {
		return nil, err
	}
	return resp.Records, nil
}

func (c *Client) Stats(ctx context.Context, op string) (map[string]PartitionStats, error) {
	q := url.Values{}
	if op != "" {
		q.Set("op", op)
	}
	resp, err := c.do(ctx, http.MethodGet, "/stats", q, nil)
	if err != nil {
		return nil, err
	}
	return resp.Partitions, nil
}

func (c *Client) ResetStats(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/stats/reset", nil, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body any) (response, error) {
	var resp response

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return resp, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return resp, fmt.Errorf("create %s request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hr, err := c.client.Do(req)
	if err != nil {
		return resp, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer hr.Body.Close()

	b, err := io.ReadAll(hr.Body)
	if err != nil {
		return resp, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if err := json.Unmarshal(b, &resp); err != nil {
		if hr.StatusCode != http.StatusOK {
			return resp, &APIError{StatusCode: hr.StatusCode, Message: strings.TrimSpace(string(b))}
		}
		return resp, fmt.Errorf("decode %s %s: %w body=%s", method, path, err, string(b))
	}
	if hr.StatusCode != http.StatusOK {
		return resp, &APIError{StatusCode: hr.StatusCode, Message: resp.Error, Applied: resp.Applied}
	}
	return resp, nil
}

func countOf(resp response) Count {
	return Count{Pattern: resp.Pattern, Mode: resp.Mode, Routing: resp.Routing, Count: deref(resp.Count)}
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
