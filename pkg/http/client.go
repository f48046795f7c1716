package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	MethodGet    = http.MethodGet
	MethodPost   = http.MethodPost
	MethodDelete = http.MethodDelete
)

// ClientOption configures Client.
type ClientOption func(*Client)

// RequestOptions holds HTTP request parameters.
type RequestOptions struct {
	Method      string
	URL         string
	Headers     map[string]string
	QueryParams map[string][]string
	Body        any
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the server side may succeed on a retry.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Client is a JSON client over resty.
type Client struct {
	timeout time.Duration
	baseURL string
	rc      *resty.Client
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	c.rc = resty.New().
		SetTimeout(c.timeout).
		SetHeader("Accept", "application/json")
	if c.baseURL != "" {
		c.rc.SetBaseURL(c.baseURL)
	}
	return c
}

// SendAndParse sends the request and decodes a JSON body into dest.
// dest may be nil, or a *[]byte for the raw body.
func (c *Client) SendAndParse(ctx context.Context, opts *RequestOptions, dest any) error {
	req := c.rc.R().SetContext(ctx).SetHeaders(opts.Headers)
	for k, vs := range opts.QueryParams {
		for _, v := range vs {
			req.QueryParam.Add(k, v)
		}
	}
	if opts.Body != nil {
		req.SetBody(opts.Body)
	}
	raw, isRaw := dest.(*[]byte)
	if dest != nil && !isRaw {
		req.SetResult(dest)
	}

	method := opts.Method
	if method == "" {
		method = MethodGet
	}
	resp, err := req.Execute(method, opts.URL)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return &StatusError{Code: resp.StatusCode(), Body: truncate(resp.String(), 512)}
	}
	if isRaw {
		*raw = resp.Body()
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.timeout = timeout }
}

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}
