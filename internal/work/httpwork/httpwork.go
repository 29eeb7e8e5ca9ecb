// Package httpwork provides task.Work bodies that perform a single HTTP
// request, rate limited and retried on transient failures.
//
// A request that fails at the transport or HTTP level still completes the run
// successfully: the failure is carried in Response.Err so handlers receive it
// through OnTaskFinished rather than as a failed outcome.
package httpwork

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/phrazzld/taskgate/internal/config"
	"github.com/phrazzld/taskgate/internal/task"
)

// Progress is published at the start of every attempt and once the body has
// been read.
type Progress struct {
	Attempt   int
	BytesRead int64
}

// Response is the result of an HTTP work body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// Err is a transport error, a *StatusError for non-2xx replies, or an
	// encoding error from building the request.
	Err error
}

// Successful reports whether the request got a 2xx reply.
func (r Response) Successful() bool {
	return r.Err == nil
}

// Decode unmarshals the JSON body into v.
func (r Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// StatusError reports a non-2xx reply.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s", e.Status)
}

// retryable reports whether a reply with this status is worth another attempt.
func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// minBackoff keeps go-retry's exponential backoff valid when configured as zero.
const minBackoff = time.Millisecond

// Client builds HTTP work bodies sharing one http.Client and rate limiter.
type Client struct {
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries uint64
	backoff    time.Duration
	logger     *slog.Logger
}

// NewClient creates a Client from cfg.
func NewClient(cfg config.HTTPConfig, logger *slog.Logger) *Client {
	backoff := cfg.RetryBackoff
	if backoff < minBackoff {
		backoff = minBackoff
	}
	return &Client{
		http:       &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		maxRetries: cfg.MaxRetries,
		backoff:    backoff,
		logger:     logger.With("component", "httpwork"),
	}
}

// Get returns a body performing GET url.
func (c *Client) Get(url string) task.Work[Progress, Response] {
	return c.newRequest(http.MethodGet, url, nil)
}

// Post returns a body POSTing payload, encoded as JSON, to url.
func (c *Client) Post(url string, payload any) task.Work[Progress, Response] {
	return c.newRequest(http.MethodPost, url, payload)
}

// Put returns a body PUTting payload, encoded as JSON, to url.
func (c *Client) Put(url string, payload any) task.Work[Progress, Response] {
	return c.newRequest(http.MethodPut, url, payload)
}

// Delete returns a body performing DELETE url.
func (c *Client) Delete(url string) task.Work[Progress, Response] {
	return c.newRequest(http.MethodDelete, url, nil)
}

func (c *Client) newRequest(method, url string, payload any) *request {
	r := &request{client: c, method: method, url: url}
	if payload != nil {
		r.body, r.encodeErr = json.Marshal(payload)
	}
	return r
}

type request struct {
	client    *Client
	method    string
	url       string
	body      []byte
	encodeErr error
}

var _ task.Work[Progress, Response] = (*request)(nil)

func (r *request) Run(ctx context.Context, reporter task.Reporter[Progress]) (Response, error) {
	if r.encodeErr != nil {
		return Response{Err: fmt.Errorf("failed to encode request body: %w", r.encodeErr)}, nil
	}

	logger := r.client.logger.With("method", r.method, "url", r.url)
	backoff := retry.WithMaxRetries(r.client.maxRetries, retry.NewExponential(r.client.backoff))

	var resp Response
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		reporter.Publish(Progress{Attempt: attempt})
		if reporter.Cancelled() {
			return context.Canceled
		}

		var err error
		resp, err = r.do(ctx)
		if err == nil {
			reporter.Publish(Progress{Attempt: attempt, BytesRead: int64(len(resp.Body))})
			return nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.retryable() {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		logger.Debug("request attempt failed", "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		resp.Err = err
		logger.Debug("request failed", "attempts", attempt, "error", err)
	}
	return resp, nil
}

func (r *request) do(ctx context.Context) (Response, error) {
	if err := r.client.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limiter: %w", err)
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := r.client.http.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	resp := Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}
	if err != nil {
		return resp, fmt.Errorf("failed to read response body: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return resp, &StatusError{StatusCode: httpResp.StatusCode, Status: httpResp.Status}
	}
	return resp, nil
}
