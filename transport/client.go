package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fogfish/opts"
	"github.com/tablewise/concierge/pkg/slogx"
)

// Body reads are capped so rogue responses cannot cause unbounded allocation.
const (
	maxResponseBodySize int64 = 10 * 1024 * 1024
	maxErrorBodySize    int64 = 1 * 1024 * 1024
)

// Request is a fully built provider request: the adapter has already chosen
// the URL, headers, and serialized body.
type Request struct {
	URL     string
	Headers map[string]string
	Body    []byte

	_ struct{} // require keyed usage
}

// Client sends provider requests. It holds only immutable configuration and is
// safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	maxRetries  int
	timeout     time.Duration
	backoffUnit time.Duration
}

var (
	// WithHTTPClient overrides the underlying http.Client.
	WithHTTPClient = opts.ForName[Client, *http.Client]("httpClient")
	// WithMaxRetries bounds the blocking path's attempt count.
	WithMaxRetries = opts.ForName[Client, int]("maxRetries")
	// WithTimeout sets the per-attempt deadline on the blocking path.
	WithTimeout = opts.ForName[Client, time.Duration]("timeout")
	// WithBackoffUnit scales the exponential backoff base. The production
	// default is one second (delays of 1s, 2s, 4s, ...); tests shrink it.
	WithBackoffUnit = opts.ForName[Client, time.Duration]("backoffUnit")
)

// New creates a transport client. Without options it retries 3 times with a
// 30 second per-attempt timeout and one-second backoff units.
func New(options ...opts.Option[Client]) (*Client, error) {
	client := &Client{
		httpClient:  http.DefaultClient,
		maxRetries:  3,
		timeout:     30 * time.Second,
		backoffUnit: time.Second,
	}
	if err := opts.Apply(client, options); err != nil {
		return nil, err
	}
	return client, nil
}

// Send performs a blocking request. Failed attempts (connection errors,
// timeouts, retryable statuses) are retried up to the configured budget with
// exponential backoff: the delay before retry n is 2^(n-1) backoff units.
// Authentication failures are surfaced immediately.
func (c *Client) Send(ctx context.Context, req Request) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffUnit << (attempt - 1)
			slog.DebugContext(ctx, "backing off before retry",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, err := c.sendOnce(ctx, req)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !retryable(err) {
			return nil, err
		}
		slog.WarnContext(ctx, "request attempt failed",
			slog.Int("attempt", attempt),
			slogx.Error(err),
		)
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, c.maxRetries, lastErr)
}

func (c *Client) sendOnce(ctx context.Context, req Request) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	hreq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for key, value := range req.Headers {
		hreq.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(hreq)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		}
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer closeQuietly(resp.Body)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		}
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(resp.StatusCode, body)
	}
	return body, nil
}

// SendStream performs exactly one attempt and returns the open response body
// for SSE consumption. There is no retry: once bytes may have started flowing
// to the caller a replay could duplicate delivered content. Non-2xx statuses
// surface as an immediate error before any chunk is yielded. The caller owns
// closing the returned body.
func (c *Client) SendStream(ctx context.Context, req Request) (io.ReadCloser, error) {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for key, value := range req.Headers {
		hreq.Header.Set(key, value)
	}
	hreq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("sending stream request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer closeQuietly(resp.Body)
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		if readErr != nil {
			return nil, &StatusError{Status: resp.StatusCode}
		}
		return nil, newStatusError(resp.StatusCode, body)
	}
	return resp.Body, nil
}

func closeQuietly(closer io.Closer) {
	if err := closer.Close(); err != nil {
		slog.Warn("failed to close response body", slogx.Error(err))
	}
}
