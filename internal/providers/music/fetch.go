package music

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

const (
	defaultFetchTimeout = 30 * time.Second
	maxRetries          = 3
	maxErrorBodyLen     = 300
)

// Variables so tests can shrink the schedule.
var (
	backoffBase = time.Second
	backoffMax  = 10 * time.Second
)

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// VendorError is a non-retryable rejection from a vendor API: a 4xx status
// other than 429, or an application-level error embedded in a 200 body. The
// body snippet is truncated and safe to log, but callers should treat it as
// opaque diagnostics.
type VendorError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *VendorError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: vendor rejected request: status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: vendor rejected request: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// backoffDelay returns the base exponential delay for the given attempt,
// capped at backoffMax. Attempt 0 waits backoffBase.
func backoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := backoffBase
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= backoffMax {
			return backoffMax
		}
	}
	return d
}

// jitteredDelay adds up to 30% random jitter on top of the base delay so
// concurrent callers do not retry in lockstep.
func jitteredDelay(attempt int) time.Duration {
	d := backoffDelay(attempt)
	jitter := int64(d) * 3 / 10
	if jitter <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(jitter))
}

// fetchWithRetry performs one logical outbound call with bounded latency.
// Each attempt runs under its own timeout; an aborted attempt is fatal and
// propagated immediately so callers bound worst-case latency instead of
// retrying into a dead upstream. Transport errors and retryable statuses
// (429, 5xx gateway family) are retried up to maxRetries extra times with
// exponential backoff and jitter. Any other error status fails immediately
// with a truncated body snippet. On success the response body carries the
// attempt's cancel func, released on Close.
func fetchWithRetry(ctx context.Context, client *http.Client, build func(ctx context.Context) (*http.Request, error), timeout time.Duration) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(jitteredDelay(attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		req, err := build(attemptCtx)
		if err != nil {
			cancel()
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			cancel()
			if attemptCtx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("music: request aborted after %s: %w", timeout, err)
			}
			lastErr = err
			continue
		}

		if retryableStatus(resp.StatusCode) {
			snippet := readBodySnippet(resp.Body)
			resp.Body.Close()
			cancel()
			lastErr = fmt.Errorf("music: upstream status %d: %s", resp.StatusCode, snippet)
			continue
		}

		if resp.StatusCode >= http.StatusBadRequest {
			snippet := readBodySnippet(resp.Body)
			resp.Body.Close()
			cancel()
			return nil, &VendorError{StatusCode: resp.StatusCode, Body: snippet}
		}

		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}
	return nil, lastErr
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func readBodySnippet(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBodyLen+1))
	s := strings.TrimSpace(string(data))
	return truncate(s, maxErrorBodyLen)
}
