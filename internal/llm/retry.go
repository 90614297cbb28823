package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/api/googleapi"
)

// UpstreamError represents a non-2xx response from the model provider.
// RetryAfter carries a server-supplied delay when the provider sent one.
type UpstreamError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// RetryConfig bounds the retry loop around one model call.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt, so the
	// loop makes at most MaxRetries+1 attempts.
	MaxRetries  int
	CallTimeout time.Duration
	BaseDelay   time.Duration
	MaxJitter   time.Duration
}

// DefaultRetryConfig returns the retry discipline used for generation calls:
// three attempts total, each bounded by a per-call timeout.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  2,
		CallTimeout: 120 * time.Second,
		BaseDelay:   time.Second,
		MaxJitter:   750 * time.Millisecond,
	}
}

// CallWithRetry invokes call with a per-attempt timeout, retrying transient
// failures (408/409/425/429/5xx or timeout) with exponential backoff and
// jitter, honoring a server-supplied retry-after delay when present.
// Non-retriable errors propagate immediately; after the final attempt the
// last error is returned.
func CallWithRetry(ctx context.Context, cfg RetryConfig, call func(ctx context.Context) (string, error)) (string, error) {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultRetryConfig().CallTimeout
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryConfig().BaseDelay
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
		out, err := call(callCtx)
		cancel()
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return "", err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-time.After(retryDelay(err, attempt, cfg)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

// IsRetryable classifies an error as transient. Timeouts and retriable HTTP
// statuses qualify; every other upstream error is permanent.
func IsRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if status, ok := statusOf(err); ok {
		return retryableStatus(status)
	}
	return false
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return status >= 500
}

// statusOf extracts an HTTP status code from provider error types.
func statusOf(err error) (int, bool) {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode, true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code, true
	}
	return 0, false
}

// retryDelay picks the next backoff: the server-supplied retry-after when
// present, otherwise base * 2^attempt plus random jitter up to the ceiling.
func retryDelay(err error, attempt int, cfg RetryConfig) time.Duration {
	if after, ok := retryAfterOf(err); ok && after > 0 {
		return after
	}
	delay := cfg.BaseDelay * (1 << attempt)
	if cfg.MaxJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(cfg.MaxJitter)))
	}
	return delay
}

func retryAfterOf(err error) (time.Duration, bool) {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.RetryAfter, upstream.RetryAfter > 0
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Header != nil {
		if raw := gerr.Header.Get("Retry-After"); raw != "" {
			if secs, convErr := strconv.Atoi(raw); convErr == nil && secs > 0 {
				return time.Duration(secs) * time.Second, true
			}
		}
	}
	return 0, false
}
