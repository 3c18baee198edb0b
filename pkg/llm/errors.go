package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"google.golang.org/genai"
)

var (
	// ErrUnconfigured is returned when no API key has been set.
	ErrUnconfigured = errors.New("llm: api key not configured")

	// ErrDuplicateQuestion is returned when a question repeats one answered
	// within the cooldown window. Callers should treat it as a soft notice.
	ErrDuplicateQuestion = errors.New("llm: duplicate question")

	// ErrRetryExhausted wraps the last rate-limit error after the retry
	// budget is spent.
	ErrRetryExhausted = errors.New("llm: rate limit retries exhausted")

	// ErrQueueFull is returned by a bounded queue past its depth limit.
	ErrQueueFull = errors.New("llm: request queue full")

	// ErrQueueClosed is returned for requests submitted to, or still pending
	// in, a closed queue.
	ErrQueueClosed = errors.New("llm: request queue closed")

	// ErrEmptyResponse is returned when the provider answered without text.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// RateLimitedError reports that the provider refused the call because of its
// request budget. It is the only retryable class.
type RateLimitedError struct {
	RetryAfter time.Duration // zero when the provider gave no hint
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// TransportError reports a network failure or timeout before a classifiable
// response arrived.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport: %v", e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamError reports a non-2xx response or an unparseable body.
type UpstreamError struct {
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream HTTP %d: %s", e.Status, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("upstream: %v", e.Err)
	}
	return "upstream: " + e.Body
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsRetryable reports whether err should be retried by the request queue.
func IsRetryable(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

// Classify maps a raw provider error onto the typed taxonomy. Errors that
// are already classified pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var (
		rl *RateLimitedError
		te *TransportError
		ue *UpstreamError
	)
	if errors.As(err, &rl) || errors.As(err, &te) || errors.As(err, &ue) {
		return err
	}
	if errors.Is(err, ErrUnconfigured) || errors.Is(err, ErrEmptyResponse) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if isRateLimitStatus(apiErr.Code, apiErr.Status) {
			return &RateLimitedError{RetryAfter: retryDelay(apiErr.Details), Err: err}
		}
		return &UpstreamError{Status: apiErr.Code, Body: apiErr.Message, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &TransportError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransportError{Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &TransportError{Err: err}
	}

	return &UpstreamError{Err: err}
}

// classifyCode handles providers that report failures as a code/message
// pair instead of an error value.
func classifyCode(code, message string) error {
	base := fmt.Errorf("%s: %s", code, message)
	if isRateLimitStatus(0, code) {
		return &RateLimitedError{Err: base}
	}
	return &UpstreamError{Body: message, Err: base}
}

func isRateLimitStatus(code int, status string) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	s := strings.ToUpper(status)
	return s == "RESOURCE_EXHAUSTED" || s == "429" || strings.HasPrefix(s, "429 ")
}

// retryDelay reads google.rpc.RetryInfo from API error details.
func retryDelay(details []map[string]any) time.Duration {
	for _, d := range details {
		t, _ := d["@type"].(string)
		if !strings.HasSuffix(t, "google.rpc.RetryInfo") {
			continue
		}
		raw, _ := d["retryDelay"].(string)
		if delay, err := time.ParseDuration(raw); err == nil {
			return delay
		}
	}
	return 0
}
