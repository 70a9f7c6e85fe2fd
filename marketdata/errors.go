package marketdata

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hako/durafmt"
)

var (
	ErrInvalidSymbol       = errors.New("invalid symbol format")
	ErrSymbolNotFound      = errors.New("invalid stock symbol or stock not found")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrUpstreamUnavailable = errors.New("market data provider unavailable")
)

// RateLimitError is returned when the client's own request budget is spent.
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	secs := time.Duration(math.Ceil(e.Wait.Seconds())) * time.Second
	if secs < time.Second {
		secs = time.Second
	}
	return fmt.Sprintf("rate limit exceeded, please wait %s", durafmt.Parse(secs).LimitFirstN(1))
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// ProviderError is an error payload reported by the provider in the response body.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// NotFound reports whether the provider rejected the symbol itself.
func (e *ProviderError) NotFound() bool {
	return e.Code == 400 || e.Code == 404
}

func (e *ProviderError) transient() bool {
	return e.Code == 0 || e.Code == 429 || e.Code >= 500
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return "api request failed: " + e.Status
}

func (e *StatusError) transient() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// UpstreamError wraps the last failure once retries are exhausted or the
// provider returned a permanent error.
type UpstreamError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstreamUnavailable }

func isNotFound(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.NotFound()
}
