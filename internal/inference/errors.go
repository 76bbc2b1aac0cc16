package inference

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultRetryAfter is used when a server throttles without saying for how long.
const DefaultRetryAfter = time.Minute

// RateLimitError reports that a model server refused a request with HTTP 429.
// The conversion queue requeues runs that fail with it.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited (retry after %s): %v", e.Provider, e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// NewRateLimitError creates a RateLimitError. A non-positive retryAfterSecs
// means DefaultRetryAfter.
func NewRateLimitError(provider string, err error, retryAfterSecs int) *RateLimitError {
	d := time.Duration(retryAfterSecs) * time.Second
	if d <= 0 {
		d = DefaultRetryAfter
	}
	return &RateLimitError{Provider: provider, RetryAfter: d, Err: err}
}

// AsRateLimit reports whether err carries a RateLimitError.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// ParseRetryAfterHeader converts a Retry-After value, either delta-seconds or
// an HTTP date, into whole seconds from now. Unparseable or past values give 0.
func ParseRetryAfterHeader(val string) int {
	return parseRetryAfter(val, time.Now())
}

func parseRetryAfter(val string, now time.Time) int {
	val = strings.TrimSpace(val)
	if val == "" {
		return 0
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return max(secs, 0)
	}
	at, err := http.ParseTime(val)
	if err != nil {
		return 0
	}
	return max(int(math.Ceil(at.Sub(now).Seconds())), 0)
}
