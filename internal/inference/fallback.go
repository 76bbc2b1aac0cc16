package inference

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"folio/internal/port"
)

// circuitState tracks rate-limit backoff for a single client.
type circuitState struct {
	mu      sync.RWMutex
	resetAt time.Time // zero value = closed (healthy)
}

func (c *circuitState) isOpenWithReset(now time.Time) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resetAt, !c.resetAt.IsZero() && now.Before(c.resetAt)
}

func (c *circuitState) open(resetAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetAt = resetAt
}

// FallbackOption configures a FallbackClient.
type FallbackOption func(*FallbackClient)

// WithLogger sets the logger used to report skipped and failed clients.
func WithLogger(l *slog.Logger) FallbackOption {
	return func(f *FallbackClient) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) FallbackOption {
	return func(f *FallbackClient) { f.now = now }
}

// FallbackClient tries clients in order, skipping those with open circuits.
// Detection and recognition share one circuit per client.
type FallbackClient struct {
	clients  []Client
	circuits []*circuitState
	names    []string
	logger   *slog.Logger
	now      func() time.Time
}

var _ Client = (*FallbackClient)(nil)

// NewFallbackClient creates a FallbackClient from an ordered list of clients and their names.
func NewFallbackClient(clients []Client, names []string, opts ...FallbackOption) *FallbackClient {
	circuits := make([]*circuitState, len(clients))
	for i := range circuits {
		circuits[i] = &circuitState{}
	}
	f := &FallbackClient{
		clients:  clients,
		circuits: circuits,
		names:    names,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *FallbackClient) Detect(ctx context.Context, images []image.Image, threshold float64) ([][]port.Detection, error) {
	return try(f, "detect", func(c Client) ([][]port.Detection, error) {
		return c.Detect(ctx, images, threshold)
	})
}

func (f *FallbackClient) Recognize(ctx context.Context, regions []image.Image, threshold float64) ([][]port.RecognizedPart, error) {
	return try(f, "recognize", func(c Client) ([][]port.RecognizedPart, error) {
		return c.Recognize(ctx, regions, threshold)
	})
}

func try[T any](f *FallbackClient, op string, call func(Client) (T, error)) (T, error) {
	var zero T
	now := f.now()
	var lastErr error
	allRateLimited := true
	var earliestReset time.Time

	for i, c := range f.clients {
		if resetAt, open := f.circuits[i].isOpenWithReset(now); open {
			f.logger.Warn("inference.FallbackClient: skipping client",
				"op", op, "client", f.names[i], "until", resetAt.Format(time.RFC3339))
			if earliestReset.IsZero() || resetAt.Before(earliestReset) {
				earliestReset = resetAt
			}
			continue
		}

		out, err := call(c)
		if err == nil {
			return out, nil
		}

		f.logger.Warn("inference.FallbackClient: client failed", "op", op, "client", f.names[i], "error", err)
		lastErr = err

		if rlErr, ok := AsRateLimit(err); ok {
			resetAt := now.Add(rlErr.RetryAfter)
			f.circuits[i].open(resetAt)
			if earliestReset.IsZero() || resetAt.Before(earliestReset) {
				earliestReset = resetAt
			}
		} else {
			allRateLimited = false
		}
	}

	if lastErr == nil || allRateLimited {
		retryAfter := earliestReset.Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return zero, NewRateLimitError("all", fmt.Errorf("all inference clients rate limited"), int(retryAfter.Seconds()))
	}
	return zero, fmt.Errorf("all inference clients failed: %w", lastErr)
}
