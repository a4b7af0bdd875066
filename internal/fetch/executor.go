// Package fetch performs network fetches under a bounded fixed-delay retry
// policy. Every network step in the pipeline goes through one Executor so the
// attempt cap and backoff live in a single place.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/galleryguard/galleryguard/internal/metrics"
	"github.com/galleryguard/galleryguard/internal/moderation"
)

// Policy bounds the retry behavior of an Executor. The delay is fixed per
// attempt; there is no exponential growth.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultPolicy matches the crawl path's observed behavior.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, Delay: time.Second}
}

// Executor fetches URLs with bounded retries over an injected HTTP client.
type Executor struct {
	client *http.Client
	policy Policy
	logger *zap.Logger
}

// NewExecutor builds an Executor. A nil client falls back to a default with a
// 30s timeout.
func NewExecutor(client *http.Client, policy Policy, logger *zap.Logger) *Executor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{client: client, policy: policy, logger: logger}
}

// Fetch GETs url, retrying on network errors, non-2xx statuses, and body-read
// errors. After the final attempt the last error is returned wrapped with
// moderation.ErrAttemptsExhausted. The sleep between attempts is cut short by
// context cancellation.
func (e *Executor) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		body, err := e.fetchOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		e.logger.Debug("fetch attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == e.policy.MaxAttempts {
			break
		}
		metrics.ObserveFetchRetry()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.policy.Delay):
		}
	}
	return nil, fmt.Errorf("fetch %s: %w after %d attempts: %w",
		url, moderation.ErrAttemptsExhausted, e.policy.MaxAttempts, lastErr)
}

func (e *Executor) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
