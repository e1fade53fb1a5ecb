package completion

import (
	"context"
	"errors"
	"net"

	"github.com/localledger/receipt-backend/internal/apperr"
	"github.com/localledger/receipt-backend/internal/logging"
)

var log = logging.New("completion")

// Limited wraps a Provider with an in-flight concurrency cap (default 4)
// and a retry-once-on-network-error policy: a
// connection-level failure is retried a single time, a timeout or a 4xx-type
// rejection from the provider is not.
type Limited struct {
	inner Provider
	sem   chan struct{}
}

// NewLimited caps inner to maxInFlight concurrent calls.
func NewLimited(inner Provider, maxInFlight int) *Limited {
	if maxInFlight <= 0 {
		maxInFlight = 4
	}
	return &Limited{inner: inner, sem: make(chan struct{}, maxInFlight)}
}

func (l *Limited) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limited) release() { <-l.sem }

func (l *Limited) CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := l.acquire(ctx); err != nil {
		return "", classify(err)
	}
	defer l.release()

	out, err := l.inner.CompleteText(ctx, systemPrompt, userPrompt)
	if err != nil && isNetworkError(err) {
		log.Warnf("text completion network error, retrying once: %v", err)
		out, err = l.inner.CompleteText(ctx, systemPrompt, userPrompt)
	}
	return out, classify(err)
}

func (l *Limited) CompleteVision(ctx context.Context, prompt string, imageBase64 string) (string, error) {
	if err := l.acquire(ctx); err != nil {
		return "", classify(err)
	}
	defer l.release()

	out, err := l.inner.CompleteVision(ctx, prompt, imageBase64)
	if err != nil && isNetworkError(err) {
		log.Warnf("vision completion network error, retrying once: %v", err)
		out, err = l.inner.CompleteVision(ctx, prompt, imageBase64)
	}
	return out, classify(err)
}

func (l *Limited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, classify(err)
	}
	defer l.release()

	out, err := l.inner.Embed(ctx, text)
	if err != nil && isNetworkError(err) {
		log.Warnf("embedding network error, retrying once: %v", err)
		out, err = l.inner.Embed(ctx, text)
	}
	return out, classify(err)
}

// isNetworkError reports whether err looks like a transient connection
// failure rather than a timeout or an upstream-returned rejection.
func isNetworkError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return !opErr.Timeout()
	}
	return false
}

// classify maps a raw provider error onto the apperr taxonomy:
// deadline exceeded becomes UpstreamTimeout, anything else reaching the
// completion boundary becomes UpstreamUnavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.New(apperr.UpstreamTimeout, "completion service timed out", err)
	}
	return apperr.New(apperr.UpstreamUnavailable, "completion service unavailable", err)
}
