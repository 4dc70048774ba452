package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/radiusdt/storefront-notify/internal/metrics"
	"go.uber.org/zap"
)

// BestEffort runs side effects whose failure must never change the caller's
// response. Errors and panics are logged and counted, never returned.
type BestEffort struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

func NewBestEffort(logger *zap.Logger, m *metrics.Metrics, timeout time.Duration) *BestEffort {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &BestEffort{logger: logger, metrics: m, timeout: timeout}
}

// Do runs fn detached from ctx cancellation, bounded by the configured timeout.
// It reports whether fn succeeded.
func (b *BestEffort) Do(ctx context.Context, op string, fn func(context.Context) error) bool {
	_, ok := Attempt(b, ctx, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return ok
}

// Attempt is Do for operations that produce a value. On failure it returns the zero value.
func Attempt[T any](b *BestEffort, ctx context.Context, op string, fn func(context.Context) (T, error)) (result T, ok bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			b.fail(op, fmt.Errorf("panic: %v", r))
			var zero T
			result, ok = zero, false
		}
	}()

	v, err := fn(ctx)
	if err != nil {
		b.fail(op, err)
		var zero T
		return zero, false
	}
	return v, true
}

func (b *BestEffort) fail(op string, err error) {
	b.logger.Warn("best-effort operation failed", zap.String("op", op), zap.Error(err))
	if b.metrics != nil {
		b.metrics.RecordTrackingFailure(op)
	}
}
