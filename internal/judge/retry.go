package judge

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	retry "github.com/avast/retry-go/v4"

	"github.com/asanagraph/asanagraph/internal/metrics"
)

// retryJudge wraps another Judge and retries transient call failures with
// bounded backoff. Off-format answers are not errors at this layer; they
// surface at call sites via ParseToken, so only transport failures retry.
type retryJudge struct {
	inner    Judge
	attempts uint
	delay    time.Duration
	logger   *slog.Logger
}

// WithRetry wraps a judge so each call is attempted up to 1+retries times.
func WithRetry(inner Judge, retries int, logger *slog.Logger) Judge {
	if retries < 0 {
		retries = 0
	}
	return &retryJudge{
		inner:    inner,
		attempts: uint(retries) + 1,
		delay:    500 * time.Millisecond,
		logger:   logger,
	}
}

func (r *retryJudge) Extract(ctx context.Context, prompt string) (json.RawMessage, error) {
	var out json.RawMessage
	err := r.do(ctx, "extract", func() error {
		raw, err := r.inner.Extract(ctx, prompt)
		if err != nil {
			return err
		}
		out = raw
		return nil
	})
	return out, err
}

func (r *retryJudge) Classify(ctx context.Context, prompt string) (string, error) {
	var out string
	err := r.do(ctx, "classify", func() error {
		answer, err := r.inner.Classify(ctx, prompt)
		if err != nil {
			return err
		}
		out = answer
		return nil
	})
	return out, err
}

func (r *retryJudge) do(ctx context.Context, op string, fn func() error) error {
	metrics.Inc(metrics.JudgeCallTotal)
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(r.attempts),
		retry.Delay(r.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			metrics.Inc(metrics.JudgeRetryTotal)
			r.logger.Warn("judge call failed, retrying", "op", op, "attempt", n+1, "error", err)
		}),
	)
}
