package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nathoo/lorecore/types"
)

// Retrying wraps a Store so log appends are retried with exponential
// backoff. Appends are safe to repeat: trigger firings are idempotent per
// session and other log records carry their own ids.
type Retrying struct {
	Store
	MaxTries uint
	// InitialInterval overrides the first backoff delay when non-zero.
	InitialInterval time.Duration
}

// NewRetrying wraps st. maxTries below 1 means a single attempt.
func NewRetrying(st Store, maxTries uint) *Retrying {
	return &Retrying{Store: st, MaxTries: max(maxTries, 1)}
}

func (r *Retrying) retry(ctx context.Context, what string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if r.InitialInterval > 0 {
		b.InitialInterval = r.InitialInterval
	}
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := op()
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return struct{}{}, backoff.Permanent(err)
		}
		slog.WarnContext(ctx, "log append failed", "log", what, "attempt", attempt, "error", err)
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(max(r.MaxTries, 1)))
	return err
}

func (r *Retrying) AppendTriggerFiring(ctx context.Context, f types.TriggerFiring) error {
	return r.retry(ctx, "trigger_firing", func() error { return r.Store.AppendTriggerFiring(ctx, f) })
}

func (r *Retrying) AppendCascadeLog(ctx context.Context, l types.CascadeLog) error {
	return r.retry(ctx, "cascade_log", func() error { return r.Store.AppendCascadeLog(ctx, l) })
}

func (r *Retrying) AppendHintResponse(ctx context.Context, rec types.HintResponseRecord) error {
	return r.retry(ctx, "hint_response", func() error { return r.Store.AppendHintResponse(ctx, rec) })
}

func (r *Retrying) AppendRandomEventLog(ctx context.Context, l types.RandomEventLog) error {
	return r.retry(ctx, "random_event_log", func() error { return r.Store.AppendRandomEventLog(ctx, l) })
}

func (r *Retrying) AppendBluff(ctx context.Context, b types.BluffAttempt) error {
	return r.retry(ctx, "bluff_attempt", func() error { return r.Store.AppendBluff(ctx, b) })
}
