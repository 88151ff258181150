package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 2 * time.Second
)

// SleepFunc suspends for d or until the context is canceled. Injected so
// tests can observe the exact backoff sequence without real delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

// CtxSleep is the production SleepFunc.
func CtxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RequestFunc performs one inference call against the given model.
type RequestFunc func(ctx context.Context, model string) (*Result, error)

// Retrier drives a RequestFunc through bounded retries with exponential
// backoff on quota errors, switching to the fallback model once the
// primary's attempts are exhausted. Any non-quota error aborts
// immediately. Failure is always explicit: callers get a result or a
// wrapped ErrExhausted carrying the last quota error.
type Retrier struct {
	Models      *ModelFallback
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       SleepFunc
	Log         hclog.Logger
}

func NewRetrier(models *ModelFallback, log hclog.Logger) *Retrier {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Retrier{
		Models:      models,
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		Sleep:       CtxSleep,
		Log:         log,
	}
}

// Invoke runs fn until it succeeds, fails permanently, or every attempt
// on every available model is spent. After the primary model's attempts
// are exhausted the same fn is retried in full against the fallback, so
// the total ceiling is attempts x models.
func (r *Retrier) Invoke(ctx context.Context, fn RequestFunc) (*Result, error) {
	max := r.MaxAttempts
	if max < 1 {
		max = defaultMaxAttempts
	}
	base := r.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = CtxSleep
	}

	var last error
	for {
		model := r.Models.Active()
		for attempt := 1; attempt <= max; attempt++ {
			res, err := fn(ctx, model)
			if err == nil {
				return res, nil
			}
			if !IsQuotaExceeded(err) {
				return nil, err
			}
			last = err

			delay := base * time.Duration(1<<(attempt-1)) // 2, 4, 8
			r.Log.Warn("rate limited, backing off",
				"model", model, "attempt", attempt, "max", max, "delay", delay.String())
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		if !r.Models.Switch() {
			return nil, fmt.Errorf("%w: %v", ErrExhausted, last)
		}
		r.Log.Info("switching to fallback model", "model", r.Models.Active())
	}
}
