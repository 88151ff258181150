package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quotaErr() error {
	return &QuotaError{Err: errors.New("429 resource exhausted")}
}

// newTestRetrier returns a retrier whose sleeps are recorded instead of
// executed.
func newTestRetrier(models *ModelFallback) (*Retrier, *[]time.Duration) {
	var delays []time.Duration
	r := NewRetrier(models, nil)
	r.BaseDelay = 2 * time.Second
	r.Sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return r, &delays
}

func TestRetrier_SucceedsFirstAttempt(t *testing.T) {
	models := NewModelFallback("flash", "pro")
	r, delays := newTestRetrier(models)

	res, err := r.Invoke(context.Background(), func(ctx context.Context, model string) (*Result, error) {
		return &Result{Text: "ok", Model: model}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Empty(t, *delays)
	assert.Equal(t, "flash", models.Active())
}

func TestRetrier_BackoffSequence(t *testing.T) {
	models := NewModelFallback("flash", "pro")
	r, delays := newTestRetrier(models)

	calls := 0
	res, err := r.Invoke(context.Background(), func(ctx context.Context, model string) (*Result, error) {
		calls++
		if calls <= 2 {
			return nil, quotaErr()
		}
		return &Result{Text: "ok", Model: model}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *delays)
	// Success arrived before exhaustion: no switch.
	assert.False(t, models.Switched())
}

func TestRetrier_SwitchesAfterExhaustion(t *testing.T) {
	models := NewModelFallback("flash", "pro")
	r, delays := newTestRetrier(models)

	var seen []string
	calls := 0
	res, err := r.Invoke(context.Background(), func(ctx context.Context, model string) (*Result, error) {
		calls++
		seen = append(seen, model)
		if calls <= 3 {
			return nil, quotaErr()
		}
		return &Result{Text: "ok", Model: model}, nil
	})
	require.NoError(t, err)

	// Three quota failures on the primary: delays 2, 4, 8, then the
	// switch, then the fourth call succeeds on the fallback.
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, *delays)
	assert.Equal(t, []string{"flash", "flash", "flash", "pro"}, seen)
	assert.Equal(t, "pro", res.Model)
	assert.True(t, models.Switched())
}

func TestRetrier_ExhaustsBothModels(t *testing.T) {
	models := NewModelFallback("flash", "pro")
	r, _ := newTestRetrier(models)

	calls := 0
	_, err := r.Invoke(context.Background(), func(ctx context.Context, model string) (*Result, error) {
		calls++
		return nil, quotaErr()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	// 3 attempts on primary + 3 on fallback.
	assert.Equal(t, 6, calls)
}

func TestRetrier_PermanentErrorAbortsImmediately(t *testing.T) {
	models := NewModelFallback("flash", "pro")
	r, delays := newTestRetrier(models)

	boom := errors.New("invalid argument")
	calls := 0
	_, err := r.Invoke(context.Background(), func(ctx context.Context, model string) (*Result, error) {
		calls++
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)
	assert.False(t, models.Switched())
}

func TestRetrier_NoFallbackConfigured(t *testing.T) {
	models := NewModelFallback("flash", "flash")
	r, _ := newTestRetrier(models)

	calls := 0
	_, err := r.Invoke(context.Background(), func(ctx context.Context, model string) (*Result, error) {
		calls++
		return nil, quotaErr()
	})
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 3, calls)
}

func TestRetrier_CancelDuringBackoff(t *testing.T) {
	models := NewModelFallback("flash", "pro")
	r := NewRetrier(models, nil)
	r.Sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	_, err := r.Invoke(context.Background(), func(ctx context.Context, model string) (*Result, error) {
		return nil, quotaErr()
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestModelFallback_Monotonic(t *testing.T) {
	m := NewModelFallback("flash", "pro")
	assert.Equal(t, "flash", m.Active())
	assert.True(t, m.Switch())
	assert.Equal(t, "pro", m.Active())
	// A second switch in the same run never succeeds.
	assert.False(t, m.Switch())
	assert.Equal(t, "pro", m.Active())
}

func TestModelFallback_SamePrimaryAndFallback(t *testing.T) {
	m := NewModelFallback("flash", "flash")
	assert.False(t, m.Switch())
	assert.Equal(t, "flash", m.Active())
}

func TestIsQuotaExceeded(t *testing.T) {
	assert.True(t, IsQuotaExceeded(quotaErr()))
	assert.True(t, IsQuotaExceeded(errors.Join(errors.New("wrap"), quotaErr())))
	assert.False(t, IsQuotaExceeded(errors.New("500 internal")))
	assert.False(t, IsQuotaExceeded(nil))
}
