package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var fast = Policy{
	MaxAttempts:     3,
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	Multiplier:      2,
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), fast, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, nil)

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var notified []int
	attempts, err := Do(context.Background(), fast, func(context.Context) error {
		return errors.New("down")
	}, func(_ error, attempt int, _ time.Duration) {
		notified = append(notified, attempt)
	})

	assert.EqualError(t, err, "down")
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, notified)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	base := errors.New("bad request")
	attempts, err := Do(context.Background(), fast, func(context.Context) error {
		return Permanent(base)
	}, nil)

	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(err), "permanent wrapper is removed")
	assert.Equal(t, 1, attempts)
}

func TestDo_QuotePolicyMakesTwoAttempts(t *testing.T) {
	p := QuotePolicy
	p.InitialInterval = time.Millisecond
	p.MaxInterval = time.Millisecond

	attempts, err := Do(context.Background(), p, func(context.Context) error {
		return errors.New("timeout")
	}, nil)

	assert.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts, err := Do(ctx, fast, func(context.Context) error {
		return nil
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, attempts)
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.True(t, IsPermanent(Permanent(errors.New("x"))))
}

func TestDo_SingleAttemptPolicy(t *testing.T) {
	attempts, err := Do(context.Background(), Policy{MaxAttempts: 1}, func(context.Context) error {
		return errors.New("once")
	}, nil)

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}
