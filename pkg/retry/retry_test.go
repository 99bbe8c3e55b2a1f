package retry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjmonk/varmsg/errors"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		if calls < 3 {
			return errors.WrapTransient(errors.ErrNoConnection, "Client", "Connect", "dial")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_RetriesUnclassifiedErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(2), func() error {
		calls++
		return stderrors.New("plain failure")
	})
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "retry failed after 2 attempts")
}

func TestDo_StopsOnFatalError(t *testing.T) {
	calls := 0
	fatal := errors.WrapFatal(errors.ErrInvalidConfig, "Loader", "LoadFile", "read config")
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		return fatal
	})
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.Equal(t, 1, calls)
}

func TestDo_StopsOnInvalidError(t *testing.T) {
	calls := 0
	invalid := errors.WrapInvalid(errors.ErrUnsupported, "Sink", "Open", "parse output type")
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		return invalid
	})
	assert.ErrorIs(t, err, errors.ErrUnsupported)
	assert.Equal(t, 1, calls)
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	cfg := Config{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}
	err := Do(ctx, cfg, func() error {
		calls++
		cancel()
		return stderrors.New("still failing")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_ConfigValidation(t *testing.T) {
	noop := func() error { return nil }

	assert.Error(t, Do(context.Background(), Config{InitialDelay: -1}, noop))
	assert.Error(t, Do(context.Background(), Config{MaxDelay: -1}, noop))
	assert.Error(t, Do(context.Background(), Config{Multiplier: -1}, noop))
	assert.Error(t, Do(context.Background(),
		Config{InitialDelay: time.Second, MaxDelay: time.Millisecond}, noop))
}

func TestDo_JitterWithTinyDelay(t *testing.T) {
	// A delay under 4ns leaves no jitter window; drawing from it must
	// not panic.
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Nanosecond,
		Multiplier:   1.0,
		AddJitter:    true,
	}

	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		return stderrors.New("still failing")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{}, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	value, err := DoWithResult(context.Background(), fastConfig(3), func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.WrapTransient(errors.ErrConnectionLost, "Client", "Publish", "publish")
		}
		return "payload", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "payload", value)
	assert.Equal(t, 2, calls)
}

func TestPresets(t *testing.T) {
	assert.Equal(t, 3, DefaultConfig().MaxAttempts)
	assert.Equal(t, 10, Quick().MaxAttempts)
	assert.Equal(t, 30, Persistent().MaxAttempts)
}
