package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errFlaky = errors.New("connection reset")

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func TestDo(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		errOf     func(attempt int) error
		retryable []error
		wantCalls int
		wantErr   error
	}{
		{
			name:      "succeeds first try",
			failures:  0,
			wantCalls: 1,
		},
		{
			name:      "succeeds after two failures",
			failures:  2,
			errOf:     func(int) error { return errFlaky },
			wantCalls: 3,
		},
		{
			name:      "gives up after max attempts",
			failures:  10,
			errOf:     func(int) error { return errFlaky },
			wantCalls: 3,
			wantErr:   errFlaky,
		},
		{
			name:      "permanent error stops immediately",
			failures:  10,
			errOf:     func(int) error { return Stop(errFlaky) },
			wantCalls: 1,
			wantErr:   errFlaky,
		},
		{
			name:      "non retryable error stops immediately",
			failures:  10,
			errOf:     func(int) error { return errFlaky },
			retryable: []error{context.DeadlineExceeded},
			wantCalls: 1,
			wantErr:   errFlaky,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			cfg := DefaultConfig()
			cfg.Sleep = noSleep
			cfg.RetryableErrors = tt.retryable

			err := Do(context.Background(), cfg, func() error {
				calls++
				if calls <= tt.failures {
					return tt.errOf(calls)
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, DefaultConfig(), func() error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDoWithResult(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sleep = noSleep

	attempts := 0
	got, err := DoWithResult(context.Background(), cfg, func() (int, error) {
		attempts++
		if attempts == 1 {
			return 0, errFlaky
		}
		return 42, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 42, got)
}
