package pacer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacer_ZeroDelayNeverWaits(t *testing.T) {
	p := New(0)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPacer_SpacesSteps(t *testing.T) {
	p := New(30 * time.Millisecond)
	ctx := context.Background()

	calls := 0
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Step(ctx, func(context.Context) error {
			calls++
			return nil
		}))
	}
	// First step is immediate, the next two wait one delay each.
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 3, calls)
}

func TestPacer_CancelledContext(t *testing.T) {
	p := New(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Wait(ctx))
	cancel()
	assert.Error(t, p.Wait(ctx))
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), 0))
	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
