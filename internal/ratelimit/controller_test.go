package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_AcquireAdmitsWithinWindow(t *testing.T) {
	c := New(Config{Host: "test", TargetRPS: 100, WindowSeconds: 60, WindowLimit: 5})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 5; i++ {
		p, err := c.Acquire(ctx)
		require.NoError(t, err)
		p.Success()
	}

	stats := c.Stats()
	assert.EqualValues(t, 5, stats.TotalRequests)
}

func TestController_WindowLimitBlocksUntilSlotFrees(t *testing.T) {
	c := New(Config{Host: "test", TargetRPS: 1000, WindowSeconds: 1, WindowLimit: 1})

	ctx := context.Background()
	p1, err := c.Acquire(ctx)
	require.NoError(t, err)
	p1.Success()

	ctx2, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Acquire(ctx2)
	assert.Error(t, err, "second acquire should block past the window before the first entry expires")
}

func TestController_ReportHTTPError429HalvesConcurrency(t *testing.T) {
	c := New(Config{Host: "test", TargetRPS: 10, WindowSeconds: 60, WindowLimit: 100, InitialConcurrency: 6})
	c.ReportHTTPError(context.Background(), 429, time.Millisecond)

	stats := c.Stats()
	assert.Equal(t, 3, stats.CurrentConc)
	assert.EqualValues(t, 1, stats.HTTP429Count)
}

func TestController_ReportHTTPError403DoesNotAdjustConcurrency(t *testing.T) {
	c := New(Config{Host: "test", TargetRPS: 10, WindowSeconds: 60, WindowLimit: 100, InitialConcurrency: 6})
	c.ReportHTTPError(context.Background(), 403, 0)

	stats := c.Stats()
	assert.Equal(t, 6, stats.CurrentConc)
	assert.EqualValues(t, 1, stats.HTTP403Count)
}

func TestController_WarmupCompletesAfterThreshold(t *testing.T) {
	c := New(Config{Host: "test", TargetRPS: 1000, WindowSeconds: 60, WindowLimit: 1000, WarmupRequests: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, err := c.Acquire(ctx)
		require.NoError(t, err)
		p.Success()
	}

	stats := c.Stats()
	assert.True(t, stats.WarmupCompleted)
	assert.True(t, stats.BaseRTT >= 500*time.Millisecond && stats.BaseRTT < time.Second)
}

func TestController_ErrorDoesNotAffectRTT(t *testing.T) {
	c := New(Config{Host: "test", TargetRPS: 1000, WindowSeconds: 60, WindowLimit: 1000})
	ctx := context.Background()

	p, err := c.Acquire(ctx)
	require.NoError(t, err)
	p.Error()

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.NetworkErrors)
	assert.EqualValues(t, 0, stats.Success2Min)
}
