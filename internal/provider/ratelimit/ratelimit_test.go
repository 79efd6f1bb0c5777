package ratelimit_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"metalsync/internal/provider"
	"metalsync/internal/provider/ratelimit"
)

type countingSource struct{ calls atomic.Int32 }

func (c *countingSource) Name() string { return "counting" }

func (c *countingSource) FetchQuote(_ context.Context, s provider.Symbol, _ string) (provider.Quote, error) {
	c.calls.Add(1)
	return provider.Quote{ID: s.ID(), Symbol: s, Price: 1}, nil
}

func TestWrap_NilLimiterIsPassThrough(t *testing.T) {
	t.Parallel()

	inner := &countingSource{}
	require.Same(t, provider.Source(inner), ratelimit.Wrap(inner, nil))
	require.Nil(t, ratelimit.PerMinute(0, 5))
}

func TestSource_BurstThenBlocks(t *testing.T) {
	t.Parallel()

	// Arrange: two immediate tokens, then one per hour
	inner := &countingSource{}
	src := ratelimit.Wrap(inner, rate.NewLimiter(rate.Every(time.Hour), 2))
	require.Equal(t, "counting", src.Name())

	// Act: the burst passes
	for _, s := range []provider.Symbol{provider.Gold, provider.Silver} {
		_, err := src.FetchQuote(t.Context(), s, "")
		require.NoError(t, err)
	}

	// Act: the third call cannot get a token before its deadline
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	_, err := src.FetchQuote(ctx, provider.Platinum, "")

	// Assert
	require.Error(t, err)
	require.Contains(t, err.Error(), "XPT")
	require.Equal(t, int32(2), inner.calls.Load())
}

func TestPerMinute(t *testing.T) {
	t.Parallel()

	l := ratelimit.PerMinute(30, 0)
	require.NotNil(t, l)
	require.Equal(t, 1, l.Burst())
	require.InDelta(t, 0.5, float64(l.Limit()), 1e-9)
}
