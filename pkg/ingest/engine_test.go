package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coincharts/pkg/quote"
	"coincharts/pkg/series"
	"coincharts/pkg/timegrid"
)

// fakeSource scripts provider responses and records every fetch window.
type fakeSource struct {
	bars  []series.Bar
	err   error
	calls []fetchCall
}

type fetchCall struct {
	symbol string
	start  time.Time
	limit  int
}

func (f *fakeSource) Fetch(ctx context.Context, symbol string, start time.Time, limit int) ([]series.Bar, error) {
	f.calls = append(f.calls, fetchCall{symbol: symbol, start: start, limit: limit})
	if f.err != nil {
		return nil, f.err
	}
	// Serve only bars inside the requested window, like a real provider.
	var out []series.Bar
	for _, b := range f.bars {
		if !b.PeriodEnd.Before(start) && len(out) < limit {
			out = append(out, b)
		}
	}
	return out, nil
}

func gridBar(symbol string, end time.Time, close float64) series.Bar {
	return series.Bar{
		Symbol:      symbol,
		PeriodStart: end.Add(-timegrid.BucketLength),
		PeriodEnd:   end,
		TimeOpen:    end.Add(-timegrid.BucketLength),
		TimeClose:   end.Add(-time.Second),
		Open:        close - 1,
		High:        close + 1,
		Low:         close - 2,
		Close:       close,
		Volume:      5,
		TradeCount:  2,
	}
}

func fixedClock(t time.Time) EngineOption {
	return WithClock(func() time.Time { return t })
}

func TestRunCycleEmptyStoreBackfill(t *testing.T) {
	// Empty store, two bars available: the canonical first-run scenario.
	ctx := context.Background()
	const sym = "BITSTAMP_SPOT_BTC_USD"
	store := series.NewMemoryStore()
	src := &fakeSource{bars: []series.Bar{
		gridBar(sym, time.Date(2018, 1, 9, 6, 0, 0, 0, time.UTC), 100),
		gridBar(sym, time.Date(2018, 1, 9, 12, 0, 0, 0, time.UTC), 101),
	}}
	now := time.Date(2018, 1, 9, 12, 0, 0, 0, time.UTC)
	engine := NewEngine(store, src, fixedClock(now))

	n, err := engine.RunCycle(ctx, sym)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "both available bars should be ingested")

	require.Len(t, src.calls, 1)
	assert.Equal(t, FirstKnownTime.Add(timegrid.BucketLength), src.calls[0].start,
		"empty series resumes one bucket after the first known time")
	assert.Equal(t, quote.MaxFetchLimit, src.calls[0].limit, "fetch window is capped")

	stored, err := store.Query(ctx, sym, time.Time{})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, time.Date(2018, 1, 9, 6, 0, 0, 0, time.UTC), stored[0].PeriodEnd)
	assert.Equal(t, time.Date(2018, 1, 9, 12, 0, 0, 0, time.UTC), stored[1].PeriodEnd)

	// Second cycle immediately after: nothing is due, nothing is fetched.
	n, err = engine.RunCycle(ctx, sym)
	require.NoError(t, err)
	assert.Zero(t, n, "immediate rerun must append nothing")
	assert.Len(t, src.calls, 1, "not-due cycle must not reach the provider")
}

func TestRunCycleDueBoundary(t *testing.T) {
	ctx := context.Background()
	const sym = "BITSTAMP_SPOT_ETH_USD"
	lastEnd := time.Date(2018, 1, 9, 6, 0, 0, 0, time.UTC)

	newEngine := func(now time.Time) (*Engine, *fakeSource, *series.MemoryStore) {
		store := series.NewMemoryStore()
		require.NoError(t, store.Append(ctx, sym, []series.Bar{gridBar(sym, lastEnd, 100)}))
		src := &fakeSource{}
		return NewEngine(store, src, fixedClock(now)), src, store
	}

	// Strictly less than one bucket: no side effects at all.
	engine, src, _ := newEngine(lastEnd.Add(timegrid.BucketLength - time.Second))
	n, err := engine.RunCycle(ctx, sym)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, src.calls, "not-due cycle must not fetch")

	// Exactly one bucket elapsed: the cycle proceeds.
	engine, src, _ = newEngine(lastEnd.Add(timegrid.BucketLength))
	_, err = engine.RunCycle(ctx, sym)
	require.NoError(t, err)
	require.Len(t, src.calls, 1, "due cycle must fetch")
	assert.Equal(t, lastEnd.Add(timegrid.BucketLength), src.calls[0].start,
		"fetch resumes one bucket after the checkpoint")
}

func TestRunCycleIdempotentWhenProviderEmpty(t *testing.T) {
	ctx := context.Background()
	const sym = "BITSTAMP_SPOT_XRP_USD"
	store := series.NewMemoryStore()
	lastEnd := time.Date(2018, 1, 9, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(ctx, sym, []series.Bar{gridBar(sym, lastEnd, 1)}))

	src := &fakeSource{} // provider has nothing newer
	engine := NewEngine(store, src, fixedClock(lastEnd.Add(26*time.Hour)))

	for i := 0; i < 2; i++ {
		n, err := engine.RunCycle(ctx, sym)
		require.NoError(t, err, "run %d", i)
		assert.Zero(t, n, "run %d should append nothing", i)
	}
	stored, _ := store.Query(ctx, sym, time.Time{})
	assert.Len(t, stored, 1, "series must be unchanged after repeated runs")
}

func TestRunCycleSurfacesDuplicates(t *testing.T) {
	ctx := context.Background()
	const sym = "BITSTAMP_SPOT_LTC_USD"
	store := series.NewMemoryStore()
	lastEnd := time.Date(2018, 1, 9, 6, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(ctx, sym, []series.Bar{gridBar(sym, lastEnd, 100)}))

	// Provider misbehaves and re-sends the bar we already have.
	src := &fakeSource{bars: []series.Bar{gridBar(sym, lastEnd, 100)}}
	// Force the served window to include the duplicate regardless of start.
	srcOverride := sourceFunc(func(ctx context.Context, symbol string, start time.Time, limit int) ([]series.Bar, error) {
		return src.bars, nil
	})
	engine := NewEngine(store, srcOverride, fixedClock(lastEnd.Add(7*time.Hour)))

	_, err := engine.RunCycle(ctx, sym)
	assert.ErrorIs(t, err, series.ErrDuplicateBar, "checkpoint/provider inconsistency must surface")

	stored, _ := store.Query(ctx, sym, time.Time{})
	assert.Len(t, stored, 1, "failed append must leave the series unchanged")
}

func TestRunCycleSourceUnavailable(t *testing.T) {
	ctx := context.Background()
	store := series.NewMemoryStore()
	src := &fakeSource{err: &quote.UnavailableError{Provider: "coinapi", RemainingQuota: -1, Err: context.DeadlineExceeded}}
	engine := NewEngine(store, src, fixedClock(FirstKnownTime.Add(7*time.Hour)))

	_, err := engine.RunCycle(ctx, "BITSTAMP_SPOT_BTC_USD")
	assert.ErrorIs(t, err, quote.ErrSourceUnavailable, "transport failure aborts the cycle")

	stored, _ := store.Query(ctx, "BITSTAMP_SPOT_BTC_USD", time.Time{})
	assert.Empty(t, stored, "failed cycle must not store anything")
}

// sourceFunc adapts a function to the quote.Source interface.
type sourceFunc func(ctx context.Context, symbol string, start time.Time, limit int) ([]series.Bar, error)

func (f sourceFunc) Fetch(ctx context.Context, symbol string, start time.Time, limit int) ([]series.Bar, error) {
	return f(ctx, symbol, start, limit)
}
