package align

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coincharts/pkg/series"
	"coincharts/pkg/timegrid"
)

func seedSeries(t *testing.T, store *series.MemoryStore, symbol string, closes []float64) []time.Time {
	t.Helper()
	start := time.Date(2018, 1, 9, 0, 0, 0, 0, time.UTC)
	bars := make([]series.Bar, 0, len(closes))
	times := make([]time.Time, 0, len(closes))
	for i, c := range closes {
		end := start.Add(time.Duration(i+1) * timegrid.BucketLength)
		bars = append(bars, series.Bar{
			Symbol:      symbol,
			PeriodStart: end.Add(-timegrid.BucketLength),
			PeriodEnd:   end,
			TimeOpen:    end.Add(-timegrid.BucketLength),
			TimeClose:   end.Add(-time.Second),
			Open:        c,
			High:        c,
			Low:         c,
			Close:       c,
			Volume:      1,
			TradeCount:  1,
		})
		times = append(times, end)
	}
	require.NoError(t, store.Append(context.Background(), symbol, bars), "seed %s", symbol)
	return times
}

func ramp(n int, base float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + float64(i)
	}
	return out
}

func TestStreamShortestWins(t *testing.T) {
	store := series.NewMemoryStore()
	seedSeries(t, store, "A", ramp(10, 100))
	seedSeries(t, store, "B", ramp(7, 50))
	seedSeries(t, store, "C", ramp(12, 5000))

	p := NewPipeline(store)
	stream, err := p.Stream(context.Background(), []string{"A", "B", "C"}, time.Time{})
	require.NoError(t, err)

	points := stream.Collect()
	assert.Len(t, points, 7, "output is bounded by the shortest series")
}

func TestStreamNormalizationRange(t *testing.T) {
	store := series.NewMemoryStore()
	closes := []float64{3, 9, 1, 7, 5}
	seedSeries(t, store, "A", closes)
	seedSeries(t, store, "B", []float64{100, 400, 200, 300, 250})

	p := NewPipeline(store)
	stream, err := p.Stream(context.Background(), []string{"A", "B"}, time.Time{})
	require.NoError(t, err)

	points := stream.Collect()
	require.Len(t, points, 5)
	for i, pt := range points {
		assert.GreaterOrEqual(t, pt.Average, 0.0, "point %d lower bound", i)
		assert.LessOrEqual(t, pt.Average, 1.0, "point %d upper bound", i)
	}
}

func TestStreamSingleSymbolHitsExactBounds(t *testing.T) {
	store := series.NewMemoryStore()
	seedSeries(t, store, "A", []float64{3, 9, 1, 7})

	p := NewPipeline(store)
	stream, err := p.Stream(context.Background(), []string{"A"}, time.Time{})
	require.NoError(t, err)

	points := stream.Collect()
	require.Len(t, points, 4)
	assert.InDelta(t, 1.0, points[1].Average, 1e-12, "series max normalizes to exactly 1")
	assert.InDelta(t, 0.0, points[2].Average, 1e-12, "series min normalizes to exactly 0")
}

func TestStreamAveragesAndTimes(t *testing.T) {
	store := series.NewMemoryStore()
	// A normalizes to 0, 1; B normalizes to 1, 0, 1.
	seedSeries(t, store, "A", []float64{0, 10})
	timesB := seedSeries(t, store, "B", []float64{5, 0, 5})

	p := NewPipeline(store)
	stream, err := p.Stream(context.Background(), []string{"A", "B"}, time.Time{})
	require.NoError(t, err)

	pt, ok := stream.Next()
	require.True(t, ok)
	assert.InDelta(t, 0.5, pt.Average, 1e-12, "mean of 0 and 1")
	assert.Equal(t, timesB[0], pt.Time, "time comes from the last symbol pulled in the round")

	pt, ok = stream.Next()
	require.True(t, ok)
	assert.InDelta(t, 0.5, pt.Average, 1e-12, "mean of 1 and 0")

	_, ok = stream.Next()
	assert.False(t, ok, "stream ends when the shortest series is exhausted")
}

func TestStreamDegenerateRange(t *testing.T) {
	store := series.NewMemoryStore()
	seedSeries(t, store, "FLAT", []float64{4, 4, 4})

	p := NewPipeline(store)
	_, err := p.Stream(context.Background(), []string{"FLAT"}, time.Time{})
	assert.ErrorIs(t, err, ErrDegenerateRange, "flat series cannot be normalized")
}

func TestStreamEmptySeriesYieldsNothing(t *testing.T) {
	store := series.NewMemoryStore()
	seedSeries(t, store, "A", ramp(3, 10))

	p := NewPipeline(store)
	stream, err := p.Stream(context.Background(), []string{"A", "MISSING"}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, stream.Collect(), "a symbol with no history bounds the output to zero points")
}

func TestStreamSinceBound(t *testing.T) {
	store := series.NewMemoryStore()
	times := seedSeries(t, store, "A", ramp(6, 10))

	p := NewPipeline(store)
	stream, err := p.Stream(context.Background(), []string{"A"}, times[3])
	require.NoError(t, err)
	points := stream.Collect()
	require.Len(t, points, 3, "since bound is inclusive")
	assert.Equal(t, times[3], points[0].Time)
}

func TestStreamNoSymbols(t *testing.T) {
	p := NewPipeline(series.NewMemoryStore())
	_, err := p.Stream(context.Background(), nil, time.Time{})
	assert.Error(t, err, "an empty symbol set is a caller bug")
}
