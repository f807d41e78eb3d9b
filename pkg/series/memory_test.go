package series

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func bucket(t *testing.T, day, hour int) time.Time {
	t.Helper()
	return time.Date(2018, 1, day, hour, 0, 0, 0, time.UTC)
}

func testBar(t *testing.T, symbol string, end time.Time, close float64) Bar {
	t.Helper()
	return Bar{
		Symbol:      symbol,
		PeriodStart: end.Add(-6 * time.Hour),
		PeriodEnd:   end,
		TimeOpen:    end.Add(-6 * time.Hour),
		TimeClose:   end.Add(-time.Minute),
		Open:        close - 1,
		High:        close + 2,
		Low:         close - 2,
		Close:       close,
		Volume:      10,
		TradeCount:  3,
	}
}

func TestMemoryStoreLatestEmpty(t *testing.T) {
	store := NewMemoryStore()
	last, err := store.Latest(context.Background(), "BITSTAMP_SPOT_BTC_USD")
	assert.NoError(t, err, "Latest on empty store should not error")
	assert.Nil(t, last, "Latest on empty store should be nil")
}

func TestMemoryStoreAppendAndQuery(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	const sym = "BITSTAMP_SPOT_BTC_USD"

	bars := []Bar{
		testBar(t, sym, bucket(t, 9, 6), 100),
		testBar(t, sym, bucket(t, 9, 12), 101),
		testBar(t, sym, bucket(t, 9, 18), 99),
	}
	assert.NoError(t, store.Append(ctx, sym, bars), "append should succeed")

	last, err := store.Latest(ctx, sym)
	assert.NoError(t, err, "Latest should not error")
	assert.Equal(t, bucket(t, 9, 18), last.PeriodEnd, "Latest should return the newest bar")

	all, err := store.Query(ctx, sym, time.Time{})
	assert.NoError(t, err, "Query should not error")
	assert.Len(t, all, 3, "full query should return all bars")

	since, err := store.Query(ctx, sym, bucket(t, 9, 12))
	assert.NoError(t, err, "bounded query should not error")
	assert.Len(t, since, 2, "bounded query is inclusive of since")
	assert.Equal(t, bucket(t, 9, 12), since[0].PeriodEnd, "bounded query starts at since")
}

func TestMemoryStoreRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	const sym = "BITSTAMP_SPOT_ETH_USD"

	first := testBar(t, sym, bucket(t, 9, 6), 50)
	assert.NoError(t, store.Append(ctx, sym, []Bar{first}), "first append should succeed")

	// A batch with one fresh and one duplicate bar must be rejected atomically.
	batch := []Bar{
		testBar(t, sym, bucket(t, 9, 12), 51),
		testBar(t, sym, bucket(t, 9, 6), 50),
	}
	err := store.Append(ctx, sym, batch)
	assert.ErrorIs(t, err, ErrDuplicateBar, "duplicate period-end should be reported")

	all, _ := store.Query(ctx, sym, time.Time{})
	assert.Len(t, all, 1, "failed batch must leave the series unchanged")
}

func TestMemoryStoreRejectsOffGridBars(t *testing.T) {
	store := NewMemoryStore()
	bad := testBar(t, "X", bucket(t, 9, 6), 10)
	bad.PeriodEnd = bad.PeriodEnd.Add(time.Minute)
	err := store.Append(context.Background(), "X", []Bar{bad})
	assert.Error(t, err, "off-grid bar must be rejected")
}

func TestMemoryStoreSymbolIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	assert.NoError(t, store.Append(ctx, "A", []Bar{testBar(t, "A", bucket(t, 9, 6), 10)}), "append A")
	// Same period-end on a different symbol is not a duplicate.
	assert.NoError(t, store.Append(ctx, "B", []Bar{testBar(t, "B", bucket(t, 9, 6), 20)}), "append B")
}
