// Package series defines the per-symbol OHLCV bar series and the durable
// store contract the ingestion and alignment layers share.
package series

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coincharts/pkg/timegrid"
)

// ErrDuplicateBar reports an append of a bar whose period-end already exists
// for the symbol. This is never swallowed: it means either a resume-point
// miscalculation or the provider re-sending already-ingested data.
var ErrDuplicateBar = errors.New("series: duplicate bar")

// Bar is one OHLCV record for one symbol at one 6-hour bucket. PeriodEnd is
// the canonical time used for ordering and resumption.
type Bar struct {
	Symbol      string
	PeriodStart time.Time
	PeriodEnd   time.Time
	TimeOpen    time.Time
	TimeClose   time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	TradeCount  int64
}

// Validate checks the invariants every stored bar must hold: an on-grid
// period-end and a period-start strictly before it.
func (b *Bar) Validate() error {
	if err := timegrid.Validate(b.PeriodEnd); err != nil {
		return fmt.Errorf("bar %s: %w", b.Symbol, err)
	}
	if !b.PeriodStart.Before(b.PeriodEnd) {
		return fmt.Errorf("bar %s: period start %s not before period end %s",
			b.Symbol, b.PeriodStart.Format(time.RFC3339), b.PeriodEnd.Format(time.RFC3339))
	}
	return nil
}

// Store is the durable per-symbol bar store. Implementations must keep bars
// in ascending period-end order per symbol and reject duplicate period-ends.
type Store interface {
	// Latest returns the bar with the greatest period-end for symbol, or nil
	// when no bars exist.
	Latest(ctx context.Context, symbol string) (*Bar, error)
	// Append inserts the given bars atomically: if any bar cannot be inserted
	// (including a duplicate period-end, reported as ErrDuplicateBar), none of
	// the batch is committed.
	Append(ctx context.Context, symbol string, bars []Bar) error
	// Query returns all bars for symbol with period-end >= since, ascending by
	// period-end. A zero since returns the full series.
	Query(ctx context.Context, symbol string, since time.Time) ([]Bar, error)
}
