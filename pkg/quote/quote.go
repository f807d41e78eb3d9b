// Package quote defines the remote quote-provider boundary: a Source yields
// grid-validated 6-hour OHLCV bars for one symbol starting at a given bucket.
package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coincharts/pkg/series"
)

// MaxFetchLimit caps a single fetch at roughly one year of 6-hour bars. This
// bounds worst-case backfill after a long outage to one request per cycle.
const MaxFetchLimit = 1500

// ErrSourceUnavailable reports a transport, auth, or rate-limit failure at
// the provider. Cycles abort for the affected symbol only; the next scheduled
// cycle retries via the same resume-point logic.
var ErrSourceUnavailable = errors.New("quote: source unavailable")

// Source fetches bars from a remote quote provider.
type Source interface {
	// Fetch returns up to limit bars for symbol beginning at start (inclusive,
	// bucket-aligned). An empty slice with a nil error means the provider has
	// no new data yet. Every returned bar has been validated against the time
	// grid before it reaches the caller.
	Fetch(ctx context.Context, symbol string, start time.Time, limit int) ([]series.Bar, error)
}

// UnavailableError wraps ErrSourceUnavailable with the provider's reported
// quota hints when the response carried them.
type UnavailableError struct {
	Provider       string
	StatusCode     int       // 0 when the request never completed
	RemainingQuota int       // -1 when unknown
	QuotaReset     time.Time // zero when unknown
	Err            error
}

func (e *UnavailableError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("quote: %s unavailable (status %d, %d requests remaining): %v",
			e.Provider, e.StatusCode, e.RemainingQuota, e.Err)
	}
	return fmt.Sprintf("quote: %s unavailable: %v", e.Provider, e.Err)
}

func (e *UnavailableError) Unwrap() error { return ErrSourceUnavailable }
