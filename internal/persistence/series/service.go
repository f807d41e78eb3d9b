package seriespersist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/zeromicro/go-zero/core/logx"
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachekeys "coincharts/internal/cache"
	"coincharts/pkg/series"
)

const pgUniqueViolation = "23505"

var _ series.Store = (*Service)(nil)

// Service implements series.Store on Postgres with an optional Redis mirror
// of the newest bar per symbol.
type Service struct {
	sqlConn sqlx.SqlConn
	cache   gocache.Cache
	ttl     cachekeys.TTLSet
}

// Config enumerates dependencies required to persist price history.
type Config struct {
	SQLConn sqlx.SqlConn
	Cache   gocache.Cache
	TTL     cachekeys.TTLSet
}

// NewService wires a price history store. Returns nil when dependencies missing.
func NewService(cfg Config) *Service {
	if cfg.SQLConn == nil {
		return nil
	}
	return &Service{
		sqlConn: cfg.SQLConn,
		cache:   cfg.Cache,
		ttl:     cfg.TTL,
	}
}

type barRow struct {
	Symbol      string    `db:"symbol"`
	PeriodStart time.Time `db:"period_start"`
	PeriodEnd   time.Time `db:"period_end"`
	TimeOpen    time.Time `db:"time_open"`
	TimeClose   time.Time `db:"time_close"`
	Open        float64   `db:"open"`
	High        float64   `db:"high"`
	Low         float64   `db:"low"`
	Close       float64   `db:"close"`
	Volume      float64   `db:"volume"`
	TradeCount  int64     `db:"trade_count"`
}

func (r barRow) toBar() series.Bar {
	return series.Bar{
		Symbol:      r.Symbol,
		PeriodStart: r.PeriodStart.UTC(),
		PeriodEnd:   r.PeriodEnd.UTC(),
		TimeOpen:    r.TimeOpen.UTC(),
		TimeClose:   r.TimeClose.UTC(),
		Open:        r.Open,
		High:        r.High,
		Low:         r.Low,
		Close:       r.Close,
		Volume:      r.Volume,
		TradeCount:  r.TradeCount,
	}
}

// Latest returns the newest stored bar for symbol, or nil when the series is
// empty. The Redis mirror is consulted first; misses fall through to Postgres.
func (s *Service) Latest(ctx context.Context, symbol string) (*series.Bar, error) {
	if cached := s.cachedLatest(ctx, symbol); cached != nil {
		return cached, nil
	}
	const query = `
SELECT symbol, period_start, period_end, time_open, time_close,
       open, high, low, close, volume, trade_count
FROM public.series_bars
WHERE symbol = $1
ORDER BY period_end DESC
LIMIT 1`
	var row barRow
	if err := s.sqlConn.QueryRowCtx(ctx, &row, query, symbol); err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, sqlx.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query latest bar for %s: %w", symbol, err)
	}
	bar := row.toBar()
	s.cacheLatest(ctx, symbol, &bar)
	return &bar, nil
}

// Append inserts bars in one transaction. A unique violation on
// (symbol, period_end) rolls the whole batch back and surfaces as
// series.ErrDuplicateBar.
func (s *Service) Append(ctx context.Context, symbol string, bars []series.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	for i := range bars {
		if err := bars[i].Validate(); err != nil {
			return fmt.Errorf("bar %d for %s: %w", i, symbol, err)
		}
	}
	const stmt = `
INSERT INTO public.series_bars (
    symbol, period_start, period_end, time_open, time_close,
    open, high, low, close, volume, trade_count, created_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW()
)`
	err := s.sqlConn.TransactCtx(ctx, func(ctx context.Context, session sqlx.Session) error {
		for _, bar := range bars {
			if _, err := session.ExecCtx(ctx, stmt,
				symbol,
				bar.PeriodStart.UTC(),
				bar.PeriodEnd.UTC(),
				bar.TimeOpen.UTC(),
				bar.TimeClose.UTC(),
				bar.Open,
				bar.High,
				bar.Low,
				bar.Close,
				bar.Volume,
				bar.TradeCount,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("append %d bars for %s: %w", len(bars), symbol, series.ErrDuplicateBar)
		}
		return fmt.Errorf("append %d bars for %s: %w", len(bars), symbol, err)
	}
	newest := bars[len(bars)-1]
	for _, bar := range bars {
		if bar.PeriodEnd.After(newest.PeriodEnd) {
			newest = bar
		}
	}
	s.cacheLatest(ctx, symbol, &newest)
	return nil
}

// Query returns bars for symbol with period_end at or after since, ascending.
// A zero since returns the full series.
func (s *Service) Query(ctx context.Context, symbol string, since time.Time) ([]series.Bar, error) {
	const base = `
SELECT symbol, period_start, period_end, time_open, time_close,
       open, high, low, close, volume, trade_count
FROM public.series_bars
WHERE symbol = $1`
	const order = ` ORDER BY period_end ASC`

	var rows []barRow
	var err error
	if since.IsZero() {
		err = s.sqlConn.QueryRowsCtx(ctx, &rows, base+order, symbol)
	} else {
		err = s.sqlConn.QueryRowsCtx(ctx, &rows, base+` AND period_end >= $2`+order, symbol, since.UTC())
	}
	if err != nil {
		if errors.Is(err, sqlx.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query bars for %s: %w", symbol, err)
	}
	bars := make([]series.Bar, 0, len(rows))
	for _, row := range rows {
		bars = append(bars, row.toBar())
	}
	return bars, nil
}

func (s *Service) cacheLatest(ctx context.Context, symbol string, bar *series.Bar) {
	if s.cache == nil || bar == nil {
		return
	}
	ttl := cachekeys.LatestBarTTL(s.ttl)
	if ttl <= 0 {
		return
	}
	key := cachekeys.LatestBarKey(symbol)
	if err := s.cache.SetWithExpireCtx(ctx, key, bar, ttl); err != nil {
		logx.WithContext(ctx).Errorf("seriespersist: cache latest bar key=%s err=%v", key, err)
	}
}

func (s *Service) cachedLatest(ctx context.Context, symbol string) *series.Bar {
	if s.cache == nil {
		return nil
	}
	key := cachekeys.LatestBarKey(symbol)
	var bar series.Bar
	if err := s.cache.GetCtx(ctx, key, &bar); err != nil {
		if !s.cache.IsNotFound(err) {
			logx.WithContext(ctx).Errorf("seriespersist: read latest bar key=%s err=%v", key, err)
		}
		return nil
	}
	if bar.PeriodEnd.IsZero() {
		return nil
	}
	return &bar
}
