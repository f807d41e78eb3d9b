package coinapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"coincharts/pkg/quote"
	"coincharts/pkg/series"
	"coincharts/pkg/timegrid"
)

// Source adapts the CoinAPI client to the quote.Source contract. Every record
// leaving Fetch has passed time-grid validation, so a provider-side grid or
// format change is caught here rather than in storage.
type Source struct {
	client *Client
	name   string
}

// SourceOption customises the CoinAPI source.
type SourceOption func(*Source)

// WithClient injects a custom CoinAPI client.
func WithClient(client *Client) SourceOption {
	return func(s *Source) {
		if client != nil {
			s.client = client
		}
	}
}

// NewSource constructs a CoinAPI-backed quote source.
func NewSource(opts ...SourceOption) *Source {
	src := &Source{
		client: NewClient(),
		name:   "coinapi",
	}
	for _, opt := range opts {
		opt(src)
	}
	return src
}

func init() {
	quote.RegisterSource("coinapi", func(name string, cfg *quote.SourceConfig) (quote.Source, error) {
		clientOptions := []Option{}
		if cfg.BaseURL != "" {
			clientOptions = append(clientOptions, WithBaseURL(cfg.BaseURL))
		}
		if cfg.APIKey != "" {
			clientOptions = append(clientOptions, WithAPIKey(cfg.APIKey))
		}
		if cfg.HTTPTimeout > 0 {
			clientOptions = append(clientOptions, WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
		}
		if cfg.MaxRetries > 0 {
			clientOptions = append(clientOptions, WithMaxRetries(cfg.MaxRetries))
		}
		src := NewSource(WithClient(NewClient(clientOptions...)))
		src.name = name
		return src, nil
	})
}

// Fetch implements quote.Source.
func (s *Source) Fetch(ctx context.Context, symbol string, start time.Time, limit int) ([]series.Bar, error) {
	if err := timegrid.Validate(start); err != nil {
		return nil, fmt.Errorf("fetch %s: start time: %w", symbol, err)
	}
	if limit <= 0 || limit > quote.MaxFetchLimit {
		limit = quote.MaxFetchLimit
	}

	records, rl, err := s.client.OHLCVHistory(ctx, symbol, start, limit)
	if err != nil {
		unavailable := &quote.UnavailableError{
			Provider:       s.name,
			RemainingQuota: rl.Remaining,
			QuotaReset:     rl.Reset,
			Err:            err,
		}
		var se *statusError
		if errors.As(err, &se) {
			unavailable.StatusCode = se.status
		}
		return nil, unavailable
	}
	if rl.Remaining >= 0 {
		logx.WithContext(ctx).Infof("coinapi: %d API requests remaining this period", rl.Remaining)
	}
	if len(records) == 0 {
		return nil, nil
	}

	bars := make([]series.Bar, 0, len(records))
	for i := range records {
		bar, err := recordToBar(symbol, &records[i])
		if err != nil {
			return nil, fmt.Errorf("fetch %s: record %d: %w", symbol, i, err)
		}
		bars = append(bars, *bar)
	}
	return bars, nil
}

func recordToBar(symbol string, rec *HistoryRecord) (*series.Bar, error) {
	if !rec.Complete() {
		return nil, fmt.Errorf("coinapi: incomplete record at %q", rec.TimePeriodEnd)
	}
	periodStart, err := parseTime(rec.TimePeriodStart)
	if err != nil {
		return nil, err
	}
	periodEnd, err := parseTime(rec.TimePeriodEnd)
	if err != nil {
		return nil, err
	}
	if err := timegrid.Validate(periodEnd); err != nil {
		return nil, err
	}
	timeOpen, err := parseTime(rec.TimeOpen)
	if err != nil {
		return nil, err
	}
	timeClose, err := parseTime(rec.TimeClose)
	if err != nil {
		return nil, err
	}
	return &series.Bar{
		Symbol:      symbol,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		TimeOpen:    timeOpen,
		TimeClose:   timeClose,
		Open:        *rec.PriceOpen,
		High:        *rec.PriceHigh,
		Low:         *rec.PriceLow,
		Close:       *rec.PriceClose,
		Volume:      *rec.VolumeTraded,
		TradeCount:  *rec.TradesCount,
	}, nil
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("coinapi: bad timestamp %q: %w", v, err)
	}
	return t.UTC(), nil
}

var _ quote.Source = (*Source)(nil)
