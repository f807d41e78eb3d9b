package coinapi

import "time"

// timeFormat is the exact timestamp layout the CoinAPI REST interface emits
// and expects in query strings (seven fractional digits, literal Z).
const timeFormat = "2006-01-02T15:04:05.0000000Z"

// periodID is the only bar period this system ingests.
const periodID = "6HRS"

// HistoryRecord is one OHLCV row as returned by the /ohlcv/{symbol}/history
// endpoint. Price and volume fields are pointers so a partial record can be
// detected and rejected instead of silently stored as zero.
type HistoryRecord struct {
	TimePeriodStart string   `json:"time_period_start"`
	TimePeriodEnd   string   `json:"time_period_end"`
	TimeOpen        string   `json:"time_open"`
	TimeClose       string   `json:"time_close"`
	PriceOpen       *float64 `json:"price_open"`
	PriceHigh       *float64 `json:"price_high"`
	PriceLow        *float64 `json:"price_low"`
	PriceClose      *float64 `json:"price_close"`
	VolumeTraded    *float64 `json:"volume_traded"`
	TradesCount     *int64   `json:"trades_count"`
}

// Complete reports whether every field the store requires is present.
func (r *HistoryRecord) Complete() bool {
	return r.TimePeriodStart != "" && r.TimePeriodEnd != "" &&
		r.TimeOpen != "" && r.TimeClose != "" &&
		r.PriceOpen != nil && r.PriceHigh != nil && r.PriceLow != nil &&
		r.PriceClose != nil && r.VolumeTraded != nil && r.TradesCount != nil
}

// RateLimit carries the quota hints CoinAPI reports on every response.
type RateLimit struct {
	Remaining int       // -1 when the header was absent
	Reset     time.Time // zero when the header was absent
}
