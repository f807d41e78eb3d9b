// Package timegrid defines the fixed 6-hour UTC bucketing scheme shared by the
// ingestion and alignment layers. Every timestamp that enters or leaves durable
// storage passes through Validate, so a provider-side grid change is caught at
// one choke point instead of drifting silently into the data.
package timegrid

import (
	"errors"
	"fmt"
	"time"
)

// BucketLength is the fixed bar period served by the quote provider.
const BucketLength = 6 * time.Hour

const bucketHours = 6

// ErrInvalidBucketTime reports a timestamp that is not on the 6-hour UTC grid.
var ErrInvalidBucketTime = errors.New("timegrid: invalid bucket time")

// Validate returns nil when t is a valid bucket time: UTC, hour in
// {0, 6, 12, 18}, and minute/second/nanosecond all zero. Violations are never
// corrected here; callers must reject the offending value.
func Validate(t time.Time) error {
	if t.Location() != time.UTC {
		return fmt.Errorf("%w: zone %q, want UTC", ErrInvalidBucketTime, t.Location())
	}
	if t.Hour()%bucketHours != 0 {
		return fmt.Errorf("%w: hour %d not a multiple of %d", ErrInvalidBucketTime, t.Hour(), bucketHours)
	}
	if t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0 {
		return fmt.Errorf("%w: sub-hour fields not zero in %s", ErrInvalidBucketTime, t.Format(time.RFC3339Nano))
	}
	return nil
}

// NextBucket returns the smallest bucket time strictly greater than t. This is
// a strict round-up: an on-grid input yields the following bucket, not itself.
func NextBucket(t time.Time) time.Time {
	t = t.UTC()
	t = t.Add(time.Duration(bucketHours-t.Hour()%bucketHours) * time.Hour)
	return t.Truncate(time.Hour)
}
