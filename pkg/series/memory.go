package series

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by unit tests and offline runs. It
// enforces the same invariants as the Postgres-backed store: grid-valid
// period-ends, duplicate rejection, and all-or-nothing appends.
type MemoryStore struct {
	mu   sync.RWMutex
	bars map[string][]Bar // ascending by PeriodEnd
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bars: make(map[string][]Bar)}
}

// Latest implements Store.
func (s *MemoryStore) Latest(ctx context.Context, symbol string) (*Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq := s.bars[symbol]
	if len(seq) == 0 {
		return nil, nil
	}
	last := seq[len(seq)-1]
	return &last, nil
}

// Append implements Store. The batch is validated in full before any bar is
// admitted, so a failure leaves the series untouched.
func (s *MemoryStore) Append(ctx context.Context, symbol string, bars []Bar) error {
	if len(bars) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[time.Time]struct{}, len(s.bars[symbol]))
	for _, b := range s.bars[symbol] {
		existing[b.PeriodEnd] = struct{}{}
	}
	seen := make(map[time.Time]struct{}, len(bars))
	for i := range bars {
		b := bars[i]
		if err := b.Validate(); err != nil {
			return err
		}
		if _, ok := existing[b.PeriodEnd]; ok {
			return fmt.Errorf("%w: %s at %s", ErrDuplicateBar, symbol, b.PeriodEnd.Format(time.RFC3339))
		}
		if _, ok := seen[b.PeriodEnd]; ok {
			return fmt.Errorf("%w: %s repeated at %s within batch", ErrDuplicateBar, symbol, b.PeriodEnd.Format(time.RFC3339))
		}
		seen[b.PeriodEnd] = struct{}{}
	}

	merged := append(s.bars[symbol], bars...)
	sort.Slice(merged, func(i, j int) bool { return merged[i].PeriodEnd.Before(merged[j].PeriodEnd) })
	s.bars[symbol] = merged
	return nil
}

// Query implements Store.
func (s *MemoryStore) Query(ctx context.Context, symbol string, since time.Time) ([]Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq := s.bars[symbol]
	out := make([]Bar, 0, len(seq))
	for _, b := range seq {
		if since.IsZero() || !b.PeriodEnd.Before(since) {
			out = append(out, b)
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
