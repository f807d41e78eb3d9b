package ingest

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

// DefaultPassInterval is the wall-clock sleep between full passes over the
// configured symbols.
const DefaultPassInterval = time.Hour

// Scheduler drives the Engine across a fixed set of symbols, sequentially,
// forever. One bad symbol never blocks the others: per-symbol failures are
// logged and the pass continues.
type Scheduler struct {
	engine   *Engine
	symbols  []string
	interval time.Duration
	observer func(CycleResult)
}

// CycleResult reports the outcome of one engine cycle for one symbol.
type CycleResult struct {
	Symbol   string
	Inserted int
	Err      error
	At       time.Time
}

// SchedulerOption customises scheduler behaviour.
type SchedulerOption func(*Scheduler)

// WithCycleObserver registers a callback invoked after every symbol cycle,
// successful or not. Observers must not block.
func WithCycleObserver(fn func(CycleResult)) SchedulerOption {
	return func(s *Scheduler) {
		s.observer = fn
	}
}

// NewScheduler constructs a scheduler over the given engine and symbol set.
// A non-positive interval falls back to DefaultPassInterval.
func NewScheduler(engine *Engine, symbols []string, interval time.Duration, opts ...SchedulerOption) *Scheduler {
	if interval <= 0 {
		interval = DefaultPassInterval
	}
	s := &Scheduler{engine: engine, symbols: symbols, interval: interval}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes passes until the context is cancelled. The first pass starts
// immediately; cancellation is honored between symbols and between passes.
func (s *Scheduler) Run(ctx context.Context) {
	if s.engine == nil || len(s.symbols) == 0 {
		return
	}
	s.RunPass(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logx.Info("scheduler: stopping")
			return
		case <-ticker.C:
			s.RunPass(ctx)
		}
	}
}

// RunPass runs one engine cycle for every configured symbol in order.
func (s *Scheduler) RunPass(ctx context.Context) {
	for _, symbol := range s.symbols {
		if ctx.Err() != nil {
			return
		}
		inserted, err := s.engine.RunCycle(ctx, symbol)
		if err != nil && ctx.Err() != nil {
			return
		}
		if s.observer != nil {
			s.observer(CycleResult{Symbol: symbol, Inserted: inserted, Err: err, At: time.Now().UTC()})
		}
		if err != nil {
			logx.WithContext(ctx).Errorf("scheduler: cycle symbol=%s err=%v", symbol, err)
		}
	}
}
