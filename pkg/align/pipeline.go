// Package align combines independently-started per-symbol bar series into a
// single time-ordered stream of cross-series normalized averages. Each series
// is min-max normalized on its own close range before averaging, so symbols
// with very different absolute prices become comparable.
package align

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coincharts/pkg/series"
)

// ErrDegenerateRange reports a series whose close price never moves: a flat
// history has no meaningful min-max normalization. Fatal to the alignment
// request, not to the stores behind it.
var ErrDegenerateRange = errors.New("align: degenerate price range")

// Point is one synchronized output sample: the bucket time and the arithmetic
// mean of the normalized closes across all requested symbols.
type Point struct {
	Time    time.Time
	Average float64
}

// Pipeline reads bar series from a store and produces alignment streams. It
// only ever reads; ingestion may run concurrently against the same store.
type Pipeline struct {
	store series.Store
}

// NewPipeline constructs an alignment pipeline over the given store.
func NewPipeline(store series.Store) *Pipeline {
	return &Pipeline{store: store}
}

// Stream loads the requested symbols (bounded below by since when non-zero)
// and returns the lazy combined stream. The per-symbol min and max are
// computed once here; the normalization itself happens per pull.
func (p *Pipeline) Stream(ctx context.Context, symbols []string, since time.Time) (*Stream, error) {
	if len(symbols) == 0 {
		return nil, errors.New("align: no symbols requested")
	}
	cursors := make([]*cursor, 0, len(symbols))
	for _, symbol := range symbols {
		bars, err := p.store.Query(ctx, symbol, since)
		if err != nil {
			return nil, fmt.Errorf("align: query %s: %w", symbol, err)
		}
		c, err := newCursor(symbol, bars)
		if err != nil {
			return nil, err
		}
		cursors = append(cursors, c)
	}
	return &Stream{cursors: cursors}, nil
}

// Stream is a pull-based iterator over the combined series. Exhaustion is
// shortest-wins: the stream ends as soon as any one symbol runs out, bounding
// the output to the overlap of all symbols' available history.
type Stream struct {
	cursors []*cursor
}

// Next pulls one element from every symbol and emits their average. The
// emitted time is taken from whichever element was pulled last in the round;
// bars are expected, though not guaranteed, to share bucket times across
// symbols.
func (s *Stream) Next() (Point, bool) {
	var pt Point
	sum := 0.0
	for _, c := range s.cursors {
		ts, v, ok := c.next()
		if !ok {
			return Point{}, false
		}
		pt.Time = ts
		sum += v
	}
	pt.Average = sum / float64(len(s.cursors))
	return pt, true
}

// Collect drains the stream into a slice.
func (s *Stream) Collect() []Point {
	var out []Point
	for {
		pt, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, pt)
	}
}

// cursor lazily yields normalized closes for one symbol. Min and max are
// memoized for the cursor's lifetime; recomputing them per point would make
// the stream quadratic.
type cursor struct {
	symbol   string
	bars     []series.Bar
	min, max float64
	idx      int
}

func newCursor(symbol string, bars []series.Bar) (*cursor, error) {
	c := &cursor{symbol: symbol, bars: bars}
	if len(bars) == 0 {
		return c, nil
	}
	c.min, c.max = bars[0].Close, bars[0].Close
	for _, b := range bars[1:] {
		if b.Close < c.min {
			c.min = b.Close
		}
		if b.Close > c.max {
			c.max = b.Close
		}
	}
	if c.max == c.min {
		return nil, fmt.Errorf("%w: %s flat at %g over %d bars", ErrDegenerateRange, symbol, c.min, len(bars))
	}
	return c, nil
}

func (c *cursor) next() (time.Time, float64, bool) {
	if c.idx >= len(c.bars) {
		return time.Time{}, 0, false
	}
	b := c.bars[c.idx]
	c.idx++
	return b.PeriodEnd, (b.Close - c.min) / (c.max - c.min), true
}
