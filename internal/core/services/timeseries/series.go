package timeseries

import (
	"fmt"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
)

// Series is a fixed-capacity ring buffer of points for one metric stream.
// It is not safe for concurrent use; Store serialises access.
type Series struct {
	buf  []domain.Point
	head int // index of the oldest point
	size int
}

// NewSeries creates an empty series holding at most capacity points.
func NewSeries(capacity int) *Series {
	if capacity < 1 {
		capacity = 1
	}
	return &Series{buf: make([]domain.Point, capacity)}
}

// Cap returns the maximum number of points held.
func (s *Series) Cap() int { return len(s.buf) }

// Len returns the number of points held.
func (s *Series) Len() int { return s.size }

// Append adds p, evicting the oldest point when full.
// Points older than the newest one are rejected with domain.ErrOutOfOrder.
func (s *Series) Append(p domain.Point) error {
	if s.size > 0 {
		last := s.buf[(s.head+s.size-1)%len(s.buf)]
		if p.Timestamp.Before(last.Timestamp) {
			return fmt.Errorf("%w: %s before %s", domain.ErrOutOfOrder,
				p.Timestamp.Format("15:04:05.000000000"), last.Timestamp.Format("15:04:05.000000000"))
		}
	}

	if s.size < len(s.buf) {
		s.buf[(s.head+s.size)%len(s.buf)] = p
		s.size++
		return nil
	}

	// Full: overwrite the oldest slot and advance head.
	s.buf[s.head] = p
	s.head = (s.head + 1) % len(s.buf)
	return nil
}

// Points returns a copy of the held points, oldest first.
func (s *Series) Points() []domain.Point {
	out := make([]domain.Point, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.buf[(s.head+i)%len(s.buf)]
	}
	return out
}

// Last returns the newest point.
func (s *Series) Last() (domain.Point, bool) {
	if s.size == 0 {
		return domain.Point{}, false
	}
	return s.buf[(s.head+s.size-1)%len(s.buf)], true
}
