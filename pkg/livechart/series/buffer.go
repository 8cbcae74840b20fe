// Package series holds the ordered samples of one streaming session and keeps
// their extent current as samples arrive.
package series

import (
	"time"

	"github.com/chosenoffset/livechart/pkg/livechart/sample"
)

// Extent is the bounding box of a set of samples.
type Extent struct {
	MinX time.Time
	MaxX time.Time
	MinY float64
	MaxY float64
}

func (e *Extent) include(s sample.Sample) {
	if s.Timestamp.Before(e.MinX) {
		e.MinX = s.Timestamp
	}
	if s.Timestamp.After(e.MaxX) {
		e.MaxX = s.Timestamp
	}
	if s.Value < e.MinY {
		e.MinY = s.Value
	}
	if s.Value > e.MaxY {
		e.MaxY = s.Value
	}
}

func (e Extent) touches(s sample.Sample) bool {
	return s.Timestamp.Equal(e.MinX) || s.Timestamp.Equal(e.MaxX) || s.Value == e.MinY || s.Value == e.MaxY
}

func extentOf(s sample.Sample) Extent {
	return Extent{MinX: s.Timestamp, MaxX: s.Timestamp, MinY: s.Value, MaxY: s.Value}
}

// Buffer is an append-only sequence of samples in arrival order.
//
// Timestamps are expected to be non-decreasing but this is not enforced; the
// buffer never reorders. A Buffer is not safe for concurrent use: it belongs
// to the single event loop of the view controller that created it.
type Buffer struct {
	// samples is used as a ring when limit > 0.
	samples []sample.Sample
	head    int
	count   int
	limit   int

	extent Extent
}

// New returns an unbounded buffer.
func New() *Buffer {
	return &Buffer{samples: make([]sample.Sample, 0, 64)}
}

// NewWindow returns a buffer that keeps at most limit samples, evicting the
// oldest one when a new sample arrives at capacity. A limit <= 0 means
// unbounded.
func NewWindow(limit int) *Buffer {
	if limit <= 0 {
		return New()
	}
	return &Buffer{samples: make([]sample.Sample, limit), limit: limit}
}

// Append adds s after the most recently appended sample.
func (b *Buffer) Append(s sample.Sample) {
	if b.limit == 0 {
		b.samples = append(b.samples, s)
		b.grow(s)
		return
	}

	if b.count < b.limit {
		b.samples[(b.head+b.count)%b.limit] = s
		b.count++
		b.grow(s)
		return
	}

	evicted := b.samples[b.head]
	b.samples[b.head] = s
	b.head = (b.head + 1) % b.limit

	if b.extent.touches(evicted) {
		b.rescan()
		return
	}
	b.extent.include(s)
}

func (b *Buffer) grow(s sample.Sample) {
	if b.Len() == 1 {
		b.extent = extentOf(s)
		return
	}
	b.extent.include(s)
}

func (b *Buffer) rescan() {
	b.extent = extentOf(b.at(0))
	for i := 1; i < b.Len(); i++ {
		b.extent.include(b.at(i))
	}
}

func (b *Buffer) at(i int) sample.Sample {
	if b.limit == 0 {
		return b.samples[i]
	}
	return b.samples[(b.head+i)%b.limit]
}

// Len returns the number of samples currently held.
func (b *Buffer) Len() int {
	if b.limit == 0 {
		return len(b.samples)
	}
	return b.count
}

// IsEmpty reports whether no sample has been appended (or all were evicted).
func (b *Buffer) IsEmpty() bool {
	return b.Len() == 0
}

// Limit returns the window size, or 0 for an unbounded buffer.
func (b *Buffer) Limit() int {
	return b.limit
}

// Extent returns the componentwise min/max over the held samples.
// ok is false for an empty buffer.
func (b *Buffer) Extent() (ext Extent, ok bool) {
	if b.IsEmpty() {
		return Extent{}, false
	}
	return b.extent, true
}

// Last returns the most recently appended sample.
func (b *Buffer) Last() (sample.Sample, bool) {
	n := b.Len()
	if n == 0 {
		return sample.Sample{}, false
	}
	return b.at(n - 1), true
}

// Samples returns a copy of the held samples in insertion order.
func (b *Buffer) Samples() []sample.Sample {
	out := make([]sample.Sample, b.Len())
	for i := range out {
		out[i] = b.at(i)
	}
	return out
}

// Each calls fn for every sample in insertion order without copying.
func (b *Buffer) Each(fn func(i int, s sample.Sample)) {
	for i := 0; i < b.Len(); i++ {
		fn(i, b.at(i))
	}
}
