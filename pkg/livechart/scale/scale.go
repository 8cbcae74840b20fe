// Package scale derives the time→x and value→y pixel mappings of a chart from
// the extent of its series and the size of its drawing surface.
package scale

import (
	"errors"
	"fmt"

	"github.com/chosenoffset/livechart/pkg/livechart/series"
)

// ErrDegenerateViewport is returned when the plot area has no positive size,
// typically because the container has not been laid out yet.
var ErrDegenerateViewport = errors.New("degenerate viewport")

// DefaultYTicks is the tick count used to nice the value domain.
const DefaultYTicks = 10

// XTickSpacing is the approximate number of pixels between x-axis ticks.
const XTickSpacing = 80

// Margins are the gaps between the drawing surface edge and the plot area.
type Margins struct {
	Top    float64
	Right  float64
	Bottom float64
	Left   float64
}

// DefaultMargins leave room for the bottom axis labels and the right axis.
var DefaultMargins = Margins{Top: 20, Right: 30, Bottom: 30, Left: 40}

// Viewport is the drawing surface of one render pass.
type Viewport struct {
	Width   float64
	Height  float64
	Margins Margins
}

// NewViewport returns a viewport of the given size with DefaultMargins.
func NewViewport(width, height float64) Viewport {
	return Viewport{Width: width, Height: height, Margins: DefaultMargins}
}

// InnerWidth is the plot area width.
func (v Viewport) InnerWidth() float64 {
	return v.Width - v.Margins.Left - v.Margins.Right
}

// InnerHeight is the plot area height.
func (v Viewport) InnerHeight() float64 {
	return v.Height - v.Margins.Top - v.Margins.Bottom
}

// Validate returns ErrDegenerateViewport if the surface or plot area is empty.
func (v Viewport) Validate() error {
	if v.Width <= 0 || v.Height <= 0 || v.InnerWidth() <= 0 || v.InnerHeight() <= 0 {
		return fmt.Errorf("%w: %gx%g (inner %gx%g)", ErrDegenerateViewport,
			v.Width, v.Height, v.InnerWidth(), v.InnerHeight())
	}
	return nil
}

// XTicks returns the tick count for the x axis, about one per XTickSpacing pixels.
func (v Viewport) XTicks() int {
	n := int(v.InnerWidth() / XTickSpacing)
	if n < 1 {
		return 1
	}
	return n
}

// Pair holds both mappings of a render pass.
type Pair struct {
	X Time
	Y Linear
}

// Compute derives the scales for ext drawn into vp.
//
// The value domain always starts at zero and is niced upward; a non-positive
// maximum yields [0, 1] so the scale never collapses.
func Compute(ext series.Extent, vp Viewport) (Pair, error) {
	if err := vp.Validate(); err != nil {
		return Pair{}, err
	}

	w, h := vp.InnerWidth(), vp.InnerHeight()

	hi := ext.MaxY
	if hi <= 0 {
		hi = 1
	}

	y := NewLinear(0, hi, h, 0).Nice(DefaultYTicks)
	if lo, top := y.Domain(); !finite(lo) || !finite(top) || top <= lo {
		y = NewLinear(0, hi, h, 0)
	}

	return Pair{
		X: NewTime(ext.MinX, ext.MaxX, 0, w),
		Y: y,
	}, nil
}
