// Package scene reconciles a retained set of chart elements against a growing
// series.
//
// Every element has a stable identity. A render pass looks each identity up,
// creates the element with its static attributes the first time it is needed,
// and then writes its dynamic attributes (geometry, position, text) from the
// current scales. Elements are never recreated, so repeated passes mutate the
// same objects in place.
package scene

import (
	"errors"
	"strconv"

	"github.com/chosenoffset/livechart/pkg/livechart/sample"
	"github.com/chosenoffset/livechart/pkg/livechart/scale"
	"github.com/chosenoffset/livechart/pkg/livechart/series"
)

// ErrEmptySeries is returned by Render when there is nothing to draw.
var ErrEmptySeries = errors.New("empty series")

// Style holds the colors of the chart.
type Style struct {
	Background string
	Line       string
	LineWidth  float64
	Baseline   string
	Axis       string
	Badge      string
	BadgeText  string
	GlowBlur   float64
}

// DefaultStyle is an orange line over black with a green last-value marker.
var DefaultStyle = Style{
	Background: "black",
	Line:       "orange",
	LineWidth:  1.5,
	Baseline:   "green",
	Axis:       "grey",
	Badge:      "green",
	BadgeText:  "white",
	GlowBlur:   3.5,
}

const (
	badgeHeight    = 18
	badgeCharWidth = 7
	badgePadding   = 10
)

// Pass describes the outcome of one successful render.
type Pass struct {
	Number   int
	Created  []ID
	Updated  []ID
	Samples  int
	Viewport scale.Viewport
	Scales   scale.Pair
}

// Changed reports whether the pass touched any element.
func (p Pass) Changed() bool {
	return len(p.Created) > 0 || len(p.Updated) > 0
}

// Scene is the retained chart of one controller. It is not safe for
// concurrent use.
type Scene struct {
	style    Style
	registry *Registry
	passes   int

	// last successful viewport, used for the root element
	viewport scale.Viewport
}

// New returns an empty scene using DefaultStyle.
func New() *Scene {
	return NewWithStyle(DefaultStyle)
}

// NewWithStyle returns an empty scene with the given colors.
func NewWithStyle(style Style) *Scene {
	return &Scene{style: style, registry: NewRegistry()}
}

// Element returns the retained element for id.
func (s *Scene) Element(id ID) (*Element, bool) {
	return s.registry.Lookup(id)
}

// Len returns the number of retained elements.
func (s *Scene) Len() int {
	return s.registry.Len()
}

// Passes returns the number of successful render passes.
func (s *Scene) Passes() int {
	return s.passes
}

// Viewport returns the viewport of the last successful pass.
func (s *Scene) Viewport() scale.Viewport {
	return s.viewport
}

// frame is the per-pass input shared by element updates.
type frame struct {
	vp     scale.Viewport
	w, h   float64
	scales scale.Pair
	points []point
	last   sample.Sample
	lastY  float64
}

// element describes how one identity is created and updated. static and
// children run once, at creation; update runs on every pass.
type element struct {
	id       ID
	tag      string
	static   func(Style) []Attr
	children func(Style) []Node
	update   func(*Element, *frame, Style)
}

// elements lists identities in paint order: definitions first, then the fill
// under the line, the axes, and the badge on top.
var elements = []element{
	{id: GlowFilter, tag: "filter", static: glowStatic, children: glowChildren},
	{id: FillGradient, tag: "linearGradient", static: gradientStatic, children: gradientChildren},
	{id: GradientFill, tag: "rect", static: fillStatic, update: updateFill},
	{id: Baseline, tag: "line", static: baselineStatic, update: updateBaseline},
	{id: LinePath, tag: "path", static: lineStatic, update: updateLine},
	{id: XAxis, tag: "g", static: xAxisStatic, update: updateXAxis},
	{id: YAxis, tag: "g", static: yAxisStatic, update: updateYAxis},
	{id: BadgeRect, tag: "rect", static: badgeRectStatic, update: updateBadgeRect},
	{id: BadgeText, tag: "text", static: badgeTextStatic, update: updateBadgeText},
}

// Render brings every element in line with buf drawn into vp.
//
// ErrEmptySeries and scale.ErrDegenerateViewport mean the pass was skipped
// and the scene was left untouched.
func (s *Scene) Render(buf *series.Buffer, vp scale.Viewport) (Pass, error) {
	ext, ok := buf.Extent()
	if !ok {
		return Pass{}, ErrEmptySeries
	}
	scales, err := scale.Compute(ext, vp)
	if err != nil {
		return Pass{}, err
	}
	last, _ := buf.Last()

	f := &frame{
		vp:     vp,
		w:      vp.InnerWidth(),
		h:      vp.InnerHeight(),
		scales: scales,
		points: make([]point, 0, buf.Len()),
		last:   last,
		lastY:  scales.Y.Map(last.Value),
	}
	buf.Each(func(_ int, smp sample.Sample) {
		f.points = append(f.points, point{x: scales.X.Map(smp.Timestamp), y: scales.Y.Map(smp.Value)})
	})

	s.passes++
	s.viewport = vp
	pass := Pass{Number: s.passes, Samples: buf.Len(), Viewport: vp, Scales: scales}

	for _, el := range elements {
		static := el.static
		e, created := s.registry.Ensure(el.id, el.tag, func() []Attr { return static(s.style) })
		if created && el.children != nil {
			e.children = el.children(s.style)
		}
		if el.update != nil {
			el.update(e, f, s.style)
		}
		changed := e.commit()
		switch {
		case created:
			pass.Created = append(pass.Created, el.id)
		case changed:
			pass.Updated = append(pass.Updated, el.id)
		}
	}

	return pass, nil
}

func glowStatic(Style) []Attr {
	return []Attr{
		{Name: "id", Value: "glow"},
		{Name: "x", Value: "-50%"},
		{Name: "y", Value: "-50%"},
		{Name: "width", Value: "200%"},
		{Name: "height", Value: "200%"},
	}
}

// glowChildren blurs the stroke and merges the blur under the source graphic.
func glowChildren(st Style) []Node {
	return []Node{
		{Tag: "feGaussianBlur", Attrs: []Attr{
			{Name: "stdDeviation", Value: num(st.GlowBlur)},
			{Name: "result", Value: "coloredBlur"},
		}},
		{Tag: "feMerge", Children: []Node{
			{Tag: "feMergeNode", Attrs: []Attr{{Name: "in", Value: "coloredBlur"}}},
			{Tag: "feMergeNode", Attrs: []Attr{{Name: "in", Value: "SourceGraphic"}}},
		}},
	}
}

func gradientStatic(Style) []Attr {
	return []Attr{
		{Name: "id", Value: "fill-gradient"},
		{Name: "x1", Value: "0"},
		{Name: "y1", Value: "0"},
		{Name: "x2", Value: "0"},
		{Name: "y2", Value: "1"},
	}
}

func gradientChildren(st Style) []Node {
	return []Node{
		{Tag: "stop", Attrs: []Attr{
			{Name: "offset", Value: "0%"},
			{Name: "stop-color", Value: st.Line},
			{Name: "stop-opacity", Value: "0.4"},
		}},
		{Tag: "stop", Attrs: []Attr{
			{Name: "offset", Value: "100%"},
			{Name: "stop-color", Value: st.Line},
			{Name: "stop-opacity", Value: "0"},
		}},
	}
}

func fillStatic(Style) []Attr {
	return []Attr{
		{Name: "class", Value: "gradient-fill"},
		{Name: "fill", Value: "url(#fill-gradient)"},
	}
}

// updateFill spans the plot from its top edge down to the last value.
func updateFill(e *Element, f *frame, _ Style) {
	e.set("x", "0")
	e.set("y", "0")
	e.set("width", num(f.w))
	e.set("height", num(f.lastY))
}

func baselineStatic(st Style) []Attr {
	return []Attr{
		{Name: "class", Value: "baseline"},
		{Name: "stroke", Value: st.Baseline},
		{Name: "stroke-width", Value: "1"},
	}
}

func updateBaseline(e *Element, f *frame, _ Style) {
	y := num(f.lastY)
	e.set("x1", "0")
	e.set("x2", num(f.w))
	e.set("y1", y)
	e.set("y2", y)
}

func lineStatic(st Style) []Attr {
	return []Attr{
		{Name: "class", Value: "line"},
		{Name: "fill", Value: "none"},
		{Name: "stroke", Value: st.Line},
		{Name: "stroke-width", Value: num(st.LineWidth)},
		{Name: "filter", Value: "url(#glow)"},
	}
}

func updateLine(e *Element, f *frame, _ Style) {
	e.set("d", monotoneX(f.points))
}

func axisStatic(class, anchor string, st Style) []Attr {
	return []Attr{
		{Name: "class", Value: class},
		{Name: "fill", Value: "none"},
		{Name: "font-size", Value: "10"},
		{Name: "font-family", Value: "sans-serif"},
		{Name: "text-anchor", Value: anchor},
		{Name: "color", Value: st.Axis},
	}
}

func xAxisStatic(st Style) []Attr { return axisStatic("x-axis", "middle", st) }

func yAxisStatic(st Style) []Attr { return axisStatic("y-axis", "start", st) }

func updateXAxis(e *Element, f *frame, _ Style) {
	e.set("transform", "translate(0,"+num(f.h)+")")
	e.setChildren(bottomAxis(f.scales.X, f.vp.XTicks()))
}

func updateYAxis(e *Element, f *frame, _ Style) {
	e.set("transform", "translate("+num(f.w)+",0)")
	e.setChildren(rightAxis(f.scales.Y, scale.DefaultYTicks))
}

// badgeLabel is the last value with two decimals.
func badgeLabel(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func badgeWidth(label string) float64 {
	return float64(len(label)*badgeCharWidth + badgePadding)
}

func badgeRectStatic(st Style) []Attr {
	return []Attr{
		{Name: "class", Value: "value-badge"},
		{Name: "rx", Value: "3"},
		{Name: "ry", Value: "3"},
		{Name: "fill", Value: st.Badge},
	}
}

// updateBadgeRect anchors the badge on the y axis, centred on the last value.
func updateBadgeRect(e *Element, f *frame, _ Style) {
	e.set("x", num(f.w))
	e.set("y", num(f.lastY-badgeHeight/2))
	e.set("width", num(badgeWidth(badgeLabel(f.last.Value))))
	e.set("height", num(badgeHeight))
}

func badgeTextStatic(st Style) []Attr {
	return []Attr{
		{Name: "class", Value: "value-badge-text"},
		{Name: "fill", Value: st.BadgeText},
		{Name: "font-size", Value: "11"},
		{Name: "font-family", Value: "sans-serif"},
		{Name: "text-anchor", Value: "middle"},
		{Name: "dominant-baseline", Value: "central"},
	}
}

func updateBadgeText(e *Element, f *frame, _ Style) {
	label := badgeLabel(f.last.Value)
	e.set("x", num(f.w+badgeWidth(label)/2))
	e.set("y", num(f.lastY))
	e.setText(label)
}
