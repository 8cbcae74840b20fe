package scene

import (
	"encoding/xml"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chosenoffset/livechart/pkg/livechart/sample"
	"github.com/chosenoffset/livechart/pkg/livechart/scale"
	"github.com/chosenoffset/livechart/pkg/livechart/series"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func bufferOf(values ...float64) *series.Buffer {
	b := series.New()
	for i, v := range values {
		b.Append(sample.Sample{Timestamp: t0.Add(time.Duration(i) * 4 * time.Second), Value: v})
	}
	return b
}

func attr(t *testing.T, s *Scene, id ID, name string) string {
	t.Helper()
	e, ok := s.Element(id)
	require.True(t, ok, "element %s", id)
	v, ok := e.Attr(name)
	require.True(t, ok, "attribute %s of %s", name, id)
	return v
}

func TestRender(t *testing.T) {
	t.Run("SingleSample", testRenderSingleSample)
	t.Run("Idempotent", testRenderIdempotent)
	t.Run("UpdatesInPlace", testRenderUpdatesInPlace)
	t.Run("Skipped", testRenderSkipped)
	t.Run("Resize", testRenderResize)
	t.Run("TickDensity", testRenderTickDensity)
	t.Run("FloatExtremes", testRenderFloatExtremes)
}

func tickCount(t *testing.T, s *Scene, id ID) int {
	t.Helper()
	e, ok := s.Element(id)
	require.True(t, ok, "element %s", id)
	var n int
	for _, c := range e.Children() {
		if c.Tag == "g" {
			n++
		}
	}
	return n
}

func testRenderSingleSample(t *testing.T) {
	s := New()
	pass, err := s.Render(bufferOf(50), scale.NewViewport(400, 300))
	require.NoError(t, err)

	assert.Len(t, pass.Created, 9)
	assert.Empty(t, pass.Updated)
	assert.Equal(t, 9, s.Len())

	y := num(pass.Scales.Y.Map(50))
	assert.Equal(t, y, attr(t, s, Baseline, "y1"))
	assert.Equal(t, y, attr(t, s, Baseline, "y2"))
	assert.Equal(t, y, attr(t, s, GradientFill, "height"))
	assert.Equal(t, "0", attr(t, s, GradientFill, "y"))
	assert.Equal(t, "M0,"+y+"Z", attr(t, s, LinePath, "d"))

	text, _ := s.Element(BadgeText)
	assert.Equal(t, "50.00", text.Text())
	assert.Equal(t, "330", attr(t, s, BadgeRect, "x"), "badge is anchored on the right axis")
	assert.Equal(t, "url(#glow)", attr(t, s, LinePath, "filter"))
}

func testRenderIdempotent(t *testing.T) {
	s := New()
	buf := bufferOf(10, 90, 35.5)
	vp := scale.NewViewport(400, 300)

	_, err := s.Render(buf, vp)
	require.NoError(t, err)

	before := make(map[ID]*Element)
	attrs := make(map[ID][]Attr)
	revisions := make(map[ID]int)
	for _, el := range elements {
		e, ok := s.Element(el.id)
		require.True(t, ok)
		before[el.id] = e
		attrs[el.id] = e.Attrs()
		revisions[el.id] = e.Revision()
	}
	svg := s.SVG()

	pass, err := s.Render(buf, vp)
	require.NoError(t, err)
	assert.Empty(t, pass.Created)
	assert.Empty(t, pass.Updated)
	assert.False(t, pass.Changed())
	assert.Equal(t, 9, s.Len())

	for id, e := range before {
		after, _ := s.Element(id)
		assert.Same(t, e, after, "%s must not be recreated", id)
		assert.Equal(t, attrs[id], after.Attrs(), "%s attributes drifted", id)
		assert.Equal(t, revisions[id], after.Revision())
	}
	assert.Equal(t, svg, s.SVG())
}

func testRenderUpdatesInPlace(t *testing.T) {
	s := New()
	buf := bufferOf(10)
	vp := scale.NewViewport(400, 300)

	_, err := s.Render(buf, vp)
	require.NoError(t, err)
	line, _ := s.Element(LinePath)
	glow, _ := s.Element(GlowFilter)
	oldD := attr(t, s, LinePath, "d")

	buf.Append(sample.Sample{Timestamp: t0.Add(4 * time.Second), Value: 90})
	pass, err := s.Render(buf, vp)
	require.NoError(t, err)

	assert.Empty(t, pass.Created)
	assert.Contains(t, pass.Updated, LinePath)
	assert.Contains(t, pass.Updated, Baseline)
	assert.Contains(t, pass.Updated, BadgeText)
	assert.NotContains(t, pass.Updated, GlowFilter, "definitions are static")
	assert.Equal(t, 9, s.Len())

	again, _ := s.Element(LinePath)
	assert.Same(t, line, again)
	assert.Equal(t, 2, line.Revision(), "written at creation and once more")
	assert.Equal(t, 0, glow.Revision())
	assert.NotEqual(t, oldD, attr(t, s, LinePath, "d"))

	// two samples: t0 -> x=0, t1 -> x=inner width; 90 -> top, baseline follows the last value
	assert.Equal(t, "M0,222.222L330,0", attr(t, s, LinePath, "d"))
	assert.Equal(t, "0", attr(t, s, Baseline, "y1"))
	text, _ := s.Element(BadgeText)
	assert.Equal(t, "90.00", text.Text())
}

func testRenderSkipped(t *testing.T) {
	s := New()

	_, err := s.Render(series.New(), scale.NewViewport(400, 300))
	assert.ErrorIs(t, err, ErrEmptySeries)
	assert.Equal(t, 0, s.Len())

	_, err = s.Render(bufferOf(1), scale.NewViewport(0, 0))
	assert.ErrorIs(t, err, scale.ErrDegenerateViewport)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.Passes())

	_, err = s.Render(bufferOf(1), scale.NewViewport(400, 300))
	require.NoError(t, err)
	svg := s.SVG()

	_, err = s.Render(bufferOf(1, 2, 3), scale.Viewport{})
	assert.True(t, errors.Is(err, scale.ErrDegenerateViewport))
	assert.Equal(t, 1, s.Passes())
	assert.Equal(t, svg, s.SVG(), "a skipped pass leaves the scene untouched")
}

func testRenderResize(t *testing.T) {
	s := New()
	buf := bufferOf(10, 20)

	_, err := s.Render(buf, scale.NewViewport(400, 300))
	require.NoError(t, err)

	pass, err := s.Render(buf, scale.NewViewport(800, 500))
	require.NoError(t, err)
	assert.Contains(t, pass.Updated, XAxis)
	assert.Contains(t, pass.Updated, YAxis)
	assert.Equal(t, "translate(730,0)", attr(t, s, YAxis, "transform"))
	assert.Equal(t, "translate(0,450)", attr(t, s, XAxis, "transform"))
	assert.Equal(t, 800.0, s.Viewport().Width)
}

func testRenderTickDensity(t *testing.T) {
	s := New()
	buf := bufferOf(make([]float64, 16)...) // one minute of samples

	_, err := s.Render(buf, scale.NewViewport(400, 300))
	require.NoError(t, err)
	assert.Equal(t, 5, tickCount(t, s, XAxis), "15s ticks over 330px")
	yTicks := tickCount(t, s, YAxis)

	pass, err := s.Render(buf, scale.NewViewport(800, 300))
	require.NoError(t, err)
	assert.Contains(t, pass.Updated, XAxis)
	assert.Equal(t, 13, tickCount(t, s, XAxis), "5s ticks over 730px")
	assert.Equal(t, yTicks, tickCount(t, s, YAxis), "y ticks do not depend on width")
}

func testRenderFloatExtremes(t *testing.T) {
	for _, values := range [][]float64{
		{1e-320, 1e-321},
		{5e-324},
		{1.7e308, math.MaxFloat64},
	} {
		s := New()
		_, err := s.Render(bufferOf(values...), scale.NewViewport(400, 300))
		require.NoError(t, err, "%v", values)

		y, err := strconv.ParseFloat(attr(t, s, Baseline, "y1"), 64)
		require.NoError(t, err)
		assert.False(t, math.IsNaN(y) || math.IsInf(y, 0), "%v: baseline %g", values, y)

		svg := s.SVG()
		assert.NotContains(t, svg, "NaN", "%v", values)
		assert.NotContains(t, svg, "Inf", "%v", values)
	}
}

func TestAxes(t *testing.T) {
	s := New()
	_, err := s.Render(bufferOf(10, 90), scale.NewViewport(400, 300))
	require.NoError(t, err)

	y, _ := s.Element(YAxis)
	children := y.Children()
	require.NotEmpty(t, children)
	assert.Equal(t, "M6,250.5H0.5V0.5H6", children[0].Attrs[2].Value)
	// domain path + ticks 0..90 step 10
	assert.Len(t, children, 11)
	assert.Equal(t, "90", children[len(children)-1].Children[1].Text)

	x, _ := s.Element(XAxis)
	assert.Equal(t, "M0.5,0.5H330.5", x.Children()[0].Attrs[2].Value)
	assert.Equal(t, "x-axis", attr(t, s, XAxis, "class"))
	assert.Equal(t, "grey", attr(t, s, XAxis, "color"))
}

func TestMonotoneX(t *testing.T) {
	assert.Equal(t, "", monotoneX(nil))
	assert.Equal(t, "M1,2Z", monotoneX([]point{{1, 2}}))
	assert.Equal(t, "M0,0L1,1", monotoneX([]point{{0, 0}, {1, 1}}))
	assert.Equal(t, "M0,0C0.333,0.5,0.667,1,1,1C1.333,1,1.667,1,2,1",
		monotoneX([]point{{0, 0}, {1, 1}, {2, 1}}))

	d := monotoneX([]point{{0, 0}, {0, 5}, {1, 5}, {1, 2}, {1, 2}})
	assert.NotContains(t, d, "NaN")
	assert.NotContains(t, d, "Inf")
}

func TestWriteSVG(t *testing.T) {
	s := New()
	_, err := s.Render(bufferOf(3, 1, 4, 1, 5), scale.NewViewport(400, 300))
	require.NoError(t, err)

	dec := xml.NewDecoder(strings.NewReader(s.SVG()))
	counts := make(map[string]int)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if se, ok := tok.(xml.StartElement); ok {
			counts[se.Name.Local]++
		}
	}

	assert.Equal(t, 1, counts["svg"])
	assert.Equal(t, 1, counts["filter"])
	assert.Equal(t, 1, counts["linearGradient"])
	assert.Equal(t, 1, counts["defs"])
	// the line and the two axis domains
	assert.Equal(t, 3, counts["path"])
	assert.Equal(t, 2, strings.Count(s.SVG(), `class="domain"`))
}
