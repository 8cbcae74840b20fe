// Package snapshot renders a static PNG of a series with go-chart, styled like
// the live chart.
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/chosenoffset/livechart/pkg/livechart/sample"
	"github.com/chosenoffset/livechart/pkg/livechart/scale"
)

// ErrEmpty is returned when there is nothing to draw.
var ErrEmpty = errors.New("snapshot: no samples")

var (
	colorLine  = drawing.ColorFromHex("ffa500")
	colorAxis  = drawing.Color{R: 128, G: 128, B: 128, A: 255}
	colorBadge = drawing.ColorFromHex("008000")
)

// Options sizes the image.
type Options struct {
	Width  int
	Height int
	Title  string
}

// PNG writes samples as a PNG line chart to w. The y axis starts at zero and
// ends at the same niced maximum as the live chart.
func PNG(w io.Writer, samples []sample.Sample, opts Options) error {
	if len(samples) == 0 {
		return ErrEmpty
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return fmt.Errorf("snapshot: %dx%d: %w", opts.Width, opts.Height, scale.ErrDegenerateViewport)
	}

	times := make([]time.Time, 0, len(samples)+1)
	values := make([]float64, 0, len(samples)+1)
	hi := 0.0
	for _, s := range samples {
		times = append(times, s.Timestamp)
		values = append(values, s.Value)
		if s.Value > hi {
			hi = s.Value
		}
	}
	last := samples[len(samples)-1]

	// go-chart needs at least two x values
	if len(times) == 1 {
		times = append(times, times[0].Add(time.Second))
		values = append(values, values[0])
	}

	if hi <= 0 {
		hi = 1
	}
	_, top := scale.NewLinear(0, hi, 0, 1).Nice(scale.DefaultYTicks).Domain()

	axisStyle := chart.Style{FontColor: colorAxis, StrokeColor: colorAxis, StrokeWidth: 1}

	ch := chart.Chart{
		Title:      opts.Title,
		TitleStyle: chart.Style{FontColor: drawing.ColorWhite},
		Width:      opts.Width,
		Height:     opts.Height,
		Background: chart.Style{
			FillColor: drawing.ColorBlack,
			Padding:   chart.Box{Top: 20, Left: 40, Right: 30, Bottom: 30},
		},
		Canvas: chart.Style{FillColor: drawing.ColorBlack},
		XAxis: chart.XAxis{
			Style:          axisStyle,
			ValueFormatter: chart.TimeValueFormatterWithFormat("15:04:05"),
		},
		YAxis: chart.YAxis{
			Style: axisStyle,
			Range: &chart.ContinuousRange{Min: 0, Max: top},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "value",
				XValues: times,
				YValues: values,
				Style:   chart.Style{StrokeColor: colorLine, StrokeWidth: 1.5},
			},
			chart.AnnotationSeries{
				Annotations: []chart.Value2{{
					XValue: chart.TimeToFloat64(times[len(times)-1]),
					YValue: last.Value,
					Label:  strconv.FormatFloat(last.Value, 'f', 2, 64),
				}},
				Style: chart.Style{FillColor: colorBadge, StrokeColor: colorBadge, FontColor: drawing.ColorWhite},
			},
		},
	}

	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}
