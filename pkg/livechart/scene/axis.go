package scene

import (
	"github.com/chosenoffset/livechart/pkg/livechart/scale"
)

const (
	tickSize    = 6
	tickPadding = 3
	// crisp 1px lines on non-retina surfaces
	pixelOffset = 0.5
)

// bottomAxis renders the ticks of a horizontal axis below the plot area. The
// outer tick size is zero so the domain line does not hook at its ends.
func bottomAxis(x scale.Time, count int) []Node {
	r0, r1 := x.Range()
	nodes := []Node{{
		Tag: "path",
		Attrs: []Attr{
			{Name: "class", Value: "domain"},
			{Name: "stroke", Value: "currentColor"},
			{Name: "d", Value: "M" + num(r0+pixelOffset) + "," + num(pixelOffset) + "H" + num(r1+pixelOffset)},
		},
	}}

	format := x.TickFormat(count)
	for _, t := range x.Ticks(count) {
		nodes = append(nodes, tick(
			"translate("+num(x.Map(t)+pixelOffset)+",0)",
			Attr{Name: "y2", Value: num(tickSize)},
			[]Attr{{Name: "y", Value: num(tickSize + tickPadding)}, {Name: "dy", Value: "0.71em"}},
			format(t),
		))
	}
	return nodes
}

// rightAxis renders the ticks of a vertical axis on the right edge of the plot.
func rightAxis(y scale.Linear, count int) []Node {
	r0, r1 := y.Range()
	nodes := []Node{{
		Tag: "path",
		Attrs: []Attr{
			{Name: "class", Value: "domain"},
			{Name: "stroke", Value: "currentColor"},
			{Name: "d", Value: "M" + num(tickSize) + "," + num(r0+pixelOffset) +
				"H" + num(pixelOffset) + "V" + num(r1+pixelOffset) + "H" + num(tickSize)},
		},
	}}

	format := y.TickFormat(count)
	for _, v := range y.Ticks(count) {
		nodes = append(nodes, tick(
			"translate(0,"+num(y.Map(v)+pixelOffset)+")",
			Attr{Name: "x2", Value: num(tickSize)},
			[]Attr{{Name: "x", Value: num(tickSize + tickPadding)}, {Name: "dy", Value: "0.32em"}},
			format(v),
		))
	}
	return nodes
}

func tick(transform string, line Attr, label []Attr, text string) Node {
	return Node{
		Tag: "g",
		Attrs: []Attr{
			{Name: "class", Value: "tick"},
			{Name: "opacity", Value: "1"},
			{Name: "transform", Value: transform},
		},
		Children: []Node{
			{Tag: "line", Attrs: []Attr{{Name: "stroke", Value: "currentColor"}, line}},
			{Tag: "text", Attrs: append([]Attr{{Name: "fill", Value: "currentColor"}}, label...), Text: text},
		},
	}
}
