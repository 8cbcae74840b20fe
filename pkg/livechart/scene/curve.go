package scene

import (
	"math"
	"strconv"
	"strings"
)

type point struct {
	x, y float64
}

// num formats a coordinate with at most three decimals.
func num(v float64) string {
	v = math.Round(v*1000) / 1000
	if v == 0 {
		v = 0 // drop the sign of negative zero
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// monotoneX returns SVG path data for a cubic curve through pts that
// preserves monotonicity in y between samples (Steffen's method). Points
// must be ordered by x for the result to be meaningful but equal x values
// are tolerated.
func monotoneX(pts []point) string {
	var b strings.Builder

	switch len(pts) {
	case 0:
		return ""
	case 1:
		b.WriteString("M" + num(pts[0].x) + "," + num(pts[0].y) + "Z")
		return b.String()
	case 2:
		b.WriteString("M" + num(pts[0].x) + "," + num(pts[0].y))
		b.WriteString("L" + num(pts[1].x) + "," + num(pts[1].y))
		return b.String()
	}

	b.WriteString("M" + num(pts[0].x) + "," + num(pts[0].y))

	p0, p1 := pts[0], pts[1]
	var t0 float64
	for i := 2; i < len(pts); i++ {
		p := pts[i]
		t1 := slope3(p0, p1, p)
		if i == 2 {
			t0 = slope2(p0, p1, t1)
		}
		bezier(&b, p0, p1, t0, t1)
		p0, p1, t0 = p1, p, t1
	}
	bezier(&b, p0, p1, t0, slope2(p0, p1, t0))

	return b.String()
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// slope3 is the tangent at p1 given its neighbours.
func slope3(p0, p1, p2 point) float64 {
	h0, h1 := p1.x-p0.x, p2.x-p1.x

	// a zero-width interval borrows the direction of its neighbour
	d0, d1 := h0, h1
	if d0 == 0 && h1 < 0 {
		d0 = math.Copysign(0, -1)
	}
	if d1 == 0 && h0 < 0 {
		d1 = math.Copysign(0, -1)
	}
	s0 := (p1.y - p0.y) / d0
	s1 := (p2.y - p1.y) / d1
	p := (s0*h1 + s1*h0) / (h0 + h1)

	t := (sign(s0) + sign(s1)) * math.Min(math.Min(math.Abs(s0), math.Abs(s1)), 0.5*math.Abs(p))
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return 0
	}
	return t
}

// slope2 is a one-sided tangent for the end points.
func slope2(p0, p1 point, t float64) float64 {
	h := p1.x - p0.x
	if h == 0 {
		return t
	}
	return (3*(p1.y-p0.y)/h - t) / 2
}

// bezier appends the Hermite segment p0→p1 with tangents t0, t1.
func bezier(b *strings.Builder, p0, p1 point, t0, t1 float64) {
	dx := (p1.x - p0.x) / 3
	b.WriteString("C" + num(p0.x+dx) + "," + num(p0.y+dx*t0) +
		"," + num(p1.x-dx) + "," + num(p1.y-dx*t1) +
		"," + num(p1.x) + "," + num(p1.y))
}
