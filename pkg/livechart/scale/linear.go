package scale

import (
	"math"
	"strconv"
)

var (
	e10 = math.Sqrt(50)
	e5  = math.Sqrt(10)
	e2  = math.Sqrt(2)
)

// Linear maps a continuous value domain onto a pixel range.
type Linear struct {
	d0, d1 float64
	r0, r1 float64
}

// NewLinear returns a linear scale from [d0, d1] onto [r0, r1].
func NewLinear(d0, d1, r0, r1 float64) Linear {
	return Linear{d0: d0, d1: d1, r0: r0, r1: r1}
}

// Domain returns the input interval.
func (l Linear) Domain() (float64, float64) { return l.d0, l.d1 }

// Range returns the output interval.
func (l Linear) Range() (float64, float64) { return l.r0, l.r1 }

// Map projects v onto the range. A zero-width domain maps everything to r0.
func (l Linear) Map(v float64) float64 {
	span := l.d1 - l.d0
	if span == 0 {
		return l.r0
	}
	return l.r0 + (v-l.d0)/span*(l.r1-l.r0)
}

// Nice extends the domain outward to round values so that it is evenly
// divisible by the tick step chosen for count ticks. Near the float limits,
// where no round step or bound is representable, the last finite domain is
// kept.
func (l Linear) Nice(count int) Linear {
	start, stop := l.d0, l.d1
	reversed := stop < start
	if reversed {
		start, stop = stop, start
	}

	var prestep float64
loop:
	for i := 0; i < 10; i++ {
		step := tickIncrement(start, stop, count)
		if step == prestep || !finite(step) {
			break
		}
		var lo, hi float64
		switch {
		case step > 0:
			lo = math.Floor(start/step) * step
			hi = math.Ceil(stop/step) * step
		case step < 0:
			lo = math.Ceil(start*step) / step
			hi = math.Floor(stop*step) / step
		default:
			break loop
		}
		if !finite(lo) || !finite(hi) {
			break
		}
		start, stop, prestep = lo, hi, step
	}

	if reversed {
		start, stop = stop, start
	}
	l.d0, l.d1 = start, stop
	return l
}

// Ticks returns roughly count round values inside the domain, ascending.
func (l Linear) Ticks(count int) []float64 {
	start, stop := l.d0, l.d1
	if stop < start {
		start, stop = stop, start
	}
	if start == stop || count <= 0 {
		return []float64{start}
	}

	step := tickIncrement(start, stop, count)
	if step == 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return nil
	}

	var ticks []float64
	if step > 0 {
		i0, i1 := math.Ceil(start/step), math.Floor(stop/step)
		for i := i0; i <= i1; i++ {
			ticks = append(ticks, i*step)
		}
		return ticks
	}

	inv := -step
	i0, i1 := math.Ceil(start*inv), math.Floor(stop*inv)
	for i := i0; i <= i1; i++ {
		ticks = append(ticks, i/inv)
	}
	return ticks
}

// TickFormat returns a formatter with as many decimals as the tick step needs.
func (l Linear) TickFormat(count int) func(float64) string {
	start, stop := l.d0, l.d1
	if stop < start {
		start, stop = stop, start
	}
	step := math.Abs(tickStep(start, stop, count))
	decimals := 0
	if step > 0 && step < 1 {
		decimals = int(math.Max(0, -math.Floor(math.Log10(step)+1e-9)))
	}
	return func(v float64) string {
		return strconv.FormatFloat(v, 'f', decimals, 64)
	}
}

// tickIncrement returns a positive step (>= 1) or the negated inverse of a
// fractional step, so that ticks can be generated without accumulating
// floating point error.
func tickIncrement(start, stop float64, count int) float64 {
	if count <= 0 {
		return 0
	}
	step := (stop - start) / float64(count)
	if step <= 0 {
		return 0
	}
	power := math.Floor(math.Log10(step))
	e := step / math.Pow(10, power)
	// Log10 may land one ulp off an exact power of ten
	if e >= 10 {
		power++
		e /= 10
	} else if e < 1 {
		power--
		e *= 10
	}

	factor := 1.0
	switch {
	case e >= e10:
		factor = 10
	case e >= e5:
		factor = 5
	case e >= e2:
		factor = 2
	}

	if power >= 0 {
		return factor * math.Pow(10, power)
	}
	return -math.Pow(10, -power) / factor
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func tickStep(start, stop float64, count int) float64 {
	inc := tickIncrement(start, stop, count)
	if inc < 0 {
		return 1 / -inc
	}
	return inc
}
