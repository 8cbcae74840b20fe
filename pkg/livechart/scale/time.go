package scale

import (
	"math"
	"sort"
	"time"
)

// Time maps an instant domain onto a pixel range.
type Time struct {
	d0, d1 time.Time
	r0, r1 float64
}

// NewTime returns a time scale from [d0, d1] onto [r0, r1].
func NewTime(d0, d1 time.Time, r0, r1 float64) Time {
	return Time{d0: d0, d1: d1, r0: r0, r1: r1}
}

// Domain returns the input interval.
func (s Time) Domain() (time.Time, time.Time) { return s.d0, s.d1 }

// Range returns the output interval.
func (s Time) Range() (float64, float64) { return s.r0, s.r1 }

// Map projects t onto the range. A single-instant domain maps everything to r0.
func (s Time) Map(t time.Time) float64 {
	span := seconds(s.d0, s.d1)
	if span == 0 {
		return s.r0
	}
	return s.r0 + seconds(s.d0, t)/span*(s.r1-s.r0)
}

// seconds returns b-a in seconds. Unlike time.Time.Sub it does not saturate
// for spans longer than about 292 years.
func seconds(a, b time.Time) float64 {
	return float64(b.Unix()-a.Unix()) + float64(b.Nanosecond()-a.Nanosecond())/1e9
}

type interval struct {
	every  time.Duration
	months int
	layout string
}

// approximate lengths are used only to choose an interval
const (
	day   = 24 * time.Hour
	month = 30 * day
	year  = 365 * day
)

var intervals = []interval{
	{every: time.Second, layout: "15:04:05"},
	{every: 5 * time.Second, layout: "15:04:05"},
	{every: 15 * time.Second, layout: "15:04:05"},
	{every: 30 * time.Second, layout: "15:04:05"},
	{every: time.Minute, layout: "15:04"},
	{every: 5 * time.Minute, layout: "15:04"},
	{every: 15 * time.Minute, layout: "15:04"},
	{every: 30 * time.Minute, layout: "15:04"},
	{every: time.Hour, layout: "15:04"},
	{every: 3 * time.Hour, layout: "15:04"},
	{every: 6 * time.Hour, layout: "15:04"},
	{every: 12 * time.Hour, layout: "15:04"},
	{every: day, layout: "Jan 02"},
	{every: 2 * day, layout: "Jan 02"},
	{every: 7 * day, layout: "Jan 02"},
	{every: month, months: 1, layout: "Jan"},
	{every: 3 * month, months: 3, layout: "Jan"},
	{every: year, months: 12, layout: "2006"},
}

func (s Time) pick(count int) interval {
	lo, hi := s.d0, s.d1
	if hi.Before(lo) {
		lo, hi = hi, lo
	}
	if count <= 0 {
		count = 1
	}
	span := seconds(lo, hi)
	target := span / float64(count)

	i := sort.Search(len(intervals), func(i int) bool { return intervals[i].every.Seconds() > target })
	switch {
	case i == 0:
		ms := tickStep(0, span*1e3, count)
		every := time.Duration(math.Max(1, ms)) * time.Millisecond
		return interval{every: every, layout: "05.000"}
	case i == len(intervals):
		years := tickStep(0, span/year.Seconds(), count)
		return interval{every: year, months: 12 * int(math.Max(1, years)), layout: "2006"}
	}

	prev, next := intervals[i-1], intervals[i]
	if target/prev.every.Seconds() < next.every.Seconds()/target {
		return prev
	}
	return next
}

// Ticks returns roughly count calendar-aligned instants inside the domain.
func (s Time) Ticks(count int) []time.Time {
	lo, hi := s.d0, s.d1
	if hi.Before(lo) {
		lo, hi = hi, lo
	}
	if lo.Equal(hi) {
		return []time.Time{lo}
	}

	iv := s.pick(count)
	var ticks []time.Time

	if iv.months > 0 {
		lo, hi = lo.UTC(), hi.UTC()
		m := (int(lo.Month()) - 1) / iv.months * iv.months
		t := time.Date(lo.Year(), time.Month(m+1), 1, 0, 0, 0, 0, time.UTC)
		if iv.months >= 12 {
			t = time.Date(lo.Year()/(iv.months/12)*(iv.months/12), 1, 1, 0, 0, 0, 0, time.UTC)
		}
		for ; !t.After(hi); t = t.AddDate(0, iv.months, 0) {
			if !t.Before(lo) {
				ticks = append(ticks, t)
			}
		}
		return ticks
	}

	for t := lo.UTC().Truncate(iv.every); !t.After(hi); t = t.Add(iv.every) {
		if !t.Before(lo) {
			ticks = append(ticks, t)
		}
	}
	return ticks
}

// TickFormat returns the label formatter matching the interval Ticks(count) uses.
func (s Time) TickFormat(count int) func(time.Time) string {
	layout := s.pick(count).layout
	return func(t time.Time) string {
		return t.UTC().Format(layout)
	}
}
