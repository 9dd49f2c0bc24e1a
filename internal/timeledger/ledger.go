// Package timeledger computes overlap-aware durations between a base interval
// and a set of sub-intervals. All functions are pure; rounding happens only in
// RoundHours and RoundMinutes, which callers apply at persistence time.
package timeledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Interval is a span starting at Start. A nil End means the interval is still open.
type Interval struct {
	Start time.Time
	End   *time.Time
}

// Closed returns an interval with both ends set.
func Closed(start, end time.Time) Interval {
	return Interval{Start: start, End: &end}
}

// Open returns an interval with no end.
func Open(start time.Time) Interval {
	return Interval{Start: start}
}

// Bounds returns the interval clipped to effectiveEnd. Open intervals end at effectiveEnd.
func (iv Interval) Bounds(effectiveEnd time.Time) (time.Time, time.Time) {
	end := effectiveEnd
	if iv.End != nil && iv.End.Before(effectiveEnd) {
		end = *iv.End
	}
	return iv.Start, end
}

// RawDuration is the length of period up to effectiveEnd, never negative.
func RawDuration(period Interval, effectiveEnd time.Time) time.Duration {
	start, end := period.Bounds(effectiveEnd)
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}

// Overlap sums the portions of subs that fall inside period, with everything
// clipped to effectiveEnd.
func Overlap(period Interval, subs []Interval, effectiveEnd time.Time) time.Duration {
	pStart, pEnd := period.Bounds(effectiveEnd)
	if !pEnd.After(pStart) {
		return 0
	}

	var total time.Duration
	for _, sub := range subs {
		sStart, sEnd := sub.Bounds(effectiveEnd)
		if !sStart.Before(pEnd) || !sEnd.After(pStart) {
			continue
		}
		lo := pStart
		if sStart.After(lo) {
			lo = sStart
		}
		hi := pEnd
		if sEnd.Before(hi) {
			hi = sEnd
		}
		if hi.After(lo) {
			total += hi.Sub(lo)
		}
	}
	return total
}

// ActiveDuration is RawDuration minus Overlap, floored at zero.
func ActiveDuration(period Interval, subs []Interval, effectiveEnd time.Time) time.Duration {
	active := RawDuration(period, effectiveEnd) - Overlap(period, subs, effectiveEnd)
	if active < 0 {
		return 0
	}
	return active
}

var (
	nanosPerHour   = decimal.NewFromInt(int64(time.Hour))
	nanosPerMinute = decimal.NewFromInt(int64(time.Minute))
)

// Hours converts d to an unrounded decimal hour count.
func Hours(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(int64(d)).Div(nanosPerHour)
}

// Minutes converts d to an unrounded decimal minute count.
func Minutes(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(int64(d)).Div(nanosPerMinute)
}

// FromHours converts a decimal hour count back to a duration.
func FromHours(h decimal.Decimal) time.Duration {
	return time.Duration(h.Mul(nanosPerHour).IntPart())
}

// RoundHours converts d to hours rounded to 2 decimals.
func RoundHours(d time.Duration) decimal.Decimal {
	return Hours(d).Round(2)
}

// RoundMinutes converts d to minutes rounded to 2 decimals.
func RoundMinutes(d time.Duration) decimal.Decimal {
	return Minutes(d).Round(2)
}

// AbsDiff returns |a - b|.
func AbsDiff(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
