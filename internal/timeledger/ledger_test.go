package timeledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var t0 = time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return t0.Add(d) }

func TestOverlap(t *testing.T) {
	tests := []struct {
		name   string
		period Interval
		subs   []Interval
		end    time.Time
		want   time.Duration
	}{
		{
			name:   "no pauses",
			period: Closed(t0, at(2*time.Hour)),
			end:    at(2 * time.Hour),
			want:   0,
		},
		{
			name:   "pause fully inside",
			period: Closed(t0, at(2*time.Hour)),
			subs:   []Interval{Closed(at(30*time.Minute), at(time.Hour))},
			end:    at(2 * time.Hour),
			want:   30 * time.Minute,
		},
		{
			name:   "pause straddles period start",
			period: Closed(at(time.Hour), at(2*time.Hour)),
			subs:   []Interval{Closed(at(45*time.Minute), at(75*time.Minute))},
			end:    at(2 * time.Hour),
			want:   15 * time.Minute,
		},
		{
			name:   "pause outside period",
			period: Closed(t0, at(time.Hour)),
			subs:   []Interval{Closed(at(90*time.Minute), at(2*time.Hour))},
			end:    at(2 * time.Hour),
			want:   0,
		},
		{
			name:   "pause touching period end does not overlap",
			period: Closed(t0, at(time.Hour)),
			subs:   []Interval{Closed(at(time.Hour), at(2*time.Hour))},
			end:    at(2 * time.Hour),
			want:   0,
		},
		{
			name:   "open pause clipped to effective end",
			period: Open(t0),
			subs:   []Interval{Open(at(time.Hour))},
			end:    at(90 * time.Minute),
			want:   30 * time.Minute,
		},
		{
			name:   "pause starting after effective end ignored",
			period: Open(t0),
			subs:   []Interval{Open(at(3 * time.Hour))},
			end:    at(2 * time.Hour),
			want:   0,
		},
		{
			name:   "multiple pauses summed",
			period: Closed(t0, at(4*time.Hour)),
			subs: []Interval{
				Closed(at(time.Hour), at(90*time.Minute)),
				Closed(at(3*time.Hour), at(200*time.Minute)),
			},
			end:  at(4 * time.Hour),
			want: 50 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Overlap(tt.period, tt.subs, tt.end)
			if got != tt.want {
				t.Fatalf("expected overlap %v, got %v", tt.want, got)
			}
		})
	}
}

func TestActiveDurationNeverNegative(t *testing.T) {
	period := Closed(t0, at(time.Hour))
	subs := []Interval{
		Closed(t0.Add(-time.Hour), at(2*time.Hour)),
		Closed(at(10*time.Minute), at(20*time.Minute)),
	}

	if got := ActiveDuration(period, subs, at(time.Hour)); got != 0 {
		t.Fatalf("expected 0 active duration when pauses cover the period, got %v", got)
	}
}

func TestRawDurationClipsToEffectiveEnd(t *testing.T) {
	period := Closed(t0, at(3*time.Hour))
	if got := RawDuration(period, at(time.Hour)); got != time.Hour {
		t.Fatalf("expected 1h, got %v", got)
	}
	if got := RawDuration(Open(at(2*time.Hour)), at(time.Hour)); got != 0 {
		t.Fatalf("expected 0 for period starting after effective end, got %v", got)
	}
}

func TestHoursRounding(t *testing.T) {
	d := 20 * time.Minute
	if !Hours(d).Mul(decimal.NewFromInt(3)).Round(8).Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected unrounded hours to keep precision, got %s", Hours(d))
	}
	if got := RoundHours(d).String(); got != "0.33" {
		t.Fatalf("expected 0.33, got %s", got)
	}
	if got := RoundMinutes(90 * time.Second).String(); got != "1.5" {
		t.Fatalf("expected 1.5, got %s", got)
	}
	if got := FromHours(decimal.RequireFromString("1.25")); got != 75*time.Minute {
		t.Fatalf("expected 75m, got %v", got)
	}
}

func TestAbsDiff(t *testing.T) {
	if AbsDiff(t0, at(time.Minute)) != time.Minute || AbsDiff(at(time.Minute), t0) != time.Minute {
		t.Fatal("expected order-independent difference")
	}
}
