package pause

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/lounge/internal/apperrors"
	"github.com/goodtune/lounge/internal/storage"
	"github.com/goodtune/lounge/internal/storage/bolt"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "lounge.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return NewTracker(store.Pauses(), zerolog.Nop())
}

func TestOpenClose(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 14, 20, 0, 0, 0, time.UTC)

	if _, err := tracker.Close(ctx, "a1", "staff", start); !errors.Is(err, ErrNoOpenPause) {
		t.Fatalf("expected ErrNoOpenPause, got %v", err)
	}

	if _, err := tracker.Open(ctx, "a1", "staff", start); err != nil {
		t.Fatalf("open: %v", err)
	}

	_, err := tracker.Open(ctx, "a1", "staff", start.Add(time.Minute))
	if !errors.Is(err, ErrAlreadyPaused) {
		t.Fatalf("expected ErrAlreadyPaused, got %v", err)
	}
	if !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition code, got %v", err)
	}

	closed, err := tracker.Close(ctx, "a1", "manager", start.Add(20*time.Minute+30*time.Second))
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !closed.DurationMinutes.Equal(decimal.RequireFromString("20.5")) {
		t.Errorf("expected 20.5 minutes, got %s", closed.DurationMinutes)
	}
	if closed.ResumedBy != "manager" {
		t.Errorf("expected resumed_by manager, got %q", closed.ResumedBy)
	}

	open, err := tracker.FindOpen(ctx, "a1")
	if err != nil {
		t.Fatalf("find open: %v", err)
	}
	if open != nil {
		t.Fatalf("expected no open pause, got %+v", open)
	}
}

func TestCloseBeforeOpenUsesAbsoluteDuration(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 14, 20, 0, 0, 0, time.UTC)

	if _, err := tracker.Open(ctx, "a1", "staff", start); err != nil {
		t.Fatalf("open: %v", err)
	}
	closed, err := tracker.Close(ctx, "a1", "staff", start.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !closed.DurationMinutes.Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected 5 minutes, got %s", closed.DurationMinutes)
	}
}

func TestTotalPauseHours(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 14, 20, 0, 0, 0, time.UTC)

	// 30 closed minutes, then an open pause from T+1h
	if _, err := tracker.Open(ctx, "a1", "staff", start); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := tracker.Close(ctx, "a1", "staff", start.Add(30*time.Minute)); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := tracker.Open(ctx, "a1", "staff", start.Add(time.Hour)); err != nil {
		t.Fatalf("open: %v", err)
	}

	tests := []struct {
		name         string
		effectiveEnd time.Time
		want         string
	}{
		{name: "open pause counted to effective end", effectiveEnd: start.Add(90 * time.Minute), want: "1"},
		{name: "effective end at open pause start", effectiveEnd: start.Add(time.Hour), want: "0.5"},
		{name: "effective end before open pause", effectiveEnd: start.Add(45 * time.Minute), want: "0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tracker.TotalPauseHours(ctx, "a1", tt.effectiveEnd)
			if err != nil {
				t.Fatalf("total pause hours: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("expected %s hours, got %s", tt.want, got)
			}

			// The total must equal closed durations plus the open remainder
			pauses, err := tracker.List(ctx, "a1")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			var closed time.Duration
			var open time.Duration
			for _, p := range pauses {
				if p.ResumedAt != nil {
					closed += p.ResumedAt.Sub(p.PausedAt)
				} else if tt.effectiveEnd.After(p.PausedAt) {
					open += tt.effectiveEnd.Sub(p.PausedAt)
				}
			}
			if total := Total(pauses, tt.effectiveEnd); total != closed+open {
				t.Errorf("expected total %v, got %v", closed+open, total)
			}
		})
	}
}

func TestDuplicateOpenIsConsistencyError(t *testing.T) {
	store, err := bolt.Open(filepath.Join(t.TempDir(), "lounge.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	now := time.Now()
	for _, id := range []string{"p1", "p2"} {
		if err := store.Pauses().Upsert(ctx, storage.Pause{ID: id, ActivityID: "a1", PausedAt: now}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	tracker := NewTracker(store.Pauses(), zerolog.Nop())
	if _, err := tracker.FindOpen(ctx, "a1"); !errors.Is(err, apperrors.ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
}

func TestRecordGap(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()
	from := time.Date(2025, 3, 14, 20, 0, 0, 0, time.UTC)

	gap, err := tracker.RecordGap(ctx, "a1", "manager", from, from.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("record gap: %v", err)
	}
	if gap.ResumedAt == nil || !gap.DurationMinutes.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("expected closed 15 minute gap, got %+v", gap)
	}

	if _, err := tracker.RecordGap(ctx, "a1", "manager", from, from.Add(-time.Minute)); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
