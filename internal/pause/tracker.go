// Package pause records pause intervals of an activity. An activity has at most
// one open pause at a time.
package pause

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/lounge/internal/apperrors"
	"github.com/goodtune/lounge/internal/storage"
	"github.com/goodtune/lounge/internal/timeledger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	// ErrAlreadyPaused is returned by Open when the activity has an open pause.
	ErrAlreadyPaused = errors.New("activity already has an open pause")

	// ErrNoOpenPause is returned by Close when the activity has no open pause.
	ErrNoOpenPause = errors.New("activity has no open pause")
)

// Tracker manages pause records
type Tracker struct {
	pauses storage.PauseStore
	logger zerolog.Logger
}

// NewTracker creates a new pause tracker
func NewTracker(pauses storage.PauseStore, logger zerolog.Logger) *Tracker {
	return &Tracker{
		pauses: pauses,
		logger: logger.With().Str("component", "pause-tracker").Logger(),
	}
}

// Open starts a pause at the given instant.
func (t *Tracker) Open(ctx context.Context, activityID, actor string, at time.Time) (*storage.Pause, error) {
	current, err := t.FindOpen(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidTransition,
			fmt.Sprintf("activity %s paused since %s", activityID, current.PausedAt.Format(time.RFC3339)),
			ErrAlreadyPaused)
	}

	p := storage.Pause{
		ID:              uuid.NewString(),
		ActivityID:      activityID,
		PausedAt:        at,
		DurationMinutes: decimal.Zero,
		PausedBy:        actor,
	}
	if err := t.pauses.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to open pause: %w", err)
	}

	t.logger.Debug().
		Str("activity_id", activityID).
		Str("pause_id", p.ID).
		Time("paused_at", at).
		Msg("Pause opened")

	return &p, nil
}

// Close ends the open pause at the given instant.
func (t *Tracker) Close(ctx context.Context, activityID, actor string, at time.Time) (*storage.Pause, error) {
	current, err := t.FindOpen(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidTransition,
			fmt.Sprintf("activity %s is not paused", activityID), ErrNoOpenPause)
	}

	resumed := at
	current.ResumedAt = &resumed
	current.ResumedBy = actor
	// Absolute difference tolerates clock skew between staff terminals
	current.DurationMinutes = timeledger.RoundMinutes(timeledger.AbsDiff(resumed, current.PausedAt))

	if err := t.pauses.Upsert(ctx, *current); err != nil {
		return nil, fmt.Errorf("failed to close pause: %w", err)
	}

	t.logger.Debug().
		Str("activity_id", activityID).
		Str("pause_id", current.ID).
		Str("duration_minutes", current.DurationMinutes.String()).
		Msg("Pause closed")

	return current, nil
}

// RecordGap stores an already-closed pause covering [from, to].
// Reopening an ended activity uses it so the time it spent ended is never billed.
func (t *Tracker) RecordGap(ctx context.Context, activityID, actor string, from, to time.Time) (*storage.Pause, error) {
	if to.Before(from) {
		return nil, apperrors.Validation("pause gap ends before it starts")
	}

	end := to
	p := storage.Pause{
		ID:              uuid.NewString(),
		ActivityID:      activityID,
		PausedAt:        from,
		ResumedAt:       &end,
		DurationMinutes: timeledger.RoundMinutes(to.Sub(from)),
		PausedBy:        actor,
		ResumedBy:       actor,
	}
	if err := t.pauses.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to record pause gap: %w", err)
	}
	return &p, nil
}

// FindOpen returns the open pause, or nil when there is none.
func (t *Tracker) FindOpen(ctx context.Context, activityID string) (*storage.Pause, error) {
	p, err := t.pauses.FindOpen(ctx, activityID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if errors.Is(err, storage.ErrDuplicateOpen) {
		return nil, apperrors.Wrap(apperrors.CodeConsistency,
			fmt.Sprintf("activity %s has more than one open pause", activityID), err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open pause: %w", err)
	}
	return p, nil
}

// List returns every pause of the activity ordered by start.
func (t *Tracker) List(ctx context.Context, activityID string) ([]storage.Pause, error) {
	pauses, err := t.pauses.ListByActivity(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pauses: %w", err)
	}
	return pauses, nil
}

// TotalPause sums closed pauses plus the open one up to effectiveEnd.
func (t *Tracker) TotalPause(ctx context.Context, activityID string, effectiveEnd time.Time) (time.Duration, error) {
	pauses, err := t.List(ctx, activityID)
	if err != nil {
		return 0, err
	}
	return Total(pauses, effectiveEnd), nil
}

// TotalPauseHours is TotalPause in unrounded hours.
func (t *Tracker) TotalPauseHours(ctx context.Context, activityID string, effectiveEnd time.Time) (decimal.Decimal, error) {
	total, err := t.TotalPause(ctx, activityID, effectiveEnd)
	if err != nil {
		return decimal.Zero, err
	}
	return timeledger.Hours(total), nil
}

// Total sums pause durations. An open pause counts up to effectiveEnd and never beyond it.
func Total(pauses []storage.Pause, effectiveEnd time.Time) time.Duration {
	var total time.Duration
	for _, p := range pauses {
		if p.ResumedAt != nil {
			total += timeledger.AbsDiff(*p.ResumedAt, p.PausedAt)
			continue
		}
		if effectiveEnd.After(p.PausedAt) {
			total += effectiveEnd.Sub(p.PausedAt)
		}
	}
	return total
}

// Intervals converts pauses into ledger intervals.
func Intervals(pauses []storage.Pause) []timeledger.Interval {
	out := make([]timeledger.Interval, len(pauses))
	for i, p := range pauses {
		out[i] = timeledger.Interval{Start: p.PausedAt, End: p.ResumedAt}
	}
	return out
}
