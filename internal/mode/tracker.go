// Package mode records the single/multi periods of an activity. Periods are
// consecutive and at most one is open.
package mode

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
)

// Period is one span billed at a single mode. Interval.End is nil for the current period.
type Period struct {
	Mode     storage.Mode
	Interval timeledger.Interval
}

// Tracker manages mode-change records
type Tracker struct {
	changes storage.ModeChangeStore
	logger  zerolog.Logger
}

// NewTracker creates a new mode tracker
func NewTracker(changes storage.ModeChangeStore, logger zerolog.Logger) *Tracker {
	return &Tracker{
		changes: changes,
		logger:  logger.With().Str("component", "mode-tracker").Logger(),
	}
}

// RecordInitial opens the first period of an activity.
func (t *Tracker) RecordInitial(ctx context.Context, activityID string, m storage.Mode, at time.Time, actor string) (*storage.ModeChange, error) {
	if !m.Valid() {
		return nil, apperrors.Validation("invalid mode %q", m)
	}

	change := storage.ModeChange{
		ID:         uuid.NewString(),
		ActivityID: activityID,
		ToMode:     m,
		ChangedAt:  at,
		ChangedBy:  actor,
	}
	if err := t.changes.Upsert(ctx, change); err != nil {
		return nil, fmt.Errorf("failed to record initial mode: %w", err)
	}
	return &change, nil
}

// ChangeMode closes the current period at `at` and opens one in newMode.
// It reports false and writes nothing when newMode is already current.
func (t *Tracker) ChangeMode(ctx context.Context, activityID string, newMode storage.Mode, at time.Time, actor string) (bool, error) {
	if !newMode.Valid() {
		return false, apperrors.Validation("invalid mode %q", newMode)
	}

	current, err := t.Current(ctx, activityID)
	if err != nil {
		return false, err
	}
	if current == nil {
		return false, apperrors.Consistency("activity %s has no open mode period", activityID)
	}
	if current.ToMode == newMode {
		return false, nil
	}
	if at.Before(current.ChangedAt) {
		return false, apperrors.Validation("mode change at %s precedes current period start %s",
			at.Format(time.RFC3339), current.ChangedAt.Format(time.RFC3339))
	}

	ended := at
	current.EndedAt = &ended
	if err := t.changes.Upsert(ctx, *current); err != nil {
		return false, fmt.Errorf("failed to close mode period: %w", err)
	}

	from := current.ToMode
	next := storage.ModeChange{
		ID:         uuid.NewString(),
		ActivityID: activityID,
		Seq:        current.Seq + 1,
		FromMode:   &from,
		ToMode:     newMode,
		ChangedAt:  at,
		ChangedBy:  actor,
	}
	if err := t.changes.Upsert(ctx, next); err != nil {
		return false, fmt.Errorf("failed to open mode period: %w", err)
	}

	t.logger.Debug().
		Str("activity_id", activityID).
		Str("from", string(from)).
		Str("to", string(newMode)).
		Time("at", at).
		Msg("Mode changed")

	return true, nil
}

// CloseAt ends the activity's mode history at `at`. Periods are clipped so
// none starts or ends after `at`; a period that began later collapses to a
// zero-length period at `at`.
func (t *Tracker) CloseAt(ctx context.Context, activityID string, at time.Time) error {
	changes, err := t.list(ctx, activityID)
	if err != nil {
		return err
	}

	for _, c := range changes {
		clipped := c
		if clipped.ChangedAt.After(at) {
			clipped.ChangedAt = at
		}
		if clipped.EndedAt == nil || clipped.EndedAt.After(at) {
			ended := at
			clipped.EndedAt = &ended
		}
		if clipped.ChangedAt.Equal(c.ChangedAt) && c.EndedAt != nil && clipped.EndedAt.Equal(*c.EndedAt) {
			continue
		}
		if err := t.changes.Upsert(ctx, clipped); err != nil {
			return fmt.Errorf("failed to close mode period: %w", err)
		}
		if c.ChangedAt.After(at) {
			t.logger.Debug().
				Str("activity_id", activityID).
				Str("mode", string(c.ToMode)).
				Time("changed_at", c.ChangedAt).
				Time("at", at).
				Msg("Mode period collapsed at activity end")
		}
	}
	return nil
}

// ReopenLast clears the end of the latest period so billing continues in that mode.
func (t *Tracker) ReopenLast(ctx context.Context, activityID string) (*storage.ModeChange, error) {
	changes, err := t.list(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, nil
	}

	last := changes[len(changes)-1]
	last.EndedAt = nil
	if err := t.changes.Upsert(ctx, last); err != nil {
		return nil, fmt.Errorf("failed to reopen mode period: %w", err)
	}
	return &last, nil
}

// Current returns the open period, or nil when there is none.
func (t *Tracker) Current(ctx context.Context, activityID string) (*storage.ModeChange, error) {
	change, err := t.changes.FindOpen(ctx, activityID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if errors.Is(err, storage.ErrDuplicateOpen) {
		return nil, apperrors.Wrap(apperrors.CodeConsistency,
			fmt.Sprintf("activity %s has more than one open mode period", activityID), err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open mode period: %w", err)
	}
	return change, nil
}

// Periods returns the activity's mode periods in order.
func (t *Tracker) Periods(ctx context.Context, activityID string) ([]Period, error) {
	changes, err := t.list(ctx, activityID)
	if err != nil {
		return nil, err
	}
	return Periods(changes), nil
}

// Periods converts ordered mode-change records into periods.
func Periods(changes []storage.ModeChange) []Period {
	periods := make([]Period, len(changes))
	for i, c := range changes {
		periods[i] = Period{
			Mode:     c.ToMode,
			Interval: timeledger.Interval{Start: c.ChangedAt, End: c.EndedAt},
		}
	}
	return periods
}

func (t *Tracker) list(ctx context.Context, activityID string) ([]storage.ModeChange, error) {
	changes, err := t.changes.ListByActivity(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mode changes: %w", err)
	}
	return changes, nil
}
