package activity

import (
	"context"
	"errors"
	"time"

	"github.com/goodtune/lounge/internal/apperrors"
	"github.com/goodtune/lounge/internal/metrics"
	"github.com/goodtune/lounge/internal/storage"
)

// errNotExpired tells the sweep that a candidate changed before it got the lock.
var errNotExpired = errors.New("activity no longer expired")

// Pause freezes billing at the current instant. Only active activities can pause.
func (l *Lifecycle) Pause(ctx context.Context, id, actor string) (*storage.Activity, error) {
	unlock, err := l.lock(ctx, "activity", id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case storage.ActivityActive:
	case storage.ActivityPaused, storage.ActivityEnded:
		return nil, apperrors.InvalidTransition("activity", id, string(a.Status), "pause")
	default:
		return nil, apperrors.Consistency("activity %s has unknown status %q", id, a.Status)
	}

	now := l.clock.Now()
	if _, err := l.pauses.Open(ctx, id, actor, now); err != nil {
		return nil, err
	}

	a.Status = storage.ActivityPaused
	if err := l.activities.Upsert(ctx, *a); err != nil {
		return nil, err
	}

	updated, err := l.pricing.Recalculate(ctx, id, now)
	if err != nil {
		return nil, err
	}
	if err := l.recalcSession(ctx, a.SessionID); err != nil {
		return nil, err
	}

	l.transitioned("pause", updated)
	return updated, nil
}

// Resume restarts billing. Only paused activities can resume. A scheduled
// activity is repriced as elapsed time plus the remaining plan.
func (l *Lifecycle) Resume(ctx context.Context, id, actor string) (*storage.Activity, error) {
	unlock, err := l.lock(ctx, "activity", id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case storage.ActivityPaused:
	case storage.ActivityActive, storage.ActivityEnded:
		return nil, apperrors.InvalidTransition("activity", id, string(a.Status), "resume")
	default:
		return nil, apperrors.Consistency("activity %s has unknown status %q", id, a.Status)
	}

	now := l.clock.Now()
	if _, err := l.pauses.Close(ctx, id, actor, now); err != nil {
		return nil, err
	}

	a.Status = storage.ActivityActive
	if err := l.activities.Upsert(ctx, *a); err != nil {
		return nil, err
	}

	if a.Scheduled(now) {
		if a, err = l.pricing.RecalculateForResume(ctx, id, now); err != nil {
			return nil, err
		}
		if err := l.recalcSession(ctx, a.SessionID); err != nil {
			return nil, err
		}
	}
	if err := l.activateSession(ctx, a.SessionID); err != nil {
		return nil, err
	}

	l.transitioned("resume", a)
	return a, nil
}

// ChangeMode switches the pricing mode of an active or paused activity.
// Changing to the current mode is a no-op.
func (l *Lifecycle) ChangeMode(ctx context.Context, id string, newMode storage.Mode, actor string) (*storage.Activity, error) {
	if !newMode.Valid() {
		return nil, apperrors.Validation("invalid mode %q", newMode)
	}

	unlock, err := l.lock(ctx, "activity", id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case storage.ActivityActive, storage.ActivityPaused:
	case storage.ActivityEnded:
		return nil, apperrors.InvalidTransition("activity", id, string(a.Status), "change mode")
	default:
		return nil, apperrors.Consistency("activity %s has unknown status %q", id, a.Status)
	}

	now := l.clock.Now()
	changed, err := l.modes.ChangeMode(ctx, id, newMode, now, actor)
	if err != nil {
		return nil, err
	}
	if !changed {
		return a, nil
	}

	a.Mode = newMode
	if err := l.activities.Upsert(ctx, *a); err != nil {
		return nil, err
	}

	if a.Scheduled(now) {
		a, err = l.pricing.RecalculateForResume(ctx, id, now)
	} else {
		a, err = l.pricing.Recalculate(ctx, id, now)
	}
	if err != nil {
		return nil, err
	}
	if err := l.recalcSession(ctx, a.SessionID); err != nil {
		return nil, err
	}

	l.transitioned("change_mode", a)
	return a, nil
}

// End stops an activity. A paused activity is billed up to the instant it
// was paused. Ending an ended activity returns it unchanged.
func (l *Lifecycle) End(ctx context.Context, id, actor string) (*storage.Activity, error) {
	return l.end(ctx, id, actor, nil)
}

// endExpired ends an activity at its scheduled end if it is still active and due at now.
func (l *Lifecycle) endExpired(ctx context.Context, id string, now time.Time) (*storage.Activity, error) {
	return l.end(ctx, id, "system", &now)
}

func (l *Lifecycle) end(ctx context.Context, id, actor string, expiredBy *time.Time) (*storage.Activity, error) {
	unlock, err := l.lock(ctx, "activity", id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var actualEnd time.Time
	switch {
	case expiredBy != nil:
		// Re-check under the lock; a user may have paused or ended it meanwhile
		if a.Status != storage.ActivityActive || a.EndedAt == nil || a.EndedAt.After(*expiredBy) {
			return nil, errNotExpired
		}
		actualEnd = *a.EndedAt
	case a.Status == storage.ActivityEnded:
		return a, nil
	case a.Status == storage.ActivityActive:
		actualEnd = l.clock.Now()
	case a.Status == storage.ActivityPaused:
		open, err := l.pauses.FindOpen(ctx, id)
		if err != nil {
			return nil, err
		}
		if open == nil {
			return nil, apperrors.Consistency("paused activity %s has no open pause", id)
		}
		actualEnd = open.PausedAt
	default:
		return nil, apperrors.Consistency("activity %s has unknown status %q", id, a.Status)
	}

	if a.Status == storage.ActivityPaused {
		if _, err := l.pauses.Close(ctx, id, actor, actualEnd); err != nil {
			return nil, err
		}
	}
	if err := l.modes.CloseAt(ctx, id, actualEnd); err != nil {
		return nil, err
	}

	a.Status = storage.ActivityEnded
	a.EndedAt = &actualEnd
	if err := l.activities.Upsert(ctx, *a); err != nil {
		return nil, err
	}

	ended, err := l.pricing.Recalculate(ctx, id, actualEnd)
	if err != nil {
		return nil, err
	}

	if ended.DeviceID != "" {
		if err := l.releaseDevice(ctx, ended.DeviceID); err != nil {
			return nil, err
		}
	}

	if l.rollup != nil {
		if err := l.rollup.RecalcTotal(ctx, ended.SessionID); err != nil {
			return nil, err
		}
		if err := l.rollup.MaybeAutoEnd(ctx, ended.SessionID); err != nil {
			return nil, err
		}
	}

	metrics.ActiveActivities.Dec()
	metrics.BilledAmount.WithLabelValues(string(ended.Type)).Add(ended.TotalPrice.InexactFloat64())
	l.transitioned("end", ended)
	return ended, nil
}

// Reopen returns an ended activity to active. The time it spent ended is
// recorded as a closed pause so it is never billed.
func (l *Lifecycle) Reopen(ctx context.Context, id, actor string) (*storage.Activity, error) {
	unlock, err := l.lock(ctx, "activity", id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case storage.ActivityEnded:
	case storage.ActivityActive, storage.ActivityPaused:
		return nil, apperrors.InvalidTransition("activity", id, string(a.Status), "reopen")
	default:
		return nil, apperrors.Consistency("activity %s has unknown status %q", id, a.Status)
	}
	if a.EndedAt == nil {
		return nil, apperrors.Consistency("ended activity %s has no end time", id)
	}

	if a.DeviceID != "" {
		unlockDevice, err := l.lock(ctx, "device", a.DeviceID)
		if err != nil {
			return nil, err
		}
		defer unlockDevice()

		if err := l.claimDevice(ctx, a.DeviceID, a.ID); err != nil {
			return nil, err
		}
	}

	now := l.clock.Now()
	if now.After(*a.EndedAt) {
		if _, err := l.pauses.RecordGap(ctx, id, actor, *a.EndedAt, now); err != nil {
			return nil, err
		}
	}
	if _, err := l.modes.ReopenLast(ctx, id); err != nil {
		return nil, err
	}

	a.Status = storage.ActivityActive
	a.EndedAt = nil
	if err := l.activities.Upsert(ctx, *a); err != nil {
		return nil, err
	}
	if a.DeviceID != "" {
		if err := l.devices.SetStatus(ctx, a.DeviceID, storage.DeviceInUse); err != nil {
			return nil, err
		}
	}

	if l.rollup != nil {
		if err := l.rollup.Reactivate(ctx, a.SessionID); err != nil {
			return nil, err
		}
	}

	reopened, err := l.pricing.Recalculate(ctx, id, now)
	if err != nil {
		return nil, err
	}
	if err := l.recalcSession(ctx, a.SessionID); err != nil {
		return nil, err
	}

	metrics.ActiveActivities.Inc()
	l.transitioned("reopen", reopened)
	return reopened, nil
}

// AutoEndExpired ends every active activity whose scheduled end has passed,
// billing each up to its scheduled end. Failures are logged and skipped.
func (l *Lifecycle) AutoEndExpired(ctx context.Context) (int, error) {
	now := l.clock.Now()
	expired, err := l.activities.FindExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	ended := 0
	for _, candidate := range expired {
		if ctx.Err() != nil {
			return ended, ctx.Err()
		}

		_, err := l.endExpired(ctx, candidate.ID, now)
		switch {
		case err == nil:
			ended++
		case errors.Is(err, errNotExpired):
			l.logger.Debug().Str("activity_id", candidate.ID).Msg("Activity changed before auto-end, skipping")
		default:
			l.logger.Error().Err(err).
				Str("activity_id", candidate.ID).
				Str("session_id", candidate.SessionID).
				Msg("Failed to auto-end activity")
		}
	}
	return ended, nil
}

func (l *Lifecycle) transitioned(transition string, a *storage.Activity) {
	metrics.ActivityTransitions.WithLabelValues(transition).Inc()
	l.logger.Info().
		Str("activity_id", a.ID).
		Str("session_id", a.SessionID).
		Str("device_id", a.DeviceID).
		Str("status", string(a.Status)).
		Str("total_price", a.TotalPrice.String()).
		Msg("Activity " + transition)
}
