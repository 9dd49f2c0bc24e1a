// Package activity implements the activity state machine. Every transition
// runs under a per-activity lock, recalculates the activity price explicitly
// and then rolls the result up to the owning session.
package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goodtune/lounge/internal/apperrors"
	"github.com/goodtune/lounge/internal/clock"
	"github.com/goodtune/lounge/internal/devices"
	"github.com/goodtune/lounge/internal/metrics"
	"github.com/goodtune/lounge/internal/mode"
	"github.com/goodtune/lounge/internal/pause"
	"github.com/goodtune/lounge/internal/pricing"
	"github.com/goodtune/lounge/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultLockWait bounds how long a transition waits for a contended lock.
const DefaultLockWait = 5 * time.Second

// ErrDeviceInUse is wrapped by DeviceConflict errors when another activity holds the device.
var ErrDeviceInUse = errors.New("device already in use")

// Rollup propagates activity changes to the owning session.
type Rollup interface {
	RecalcTotal(ctx context.Context, sessionID string) error
	MaybeAutoEnd(ctx context.Context, sessionID string) error
	Reactivate(ctx context.Context, sessionID string) error
	// Activate marks a paused session active once one of its activities runs.
	Activate(ctx context.Context, sessionID string) error
}

// Config holds lifecycle configuration
type Config struct {
	LockWait time.Duration
}

// CreateRequest describes a new activity. An empty DeviceID creates a pause-type activity.
type CreateRequest struct {
	SessionID string        `validate:"required"`
	DeviceID  string        `validate:"omitempty,max=64"`
	Mode      storage.Mode  `validate:"omitempty,oneof=single multi"`
	StartedAt time.Time     // zero means now
	Duration  time.Duration `validate:"gte=0"` // planned length; zero means open-ended
	Actor     string        `validate:"required"`
}

// Lifecycle drives activity state transitions
type Lifecycle struct {
	sessions   storage.SessionStore
	activities storage.ActivityStore
	locker     storage.Locker
	devices    *devices.Directory
	pauses     *pause.Tracker
	modes      *mode.Tracker
	pricing    *pricing.Engine
	rollup     Rollup
	clock      clock.Clock
	validate   *validator.Validate
	lockWait   time.Duration
	logger     zerolog.Logger
}

// NewLifecycle creates a new activity lifecycle
func NewLifecycle(
	store storage.Store,
	dir *devices.Directory,
	pauses *pause.Tracker,
	modes *mode.Tracker,
	engine *pricing.Engine,
	clk clock.Clock,
	config Config,
	logger zerolog.Logger,
) *Lifecycle {
	if config.LockWait <= 0 {
		config.LockWait = DefaultLockWait
	}

	return &Lifecycle{
		sessions:   store.Sessions(),
		activities: store.Activities(),
		locker:     store.Locker(),
		devices:    dir,
		pauses:     pauses,
		modes:      modes,
		pricing:    engine,
		clock:      clk,
		validate:   validator.New(),
		lockWait:   config.LockWait,
		logger:     logger.With().Str("component", "activity-lifecycle").Logger(),
	}
}

// SetRollup sets the session aggregator notified after each transition
func (l *Lifecycle) SetRollup(r Rollup) {
	l.rollup = r
}

// Get returns an activity by id
func (l *Lifecycle) Get(ctx context.Context, id string) (*storage.Activity, error) {
	a, err := l.activities.Get(ctx, id)
	if err != nil {
		return nil, apperrors.FromStorage("activity", id, err)
	}
	return a, nil
}

// ListBySession returns a session's activities ordered by start
func (l *Lifecycle) ListBySession(ctx context.Context, sessionID string) ([]storage.Activity, error) {
	activities, err := l.activities.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities of session %s: %w", sessionID, err)
	}
	return activities, nil
}

// Create starts a new activity in a session.
func (l *Lifecycle) Create(ctx context.Context, req CreateRequest) (*storage.Activity, error) {
	if req.Mode == "" {
		req.Mode = storage.ModeSingle
	}
	if err := l.validate.Struct(req); err != nil {
		return nil, apperrors.FromValidator(err)
	}

	now := l.clock.Now()
	start := req.StartedAt
	if start.IsZero() {
		start = now
	}

	a := storage.Activity{
		ID:            uuid.NewString(),
		SessionID:     req.SessionID,
		Type:          storage.ActivityPause,
		DeviceID:      req.DeviceID,
		Mode:          req.Mode,
		Status:        storage.ActivityActive,
		StartedAt:     start,
		DurationHours: decimal.Zero,
		TotalPrice:    decimal.Zero,
		CreatedBy:     req.Actor,
	}
	if req.DeviceID != "" {
		a.Type = storage.ActivityDeviceUse
	}

	if a.DeviceID != "" {
		unlock, err := l.lock(ctx, "device", a.DeviceID)
		if err != nil {
			return nil, err
		}
		defer unlock()

		if err := l.claimDevice(ctx, a.DeviceID, ""); err != nil {
			return nil, err
		}
	}

	if err := l.checkSessionOpen(ctx, a.SessionID); err != nil {
		return nil, err
	}

	if req.Duration > 0 {
		scheduled := start.Add(req.Duration)
		a.EndedAt = &scheduled
		estimate, err := l.pricing.InitialEstimate(ctx, a, req.Duration)
		if err != nil {
			return nil, err
		}
		a.TotalPrice = estimate
	}

	if err := l.activities.Upsert(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to store activity: %w", err)
	}
	if _, err := l.modes.RecordInitial(ctx, a.ID, a.Mode, start, req.Actor); err != nil {
		return nil, err
	}
	if a.DeviceID != "" {
		if err := l.devices.SetStatus(ctx, a.DeviceID, storage.DeviceInUse); err != nil {
			return nil, err
		}
	}

	if err := l.recalcSession(ctx, a.SessionID); err != nil {
		return nil, err
	}
	if err := l.activateSession(ctx, a.SessionID); err != nil {
		return nil, err
	}

	metrics.ActivityTransitions.WithLabelValues("create").Inc()
	metrics.ActiveActivities.Inc()
	l.logger.Info().
		Str("activity_id", a.ID).
		Str("session_id", a.SessionID).
		Str("device_id", a.DeviceID).
		Str("mode", string(a.Mode)).
		Str("status", string(a.Status)).
		Dur("planned", req.Duration).
		Msg("Activity created")

	return &a, nil
}

// Mutate runs fn under the activity lock, then refreshes the activity price
// and the session total. Product orders use it to keep both current.
func (l *Lifecycle) Mutate(ctx context.Context, id string, fn func(ctx context.Context, a storage.Activity) error) (*storage.Activity, error) {
	unlock, err := l.lock(ctx, "activity", id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(ctx, *a); err != nil {
		return nil, err
	}

	refreshed, err := l.refresh(ctx, *a)
	if err != nil {
		return nil, err
	}
	if err := l.recalcSession(ctx, a.SessionID); err != nil {
		return nil, err
	}
	return refreshed, nil
}

// refresh reprices an activity at the instant its state implies.
func (l *Lifecycle) refresh(ctx context.Context, a storage.Activity) (*storage.Activity, error) {
	now := l.clock.Now()
	switch a.Status {
	case storage.ActivityEnded:
		if a.EndedAt == nil {
			return nil, apperrors.Consistency("ended activity %s has no end time", a.ID)
		}
		return l.pricing.Recalculate(ctx, a.ID, *a.EndedAt)
	case storage.ActivityActive:
		if a.Scheduled(now) {
			return l.pricing.RecalculateForResume(ctx, a.ID, now)
		}
		return l.pricing.Recalculate(ctx, a.ID, now)
	case storage.ActivityPaused:
		return l.pricing.Recalculate(ctx, a.ID, now)
	default:
		return nil, apperrors.Consistency("activity %s has unknown status %q", a.ID, a.Status)
	}
}

// claimDevice checks that a device can be attached. Caller holds the device lock.
// self is excluded from the holder check so a reopened activity can reclaim its device.
func (l *Lifecycle) claimDevice(ctx context.Context, deviceID, self string) error {
	device, err := l.devices.Get(ctx, deviceID)
	if err != nil {
		return err
	}

	switch device.Status {
	case storage.DeviceMaintenance:
		return apperrors.DeviceUnavailable(deviceID, string(device.Status))
	case storage.DeviceAvailable, storage.DeviceInUse:
	default:
		return apperrors.Consistency("device %s has unknown status %q", deviceID, device.Status)
	}

	holders, err := l.activities.FindNonEndedByDevice(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("failed to find holders of device %s: %w", deviceID, err)
	}
	for _, h := range holders {
		if h.ID != self {
			e := apperrors.DeviceConflict(deviceID, h.ID)
			e.Cause = ErrDeviceInUse
			return e
		}
	}

	if device.Status == storage.DeviceInUse {
		e := apperrors.DeviceConflict(deviceID, "")
		e.Cause = ErrDeviceInUse
		return e
	}
	return nil
}

// releaseDevice marks the device available once no non-ended activity holds it.
func (l *Lifecycle) releaseDevice(ctx context.Context, deviceID string) error {
	unlock, err := l.lock(ctx, "device", deviceID)
	if err != nil {
		return err
	}
	defer unlock()

	holders, err := l.activities.FindNonEndedByDevice(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("failed to find holders of device %s: %w", deviceID, err)
	}
	if len(holders) > 0 {
		return nil
	}

	device, err := l.devices.Get(ctx, deviceID)
	if err != nil {
		return err
	}
	// Leave maintenance set by staff alone
	if device.Status != storage.DeviceInUse {
		return nil
	}
	return l.devices.SetStatus(ctx, deviceID, storage.DeviceAvailable)
}

func (l *Lifecycle) checkSessionOpen(ctx context.Context, sessionID string) error {
	s, err := l.sessions.Get(ctx, sessionID)
	if err != nil {
		return apperrors.FromStorage("session", sessionID, err)
	}
	if s.Status == storage.SessionEnded {
		return apperrors.InvalidTransition("session", sessionID, string(s.Status), "add activity")
	}
	return nil
}

func (l *Lifecycle) activateSession(ctx context.Context, sessionID string) error {
	if l.rollup == nil {
		return nil
	}
	return l.rollup.Activate(ctx, sessionID)
}

func (l *Lifecycle) recalcSession(ctx context.Context, sessionID string) error {
	if l.rollup == nil {
		return nil
	}
	return l.rollup.RecalcTotal(ctx, sessionID)
}

// lock acquires a per-entity lock, waiting at most lockWait.
func (l *Lifecycle) lock(ctx context.Context, kind, id string) (storage.Unlock, error) {
	lockCtx, cancel := context.WithTimeout(ctx, l.lockWait)
	defer cancel()

	unlock, err := l.locker.Lock(lockCtx, storage.LockKey(kind, id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s %s: %w", kind, id, err)
	}
	return unlock, nil
}
