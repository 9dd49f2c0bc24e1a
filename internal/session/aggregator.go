// Package session rolls activity prices up into sessions and cascades
// session-wide operations down to activities.
//
// Session writes happen under the session lock. Operations that cascade into
// activities never hold it while doing so, since activity transitions call
// back into the aggregator and locks are taken activity first.
package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goodtune/lounge/internal/activity"
	"github.com/goodtune/lounge/internal/apperrors"
	"github.com/goodtune/lounge/internal/clock"
	"github.com/goodtune/lounge/internal/pricing"
	"github.com/goodtune/lounge/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Config holds aggregator configuration
type Config struct {
	LockWait time.Duration
}

// StartRequest opens a session with its first activity. Without a device the
// first activity is a pause-type (chill-out) activity.
type StartRequest struct {
	CustomerID string        `validate:"required"`
	DeviceID   string        `validate:"omitempty,max=64"`
	Mode       storage.Mode  `validate:"omitempty,oneof=single multi"`
	Duration   time.Duration `validate:"gte=0"`
	Actor      string        `validate:"required"`
}

// EndRequest closes a session. Confirm is required while activities are still running.
type EndRequest struct {
	Confirm  bool
	Discount decimal.Decimal
	Actor    string `validate:"required"`
}

// Aggregator maintains session totals and status
type Aggregator struct {
	sessions   storage.SessionStore
	activities storage.ActivityStore
	locker     storage.Locker
	orders     storage.OrderStore
	lifecycle  *activity.Lifecycle
	pricing    *pricing.Engine
	clock      clock.Clock
	validate   *validator.Validate
	lockWait   time.Duration
	logger     zerolog.Logger
}

// NewAggregator creates a new session aggregator and registers it as the
// lifecycle's rollup.
func NewAggregator(store storage.Store, lifecycle *activity.Lifecycle, engine *pricing.Engine, clk clock.Clock, config Config, logger zerolog.Logger) *Aggregator {
	if config.LockWait <= 0 {
		config.LockWait = activity.DefaultLockWait
	}

	a := &Aggregator{
		sessions:   store.Sessions(),
		activities: store.Activities(),
		orders:     store.Orders(),
		locker:     store.Locker(),
		lifecycle:  lifecycle,
		pricing:    engine,
		clock:      clk,
		validate:   validator.New(),
		lockWait:   config.LockWait,
		logger:     logger.With().Str("component", "session-aggregator").Logger(),
	}
	lifecycle.SetRollup(a)
	return a
}

// Get returns a session by id
func (a *Aggregator) Get(ctx context.Context, id string) (*storage.Session, error) {
	s, err := a.sessions.Get(ctx, id)
	if err != nil {
		return nil, apperrors.FromStorage("session", id, err)
	}
	return s, nil
}

// List returns sessions matching filter
func (a *Aggregator) List(ctx context.Context, filter storage.SessionFilter) ([]storage.Session, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperrors.Validation("invalid session status %q", filter.Status)
	}
	return a.sessions.List(ctx, filter)
}

// Start creates a session and its first activity.
func (a *Aggregator) Start(ctx context.Context, req StartRequest) (*storage.Session, *storage.Activity, error) {
	if err := a.validate.Struct(req); err != nil {
		return nil, nil, apperrors.FromValidator(err)
	}

	s := storage.Session{
		ID:         uuid.NewString(),
		CustomerID: req.CustomerID,
		CreatedBy:  req.Actor,
		Type:       storage.SessionChillout,
		Status:     storage.SessionActive,
		StartedAt:  a.clock.Now(),
		TotalPrice: decimal.Zero,
		Discount:   decimal.Zero,
	}
	if req.DeviceID != "" {
		s.Type = storage.SessionPlaying
	}
	if err := a.sessions.Upsert(ctx, s); err != nil {
		return nil, nil, fmt.Errorf("failed to store session: %w", err)
	}

	first, err := a.lifecycle.Create(ctx, activity.CreateRequest{
		SessionID: s.ID,
		DeviceID:  req.DeviceID,
		Mode:      req.Mode,
		StartedAt: s.StartedAt,
		Duration:  req.Duration,
		Actor:     req.Actor,
	})
	if err != nil {
		a.abandon(ctx, s)
		return nil, nil, err
	}

	started, err := a.Get(ctx, s.ID)
	if err != nil {
		return nil, nil, err
	}

	a.logger.Info().
		Str("session_id", s.ID).
		Str("customer_id", s.CustomerID).
		Str("type", string(s.Type)).
		Str("activity_id", first.ID).
		Msg("Session started")

	return started, first, nil
}

// abandon removes a session whose first activity could not be created. If an
// activity record was written before the failure the session is kept and
// closed instead, so the record is never orphaned.
func (a *Aggregator) abandon(ctx context.Context, s storage.Session) {
	activities, err := a.activities.ListBySession(ctx, s.ID)
	if err == nil && len(activities) == 0 {
		if err := a.sessions.Delete(ctx, s.ID); err != nil {
			a.logger.Error().Err(err).Str("session_id", s.ID).Msg("Failed to remove abandoned session")
		}
		return
	}

	now := a.clock.Now()
	s.Status = storage.SessionEnded
	s.EndedAt = &now
	if err := a.sessions.Upsert(ctx, s); err != nil {
		a.logger.Error().Err(err).Str("session_id", s.ID).Msg("Failed to close abandoned session")
		return
	}
	a.logger.Warn().Str("session_id", s.ID).Msg("Abandoned session closed with partial activity")
}

// End ends every running activity (Confirm required), applies the discount
// and closes the session. Ending an ended session returns it unchanged.
func (a *Aggregator) End(ctx context.Context, id string, req EndRequest) (*storage.Session, error) {
	if err := a.validate.Struct(req); err != nil {
		return nil, apperrors.FromValidator(err)
	}
	if req.Discount.IsNegative() {
		return nil, apperrors.Validation("discount must not be negative")
	}

	s, err := a.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status == storage.SessionEnded {
		return s, nil
	}

	running, err := a.nonEnded(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(running) > 0 && !req.Confirm {
		e := apperrors.InvalidTransition("session", id, string(s.Status), "end")
		e.Message = fmt.Sprintf("session %s has %d running activities; confirm to end them", id, len(running))
		e.Metadata["active_activities"] = strconv.Itoa(len(running))
		return nil, e
	}

	for _, act := range running {
		if _, err := a.lifecycle.End(ctx, act.ID, req.Actor); err != nil {
			return nil, fmt.Errorf("failed to end activity %s: %w", act.ID, err)
		}
	}

	unlock, err := a.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s, err = a.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	activities, err := a.activities.ListBySession(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, act := range activities {
		if act.Status != storage.ActivityEnded {
			return nil, apperrors.InvalidTransition("session", id, string(s.Status), "end")
		}
	}

	if s.Status != storage.SessionEnded {
		end := latestEnd(activities, a.clock.Now())
		s.Status = storage.SessionEnded
		s.EndedAt = &end
	}
	s.Discount = req.Discount
	s.TotalPrice = sumTotals(activities)
	if err := a.sessions.Upsert(ctx, *s); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	a.logger.Info().
		Str("session_id", id).
		Str("total_price", s.TotalPrice.String()).
		Str("discount", s.Discount.String()).
		Str("final_price", FinalPrice(*s).String()).
		Msg("Session ended")

	return s, nil
}

// PauseAll pauses every active activity of the session.
func (a *Aggregator) PauseAll(ctx context.Context, id, actor string) (*storage.Session, error) {
	return a.cascade(ctx, id, "pause all", storage.ActivityActive, storage.SessionPaused,
		func(ctx context.Context, activityID string) error {
			_, err := a.lifecycle.Pause(ctx, activityID, actor)
			return err
		})
}

// ResumeAll resumes every paused activity of the session.
func (a *Aggregator) ResumeAll(ctx context.Context, id, actor string) (*storage.Session, error) {
	return a.cascade(ctx, id, "resume all", storage.ActivityPaused, storage.SessionActive,
		func(ctx context.Context, activityID string) error {
			_, err := a.lifecycle.Resume(ctx, activityID, actor)
			return err
		})
}

func (a *Aggregator) cascade(ctx context.Context, id, op string, from storage.ActivityStatus, to storage.SessionStatus, apply func(context.Context, string) error) (*storage.Session, error) {
	s, err := a.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status == storage.SessionEnded {
		return nil, apperrors.InvalidTransition("session", id, string(s.Status), op)
	}

	activities, err := a.activities.ListBySession(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, act := range activities {
		if act.Status != from {
			continue
		}
		if err := apply(ctx, act.ID); err != nil {
			return nil, fmt.Errorf("failed to %s activity %s: %w", op, act.ID, err)
		}
	}

	unlock, err := a.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if s, err = a.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.Status == storage.SessionEnded {
		return s, nil
	}
	s.Status = to
	if err := a.sessions.Upsert(ctx, *s); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	a.logger.Info().Str("session_id", id).Str("status", string(to)).Msg("Session " + op)
	return s, nil
}

// RecalcTotal sets the session total to the sum of its activity totals.
// It writes only the total and never triggers activity recalculation.
func (a *Aggregator) RecalcTotal(ctx context.Context, sessionID string) error {
	unlock, err := a.lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	activities, err := a.activities.ListBySession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to list activities of session %s: %w", sessionID, err)
	}

	total := sumTotals(activities)
	if err := a.sessions.SetTotal(ctx, sessionID, total); err != nil {
		return apperrors.FromStorage("session", sessionID, err)
	}

	a.logger.Debug().Str("session_id", sessionID).Str("total_price", total.String()).Msg("Session total recalculated")
	return nil
}

// MaybeAutoEnd ends the session once none of its activities is running.
func (a *Aggregator) MaybeAutoEnd(ctx context.Context, sessionID string) error {
	unlock, err := a.lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	s, err := a.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Status == storage.SessionEnded {
		return nil
	}

	running, err := a.activities.CountNonEnded(ctx, sessionID)
	if err != nil {
		return err
	}
	if running > 0 {
		return nil
	}

	activities, err := a.activities.ListBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	end := latestEnd(activities, a.clock.Now())
	s.Status = storage.SessionEnded
	s.EndedAt = &end
	s.TotalPrice = sumTotals(activities)
	if err := a.sessions.Upsert(ctx, *s); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	a.logger.Info().Str("session_id", sessionID).Time("ended_at", end).Msg("Session auto-ended")
	return nil
}

// Reactivate reopens an ended session after one of its activities was reopened.
func (a *Aggregator) Reactivate(ctx context.Context, sessionID string) error {
	unlock, err := a.lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	s, err := a.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Status != storage.SessionEnded {
		return nil
	}

	s.Status = storage.SessionActive
	s.EndedAt = nil
	if err := a.sessions.Upsert(ctx, *s); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	a.logger.Info().Str("session_id", sessionID).Msg("Session reactivated")
	return nil
}

// Activate returns a paused session to active after one of its activities
// was resumed or created on its own.
func (a *Aggregator) Activate(ctx context.Context, sessionID string) error {
	unlock, err := a.lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	s, err := a.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Status != storage.SessionPaused {
		return nil
	}

	s.Status = storage.SessionActive
	if err := a.sessions.Upsert(ctx, *s); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	a.logger.Info().Str("session_id", sessionID).Msg("Session active again")
	return nil
}

// FinalPrice is the payable amount: total minus discount, never below zero.
func FinalPrice(s storage.Session) decimal.Decimal {
	final := s.TotalPrice.Sub(s.Discount)
	if final.IsNegative() {
		return decimal.Zero
	}
	return final.Round(2)
}

func (a *Aggregator) nonEnded(ctx context.Context, sessionID string) ([]storage.Activity, error) {
	activities, err := a.activities.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	running := activities[:0]
	for _, act := range activities {
		if act.Status != storage.ActivityEnded {
			running = append(running, act)
		}
	}
	return running, nil
}

func (a *Aggregator) lock(ctx context.Context, sessionID string) (storage.Unlock, error) {
	lockCtx, cancel := context.WithTimeout(ctx, a.lockWait)
	defer cancel()

	unlock, err := a.locker.Lock(lockCtx, storage.LockKey("session", sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock session %s: %w", sessionID, err)
	}
	return unlock, nil
}

func sumTotals(activities []storage.Activity) decimal.Decimal {
	total := decimal.Zero
	for _, act := range activities {
		total = total.Add(act.TotalPrice)
	}
	return total.Round(2)
}

// latestEnd is the latest actual end among ended activities, or fallback when there is none.
func latestEnd(activities []storage.Activity, fallback time.Time) time.Time {
	var latest time.Time
	for _, act := range activities {
		if act.Status == storage.ActivityEnded && act.EndedAt != nil && act.EndedAt.After(latest) {
			latest = *act.EndedAt
		}
	}
	if latest.IsZero() {
		return fallback
	}
	return latest
}
