// Package pricing computes activity prices from mode periods, pause intervals
// and product orders. Amounts are accumulated unrounded and rounded to two
// decimals only when written back.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/lounge/internal/apperrors"
	"github.com/goodtune/lounge/internal/devices"
	"github.com/goodtune/lounge/internal/metrics"
	"github.com/goodtune/lounge/internal/mode"
	"github.com/goodtune/lounge/internal/pause"
	"github.com/goodtune/lounge/internal/storage"
	"github.com/goodtune/lounge/internal/timeledger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RateSource resolves a device's hourly rates.
type RateSource interface {
	RateCard(ctx context.Context, deviceID string) (devices.RateCard, error)
}

// Usage is the billable time of an activity split by mode.
type Usage struct {
	Active      time.Duration
	Single      time.Duration
	Multi       time.Duration
	DevicePrice decimal.Decimal
}

// Quote is an unrounded price breakdown at an effective end.
type Quote struct {
	Usage
	Products decimal.Decimal
	Total    decimal.Decimal
}

// Engine prices activities
type Engine struct {
	activities storage.ActivityStore
	orders     storage.OrderStore
	pauses     *pause.Tracker
	modes      *mode.Tracker
	rates      RateSource
	logger     zerolog.Logger
}

// NewEngine creates a new pricing engine
func NewEngine(store storage.Store, pauses *pause.Tracker, modes *mode.Tracker, rates RateSource, logger zerolog.Logger) *Engine {
	return &Engine{
		activities: store.Activities(),
		orders:     store.Orders(),
		pauses:     pauses,
		modes:      modes,
		rates:      rates,
		logger:     logger.With().Str("component", "pricing-engine").Logger(),
	}
}

// DeviceUsage splits the activity's active time across its mode periods and
// prices it. Pause overlap is deducted per period. Without any mode records
// all active time is attributed to the activity's current mode.
func DeviceUsage(a storage.Activity, card devices.RateCard, periods []mode.Period, pauses []storage.Pause, effectiveEnd time.Time) Usage {
	subs := pause.Intervals(pauses)
	u := Usage{
		Active: timeledger.ActiveDuration(timeledger.Open(a.StartedAt), subs, effectiveEnd),
	}

	if len(periods) == 0 {
		u.add(a.Mode, u.Active)
	}
	for _, p := range periods {
		u.add(p.Mode, timeledger.ActiveDuration(p.Interval, subs, effectiveEnd))
	}

	u.DevicePrice = decimal.Zero
	if billable(a) {
		u.DevicePrice = timeledger.Hours(u.Single).Mul(card.Single).
			Add(timeledger.Hours(u.Multi).Mul(card.Multi))
	}
	return u
}

func (u *Usage) add(m storage.Mode, d time.Duration) {
	if m == storage.ModeMulti {
		u.Multi += d
		return
	}
	u.Single += d
}

// billable reports whether device time is charged. Pause-type activities only pay for products.
func billable(a storage.Activity) bool {
	return a.Type == storage.ActivityDeviceUse && a.DeviceID != ""
}

// Quote computes the activity's price breakdown up to effectiveEnd without persisting it.
func (e *Engine) Quote(ctx context.Context, a storage.Activity, effectiveEnd time.Time) (*Quote, error) {
	card, err := e.rateCard(ctx, a)
	if err != nil {
		return nil, err
	}

	periods, err := e.modes.Periods(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	pauses, err := e.pauses.List(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	products, err := e.ProductsTotal(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	q := &Quote{
		Usage:    DeviceUsage(a, card, periods, pauses, effectiveEnd),
		Products: products,
	}
	q.Total = q.DevicePrice.Add(q.Products)
	return q, nil
}

// DevicePrice is the unrounded device-usage price up to effectiveEnd.
func (e *Engine) DevicePrice(ctx context.Context, a storage.Activity, effectiveEnd time.Time) (decimal.Decimal, error) {
	q, err := e.Quote(ctx, a, effectiveEnd)
	if err != nil {
		return decimal.Zero, err
	}
	return q.DevicePrice, nil
}

// ProductsTotal sums the activity's product orders.
func (e *Engine) ProductsTotal(ctx context.Context, activityID string) (decimal.Decimal, error) {
	total, err := e.orders.SumTotals(ctx, activityID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum products for activity %s: %w", activityID, err)
	}
	return total, nil
}

// TotalPrice is device price plus products, rounded to 2 decimals.
func (e *Engine) TotalPrice(ctx context.Context, a storage.Activity, effectiveEnd time.Time) (decimal.Decimal, error) {
	q, err := e.Quote(ctx, a, effectiveEnd)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Total.Round(2), nil
}

// Recalculate reloads the activity, prices it up to effectiveEnd and stores
// duration_hours and total_price. Repeating it with the same effectiveEnd
// stores the same values.
func (e *Engine) Recalculate(ctx context.Context, activityID string, effectiveEnd time.Time) (*storage.Activity, error) {
	a, err := e.load(ctx, activityID)
	if err != nil {
		return nil, err
	}

	q, err := e.Quote(ctx, *a, effectiveEnd)
	if err != nil {
		return nil, err
	}

	a.DurationHours = timeledger.RoundHours(q.Active)
	a.TotalPrice = q.Total.Round(2)
	if err := e.save(ctx, a); err != nil {
		return nil, err
	}

	metrics.Recalculations.WithLabelValues("elapsed").Inc()
	e.logger.Debug().
		Str("activity_id", a.ID).
		Time("effective_end", effectiveEnd).
		Str("duration_hours", a.DurationHours.String()).
		Str("total_price", a.TotalPrice.String()).
		Msg("Activity recalculated")

	return a, nil
}

// RecalculateForResume prices a scheduled activity as the elapsed time so far
// plus the remaining scheduled time at the current mode's rate. Activities
// without a future scheduled end fall back to Recalculate.
func (e *Engine) RecalculateForResume(ctx context.Context, activityID string, now time.Time) (*storage.Activity, error) {
	a, err := e.load(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if !a.Scheduled(now) {
		return e.Recalculate(ctx, activityID, now)
	}

	q, err := e.Quote(ctx, *a, now)
	if err != nil {
		return nil, err
	}
	card, err := e.rateCard(ctx, *a)
	if err != nil {
		return nil, err
	}

	remaining := a.EndedAt.Sub(now)
	total := q.Total
	if billable(*a) {
		total = total.Add(timeledger.Hours(remaining).Mul(card.Rate(a.Mode)))
	}

	a.DurationHours = timeledger.RoundHours(q.Active + remaining)
	a.TotalPrice = total.Round(2)
	if err := e.save(ctx, a); err != nil {
		return nil, err
	}

	metrics.Recalculations.WithLabelValues("resume").Inc()
	e.logger.Debug().
		Str("activity_id", a.ID).
		Dur("remaining", remaining).
		Str("total_price", a.TotalPrice.String()).
		Msg("Scheduled activity recalculated")

	return a, nil
}

// InitialEstimate prices a planned duration at the activity's starting mode.
func (e *Engine) InitialEstimate(ctx context.Context, a storage.Activity, planned time.Duration) (decimal.Decimal, error) {
	metrics.Recalculations.WithLabelValues("estimate").Inc()
	if !billable(a) {
		return decimal.Zero, nil
	}
	card, err := e.rateCard(ctx, a)
	if err != nil {
		return decimal.Zero, err
	}
	return timeledger.Hours(planned).Mul(card.Rate(a.Mode)).Round(2), nil
}

func (e *Engine) rateCard(ctx context.Context, a storage.Activity) (devices.RateCard, error) {
	if !billable(a) {
		return devices.RateCard{Single: decimal.Zero, Multi: decimal.Zero}, nil
	}
	return e.rates.RateCard(ctx, a.DeviceID)
}

func (e *Engine) load(ctx context.Context, activityID string) (*storage.Activity, error) {
	a, err := e.activities.Get(ctx, activityID)
	if err != nil {
		return nil, apperrors.FromStorage("activity", activityID, err)
	}
	return a, nil
}

func (e *Engine) save(ctx context.Context, a *storage.Activity) error {
	if err := e.activities.Upsert(ctx, *a); err != nil {
		return fmt.Errorf("failed to store activity %s: %w", a.ID, err)
	}
	return nil
}
