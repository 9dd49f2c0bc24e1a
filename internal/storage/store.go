package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// ErrDuplicateOpen is returned when more than one open pause or mode period exists for an activity.
var ErrDuplicateOpen = errors.New("storage: more than one open record")

// ErrLockTimeout is returned when a lock could not be acquired within the wait budget.
var ErrLockTimeout = errors.New("storage: lock wait timeout")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Devices() DeviceStore
	Products() ProductStore
	Sessions() SessionStore
	Activities() ActivityStore
	Pauses() PauseStore
	ModeChanges() ModeChangeStore
	Orders() OrderStore
	Locker() Locker
}

// DeviceStore manages the device catalog and availability.
type DeviceStore interface {
	Get(ctx context.Context, id string) (*Device, error)
	List(ctx context.Context) ([]Device, error)
	Upsert(ctx context.Context, device Device) error
	SetStatus(ctx context.Context, id string, status DeviceStatus, at time.Time) error
}

// ProductStore manages the product catalog.
type ProductStore interface {
	Get(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context) ([]Product, error)
	Upsert(ctx context.Context, product Product) error
}

// SessionFilter narrows session listings. Zero values match everything.
type SessionFilter struct {
	Status SessionStatus
}

// SessionStore manages sessions.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context, filter SessionFilter) ([]Session, error)
	Upsert(ctx context.Context, session Session) error
	// SetTotal writes only the total price.
	SetTotal(ctx context.Context, id string, total decimal.Decimal) error
	Delete(ctx context.Context, id string) error
}

// ActivityStore manages session activities.
type ActivityStore interface {
	Get(ctx context.Context, id string) (*Activity, error)
	Upsert(ctx context.Context, activity Activity) error
	ListBySession(ctx context.Context, sessionID string) ([]Activity, error)
	FindNonEndedByDevice(ctx context.Context, deviceID string) ([]Activity, error)
	// FindExpired returns active activities whose scheduled end is at or before now.
	FindExpired(ctx context.Context, now time.Time) ([]Activity, error)
	CountNonEnded(ctx context.Context, sessionID string) (int, error)
}

// PauseStore manages activity pauses.
type PauseStore interface {
	Upsert(ctx context.Context, pause Pause) error
	// ListByActivity returns pauses ordered by PausedAt.
	ListByActivity(ctx context.Context, activityID string) ([]Pause, error)
	FindOpen(ctx context.Context, activityID string) (*Pause, error)
}

// ModeChangeStore manages activity mode periods.
type ModeChangeStore interface {
	Upsert(ctx context.Context, change ModeChange) error
	// ListByActivity returns mode changes ordered by ChangedAt.
	ListByActivity(ctx context.Context, activityID string) ([]ModeChange, error)
	FindOpen(ctx context.Context, activityID string) (*ModeChange, error)
}

// OrderStore manages product orders.
type OrderStore interface {
	Get(ctx context.Context, id string) (*Order, error)
	Upsert(ctx context.Context, order Order) error
	Delete(ctx context.Context, id string) error
	ListByActivity(ctx context.Context, activityID string) ([]Order, error)
	SumTotals(ctx context.Context, activityID string) (decimal.Decimal, error)
}

// Unlock releases a lock obtained from a Locker.
type Unlock func()

// Locker provides per-entity mutual exclusion.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// LockKey builds the lock key for an entity.
func LockKey(kind, id string) string {
	return kind + ":" + id
}
