package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ActivityStatus is the lifecycle state of a session activity.
type ActivityStatus string

const (
	ActivityActive ActivityStatus = "active"
	ActivityPaused ActivityStatus = "paused"
	ActivityEnded  ActivityStatus = "ended"
)

// Valid reports whether s is a known activity status.
func (s ActivityStatus) Valid() bool {
	switch s {
	case ActivityActive, ActivityPaused, ActivityEnded:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown statuses.
func (s *ActivityStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, s, "activity status")
}

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionPaused SessionStatus = "paused"
	SessionEnded  SessionStatus = "ended"
)

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionPaused, SessionEnded:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown statuses.
func (s *SessionStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, s, "session status")
}

// SessionType distinguishes device play from chill-out visits.
type SessionType string

const (
	SessionPlaying  SessionType = "playing"
	SessionChillout SessionType = "chillout"
)

// Valid reports whether t is a known session type.
func (t SessionType) Valid() bool {
	switch t {
	case SessionPlaying, SessionChillout:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown session types.
func (t *SessionType) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, t, "session type")
}

// Mode is the player-concurrency pricing mode.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeMulti  Mode = "multi"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeSingle, ModeMulti:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown modes.
func (m *Mode) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, m, "mode")
}

// ActivityType distinguishes device-bound activities from pause (chill-out) slots.
type ActivityType string

const (
	ActivityDeviceUse ActivityType = "device_use"
	ActivityPause     ActivityType = "pause"
)

// Valid reports whether t is a known activity type.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityDeviceUse, ActivityPause:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown activity types.
func (t *ActivityType) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, t, "activity type")
}

// DeviceStatus is the availability of a device.
type DeviceStatus string

const (
	DeviceAvailable   DeviceStatus = "available"
	DeviceInUse       DeviceStatus = "in_use"
	DeviceMaintenance DeviceStatus = "maintenance"
)

// Valid reports whether s is a known device status.
func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceAvailable, DeviceInUse, DeviceMaintenance:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown device statuses.
func (s *DeviceStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, s, "device status")
}

// DeviceType is the kind of device on the floor.
type DeviceType string

const (
	DevicePS4       DeviceType = "ps4"
	DevicePS5       DeviceType = "ps5"
	DeviceBillboard DeviceType = "billboard"
)

// Valid reports whether t is a known device type.
func (t DeviceType) Valid() bool {
	switch t {
	case DevicePS4, DevicePS5, DeviceBillboard:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown device types.
func (t *DeviceType) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, t, "device type")
}

type enum interface {
	~string
	Valid() bool
}

// unmarshalEnum decodes a JSON string into out. The empty string decodes to the zero value.
func unmarshalEnum[T enum](data []byte, out *T, kind string) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v := T(s)
	if s != "" && !v.Valid() {
		return fmt.Errorf("invalid %s: %q", kind, s)
	}
	*out = v
	return nil
}

// Device is a billable station (console, billiard table).
type Device struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Type              DeviceType       `json:"type"`
	PricePerHour      decimal.Decimal  `json:"price_per_hour"`
	PricePerHourMulti *decimal.Decimal `json:"price_per_hour_multi,omitempty"`
	Status            DeviceStatus     `json:"status"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// MultiRate returns the multi-player rate, falling back to the single rate.
func (d Device) MultiRate() decimal.Decimal {
	if d.PricePerHourMulti != nil {
		return *d.PricePerHourMulti
	}
	return d.PricePerHour
}

// Product is a consumable that can be ordered during an activity.
type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Session is the billing unit for one customer visit.
type Session struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customer_id"`
	CreatedBy  string          `json:"created_by"`
	Type       SessionType     `json:"type"`
	Status     SessionStatus   `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	EndedAt    *time.Time      `json:"ended_at,omitempty"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Discount   decimal.Decimal `json:"discount"`
}

// Activity is a continuous, possibly paused, unit of billable use within a session.
// While Status is not ended, EndedAt holds the scheduled end, if any.
type Activity struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"session_id"`
	Type          ActivityType    `json:"type"`
	DeviceID      string          `json:"device_id,omitempty"`
	Mode          Mode            `json:"mode"`
	Status        ActivityStatus  `json:"status"`
	StartedAt     time.Time       `json:"started_at"`
	EndedAt       *time.Time      `json:"ended_at,omitempty"`
	DurationHours decimal.Decimal `json:"duration_hours"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	CreatedBy     string          `json:"created_by"`
}

// Scheduled reports whether the activity carries a planned end that has not happened yet.
func (a Activity) Scheduled(now time.Time) bool {
	return a.Status != ActivityEnded && a.EndedAt != nil && a.EndedAt.After(now)
}

// Pause is one pause interval of an activity. ResumedAt is nil while open.
type Pause struct {
	ID              string          `json:"id"`
	ActivityID      string          `json:"activity_id"`
	PausedAt        time.Time       `json:"paused_at"`
	ResumedAt       *time.Time      `json:"resumed_at,omitempty"`
	DurationMinutes decimal.Decimal `json:"duration_minutes"`
	PausedBy        string          `json:"paused_by"`
	ResumedBy       string          `json:"resumed_by,omitempty"`
}

// ModeChange is one mode period of an activity. EndedAt is nil for the current period.
// Seq orders periods that start at the same instant.
type ModeChange struct {
	ID         string     `json:"id"`
	ActivityID string     `json:"activity_id"`
	Seq        int        `json:"seq"`
	FromMode   *Mode      `json:"from_mode,omitempty"`
	ToMode     Mode       `json:"to_mode"`
	ChangedAt  time.Time  `json:"changed_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	ChangedBy  string     `json:"changed_by"`
}

// Order is a product ordered within an activity. Price is snapshotted at order time.
type Order struct {
	ID         string          `json:"id"`
	ActivityID string          `json:"activity_id"`
	ProductID  string          `json:"product_id"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	TotalPrice decimal.Decimal `json:"total_price"`
	OrderedBy  string          `json:"ordered_by"`
	CreatedAt  time.Time       `json:"created_at"`
}
