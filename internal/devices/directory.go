// Package devices is the device directory: availability reads and writes go
// straight to storage, rate cards are cached.
package devices

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/lounge/internal/apperrors"
	"github.com/goodtune/lounge/internal/clock"
	"github.com/goodtune/lounge/internal/metrics"
	"github.com/goodtune/lounge/internal/storage"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRateCacheSize = 256
	DefaultRateCacheTTL  = time.Minute
)

// RateCard holds the hourly rates of a device.
type RateCard struct {
	Single decimal.Decimal
	Multi  decimal.Decimal
}

// Rate returns the hourly rate for mode m.
func (r RateCard) Rate(m storage.Mode) decimal.Decimal {
	if m == storage.ModeMulti {
		return r.Multi
	}
	return r.Single
}

// Config holds directory configuration
type Config struct {
	RateCacheSize int
	RateCacheTTL  time.Duration
}

// Directory provides device lookups for the billing core
type Directory struct {
	devices storage.DeviceStore
	rates   *expirable.LRU[string, RateCard]
	loads   singleflight.Group
	clock   clock.Clock
	logger  zerolog.Logger
}

// NewDirectory creates a new device directory
func NewDirectory(devices storage.DeviceStore, clk clock.Clock, config Config, logger zerolog.Logger) *Directory {
	if config.RateCacheSize <= 0 {
		config.RateCacheSize = DefaultRateCacheSize
	}
	if config.RateCacheTTL <= 0 {
		config.RateCacheTTL = DefaultRateCacheTTL
	}

	return &Directory{
		devices: devices,
		rates:   expirable.NewLRU[string, RateCard](config.RateCacheSize, nil, config.RateCacheTTL),
		clock:   clk,
		logger:  logger.With().Str("component", "device-directory").Logger(),
	}
}

// Get returns the device as stored. Status is never served from cache.
func (d *Directory) Get(ctx context.Context, id string) (*storage.Device, error) {
	device, err := d.devices.Get(ctx, id)
	if err != nil {
		return nil, apperrors.FromStorage("device", id, err)
	}
	return device, nil
}

// List returns every device
func (d *Directory) List(ctx context.Context) ([]storage.Device, error) {
	return d.devices.List(ctx)
}

// RateCard returns the device's hourly rates. Concurrent misses for the same
// device share one storage read.
func (d *Directory) RateCard(ctx context.Context, id string) (RateCard, error) {
	if card, ok := d.rates.Get(id); ok {
		metrics.DeviceRateCache.WithLabelValues("hit").Inc()
		return card, nil
	}
	metrics.DeviceRateCache.WithLabelValues("miss").Inc()

	v, err, _ := d.loads.Do(id, func() (interface{}, error) {
		device, err := d.Get(ctx, id)
		if err != nil {
			return RateCard{}, err
		}
		card := RateCard{Single: device.PricePerHour, Multi: device.MultiRate()}
		d.rates.Add(id, card)
		return card, nil
	})
	if err != nil {
		return RateCard{}, err
	}
	return v.(RateCard), nil
}

// SetStatus changes device availability
func (d *Directory) SetStatus(ctx context.Context, id string, status storage.DeviceStatus) error {
	if !status.Valid() {
		return apperrors.Validation("invalid device status %q", status)
	}
	if err := d.devices.SetStatus(ctx, id, status, d.clock.Now()); err != nil {
		return apperrors.FromStorage("device", id, err)
	}

	d.logger.Debug().Str("device_id", id).Str("status", string(status)).Msg("Device status changed")
	return nil
}

// Upsert validates and stores a device, dropping any cached rate card
func (d *Directory) Upsert(ctx context.Context, device storage.Device) error {
	switch {
	case device.ID == "":
		return apperrors.Validation("device id is required")
	case !device.Type.Valid():
		return apperrors.Validation("invalid device type %q", device.Type)
	case device.Status != "" && !device.Status.Valid():
		return apperrors.Validation("invalid device status %q", device.Status)
	case device.PricePerHour.IsNegative():
		return apperrors.Validation("price_per_hour must not be negative")
	case device.PricePerHourMulti != nil && device.PricePerHourMulti.IsNegative():
		return apperrors.Validation("price_per_hour_multi must not be negative")
	}
	if device.Status == "" {
		device.Status = storage.DeviceAvailable
	}
	device.UpdatedAt = d.clock.Now()

	if err := d.devices.Upsert(ctx, device); err != nil {
		return fmt.Errorf("failed to store device %s: %w", device.ID, err)
	}
	d.rates.Remove(device.ID)

	d.logger.Info().
		Str("device_id", device.ID).
		Str("type", string(device.Type)).
		Str("price_per_hour", device.PricePerHour.String()).
		Msg("Device stored")
	return nil
}
