package devices

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/lounge/internal/apperrors"
	"github.com/goodtune/lounge/internal/clock"
	"github.com/goodtune/lounge/internal/storage"
	"github.com/goodtune/lounge/internal/storage/bolt"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var t0 = time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)

func newTestDirectory(t *testing.T, ttl time.Duration) *Directory {
	t.Helper()
	return newTestDirectoryWithClock(t, ttl, clock.NewTestClock(t0))
}

func newTestDirectoryWithClock(t *testing.T, ttl time.Duration, clk clock.Clock) *Directory {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "lounge.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return NewDirectory(store.Devices(), clk, Config{RateCacheSize: 8, RateCacheTTL: ttl}, zerolog.Nop())
}

func TestRateCardCaching(t *testing.T) {
	dir := newTestDirectory(t, time.Hour)
	ctx := context.Background()

	if err := dir.Upsert(ctx, storage.Device{ID: "pool-1", Type: storage.DeviceBillboard, PricePerHour: decimal.NewFromInt(20)}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	card, err := dir.RateCard(ctx, "pool-1")
	if err != nil {
		t.Fatalf("rate card: %v", err)
	}
	if !card.Single.Equal(decimal.NewFromInt(20)) || !card.Multi.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected multi to default to single rate, got %+v", card)
	}

	// Writing behind the directory's back is not seen until the entry is dropped
	multi := decimal.NewFromInt(35)
	if err := dir.devices.Upsert(ctx, storage.Device{ID: "pool-1", Type: storage.DeviceBillboard, PricePerHour: decimal.NewFromInt(20), PricePerHourMulti: &multi}); err != nil {
		t.Fatalf("raw upsert: %v", err)
	}
	if card, _ := dir.RateCard(ctx, "pool-1"); !card.Multi.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected cached multi rate 20, got %s", card.Multi)
	}

	if err := dir.Upsert(ctx, storage.Device{ID: "pool-1", Type: storage.DeviceBillboard, PricePerHour: decimal.NewFromInt(20), PricePerHourMulti: &multi}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	card, err = dir.RateCard(ctx, "pool-1")
	if err != nil {
		t.Fatalf("rate card: %v", err)
	}
	if !card.Rate(storage.ModeMulti).Equal(multi) {
		t.Fatalf("expected refreshed multi rate 35, got %s", card.Multi)
	}
}

func TestRateCardConcurrentMisses(t *testing.T) {
	dir := newTestDirectory(t, time.Hour)
	ctx := context.Background()

	if err := dir.Upsert(ctx, storage.Device{ID: "ps5-1", Type: storage.DevicePS5, PricePerHour: decimal.NewFromInt(25)}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			card, err := dir.RateCard(ctx, "ps5-1")
			if err == nil && !card.Single.Equal(decimal.NewFromInt(25)) {
				err = errors.New("unexpected rate " + card.Single.String())
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("rate card: %v", err)
		}
	}
}

func TestTimestampsFollowClock(t *testing.T) {
	clk := clock.NewTestClock(t0)
	dir := newTestDirectoryWithClock(t, time.Hour, clk)
	ctx := context.Background()

	if err := dir.Upsert(ctx, storage.Device{ID: "ps4-1", Type: storage.DevicePS4, PricePerHour: decimal.NewFromInt(15)}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := dir.Get(ctx, "ps4-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.UpdatedAt.Equal(t0) {
		t.Errorf("expected updated_at %v after upsert, got %v", t0, got.UpdatedAt)
	}

	clk.Advance(45 * time.Minute)
	if err := dir.SetStatus(ctx, "ps4-1", storage.DeviceMaintenance); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, err = dir.Get(ctx, "ps4-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if want := t0.Add(45 * time.Minute); !got.UpdatedAt.Equal(want) {
		t.Errorf("expected updated_at %v after status change, got %v", want, got.UpdatedAt)
	}
}

func TestDirectoryErrors(t *testing.T) {
	dir := newTestDirectory(t, time.Hour)
	ctx := context.Background()

	if _, err := dir.RateCard(ctx, "missing"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := dir.SetStatus(ctx, "missing", storage.DeviceMaintenance); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := dir.SetStatus(ctx, "missing", storage.DeviceStatus("broken")); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}

	invalid := []storage.Device{
		{Type: storage.DevicePS4},
		{ID: "x", Type: storage.DeviceType("xbox")},
		{ID: "x", Type: storage.DevicePS4, PricePerHour: decimal.NewFromInt(-1)},
	}
	for _, d := range invalid {
		if err := dir.Upsert(ctx, d); !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("upsert %+v: expected validation error, got %v", d, err)
		}
	}
}
