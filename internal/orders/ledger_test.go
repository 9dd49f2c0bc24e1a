package orders

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/lounge/internal/activity"
	"github.com/goodtune/lounge/internal/apperrors"
	"github.com/goodtune/lounge/internal/clock"
	"github.com/goodtune/lounge/internal/devices"
	"github.com/goodtune/lounge/internal/mode"
	"github.com/goodtune/lounge/internal/pause"
	"github.com/goodtune/lounge/internal/pricing"
	"github.com/goodtune/lounge/internal/session"
	"github.com/goodtune/lounge/internal/storage"
	"github.com/goodtune/lounge/internal/storage/bolt"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type testEnv struct {
	clock      *clock.TestClock
	lifecycle  *activity.Lifecycle
	aggregator *session.Aggregator
	ledger     *Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "lounge.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	logger := zerolog.Nop()
	clk := clock.NewTestClock(time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC))

	dir := devices.NewDirectory(store.Devices(), clk, devices.Config{}, logger)
	if err := dir.Upsert(ctx, storage.Device{ID: "pool-1", Type: storage.DeviceBillboard, PricePerHour: decimal.NewFromInt(20)}); err != nil {
		t.Fatalf("seed device: %v", err)
	}

	pauses := pause.NewTracker(store.Pauses(), logger)
	modes := mode.NewTracker(store.ModeChanges(), logger)
	engine := pricing.NewEngine(store, pauses, modes, dir, logger)
	lc := activity.NewLifecycle(store, dir, pauses, modes, engine, clk, activity.Config{}, logger)
	agg := session.NewAggregator(store, lc, engine, clk, session.Config{}, logger)
	ledger := NewLedger(store, lc, clk, logger)

	for _, p := range []storage.Product{
		{ID: "cola", Name: "Cola", Price: dec("2.50")},
		{ID: "nachos", Name: "Nachos", Price: dec("6.25")},
	} {
		if err := ledger.UpsertProduct(ctx, p); err != nil {
			t.Fatalf("seed product: %v", err)
		}
	}

	return &testEnv{clock: clk, lifecycle: lc, aggregator: agg, ledger: ledger}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAddOrderRepricesActivityAndSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	s, a, err := env.aggregator.Start(ctx, session.StartRequest{CustomerID: "c1", DeviceID: "pool-1", Actor: "staff"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	env.clock.Advance(time.Hour)

	order, err := env.ledger.Add(ctx, AddRequest{ActivityID: a.ID, ProductID: "cola", Quantity: 3, Actor: "staff"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !order.Price.Equal(dec("2.5")) || !order.TotalPrice.Equal(dec("7.5")) {
		t.Errorf("unexpected order pricing %s x %d = %s", order.Price, order.Quantity, order.TotalPrice)
	}

	got, _ := env.lifecycle.Get(ctx, a.ID)
	if !got.TotalPrice.Equal(dec("27.5")) {
		t.Errorf("expected 1h at 20 plus 7.50, got %s", got.TotalPrice)
	}
	current, _ := env.aggregator.Get(ctx, s.ID)
	if !current.TotalPrice.Equal(dec("27.5")) {
		t.Errorf("expected session total 27.50, got %s", current.TotalPrice)
	}

	tests := []struct {
		name    string
		req     AddRequest
		wantErr error
	}{
		{name: "unknown product", req: AddRequest{ActivityID: a.ID, ProductID: "caviar", Quantity: 1, Actor: "staff"}, wantErr: apperrors.ErrNotFound},
		{name: "unknown activity", req: AddRequest{ActivityID: "missing", ProductID: "cola", Quantity: 1, Actor: "staff"}, wantErr: apperrors.ErrNotFound},
		{name: "zero quantity", req: AddRequest{ActivityID: a.ID, ProductID: "cola", Actor: "staff"}, wantErr: apperrors.ErrValidation},
		{name: "missing actor", req: AddRequest{ActivityID: a.ID, ProductID: "cola", Quantity: 1}, wantErr: apperrors.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.ledger.Add(ctx, tt.req); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestOrderPriceIsSnapshotted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, a, err := env.aggregator.Start(ctx, session.StartRequest{CustomerID: "c1", Actor: "staff"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	order, err := env.ledger.Add(ctx, AddRequest{ActivityID: a.ID, ProductID: "cola", Quantity: 2, Actor: "staff"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := env.ledger.UpsertProduct(ctx, storage.Product{ID: "cola", Name: "Cola", Price: dec("3.00")}); err != nil {
		t.Fatalf("reprice product: %v", err)
	}

	// Quantity changes keep the snapshot
	updated, err := env.ledger.Update(ctx, UpdateRequest{OrderID: order.ID, Quantity: 4, Actor: "staff"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Price.Equal(dec("2.5")) || !updated.TotalPrice.Equal(dec("10")) {
		t.Errorf("expected 4 x 2.50 = 10, got %d x %s = %s", updated.Quantity, updated.Price, updated.TotalPrice)
	}

	// A product change takes the new product's current price
	swapped, err := env.ledger.Update(ctx, UpdateRequest{OrderID: order.ID, ProductID: "nachos", Actor: "staff"})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if swapped.Quantity != 4 || !swapped.TotalPrice.Equal(dec("25")) {
		t.Errorf("expected 4 x 6.25 = 25, got %d x %s = %s", swapped.Quantity, swapped.Price, swapped.TotalPrice)
	}

	// Pause-type activities bill products only
	got, _ := env.lifecycle.Get(ctx, a.ID)
	if !got.TotalPrice.Equal(dec("25")) {
		t.Errorf("expected activity total 25, got %s", got.TotalPrice)
	}
}

func TestRemoveOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	s, a, err := env.aggregator.Start(ctx, session.StartRequest{CustomerID: "c1", Actor: "staff"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	keep, err := env.ledger.Add(ctx, AddRequest{ActivityID: a.ID, ProductID: "nachos", Quantity: 1, Actor: "staff"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	drop, err := env.ledger.Add(ctx, AddRequest{ActivityID: a.ID, ProductID: "cola", Quantity: 1, Actor: "staff"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := env.ledger.Remove(ctx, drop.ID, "staff"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := env.ledger.Remove(ctx, drop.ID, "staff"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("second remove: expected not found, got %v", err)
	}

	remaining, err := env.ledger.List(ctx, a.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != keep.ID {
		t.Errorf("expected only %s left, got %+v", keep.ID, remaining)
	}
	current, _ := env.aggregator.Get(ctx, s.ID)
	if !current.TotalPrice.Equal(dec("6.25")) {
		t.Errorf("expected session total 6.25, got %s", current.TotalPrice)
	}
}

func TestOrderOnEndedActivityKeepsEndTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, a, err := env.aggregator.Start(ctx, session.StartRequest{CustomerID: "c1", DeviceID: "pool-1", Actor: "staff"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	env.clock.Advance(30 * time.Minute)
	ended, err := env.lifecycle.End(ctx, a.ID, "staff")
	if err != nil {
		t.Fatalf("end: %v", err)
	}

	env.clock.Advance(2 * time.Hour)
	if _, err := env.ledger.Add(ctx, AddRequest{ActivityID: a.ID, ProductID: "cola", Quantity: 1, Actor: "staff"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, _ := env.lifecycle.Get(ctx, a.ID)
	if !got.EndedAt.Equal(*ended.EndedAt) {
		t.Errorf("ordering must not move the end time, got %v", got.EndedAt)
	}
	if !got.TotalPrice.Equal(dec("12.5")) {
		t.Errorf("expected 0.5h at 20 plus 2.50, got %s", got.TotalPrice)
	}
}

func TestUpsertProductValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.ledger.UpsertProduct(ctx, storage.Product{Name: "Nameless", Price: dec("1")}); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("missing id: expected validation error, got %v", err)
	}
	if err := env.ledger.UpsertProduct(ctx, storage.Product{ID: "free", Price: dec("-1")}); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("negative price: expected validation error, got %v", err)
	}

	products, err := env.ledger.Products(ctx)
	if err != nil {
		t.Fatalf("products: %v", err)
	}
	if len(products) != 2 {
		t.Errorf("expected 2 products, got %d", len(products))
	}
}
