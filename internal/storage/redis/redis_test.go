package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/lounge/internal/config"
	"github.com/goodtune/lounge/internal/storage"
	"github.com/shopspring/decimal"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	// miniredis.Addr() returns "host:port", so Port stays 0
	cfg := config.RedisConfig{
		Host:         mr.Addr(),
		Port:         0,
		PoolSize:     10,
		MinIdleConns: 1,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
		LockTTL:      "2s",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}

	return store, mr
}

func TestDeviceStore_UpsertAndSetStatus(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	multi := decimal.NewFromInt(40)
	device := storage.Device{
		ID:                "ps5-1",
		Name:              "PS5 #1",
		Type:              storage.DevicePS5,
		PricePerHour:      decimal.NewFromInt(25),
		PricePerHourMulti: &multi,
		Status:            storage.DeviceAvailable,
		UpdatedAt:         time.Now(),
	}

	if err := store.Devices().Upsert(ctx, device); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	claimedAt := time.Date(2025, 3, 14, 20, 0, 0, 0, time.UTC)
	if err := store.Devices().SetStatus(ctx, "ps5-1", storage.DeviceInUse, claimedAt); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	got, err := store.Devices().Get(ctx, "ps5-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != storage.DeviceInUse {
		t.Errorf("Expected status in_use, got %s", got.Status)
	}
	if !got.UpdatedAt.Equal(claimedAt) {
		t.Errorf("Expected updated_at %v, got %v", claimedAt, got.UpdatedAt)
	}
	if !got.MultiRate().Equal(multi) {
		t.Errorf("Expected multi rate 40, got %s", got.MultiRate())
	}

	if err := store.Devices().SetStatus(ctx, "missing", storage.DeviceInUse, claimedAt); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := store.Devices().Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	devices, err := store.Devices().List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(devices) != 1 {
		t.Errorf("Expected 1 device, got %d", len(devices))
	}
}

func TestSessionStore_StatusIndex(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	session := storage.Session{
		ID:        "s1",
		Type:      storage.SessionPlaying,
		Status:    storage.SessionActive,
		StartedAt: time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC),
	}
	if err := store.Sessions().Upsert(ctx, session); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	ended := session.StartedAt.Add(2 * time.Hour)
	session.Status = storage.SessionEnded
	session.EndedAt = &ended
	session.Discount = decimal.NewFromInt(5)
	if err := store.Sessions().Upsert(ctx, session); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	active, err := store.Sessions().List(ctx, storage.SessionFilter{Status: storage.SessionActive})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("Expected no active sessions, got %d", len(active))
	}

	all, err := store.Sessions().List(ctx, storage.SessionFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 || all[0].EndedAt == nil || !all[0].EndedAt.Equal(ended) {
		t.Fatalf("Expected ended session round-trip, got %+v", all)
	}

	if err := store.Sessions().SetTotal(ctx, "s1", decimal.RequireFromString("42.10")); err != nil {
		t.Fatalf("SetTotal failed: %v", err)
	}
	got, err := store.Sessions().Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.TotalPrice.Equal(decimal.RequireFromString("42.1")) {
		t.Errorf("Expected total 42.10, got %s", got.TotalPrice)
	}
	if !got.Discount.Equal(decimal.NewFromInt(5)) {
		t.Errorf("SetTotal must not touch discount, got %s", got.Discount)
	}

	if err := store.Sessions().SetTotal(ctx, "missing", decimal.Zero); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := store.Sessions().Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Sessions().Get(ctx, "s1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	for _, filter := range []storage.SessionFilter{{}, {Status: storage.SessionEnded}} {
		left, err := store.Sessions().List(ctx, filter)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(left) != 0 {
			t.Errorf("Expected deleted session to leave the %q index, got %d", filter.Status, len(left))
		}
	}
	if err := store.Sessions().Delete(ctx, "s1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestActivityStore_Indexes(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	now := time.Date(2025, 3, 14, 20, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	activities := []storage.Activity{
		{ID: "a1", SessionID: "s1", Type: storage.ActivityDeviceUse, DeviceID: "d1", Mode: storage.ModeSingle, Status: storage.ActivityActive, StartedAt: now.Add(-2 * time.Hour), EndedAt: &past},
		{ID: "a2", SessionID: "s1", Type: storage.ActivityDeviceUse, DeviceID: "d2", Mode: storage.ModeSingle, Status: storage.ActivityPaused, StartedAt: now.Add(-time.Hour), EndedAt: &past},
		{ID: "a3", SessionID: "s1", Type: storage.ActivityDeviceUse, DeviceID: "d1", Mode: storage.ModeMulti, Status: storage.ActivityEnded, StartedAt: now.Add(-3 * time.Hour), EndedAt: &past},
		{ID: "a4", SessionID: "s2", Type: storage.ActivityPause, Mode: storage.ModeSingle, Status: storage.ActivityActive, StartedAt: now, EndedAt: &future},
	}
	for _, a := range activities {
		if err := store.Activities().Upsert(ctx, a); err != nil {
			t.Fatalf("Upsert %s failed: %v", a.ID, err)
		}
	}

	expired, err := store.Activities().FindExpired(ctx, now)
	if err != nil {
		t.Fatalf("FindExpired failed: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "a1" {
		t.Fatalf("Expected only a1 expired, got %+v", expired)
	}

	// a4 is scheduled but not yet due
	if members, _ := mr.ZMembers(scheduledActivityKey); len(members) != 2 {
		t.Errorf("Expected 2 scheduled activities, got %d", len(members))
	}

	holders, err := store.Activities().FindNonEndedByDevice(ctx, "d1")
	if err != nil {
		t.Fatalf("FindNonEndedByDevice failed: %v", err)
	}
	if len(holders) != 1 || holders[0].ID != "a1" {
		t.Fatalf("Expected a1 to hold d1, got %+v", holders)
	}

	count, err := store.Activities().CountNonEnded(ctx, "s1")
	if err != nil {
		t.Fatalf("CountNonEnded failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 non-ended activities, got %d", count)
	}

	// Ending a1 drops it from every open index
	ended := activities[0]
	ended.Status = storage.ActivityEnded
	if err := store.Activities().Upsert(ctx, ended); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if expired, _ := store.Activities().FindExpired(ctx, now); len(expired) != 0 {
		t.Errorf("Expected no expired activities after end, got %d", len(expired))
	}
	if holders, _ := store.Activities().FindNonEndedByDevice(ctx, "d1"); len(holders) != 0 {
		t.Errorf("Expected d1 released, got %d holders", len(holders))
	}

	list, err := store.Activities().ListBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("ListBySession failed: %v", err)
	}
	if len(list) != 3 || list[0].ID != "a3" {
		t.Fatalf("Expected 3 activities ordered by start, got %+v", list)
	}
}

func TestIntervalStores_FindOpen(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	now := time.Date(2025, 3, 14, 20, 0, 0, 0, time.UTC)
	resumed := now.Add(10 * time.Minute)

	if _, err := store.Pauses().FindOpen(ctx, "a1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	open := storage.Pause{ID: "p2", ActivityID: "a1", PausedAt: now.Add(time.Hour)}
	if err := store.Pauses().Upsert(ctx, open); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.Pauses().Upsert(ctx, storage.Pause{ID: "p1", ActivityID: "a1", PausedAt: now, ResumedAt: &resumed}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.Pauses().FindOpen(ctx, "a1")
	if err != nil {
		t.Fatalf("FindOpen failed: %v", err)
	}
	if got.ID != "p2" {
		t.Errorf("Expected p2 open, got %s", got.ID)
	}

	pauses, err := store.Pauses().ListByActivity(ctx, "a1")
	if err != nil {
		t.Fatalf("ListByActivity failed: %v", err)
	}
	if len(pauses) != 2 || pauses[0].ID != "p1" {
		t.Fatalf("Expected pauses ordered by start, got %+v", pauses)
	}

	if err := store.Pauses().Upsert(ctx, storage.Pause{ID: "p3", ActivityID: "a1", PausedAt: now.Add(2 * time.Hour)}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := store.Pauses().FindOpen(ctx, "a1"); !errors.Is(err, storage.ErrDuplicateOpen) {
		t.Errorf("Expected ErrDuplicateOpen, got %v", err)
	}

	single := storage.ModeSingle
	periods := []storage.ModeChange{
		{ID: "m1", ActivityID: "a1", ToMode: storage.ModeSingle, ChangedAt: now, EndedAt: &resumed},
		{ID: "m2", ActivityID: "a1", FromMode: &single, ToMode: storage.ModeMulti, ChangedAt: resumed},
	}
	for _, p := range periods {
		if err := store.ModeChanges().Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	current, err := store.ModeChanges().FindOpen(ctx, "a1")
	if err != nil {
		t.Fatalf("FindOpen failed: %v", err)
	}
	if current.ID != "m2" || current.FromMode == nil || *current.FromMode != storage.ModeSingle {
		t.Errorf("Expected m2 from single, got %+v", current)
	}
}

func TestOrderStore_SumAndDelete(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	now := time.Now()
	orders := []storage.Order{
		{ID: "o1", ActivityID: "a1", ProductID: "cola", Quantity: 2, Price: decimal.RequireFromString("2.50"), TotalPrice: decimal.RequireFromString("5.00"), CreatedAt: now},
		{ID: "o2", ActivityID: "a1", ProductID: "chips", Quantity: 1, Price: decimal.RequireFromString("3.25"), TotalPrice: decimal.RequireFromString("3.25"), CreatedAt: now.Add(time.Minute)},
		{ID: "o3", ActivityID: "a2", ProductID: "cola", Quantity: 1, Price: decimal.NewFromInt(9), TotalPrice: decimal.NewFromInt(9), CreatedAt: now},
	}
	for _, o := range orders {
		if err := store.Orders().Upsert(ctx, o); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	total, err := store.Orders().SumTotals(ctx, "a1")
	if err != nil {
		t.Fatalf("SumTotals failed: %v", err)
	}
	if !total.Equal(decimal.RequireFromString("8.25")) {
		t.Errorf("Expected 8.25, got %s", total)
	}

	if err := store.Orders().Delete(ctx, "o1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Orders().Delete(ctx, "o1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}

	remaining, err := store.Orders().ListByActivity(ctx, "a1")
	if err != nil {
		t.Fatalf("ListByActivity failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != "o2" {
		t.Errorf("Expected only o2 left, got %+v", remaining)
	}
}

func TestLocker_Exclusive(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	unlock, err := store.Locker().Lock(context.Background(), "activity:a1")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if !mr.Exists(lockKey("activity:a1")) {
		t.Fatal("Expected lock key to exist")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if _, err := store.Locker().Lock(ctx, "activity:a1"); !errors.Is(err, storage.ErrLockTimeout) {
		t.Fatalf("Expected ErrLockTimeout while lock held, got %v", err)
	}

	unlock()
	if mr.Exists(lockKey("activity:a1")) {
		t.Fatal("Expected lock key to be released")
	}

	again, err := store.Locker().Lock(context.Background(), "activity:a1")
	if err != nil {
		t.Fatalf("Relock failed: %v", err)
	}
	again()
}

func TestLocker_ExpiredLockIsReclaimed(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	stale, err := store.Locker().Lock(context.Background(), "device:d1")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	// Lock TTL is 2s in the test config
	mr.FastForward(3 * time.Second)

	fresh, err := store.Locker().Lock(context.Background(), "device:d1")
	if err != nil {
		t.Fatalf("Lock after expiry failed: %v", err)
	}

	// The stale holder must not release the new owner's lock
	stale()
	if !mr.Exists(lockKey("device:d1")) {
		t.Fatal("Stale unlock removed the new owner's lock")
	}
	fresh()
}
