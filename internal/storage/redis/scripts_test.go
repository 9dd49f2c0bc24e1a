package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a miniredis instance for testing Lua scripts
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func TestUpsertActivityScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()

	ctx := context.Background()

	tests := []struct {
		name          string
		status        string
		endedAt       string
		wantOpen      bool
		wantScheduled bool
	}{
		{name: "active without schedule", status: "active", endedAt: "", wantOpen: true, wantScheduled: false},
		{name: "active with schedule", status: "active", endedAt: "2025-03-14T21:00:00Z", wantOpen: true, wantScheduled: true},
		{name: "paused with schedule", status: "paused", endedAt: "2025-03-14T21:00:00Z", wantOpen: true, wantScheduled: false},
		{name: "ended", status: "ended", endedAt: "2025-03-14T21:00:00Z", wantOpen: false, wantScheduled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := []string{
				activityKey("a1"),
				sessionActivitiesKey("s1"),
				sessionOpenActivitiesKey("s1"),
				deviceHoldersKey("d1"),
				scheduledActivityKey,
			}
			err := upsertActivity.Run(ctx, client, keys,
				"a1", "d1", tt.status, tt.endedAt, "1741986000000",
				"id", "a1", "status", tt.status, "ended_at", tt.endedAt,
			).Err()
			if err != nil {
				t.Fatalf("Script failed: %v", err)
			}

			if got := mr.HGet(activityKey("a1"), "status"); got != tt.status {
				t.Errorf("Expected status %s, got %s", tt.status, got)
			}

			isOpen, _ := mr.SIsMember(sessionOpenActivitiesKey("s1"), "a1")
			if isOpen != tt.wantOpen {
				t.Errorf("Expected open=%v, got %v", tt.wantOpen, isOpen)
			}
			holds, _ := mr.SIsMember(deviceHoldersKey("d1"), "a1")
			if holds != tt.wantOpen {
				t.Errorf("Expected device holder=%v, got %v", tt.wantOpen, holds)
			}

			_, err = mr.ZScore(scheduledActivityKey, "a1")
			if scheduled := err == nil; scheduled != tt.wantScheduled {
				t.Errorf("Expected scheduled=%v, got %v", tt.wantScheduled, scheduled)
			}

			if ok, _ := mr.SIsMember(sessionActivitiesKey("s1"), "a1"); !ok {
				t.Error("Activity must always stay in the session set")
			}
		})
	}
}

func TestUpsertIntervalScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()

	ctx := context.Background()
	keys := []string{pauseKey("p1"), activityPausesKey("a1"), activityOpenPausesKey("a1")}

	if err := upsertInterval.Run(ctx, client, keys, "p1", 1000, "1", "id", "p1").Err(); err != nil {
		t.Fatalf("Script failed: %v", err)
	}
	if ok, _ := mr.SIsMember(activityOpenPausesKey("a1"), "p1"); !ok {
		t.Error("Expected open pause to be indexed")
	}

	if err := upsertInterval.Run(ctx, client, keys, "p1", 1000, "0", "id", "p1").Err(); err != nil {
		t.Fatalf("Script failed: %v", err)
	}
	if ok, _ := mr.SIsMember(activityOpenPausesKey("a1"), "p1"); ok {
		t.Error("Expected closed pause to leave the open set")
	}
	if score, err := mr.ZScore(activityPausesKey("a1"), "p1"); err != nil || score != 1000 {
		t.Errorf("Expected ordering score 1000, got %v (%v)", score, err)
	}
}

func TestSetFieldsIfExistsScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()

	ctx := context.Background()

	n, err := setFieldsIfExists.Run(ctx, client, []string{"lounge:device:x"}, "status", "in_use").Int64()
	if err != nil {
		t.Fatalf("Script failed: %v", err)
	}
	if n != 0 || mr.Exists("lounge:device:x") {
		t.Fatal("Script must not create missing hashes")
	}

	mr.HSet("lounge:device:x", "status", "available")
	n, err = setFieldsIfExists.Run(ctx, client, []string{"lounge:device:x"}, "status", "in_use").Int64()
	if err != nil {
		t.Fatalf("Script failed: %v", err)
	}
	if n != 1 || mr.HGet("lounge:device:x", "status") != "in_use" {
		t.Errorf("Expected status in_use, got %s", mr.HGet("lounge:device:x", "status"))
	}
}
