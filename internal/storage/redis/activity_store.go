package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/goodtune/lounge/internal/storage"
	"github.com/redis/go-redis/v9"
)

type activityStore struct {
	client *redis.Client
}

func (s *activityStore) Get(ctx context.Context, id string) (*storage.Activity, error) {
	return getOne(ctx, s.client, activityKey(id), parseActivity)
}

// Upsert writes the activity and maintains session, device and schedule indexes
func (s *activityStore) Upsert(ctx context.Context, activity storage.Activity) error {
	keys := []string{
		activityKey(activity.ID),
		sessionActivitiesKey(activity.SessionID),
		sessionOpenActivitiesKey(activity.SessionID),
		deviceHoldersKey(activity.DeviceID),
		scheduledActivityKey,
	}

	endedScore := "0"
	if activity.EndedAt != nil {
		endedScore = strconv.FormatInt(activity.EndedAt.UnixMilli(), 10)
	}

	args := []interface{}{
		activity.ID,
		activity.DeviceID,
		string(activity.Status),
		formatOptionalTime(activity.EndedAt),
		endedScore,
		"id", activity.ID,
		"session_id", activity.SessionID,
		"type", string(activity.Type),
		"device_id", activity.DeviceID,
		"mode", string(activity.Mode),
		"status", string(activity.Status),
		"started_at", formatTime(activity.StartedAt),
		"ended_at", formatOptionalTime(activity.EndedAt),
		"duration_hours", activity.DurationHours.String(),
		"total_price", activity.TotalPrice.String(),
		"created_by", activity.CreatedBy,
	}

	return upsertActivity.Run(ctx, s.client, keys, args...).Err()
}

func (s *activityStore) ListBySession(ctx context.Context, sessionID string) ([]storage.Activity, error) {
	return s.loadSet(ctx, sessionActivitiesKey(sessionID))
}

func (s *activityStore) FindNonEndedByDevice(ctx context.Context, deviceID string) ([]storage.Activity, error) {
	return s.loadSet(ctx, deviceHoldersKey(deviceID))
}

func (s *activityStore) FindExpired(ctx context.Context, now time.Time) ([]storage.Activity, error) {
	ids, err := s.client.ZRangeByScore(ctx, scheduledActivityKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	candidates, err := loadAll(ctx, s.client, ids, activityKey, parseActivity)
	if err != nil {
		return nil, err
	}

	// The index is millisecond-granular, so re-check against the parsed timestamps
	expired := make([]storage.Activity, 0, len(candidates))
	for _, a := range candidates {
		if a.Status == storage.ActivityActive && a.EndedAt != nil && !a.EndedAt.After(now) {
			expired = append(expired, a)
		}
	}
	storage.SortActivities(expired)
	return expired, nil
}

func (s *activityStore) CountNonEnded(ctx context.Context, sessionID string) (int, error) {
	n, err := s.client.SCard(ctx, sessionOpenActivitiesKey(sessionID)).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *activityStore) loadSet(ctx context.Context, setKey string) ([]storage.Activity, error) {
	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, err
	}
	activities, err := loadAll(ctx, s.client, ids, activityKey, parseActivity)
	if err != nil {
		return nil, err
	}
	storage.SortActivities(activities)
	return activities, nil
}
