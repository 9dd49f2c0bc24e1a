package redis

import (
	"context"

	"github.com/goodtune/lounge/internal/storage"
	"github.com/redis/go-redis/v9"
)

type pauseStore struct {
	client *redis.Client
}

func (s *pauseStore) Upsert(ctx context.Context, pause storage.Pause) error {
	keys := []string{
		pauseKey(pause.ID),
		activityPausesKey(pause.ActivityID),
		activityOpenPausesKey(pause.ActivityID),
	}

	open := "0"
	if pause.ResumedAt == nil {
		open = "1"
	}

	args := []interface{}{
		pause.ID,
		score(pause.PausedAt),
		open,
		"id", pause.ID,
		"activity_id", pause.ActivityID,
		"paused_at", formatTime(pause.PausedAt),
		"resumed_at", formatOptionalTime(pause.ResumedAt),
		"duration_minutes", pause.DurationMinutes.String(),
		"paused_by", pause.PausedBy,
		"resumed_by", pause.ResumedBy,
	}

	return upsertInterval.Run(ctx, s.client, keys, args...).Err()
}

func (s *pauseStore) ListByActivity(ctx context.Context, activityID string) ([]storage.Pause, error) {
	ids, err := s.client.ZRange(ctx, activityPausesKey(activityID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	pauses, err := loadAll(ctx, s.client, ids, pauseKey, parsePause)
	if err != nil {
		return nil, err
	}
	storage.SortPauses(pauses)
	return pauses, nil
}

func (s *pauseStore) FindOpen(ctx context.Context, activityID string) (*storage.Pause, error) {
	ids, err := s.client.SMembers(ctx, activityOpenPausesKey(activityID)).Result()
	if err != nil {
		return nil, err
	}
	switch len(ids) {
	case 0:
		return nil, storage.ErrNotFound
	case 1:
		return getOne(ctx, s.client, pauseKey(ids[0]), parsePause)
	default:
		return nil, storage.ErrDuplicateOpen
	}
}
