package redis

import (
	"context"

	"github.com/goodtune/lounge/internal/storage"
	"github.com/redis/go-redis/v9"
)

type modeChangeStore struct {
	client *redis.Client
}

func (s *modeChangeStore) Upsert(ctx context.Context, change storage.ModeChange) error {
	keys := []string{
		modeKey(change.ID),
		activityModesKey(change.ActivityID),
		activityOpenModesKey(change.ActivityID),
	}

	open := "0"
	if change.EndedAt == nil {
		open = "1"
	}
	from := ""
	if change.FromMode != nil {
		from = string(*change.FromMode)
	}

	args := []interface{}{
		change.ID,
		score(change.ChangedAt),
		open,
		"id", change.ID,
		"activity_id", change.ActivityID,
		"seq", change.Seq,
		"from_mode", from,
		"to_mode", string(change.ToMode),
		"changed_at", formatTime(change.ChangedAt),
		"ended_at", formatOptionalTime(change.EndedAt),
		"changed_by", change.ChangedBy,
	}

	return upsertInterval.Run(ctx, s.client, keys, args...).Err()
}

func (s *modeChangeStore) ListByActivity(ctx context.Context, activityID string) ([]storage.ModeChange, error) {
	ids, err := s.client.ZRange(ctx, activityModesKey(activityID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	changes, err := loadAll(ctx, s.client, ids, modeKey, parseModeChange)
	if err != nil {
		return nil, err
	}
	storage.SortModeChanges(changes)
	return changes, nil
}

func (s *modeChangeStore) FindOpen(ctx context.Context, activityID string) (*storage.ModeChange, error) {
	ids, err := s.client.SMembers(ctx, activityOpenModesKey(activityID)).Result()
	if err != nil {
		return nil, err
	}
	switch len(ids) {
	case 0:
		return nil, storage.ErrNotFound
	case 1:
		return getOne(ctx, s.client, modeKey(ids[0]), parseModeChange)
	default:
		return nil, storage.ErrDuplicateOpen
	}
}
