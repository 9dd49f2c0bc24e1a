package bolt

import (
	"context"

	"github.com/goodtune/lounge/internal/storage"
	"go.etcd.io/bbolt"
)

type modeChangeStore struct {
	db *bbolt.DB
}

func (s *modeChangeStore) Upsert(ctx context.Context, change storage.ModeChange) error {
	return putBucketValue(ctx, s.db, bucketModeChanges, change.ID, change)
}

func (s *modeChangeStore) ListByActivity(ctx context.Context, activityID string) ([]storage.ModeChange, error) {
	changes, err := filterBucket(ctx, s.db, bucketModeChanges, func(c storage.ModeChange) bool {
		return c.ActivityID == activityID
	})
	if err != nil {
		return nil, err
	}
	storage.SortModeChanges(changes)
	return changes, nil
}

func (s *modeChangeStore) FindOpen(ctx context.Context, activityID string) (*storage.ModeChange, error) {
	open, err := filterBucket(ctx, s.db, bucketModeChanges, func(c storage.ModeChange) bool {
		return c.ActivityID == activityID && c.EndedAt == nil
	})
	if err != nil {
		return nil, err
	}
	switch len(open) {
	case 0:
		return nil, storage.ErrNotFound
	case 1:
		return &open[0], nil
	default:
		return nil, storage.ErrDuplicateOpen
	}
}
