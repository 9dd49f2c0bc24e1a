package bolt

import (
	"context"

	"github.com/goodtune/lounge/internal/storage"
	"go.etcd.io/bbolt"
)

type pauseStore struct {
	db *bbolt.DB
}

func (s *pauseStore) Upsert(ctx context.Context, pause storage.Pause) error {
	return putBucketValue(ctx, s.db, bucketPauses, pause.ID, pause)
}

func (s *pauseStore) ListByActivity(ctx context.Context, activityID string) ([]storage.Pause, error) {
	pauses, err := filterBucket(ctx, s.db, bucketPauses, func(p storage.Pause) bool {
		return p.ActivityID == activityID
	})
	if err != nil {
		return nil, err
	}
	storage.SortPauses(pauses)
	return pauses, nil
}

func (s *pauseStore) FindOpen(ctx context.Context, activityID string) (*storage.Pause, error) {
	open, err := filterBucket(ctx, s.db, bucketPauses, func(p storage.Pause) bool {
		return p.ActivityID == activityID && p.ResumedAt == nil
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
