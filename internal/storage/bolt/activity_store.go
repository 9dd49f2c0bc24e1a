package bolt

import (
	"context"
	"time"

	"github.com/goodtune/lounge/internal/storage"
	"go.etcd.io/bbolt"
)

type activityStore struct {
	db *bbolt.DB
}

func (s *activityStore) Get(ctx context.Context, id string) (*storage.Activity, error) {
	return getBucketValue[storage.Activity](ctx, s.db, bucketActivities, id)
}

func (s *activityStore) Upsert(ctx context.Context, activity storage.Activity) error {
	return putBucketValue(ctx, s.db, bucketActivities, activity.ID, activity)
}

func (s *activityStore) ListBySession(ctx context.Context, sessionID string) ([]storage.Activity, error) {
	activities, err := filterBucket(ctx, s.db, bucketActivities, func(a storage.Activity) bool {
		return a.SessionID == sessionID
	})
	if err != nil {
		return nil, err
	}
	storage.SortActivities(activities)
	return activities, nil
}

func (s *activityStore) FindNonEndedByDevice(ctx context.Context, deviceID string) ([]storage.Activity, error) {
	return filterBucket(ctx, s.db, bucketActivities, func(a storage.Activity) bool {
		return a.DeviceID == deviceID && a.Status != storage.ActivityEnded
	})
}

func (s *activityStore) FindExpired(ctx context.Context, now time.Time) ([]storage.Activity, error) {
	activities, err := filterBucket(ctx, s.db, bucketActivities, func(a storage.Activity) bool {
		return a.Status == storage.ActivityActive && a.EndedAt != nil && !a.EndedAt.After(now)
	})
	if err != nil {
		return nil, err
	}
	storage.SortActivities(activities)
	return activities, nil
}

func (s *activityStore) CountNonEnded(ctx context.Context, sessionID string) (int, error) {
	activities, err := filterBucket(ctx, s.db, bucketActivities, func(a storage.Activity) bool {
		return a.SessionID == sessionID && a.Status != storage.ActivityEnded
	})
	if err != nil {
		return 0, err
	}
	return len(activities), nil
}
