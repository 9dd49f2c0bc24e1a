package bolt

import (
	"context"
	"sort"

	"github.com/goodtune/lounge/internal/storage"
	"github.com/shopspring/decimal"
	"go.etcd.io/bbolt"
)

type sessionStore struct {
	db *bbolt.DB
}

func (s *sessionStore) Get(ctx context.Context, id string) (*storage.Session, error) {
	return getBucketValue[storage.Session](ctx, s.db, bucketSessions, id)
}

func (s *sessionStore) List(ctx context.Context, filter storage.SessionFilter) ([]storage.Session, error) {
	sessions, err := filterBucket(ctx, s.db, bucketSessions, func(sess storage.Session) bool {
		return filter.Status == "" || sess.Status == filter.Status
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartedAt.Before(sessions[j].StartedAt) })
	return sessions, nil
}

func (s *sessionStore) Upsert(ctx context.Context, session storage.Session) error {
	return putBucketValue(ctx, s.db, bucketSessions, session.ID, session)
}

func (s *sessionStore) SetTotal(ctx context.Context, id string, total decimal.Decimal) error {
	return updateBucketValue(ctx, s.db, bucketSessions, id, func(sess *storage.Session) {
		sess.TotalPrice = total
	})
}

func (s *sessionStore) Delete(ctx context.Context, id string) error {
	return deleteBucketValue(ctx, s.db, bucketSessions, id)
}
