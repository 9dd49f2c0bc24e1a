package bolt

import (
	"context"
	"sort"

	"github.com/goodtune/lounge/internal/storage"
	"github.com/shopspring/decimal"
	"go.etcd.io/bbolt"
)

type orderStore struct {
	db *bbolt.DB
}

func (s *orderStore) Get(ctx context.Context, id string) (*storage.Order, error) {
	return getBucketValue[storage.Order](ctx, s.db, bucketOrders, id)
}

func (s *orderStore) Upsert(ctx context.Context, order storage.Order) error {
	return putBucketValue(ctx, s.db, bucketOrders, order.ID, order)
}

func (s *orderStore) Delete(ctx context.Context, id string) error {
	return deleteBucketValue(ctx, s.db, bucketOrders, id)
}

func (s *orderStore) ListByActivity(ctx context.Context, activityID string) ([]storage.Order, error) {
	orders, err := filterBucket(ctx, s.db, bucketOrders, func(o storage.Order) bool {
		return o.ActivityID == activityID
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
	return orders, nil
}

func (s *orderStore) SumTotals(ctx context.Context, activityID string) (decimal.Decimal, error) {
	orders, err := s.ListByActivity(ctx, activityID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.TotalPrice)
	}
	return total, nil
}
