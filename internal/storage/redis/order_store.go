package redis

import (
	"context"
	"sort"
	"strconv"

	"github.com/goodtune/lounge/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type orderStore struct {
	client *redis.Client
}

func (s *orderStore) Get(ctx context.Context, id string) (*storage.Order, error) {
	return getOne(ctx, s.client, orderKey(id), parseOrder)
}

func (s *orderStore) Upsert(ctx context.Context, order storage.Order) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, orderKey(order.ID),
			"id", order.ID,
			"activity_id", order.ActivityID,
			"product_id", order.ProductID,
			"quantity", strconv.Itoa(order.Quantity),
			"price", order.Price.String(),
			"total_price", order.TotalPrice.String(),
			"ordered_by", order.OrderedBy,
			"created_at", formatTime(order.CreatedAt),
		)
		pipe.SAdd(ctx, activityOrdersKey(order.ActivityID), order.ID)
		return nil
	})
	return err
}

func (s *orderStore) Delete(ctx context.Context, id string) error {
	activityID, err := s.client.HGet(ctx, orderKey(id), "activity_id").Result()
	if err == redis.Nil {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}

	deleted, err := deleteOrder.Run(ctx, s.client, []string{orderKey(id), activityOrdersKey(activityID)}, id).Int64()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *orderStore) ListByActivity(ctx context.Context, activityID string) ([]storage.Order, error) {
	ids, err := s.client.SMembers(ctx, activityOrdersKey(activityID)).Result()
	if err != nil {
		return nil, err
	}
	orders, err := loadAll(ctx, s.client, ids, orderKey, parseOrder)
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
