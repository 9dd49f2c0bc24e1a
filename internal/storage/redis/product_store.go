package redis

import (
	"context"
	"sort"

	"github.com/goodtune/lounge/internal/storage"
	"github.com/redis/go-redis/v9"
)

type productStore struct {
	client *redis.Client
}

func (s *productStore) Get(ctx context.Context, id string) (*storage.Product, error) {
	return getOne(ctx, s.client, productKey(id), parseProduct)
}

func (s *productStore) List(ctx context.Context) ([]storage.Product, error) {
	ids, err := s.client.SMembers(ctx, productsSetKey).Result()
	if err != nil {
		return nil, err
	}
	products, err := loadAll(ctx, s.client, ids, productKey, parseProduct)
	if err != nil {
		return nil, err
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (s *productStore) Upsert(ctx context.Context, product storage.Product) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, productKey(product.ID),
			"id", product.ID,
			"name", product.Name,
			"price", product.Price.String(),
			"updated_at", formatTime(product.UpdatedAt),
		)
		pipe.SAdd(ctx, productsSetKey, product.ID)
		return nil
	})
	return err
}
