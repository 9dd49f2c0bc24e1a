package bolt

import (
	"context"
	"sort"

	"github.com/goodtune/lounge/internal/storage"
	"go.etcd.io/bbolt"
)

type productStore struct {
	db *bbolt.DB
}

func (s *productStore) Get(ctx context.Context, id string) (*storage.Product, error) {
	return getBucketValue[storage.Product](ctx, s.db, bucketProducts, id)
}

func (s *productStore) List(ctx context.Context) ([]storage.Product, error) {
	products, err := listBucket[storage.Product](ctx, s.db, bucketProducts)
	if err != nil {
		return nil, err
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (s *productStore) Upsert(ctx context.Context, product storage.Product) error {
	return putBucketValue(ctx, s.db, bucketProducts, product.ID, product)
}
