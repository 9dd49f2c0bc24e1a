package bolt

import (
	"context"
	"sort"
	"time"

	"github.com/goodtune/lounge/internal/storage"
	"go.etcd.io/bbolt"
)

type deviceStore struct {
	db *bbolt.DB
}

func (s *deviceStore) Get(ctx context.Context, id string) (*storage.Device, error) {
	return getBucketValue[storage.Device](ctx, s.db, bucketDevices, id)
}

func (s *deviceStore) List(ctx context.Context) ([]storage.Device, error) {
	devices, err := listBucket[storage.Device](ctx, s.db, bucketDevices)
	if err != nil {
		return nil, err
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices, nil
}

func (s *deviceStore) Upsert(ctx context.Context, device storage.Device) error {
	return putBucketValue(ctx, s.db, bucketDevices, device.ID, device)
}

func (s *deviceStore) SetStatus(ctx context.Context, id string, status storage.DeviceStatus, at time.Time) error {
	return updateBucketValue(ctx, s.db, bucketDevices, id, func(d *storage.Device) {
		d.Status = status
		d.UpdatedAt = at
	})
}
