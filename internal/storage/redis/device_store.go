package redis

import (
	"context"
	"sort"
	"time"

	"github.com/goodtune/lounge/internal/storage"
	"github.com/redis/go-redis/v9"
)

type deviceStore struct {
	client *redis.Client
}

func (s *deviceStore) Get(ctx context.Context, id string) (*storage.Device, error) {
	return getOne(ctx, s.client, deviceKey(id), parseDevice)
}

func (s *deviceStore) List(ctx context.Context) ([]storage.Device, error) {
	ids, err := s.client.SMembers(ctx, devicesSetKey).Result()
	if err != nil {
		return nil, err
	}
	devices, err := loadAll(ctx, s.client, ids, deviceKey, parseDevice)
	if err != nil {
		return nil, err
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices, nil
}

func (s *deviceStore) Upsert(ctx context.Context, device storage.Device) error {
	multi := ""
	if device.PricePerHourMulti != nil {
		multi = device.PricePerHourMulti.String()
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, deviceKey(device.ID),
			"id", device.ID,
			"name", device.Name,
			"type", string(device.Type),
			"price_per_hour", device.PricePerHour.String(),
			"price_per_hour_multi", multi,
			"status", string(device.Status),
			"updated_at", formatTime(device.UpdatedAt),
		)
		pipe.SAdd(ctx, devicesSetKey, device.ID)
		return nil
	})
	return err
}

func (s *deviceStore) SetStatus(ctx context.Context, id string, status storage.DeviceStatus, at time.Time) error {
	updated, err := setFieldsIfExists.Run(ctx, s.client, []string{deviceKey(id)},
		"status", string(status),
		"updated_at", formatTime(at),
	).Int64()
	if err != nil {
		return err
	}
	if updated == 0 {
		return storage.ErrNotFound
	}
	return nil
}
