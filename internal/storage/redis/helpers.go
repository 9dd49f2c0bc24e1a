package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/lounge/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// score orders records in sorted sets. Millisecond precision stays exact in a float64.
func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func parseTime(data map[string]string, field string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, data[field])
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s: %w", field, err)
	}
	return t, nil
}

func parseOptionalTime(data map[string]string, field string) (*time.Time, error) {
	if data[field] == "" {
		return nil, nil
	}
	t, err := parseTime(data, field)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseDecimal(data map[string]string, field string) (decimal.Decimal, error) {
	if data[field] == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(data[field])
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse %s: %w", field, err)
	}
	return d, nil
}

// loadHashes fetches many hashes in one pipeline, skipping keys that no longer exist.
func loadHashes(ctx context.Context, client *redis.Client, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HGetAll(ctx, key)
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	out := make([]map[string]string, 0, len(keys))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		out = append(out, data)
	}
	return out, nil
}

// loadAll fetches and parses the records named by ids.
func loadAll[T any](ctx context.Context, client *redis.Client, ids []string, key func(string) string, parse func(map[string]string) (*T, error)) ([]T, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}

	hashes, err := loadHashes(ctx, client, keys)
	if err != nil {
		return nil, err
	}

	items := make([]T, 0, len(hashes))
	for _, data := range hashes {
		item, err := parse(data)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}

func getOne[T any](ctx context.Context, client *redis.Client, key string, parse func(map[string]string) (*T, error)) (*T, error) {
	data, err := client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}
	return parse(data)
}

// parseDevice converts a Redis hash to Device
func parseDevice(data map[string]string) (*storage.Device, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	rate, err := parseDecimal(data, "price_per_hour")
	if err != nil {
		return nil, err
	}

	device := &storage.Device{
		ID:           data["id"],
		Name:         data["name"],
		Type:         storage.DeviceType(data["type"]),
		PricePerHour: rate,
		Status:       storage.DeviceStatus(data["status"]),
	}

	if data["price_per_hour_multi"] != "" {
		multi, err := parseDecimal(data, "price_per_hour_multi")
		if err != nil {
			return nil, err
		}
		device.PricePerHourMulti = &multi
	}

	if data["updated_at"] != "" {
		if device.UpdatedAt, err = parseTime(data, "updated_at"); err != nil {
			return nil, err
		}
	}

	return device, nil
}

// parseProduct converts a Redis hash to Product
func parseProduct(data map[string]string) (*storage.Product, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	price, err := parseDecimal(data, "price")
	if err != nil {
		return nil, err
	}

	product := &storage.Product{
		ID:    data["id"],
		Name:  data["name"],
		Price: price,
	}
	if data["updated_at"] != "" {
		if product.UpdatedAt, err = parseTime(data, "updated_at"); err != nil {
			return nil, err
		}
	}
	return product, nil
}

// parseSession converts a Redis hash to Session
func parseSession(data map[string]string) (*storage.Session, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	startedAt, err := parseTime(data, "started_at")
	if err != nil {
		return nil, err
	}
	endedAt, err := parseOptionalTime(data, "ended_at")
	if err != nil {
		return nil, err
	}
	total, err := parseDecimal(data, "total_price")
	if err != nil {
		return nil, err
	}
	discount, err := parseDecimal(data, "discount")
	if err != nil {
		return nil, err
	}

	return &storage.Session{
		ID:         data["id"],
		CustomerID: data["customer_id"],
		CreatedBy:  data["created_by"],
		Type:       storage.SessionType(data["type"]),
		Status:     storage.SessionStatus(data["status"]),
		StartedAt:  startedAt,
		EndedAt:    endedAt,
		TotalPrice: total,
		Discount:   discount,
	}, nil
}

// parseActivity converts a Redis hash to Activity
func parseActivity(data map[string]string) (*storage.Activity, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	startedAt, err := parseTime(data, "started_at")
	if err != nil {
		return nil, err
	}
	endedAt, err := parseOptionalTime(data, "ended_at")
	if err != nil {
		return nil, err
	}
	duration, err := parseDecimal(data, "duration_hours")
	if err != nil {
		return nil, err
	}
	total, err := parseDecimal(data, "total_price")
	if err != nil {
		return nil, err
	}

	return &storage.Activity{
		ID:            data["id"],
		SessionID:     data["session_id"],
		Type:          storage.ActivityType(data["type"]),
		DeviceID:      data["device_id"],
		Mode:          storage.Mode(data["mode"]),
		Status:        storage.ActivityStatus(data["status"]),
		StartedAt:     startedAt,
		EndedAt:       endedAt,
		DurationHours: duration,
		TotalPrice:    total,
		CreatedBy:     data["created_by"],
	}, nil
}

// parsePause converts a Redis hash to Pause
func parsePause(data map[string]string) (*storage.Pause, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	pausedAt, err := parseTime(data, "paused_at")
	if err != nil {
		return nil, err
	}
	resumedAt, err := parseOptionalTime(data, "resumed_at")
	if err != nil {
		return nil, err
	}
	minutes, err := parseDecimal(data, "duration_minutes")
	if err != nil {
		return nil, err
	}

	return &storage.Pause{
		ID:              data["id"],
		ActivityID:      data["activity_id"],
		PausedAt:        pausedAt,
		ResumedAt:       resumedAt,
		DurationMinutes: minutes,
		PausedBy:        data["paused_by"],
		ResumedBy:       data["resumed_by"],
	}, nil
}

// parseModeChange converts a Redis hash to ModeChange
func parseModeChange(data map[string]string) (*storage.ModeChange, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	changedAt, err := parseTime(data, "changed_at")
	if err != nil {
		return nil, err
	}
	endedAt, err := parseOptionalTime(data, "ended_at")
	if err != nil {
		return nil, err
	}
	seq := 0
	if raw := data["seq"]; raw != "" {
		if seq, err = strconv.Atoi(raw); err != nil {
			return nil, fmt.Errorf("failed to parse seq: %w", err)
		}
	}

	change := &storage.ModeChange{
		ID:         data["id"],
		ActivityID: data["activity_id"],
		Seq:        seq,
		ToMode:     storage.Mode(data["to_mode"]),
		ChangedAt:  changedAt,
		EndedAt:    endedAt,
		ChangedBy:  data["changed_by"],
	}
	if from := data["from_mode"]; from != "" {
		m := storage.Mode(from)
		change.FromMode = &m
	}
	return change, nil
}

// parseOrder converts a Redis hash to Order
func parseOrder(data map[string]string) (*storage.Order, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	quantity, err := strconv.Atoi(data["quantity"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse quantity: %w", err)
	}
	price, err := parseDecimal(data, "price")
	if err != nil {
		return nil, err
	}
	total, err := parseDecimal(data, "total_price")
	if err != nil {
		return nil, err
	}
	createdAt, err := parseTime(data, "created_at")
	if err != nil {
		return nil, err
	}

	return &storage.Order{
		ID:         data["id"],
		ActivityID: data["activity_id"],
		ProductID:  data["product_id"],
		Quantity:   quantity,
		Price:      price,
		TotalPrice: total,
		OrderedBy:  data["ordered_by"],
		CreatedAt:  createdAt,
	}, nil
}
