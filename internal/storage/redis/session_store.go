package redis

import (
	"context"
	"sort"

	"github.com/goodtune/lounge/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

var sessionStatuses = []storage.SessionStatus{
	storage.SessionActive,
	storage.SessionPaused,
	storage.SessionEnded,
}

type sessionStore struct {
	client *redis.Client
}

func (s *sessionStore) Get(ctx context.Context, id string) (*storage.Session, error) {
	return getOne(ctx, s.client, sessionKey(id), parseSession)
}

func (s *sessionStore) List(ctx context.Context, filter storage.SessionFilter) ([]storage.Session, error) {
	setKey := sessionsSetKey
	if filter.Status != "" {
		setKey = sessionStatusKey(string(filter.Status))
	}

	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, err
	}
	sessions, err := loadAll(ctx, s.client, ids, sessionKey, parseSession)
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartedAt.Before(sessions[j].StartedAt) })
	return sessions, nil
}

// Upsert writes the session and moves it to the set for its status
func (s *sessionStore) Upsert(ctx context.Context, session storage.Session) error {
	keys := []string{sessionKey(session.ID), sessionsSetKey, sessionStatusKey(string(session.Status))}
	for _, status := range sessionStatuses {
		if status != session.Status {
			keys = append(keys, sessionStatusKey(string(status)))
		}
	}

	args := []interface{}{
		session.ID,
		"id", session.ID,
		"customer_id", session.CustomerID,
		"created_by", session.CreatedBy,
		"type", string(session.Type),
		"status", string(session.Status),
		"started_at", formatTime(session.StartedAt),
		"ended_at", formatOptionalTime(session.EndedAt),
		"total_price", session.TotalPrice.String(),
		"discount", session.Discount.String(),
	}

	return upsertSession.Run(ctx, s.client, keys, args...).Err()
}

func (s *sessionStore) SetTotal(ctx context.Context, id string, total decimal.Decimal) error {
	updated, err := setFieldsIfExists.Run(ctx, s.client, []string{sessionKey(id)},
		"total_price", total.String(),
	).Int64()
	if err != nil {
		return err
	}
	if updated == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes the session hash and its index entries
func (s *sessionStore) Delete(ctx context.Context, id string) error {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.Del(ctx, sessionKey(id))
		pipe.SRem(ctx, sessionsSetKey, id)
		for _, status := range sessionStatuses {
			pipe.SRem(ctx, sessionStatusKey(string(status)), id)
		}
		pipe.Del(ctx, sessionActivitiesKey(id), sessionOpenActivitiesKey(id))
		return nil
	})
	if err != nil {
		return err
	}
	if removed.Val() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
