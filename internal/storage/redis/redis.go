package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/lounge/internal/config"
	"github.com/goodtune/lounge/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Store implements the storage.Store interface using Redis
type Store struct {
	client *redis.Client
	locker *locker
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	// Parse timeouts
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	lockTTL := defaultLockTTL
	if cfg.LockTTL != "" {
		if lockTTL, err = time.ParseDuration(cfg.LockTTL); err != nil {
			return nil, fmt.Errorf("invalid lock_ttl: %w", err)
		}
	}

	// Determine address
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	// Ping to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{
		client: client,
		locker: &locker{client: client, ttl: lockTTL, retry: defaultLockRetry},
	}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Devices returns the DeviceStore implementation
func (s *Store) Devices() storage.DeviceStore { return &deviceStore{client: s.client} }

// Products returns the ProductStore implementation
func (s *Store) Products() storage.ProductStore { return &productStore{client: s.client} }

// Sessions returns the SessionStore implementation
func (s *Store) Sessions() storage.SessionStore { return &sessionStore{client: s.client} }

// Activities returns the ActivityStore implementation
func (s *Store) Activities() storage.ActivityStore { return &activityStore{client: s.client} }

// Pauses returns the PauseStore implementation
func (s *Store) Pauses() storage.PauseStore { return &pauseStore{client: s.client} }

// ModeChanges returns the ModeChangeStore implementation
func (s *Store) ModeChanges() storage.ModeChangeStore { return &modeChangeStore{client: s.client} }

// Orders returns the OrderStore implementation
func (s *Store) Orders() storage.OrderStore { return &orderStore{client: s.client} }

// Locker returns the distributed lock implementation
func (s *Store) Locker() storage.Locker { return s.locker }
