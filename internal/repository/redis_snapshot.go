package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domrepo "TradeDesk/internal/domain/repository"
	"TradeDesk/pkg/cache"
	applogger "TradeDesk/pkg/logger"
)

// RedisSnapshotStore keeps the snapshot under one cache key. A lease key
// taken with TryLock keeps a second desk from writing the same snapshot.
type RedisSnapshotStore struct {
	c        cache.Service
	key      string
	leaseTTL time.Duration
	l        *applogger.Logger

	mu   sync.Mutex
	held bool
}

func NewRedisSnapshotStore(c cache.Service, key string, leaseTTL time.Duration, l *applogger.Logger) *RedisSnapshotStore {
	if key == "" {
		key = "tradedesk:snapshot"
	}
	if leaseTTL <= 0 {
		leaseTTL = 2 * time.Minute
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &RedisSnapshotStore{c: c, key: key, leaseTTL: leaseTTL, l: l}
}

// ErrLeaseHeld means another writer owns the snapshot key.
var ErrLeaseHeld = errors.New("snapshot lease held by another writer")

func (s *RedisSnapshotStore) leaseKey() string { return s.key + ":lease" }

// Acquire takes the writer lease, or refreshes it when already held.
func (s *RedisSnapshotStore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held {
		_, err := s.c.Expire(ctx, s.leaseKey(), s.leaseTTL)
		return err
	}
	ok, err := s.c.TryLock(ctx, s.leaseKey(), s.leaseTTL)
	if err != nil {
		return fmt.Errorf("redis snapshot: lease: %w", err)
	}
	if !ok {
		return ErrLeaseHeld
	}
	s.held = true
	return nil
}

func (s *RedisSnapshotStore) Load(ctx context.Context) ([]byte, error) {
	var raw string
	if err := s.c.Get(ctx, s.key, &raw); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, domrepo.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("redis snapshot: get: %w", err)
	}
	return []byte(raw), nil
}

func (s *RedisSnapshotStore) Save(ctx context.Context, data []byte) error {
	if err := s.Acquire(ctx); err != nil {
		s.l.Warn("redis snapshot save skipped", applogger.String("key", s.key), applogger.Error(err))
		return err
	}
	if err := s.c.Set(ctx, s.key, string(data), 0); err != nil {
		return fmt.Errorf("redis snapshot: set: %w", err)
	}
	return nil
}

// Close releases the lease if held.
func (s *RedisSnapshotStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.held {
		return nil
	}
	s.held = false
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.c.Unlock(ctx, s.leaseKey()); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return err
	}
	return nil
}
