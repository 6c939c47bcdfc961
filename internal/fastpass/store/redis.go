package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	snapshotKeyPrefix = "fastpass:session:"
	snapshotSetKey    = "fastpass:sessions:all"
)

// RedisStore is a Redis-backed Store, for an arbiter that wants its
// session registry visible to a failover peer or an external debug
// tool instead of held only in one process's memory.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// RedisStoreConfig configures a RedisStore.
type RedisStoreConfig struct {
	Client *redis.Client
	Logger *zap.Logger
	// TTL is the key expiry applied to every saved snapshot; 0 means
	// no expiry (DeleteExpired remains the only reaper).
	TTL time.Duration
}

// NewRedisStore builds a RedisStore from config.
func NewRedisStore(config *RedisStoreConfig) (*RedisStore, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("store: redis client is required")
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &RedisStore{client: config.Client, logger: config.Logger, ttl: config.TTL}, nil
}

func (s *RedisStore) Save(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("store: nil snapshot")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}

	key := snapshotKeyPrefix + snap.EndpointAddr
	pipe := s.client.Pipeline()
	pipe.Set(ctx, key, data, s.ttl)
	pipe.SAdd(ctx, snapshotSetKey, snap.EndpointAddr)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: save snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, endpointAddr string) (*Snapshot, error) {
	data, err := s.client.Get(ctx, snapshotKeyPrefix+endpointAddr).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("store: snapshot not found: %s", endpointAddr)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("store: unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (s *RedisStore) Delete(ctx context.Context, endpointAddr string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, snapshotKeyPrefix+endpointAddr)
	pipe.SRem(ctx, snapshotSetKey, endpointAddr)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: delete snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]*Snapshot, error) {
	addrs, err := s.client.SMembers(ctx, snapshotSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list snapshots: %w", err)
	}
	out := make([]*Snapshot, 0, len(addrs))
	for _, addr := range addrs {
		snap, err := s.Get(ctx, addr)
		if err != nil {
			// Expired via TTL but not yet reaped from the set; skip it.
			s.client.SRem(ctx, snapshotSetKey, addr)
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

func (s *RedisStore) DeleteExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	snaps, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, snap := range snaps {
		if snap.LastSeen.Before(cutoff) {
			if err := s.Delete(ctx, snap.EndpointAddr); err != nil {
				s.logger.Warn("failed to delete expired snapshot", zap.String("addr", snap.EndpointAddr), zap.Error(err))
				continue
			}
			removed++
		}
	}
	return removed, nil
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, snapshotSetKey).Result()
	if err != nil {
		return 0, fmt.Errorf("store: count snapshots: %w", err)
	}
	return int(n), nil
}
