package affinity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/core/ports"
)

const (
	DefaultRedisPrefix = "flowgate:affinity"
	redisPingTimeout   = 3 * time.Second
)

// RedisStore shares affinity between gateway replicas. Each entry is a JSON
// string under prefix:entry:<frontend>:<key>. Two sets index them:
// prefix:backend:<id> holds the entry keys bound to that backend and
// prefix:entries holds all of them, so neither eviction nor counting scans.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ ports.AffinityStore = (*RedisStore)(nil)

type RedisConfig struct {
	Addr     string
	Password string
	Prefix   string
	DB       int
}

// NewRedisStore connects and pings; an unreachable Redis is a startup error.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisStoreWithClient(client, cfg.Prefix), nil
}

func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: strings.TrimSuffix(prefix, ":")}
}

func (s *RedisStore) entryKey(frontendID, key string) string {
	return s.prefix + ":entry:" + frontendID + ":" + key
}

func (s *RedisStore) backendKey(backendID string) string {
	return s.prefix + ":backend:" + backendID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":entries"
}

func (s *RedisStore) Get(ctx context.Context, frontendID, key string) (*domain.AffinityEntry, bool, error) {
	raw, err := s.client.Get(ctx, s.entryKey(frontendID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading affinity entry: %w", err)
	}
	var e domain.AffinityEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("decoding affinity entry: %w", err)
	}
	return &e, true, nil
}

func (s *RedisStore) Put(ctx context.Context, entry *domain.AffinityEntry) error {
	previous, found, err := s.Get(ctx, entry.FrontendID, entry.Key)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding affinity entry: %w", err)
	}

	ek := s.entryKey(entry.FrontendID, entry.Key)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if found && previous.BackendID != entry.BackendID {
			pipe.SRem(ctx, s.backendKey(previous.BackendID), ek)
		}
		pipe.Set(ctx, ek, payload, 0)
		pipe.SAdd(ctx, s.backendKey(entry.BackendID), ek)
		pipe.SAdd(ctx, s.indexKey(), ek)
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing affinity entry: %w", err)
	}
	return nil
}

// Touch watches the entry so a rebind landing between the read and the
// write aborts the update instead of being overwritten.
func (s *RedisStore) Touch(ctx context.Context, frontendID, key, backendID string, at time.Time) error {
	ek := s.entryKey(frontendID, key)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, ek).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var e domain.AffinityEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("decoding affinity entry: %w", err)
		}
		if e.BackendID != backendID {
			return nil
		}
		e.LastUsed = at
		payload, err := json.Marshal(&e)
		if err != nil {
			return fmt.Errorf("encoding affinity entry: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, ek, payload, 0)
			return nil
		})
		return err
	}, ek)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("touching affinity entry: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, frontendID, key string) error {
	previous, found, err := s.Get(ctx, frontendID, key)
	if err != nil || !found {
		return err
	}
	ek := s.entryKey(frontendID, key)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, ek)
		pipe.SRem(ctx, s.backendKey(previous.BackendID), ek)
		pipe.SRem(ctx, s.indexKey(), ek)
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting affinity entry: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteByBackend(ctx context.Context, backendID string) (int, error) {
	bk := s.backendKey(backendID)
	keys, err := s.client.SMembers(ctx, bk).Result()
	if err != nil {
		return 0, fmt.Errorf("listing affinity entries for %s: %w", backendID, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}

	var deleted *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, keys...)
		pipe.Del(ctx, bk)
		pipe.SRem(ctx, s.indexKey(), members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("evicting affinity entries for %s: %w", backendID, err)
	}
	return int(deleted.Val()), nil
}

func (s *RedisStore) List(ctx context.Context) ([]domain.AffinityEntry, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("listing affinity entries: %w", err)
	}
	if len(keys) == 0 {
		return []domain.AffinityEntry{}, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading affinity entries: %w", err)
	}
	out := make([]domain.AffinityEntry, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// deleted between SMEMBERS and MGET
			continue
		}
		var e domain.AffinityEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("counting affinity entries: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
