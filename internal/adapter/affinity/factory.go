package affinity

import (
	"context"
	"fmt"

	"github.com/thushan/flowgate/internal/config"
	"github.com/thushan/flowgate/internal/core/ports"
)

// NewStore builds the store named by the configuration.
func NewStore(ctx context.Context, cfg config.AffinityConfig) (ports.AffinityStore, error) {
	switch cfg.Store {
	case "", config.StoreMemory:
		return NewMemoryStore(), nil
	case config.StoreRedis:
		return NewRedisStore(ctx, RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			Prefix:   cfg.Redis.Prefix,
			DB:       cfg.Redis.DB,
		})
	default:
		return nil, fmt.Errorf("unknown affinity store %q", cfg.Store)
	}
}
