package persistence

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vibecoder-lab/gamevault/internal/config"
)

// New builds the configured Adapter: a Local mirror for config mode
// "local", or a Remote client for "remote". Config.Validate already
// rejects any other mode before this is reached.
func New(cfg config.PersistenceConfig) (Adapter, error) {
	switch cfg.Mode {
	case "local":
		return NewLocal(cfg.LocalDir), nil
	case "remote":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		return NewRemote(rdb, cfg.Namespace), nil
	default:
		return nil, fmt.Errorf("persistence: unknown mode %q", cfg.Mode)
	}
}
