// Package history keeps a per-user record of past optimization calls.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/haroldofalcao/optinutri/internal/config"
	"github.com/haroldofalcao/optinutri/pkg/constants"
	"github.com/haroldofalcao/optinutri/pkg/optimization"
)

// ErrNotFound is returned when an entry id is unknown or belongs to another
// user.
var ErrNotFound = errors.New("history entry not found")

// Entry is one saved optimization call.
type Entry struct {
	ID          string                   `json:"id"`
	User        string                   `json:"user"`
	CreatedAt   time.Time                `json:"created_at"`
	Constraints optimization.Constraints `json:"constraints"`
	SelectedIDs []string                 `json:"selected_formulas,omitempty"`
	Result      optimization.Result      `json:"result"`
}

// Store persists entries. List returns the newest entries first.
type Store interface {
	Save(ctx context.Context, e Entry) (string, error)
	List(ctx context.Context, user string, limit int) ([]Entry, error)
	Delete(ctx context.Context, user, id string) error
	Clear(ctx context.Context, user string) error
}

// New builds the store selected by cfg. The Redis backend is pinged before
// it is returned.
func New(ctx context.Context, logger *zap.Logger, cfg config.HistoryConfig) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch config.CanonicalHistoryBackend(cfg.Backend) {
	case constants.HistoryBackendMemory:
		return NewMemoryStore(cfg.MaxEntries), nil
	case constants.HistoryBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.Info("history backed by redis",
			zap.String("op", "history.New"),
			zap.String("addr", cfg.RedisAddr),
			zap.Int("db", cfg.RedisDB))
		return NewRedisStore(logger, client, cfg.MaxEntries), nil
	default:
		return nil, fmt.Errorf("history backend %q is not supported", cfg.Backend)
	}
}

func normalizeUser(user string) string {
	if user == "" {
		return constants.DefaultUser
	}
	return user
}

func capacity(maxEntries int) int {
	if maxEntries <= 0 {
		return constants.DefaultHistoryEntries
	}
	return maxEntries
}
