package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	keyPrefix = "optinutri:history:"
	indexKey  = keyPrefix + "index"
)

// RedisStore keeps a capped JSON list per user and an id-to-user index hash.
type RedisStore struct {
	logger *zap.Logger
	client redis.Cmdable
	max    int
}

// NewRedisStore wraps client. Entries beyond maxEntries per user are trimmed.
func NewRedisStore(logger *zap.Logger, client redis.Cmdable, maxEntries int) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{logger: logger, client: client, max: capacity(maxEntries)}
}

func userKey(user string) string {
	return keyPrefix + "user:" + user
}

// Save pushes e to the head of the user's list.
func (s *RedisStore) Save(ctx context.Context, e Entry) (string, error) {
	e.ID = uuid.NewString()
	e.User = normalizeUser(e.User)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to encode history entry: %w", err)
	}

	key := userKey(e.User)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, int64(s.max-1))
		pipe.HSet(ctx, indexKey, e.ID, e.User)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to save history entry: %w", err)
	}
	return e.ID, nil
}

// List returns up to limit entries for user. A non-positive limit returns all.
func (s *RedisStore) List(ctx context.Context, user string, limit int) ([]Entry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raw, err := s.client.LRange(ctx, userKey(normalizeUser(user)), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	out := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			s.logger.Warn("skipping unreadable history entry",
				zap.String("op", "history.RedisStore.List"),
				zap.Error(err))
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Delete removes one entry of user. Index entries left behind by trimming are
// cleaned up and reported as not found.
func (s *RedisStore) Delete(ctx context.Context, user, id string) error {
	user = normalizeUser(user)
	owner, err := s.client.HGet(ctx, indexKey, id).Result()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up history entry: %w", err)
	}
	if owner != user {
		return ErrNotFound
	}

	key := userKey(user)
	raw, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	removed := false
	for _, item := range raw {
		var e Entry
		if json.Unmarshal([]byte(item), &e) != nil || e.ID != id {
			continue
		}
		if err := s.client.LRem(ctx, key, 1, item).Err(); err != nil {
			return fmt.Errorf("failed to delete history entry: %w", err)
		}
		removed = true
		break
	}

	if err := s.client.HDel(ctx, indexKey, id).Err(); err != nil {
		return fmt.Errorf("failed to update history index: %w", err)
	}
	if !removed {
		return ErrNotFound
	}
	return nil
}

// Clear removes every entry of user.
func (s *RedisStore) Clear(ctx context.Context, user string) error {
	entries, err := s.List(ctx, user, 0)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(ids) > 0 {
			pipe.HDel(ctx, indexKey, ids...)
		}
		pipe.Del(ctx, userKey(normalizeUser(user)))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
