package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"affrollup/internal/domain"
	"affrollup/pkg/logger"
)

const arsenalKeyPrefix = "affrollup:arsenal:"

// ConnectRedis initializes a Redis client from a redis:// URL or host:port and pings it.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// implements domain.ArsenalRepository on Redis. Each arsenal is a JSON string; the user's
// ids live in a set and the active id in its own key.
type RedisArsenalRepository struct {
	client *redis.Client
	logger *logger.Logger
}

func NewRedisArsenalRepository(client *redis.Client, logger *logger.Logger) *RedisArsenalRepository {
	return &RedisArsenalRepository{client: client, logger: logger}
}

func arsenalKey(userID, id string) string {
	return arsenalKeyPrefix + userID + ":" + id
}

func arsenalIndexKey(userID string) string {
	return arsenalKeyPrefix + userID + ":ids"
}

func arsenalActiveKey(userID string) string {
	return arsenalKeyPrefix + userID + ":active"
}

func (r *RedisArsenalRepository) Save(ctx context.Context, arsenal domain.Arsenal) error {
	arsenal.IsActive = false
	raw, err := json.Marshal(arsenal)
	if err != nil {
		return fmt.Errorf("marshal arsenal: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, arsenalKey(arsenal.UserID, arsenal.ID), raw, 0)
		pipe.SAdd(ctx, arsenalIndexKey(arsenal.UserID), arsenal.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save arsenal: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id":    arsenal.UserID,
		"arsenal_id": arsenal.ID,
	}).Debug("Stored arsenal in redis")
	return nil
}

func (r *RedisArsenalRepository) Get(ctx context.Context, userID, id string) (*domain.Arsenal, error) {
	raw, err := r.client.Get(ctx, arsenalKey(userID, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrArsenalNotFound
		}
		return nil, fmt.Errorf("get arsenal: %w", err)
	}

	var out domain.Arsenal
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode arsenal: %w", err)
	}

	activeID, err := r.activeID(ctx, userID)
	if err != nil {
		return nil, err
	}
	out.IsActive = activeID == id
	return &out, nil
}

func (r *RedisArsenalRepository) List(ctx context.Context, userID string) ([]domain.Arsenal, error) {
	ids, err := r.client.SMembers(ctx, arsenalIndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list arsenal ids: %w", err)
	}
	if len(ids) == 0 {
		return []domain.Arsenal{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = arsenalKey(userID, id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load arsenals: %w", err)
	}

	activeID, err := r.activeID(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := make([]domain.Arsenal, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			// index entry without a value
			continue
		}
		var a domain.Arsenal
		if err := json.Unmarshal([]byte(s), &a); err != nil {
			return nil, fmt.Errorf("decode arsenal: %w", err)
		}
		a.IsActive = a.ID == activeID
		result = append(result, a)
	}
	sortArsenals(result)
	return result, nil
}

func (r *RedisArsenalRepository) Delete(ctx context.Context, userID, id string) error {
	activeID, err := r.activeID(ctx, userID)
	if err != nil {
		return err
	}

	var removed *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.Del(ctx, arsenalKey(userID, id))
		pipe.SRem(ctx, arsenalIndexKey(userID), id)
		if activeID == id {
			pipe.Del(ctx, arsenalActiveKey(userID))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete arsenal: %w", err)
	}
	if removed.Val() == 0 {
		return domain.ErrArsenalNotFound
	}
	return nil
}

func (r *RedisArsenalRepository) Activate(ctx context.Context, userID, id string) error {
	n, err := r.client.Exists(ctx, arsenalKey(userID, id)).Result()
	if err != nil {
		return fmt.Errorf("check arsenal: %w", err)
	}
	if n == 0 {
		return domain.ErrArsenalNotFound
	}
	if err := r.client.Set(ctx, arsenalActiveKey(userID), id, 0).Err(); err != nil {
		return fmt.Errorf("activate arsenal: %w", err)
	}
	return nil
}

func (r *RedisArsenalRepository) Active(ctx context.Context, userID string) (*domain.Arsenal, error) {
	id, err := r.activeID(ctx, userID)
	if err != nil || id == "" {
		return nil, err
	}
	a, err := r.Get(ctx, userID, id)
	if errors.Is(err, domain.ErrArsenalNotFound) {
		return nil, nil
	}
	return a, err
}

func (r *RedisArsenalRepository) activeID(ctx context.Context, userID string) (string, error) {
	id, err := r.client.Get(ctx, arsenalActiveKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("get active arsenal: %w", err)
	}
	return id, nil
}
