package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "admin_session:"

// expiredSessionGrace keeps an expired session readable long enough to report it as expired.
const expiredSessionGrace = time.Hour

// RedisStore keeps sessions in Redis so they are shared across instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the redis:// URL and verifies the connection.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	options, parseErr := redis.ParseURL(url)
	if parseErr != nil {
		return nil, fmt.Errorf("session: parse redis url: %w", parseErr)
	}
	client := redis.NewClient(options)
	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		_ = client.Close()
		return nil, fmt.Errorf("session: ping redis: %w", pingErr)
	}
	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (store *RedisStore) Save(ctx context.Context, token string, session Session, ttl time.Duration) error {
	payload, marshalErr := json.Marshal(session)
	if marshalErr != nil {
		return fmt.Errorf("session: encode: %w", marshalErr)
	}
	if err := store.client.Set(ctx, redisKeyPrefix+token, payload, ttl+expiredSessionGrace).Err(); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}

func (store *RedisStore) Load(ctx context.Context, token string) (Session, error) {
	payload, getErr := store.client.Get(ctx, redisKeyPrefix+token).Bytes()
	if errors.Is(getErr, redis.Nil) {
		return Session{}, ErrSessionNotFound
	}
	if getErr != nil {
		return Session{}, fmt.Errorf("session: load: %w", getErr)
	}
	var session Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return Session{}, fmt.Errorf("session: decode: %w", err)
	}
	return session, nil
}

func (store *RedisStore) Delete(ctx context.Context, token string) error {
	if err := store.client.Del(ctx, redisKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

func (store *RedisStore) Close() error {
	return store.client.Close()
}
