package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const keyPrefix = "videobot:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore keeps session state in Redis so it survives restarts.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(config RedisConfig, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.WithFields(log.Fields{"addr": config.Addr, "db": config.DB}).Info("[Session] Connected to Redis")
	return newRedisStoreWithClient(client, ttl), nil
}

func newRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func urlKey(requestID string) string { return keyPrefix + "url:" + requestID }
func modeKey(userID int64) string    { return keyPrefix + "mode:" + strconv.FormatInt(userID, 10) }

func (r *RedisStore) PutURL(ctx context.Context, requestID, url string) error {
	if err := r.client.Set(ctx, urlKey(requestID), url, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStore) GetURL(ctx context.Context, requestID string) (string, error) {
	val, err := r.client.Get(ctx, urlKey(requestID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrExpired
	}
	if err != nil {
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	return val, nil
}

func (r *RedisStore) SetMode(ctx context.Context, userID int64, mode Mode) error {
	if mode == ModeNone {
		return r.ClearMode(ctx, userID)
	}
	if err := r.client.Set(ctx, modeKey(userID), string(mode), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Mode(ctx context.Context, userID int64) (Mode, error) {
	val, err := r.client.Get(ctx, modeKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return ModeNone, nil
	}
	if err != nil {
		return ModeNone, fmt.Errorf("redis get failed: %w", err)
	}
	return Mode(val), nil
}

func (r *RedisStore) ClearMode(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, modeKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
