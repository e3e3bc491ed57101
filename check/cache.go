package check

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Cache stores, reads back and deletes a probe key.
func Cache(client *redis.Client) Check {
	return Func(func(ctx context.Context) error {
		key := "healthguard:probe:" + uuid.NewString()
		value := time.Now().UTC().Format(time.RFC3339Nano)

		if err := client.Set(ctx, key, value, time.Minute).Err(); err != nil {
			return fmt.Errorf("unable to set cache key: %w", err)
		}
		defer client.Del(context.Background(), key)

		got, err := client.Get(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("unable to get cache key: %w", err)
		}
		if got != value {
			return fmt.Errorf("cache key %s does not match", key)
		}

		return nil
	})
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: time.Second,
		ReadTimeout: time.Second,
		MaxRetries:  -1,
	})
}
