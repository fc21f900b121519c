package stock

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"warungpos/backend/internal/store"
)

const casRetries = 5

// RedisRealtime keeps stock levels in redis, mutated through WATCH-based
// compare-and-swap so concurrent terminals serialize on the same key.
type RedisRealtime struct {
	client *redis.Client
}

func NewRedisRealtime(client *redis.Client) *RedisRealtime {
	return &RedisRealtime{client: client}
}

func stockKey(productID string) string { return "stok:" + productID }

func (r *RedisRealtime) Adjust(ctx context.Context, productID string, delta, seed int) (int, error) {
	key := stockKey(productID)
	var result int
	txf := func(tx *redis.Tx) error {
		current := seed
		val, err := tx.Get(ctx, key).Result()
		switch {
		case err == redis.Nil:
			// Key absent, seed from the primary store's view.
		case err != nil:
			return err
		default:
			current, err = strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("corrupt stock value for %s: %w", productID, err)
			}
		}
		next := current + delta
		if next < 0 {
			return store.ErrInsufficientStock
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		if err == nil {
			result = next
		}
		return err
	}
	for i := 0; i < casRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if err == redis.TxFailedErr {
			continue
		}
		return 0, err
	}
	return 0, ErrConflict
}

func (r *RedisRealtime) Set(ctx context.Context, productID string, qty int) error {
	return r.client.Set(ctx, stockKey(productID), qty, 0).Err()
}
