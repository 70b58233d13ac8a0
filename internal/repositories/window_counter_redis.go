package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisWindowCounterStore keeps sliding-window counters in Redis hashes.
// Keys expire after ttl so stale counters disappear without a cleanup pass.
type RedisWindowCounterStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisWindowCounterStore(client *redis.Client, prefix string, ttl time.Duration) *RedisWindowCounterStore {
	if prefix == "" {
		prefix = "sentinel:wc"
	}
	return &RedisWindowCounterStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisWindowCounterStore) key(identifier, category string) string {
	return s.prefix + ":" + category + ":" + identifier
}

func decodeWindowCounter(identifier, category string, fields map[string]string) (*models.WindowCounter, error) {
	c := &models.WindowCounter{Identifier: identifier, Category: category}

	count, err := strconv.Atoi(fields["count"])
	if err != nil {
		return nil, fmt.Errorf("corrupt window counter count: %w", err)
	}
	c.Count = count

	if c.WindowStartAt, err = parseUnixNano(fields["window_start_at"]); err != nil {
		return nil, err
	}
	if c.LastAttemptAt, err = parseUnixNano(fields["last_attempt_at"]); err != nil {
		return nil, err
	}
	if raw := fields["blocked_until"]; raw != "" {
		blocked, err := parseUnixNano(raw)
		if err != nil {
			return nil, err
		}
		c.BlockedUntil = &blocked
	}

	return c, nil
}

func encodeWindowCounter(c *models.WindowCounter) map[string]interface{} {
	blocked := ""
	if c.BlockedUntil != nil {
		blocked = strconv.FormatInt(c.BlockedUntil.UnixNano(), 10)
	}
	return map[string]interface{}{
		"count":           c.Count,
		"window_start_at": strconv.FormatInt(c.WindowStartAt.UnixNano(), 10),
		"last_attempt_at": strconv.FormatInt(c.LastAttemptAt.UnixNano(), 10),
		"blocked_until":   blocked,
	}
}

func parseUnixNano(raw string) (time.Time, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt window counter timestamp: %w", err)
	}
	return time.Unix(0, n).UTC(), nil
}

// Get returns the counter or models.ErrNotFound
func (s *RedisWindowCounterStore) Get(ctx context.Context, identifier, category string) (*models.WindowCounter, error) {
	fields, err := s.client.HGetAll(ctx, s.key(identifier, category)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read window counter: %w", err)
	}
	if len(fields) == 0 {
		return nil, models.ErrNotFound
	}
	return decodeWindowCounter(identifier, category, fields)
}

// Update applies mutate under WATCH. A concurrent writer aborts the transaction
// and the call reports models.ErrConflict, matching the PostgreSQL store.
func (s *RedisWindowCounterStore) Update(ctx context.Context, identifier, category string, mutate func(*models.WindowCounter)) (*models.WindowCounter, error) {
	key := s.key(identifier, category)
	var result *models.WindowCounter

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}

		current := &models.WindowCounter{Identifier: identifier, Category: category}
		if len(fields) > 0 {
			if current, err = decodeWindowCounter(identifier, category, fields); err != nil {
				return err
			}
		}

		mutate(current)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, encodeWindowCounter(current))
			if s.ttl > 0 {
				pipe.Expire(ctx, key, s.ttl)
			}
			return nil
		})
		if err != nil {
			return err
		}

		result = current
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return nil, models.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update window counter: %w", err)
	}

	return result, nil
}

// Block sets blocked_until under WATCH when the key still holds the same unblocked
// window. A missing key stays missing.
func (s *RedisWindowCounterStore) Block(ctx context.Context, identifier, category string, windowStart, blockedUntil time.Time) (bool, error) {
	key := s.key(identifier, category)
	blocked := false

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return nil
		}

		current, err := decodeWindowCounter(identifier, category, fields)
		if err != nil {
			return err
		}
		if !current.WindowStartAt.Equal(windowStart) || current.BlockedUntil != nil {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "blocked_until", strconv.FormatInt(blockedUntil.UnixNano(), 10))
			return nil
		})
		if err != nil {
			return err
		}
		blocked = true
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return false, models.ErrConflict
	}
	if err != nil {
		return false, fmt.Errorf("failed to block window counter: %w", err)
	}
	return blocked, nil
}

// DeleteStale removes counters whose window started before cutoff. Keys normally
// expire on their own; this covers counters written without a ttl.
func (s *RedisWindowCounterStore) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64

	iter := s.client.Scan(ctx, 0, s.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.client.HGet(ctx, key, "window_start_at").Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return deleted, fmt.Errorf("failed to read window counter: %w", err)
		}
		start, err := parseUnixNano(raw)
		if err != nil || start.Before(cutoff) {
			n, err := s.client.Del(ctx, key).Result()
			if err != nil {
				return deleted, fmt.Errorf("failed to delete window counter: %w", err)
			}
			deleted += n
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to scan window counters: %w", err)
	}

	return deleted, nil
}
