package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisTTL ограничивает жизнь ячейки, если пользователь так и не вернулся с оплаты.
const DefaultRedisTTL = 24 * time.Hour

// Redis хранит ячейки в Redis.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis подключается к Redis по URL вида redis://host:port/db.
func NewRedis(redisURL string) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisWithClient(redis.NewClient(opt), DefaultRedisTTL), nil
}

// NewRedisWithClient оборачивает готовый клиент.
func NewRedisWithClient(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Key возвращает ключ Redis для ячейки пользователя.
func Key(userID int64, slot Slot) string {
	return fmt.Sprintf("mailbox:%d:%s", userID, slot)
}

// Ping проверяет соединение с Redis.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close закрывает соединение с Redis.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Put сохраняет значение, перезаписывая предыдущее.
func (r *Redis) Put(ctx context.Context, userID int64, slot Slot, value string) error {
	if !slot.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownSlot, slot)
	}
	if err := r.client.Set(ctx, Key(userID, slot), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Take атомарно читает и удаляет значение.
func (r *Redis) Take(ctx context.Context, userID int64, slot Slot) (string, bool, error) {
	if !slot.Valid() {
		return "", false, fmt.Errorf("%w: %s", ErrUnknownSlot, slot)
	}
	v, err := r.client.GetDel(ctx, Key(userID, slot)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis getdel: %w", err)
	}
	return v, true, nil
}

// Clear удаляет значение.
func (r *Redis) Clear(ctx context.Context, userID int64, slot Slot) error {
	if !slot.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownSlot, slot)
	}
	if err := r.client.Del(ctx, Key(userID, slot)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
