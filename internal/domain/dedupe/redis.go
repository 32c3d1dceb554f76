package dedupe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/okian/hoops/internal/domain/model"
	"github.com/redis/go-redis/v9"
)

const pendingValue = `{"pending":true}`

// RedisDeduper shares idempotency keys between service instances.
// A key is claimed with SETNX and overwritten with the receipt on completion.
type RedisDeduper struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisDeduper creates a deduper backed by rdb.
func NewRedisDeduper(rdb redis.UniversalClient, opts ...RedisOption) *RedisDeduper {
	d := &RedisDeduper{rdb: rdb, ttl: defaultTTL, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SeenAndRecord implements Deduper.
func (d *RedisDeduper) SeenAndRecord(ctx context.Context, key string) (Receipt, bool, error) {
	ok, err := d.rdb.SetNX(ctx, d.prefix+key, pendingValue, d.ttl).Result()
	if err != nil {
		return Receipt{}, false, fmt.Errorf("%w: %w", ErrBackend, err)
	}
	if ok {
		return Receipt{}, false, nil
	}

	raw, err := d.rdb.Get(ctx, d.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; treat as in flight rather than claim twice.
		return Receipt{Pending: true}, true, nil
	}
	if err != nil {
		return Receipt{}, true, fmt.Errorf("%w: %w", ErrBackend, err)
	}
	var r Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return Receipt{}, true, fmt.Errorf("decode receipt: %w", err)
	}
	return r, true, nil
}

// Complete implements Deduper.
func (d *RedisDeduper) Complete(ctx context.Context, key string, events []model.ScoreEvent) error {
	raw, err := json.Marshal(Receipt{Events: events})
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}
	ok, err := d.rdb.SetXX(ctx, d.prefix+key, raw, d.ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBackend, err)
	}
	if !ok {
		return ErrUnknownKey
	}
	return nil
}

// Unrecord implements Deduper.
func (d *RedisDeduper) Unrecord(ctx context.Context, key string) error {
	if err := d.rdb.Del(ctx, d.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrBackend, err)
	}
	return nil
}
