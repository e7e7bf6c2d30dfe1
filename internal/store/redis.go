package store

import (
	"context"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
	"github.com/GriffinCanCode/meetscribe/internal/meeting"
)

const redisKeyPrefix = "meeting:"

// Redis stores each meeting as a hash and indexes the keys in a set.
type Redis struct {
	client *redis.Client
}

// OpenRedis connects to addr and checks the server is reachable.
func OpenRedis(ctx context.Context, addr string, db int) (*Redis, error) {
	if addr == "" {
		return nil, apperrors.New(apperrors.CodeConfig, "store.redis_addr is required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.Wrap(err, apperrors.CodePersistence, "ping redis")
	}
	return &Redis{client: client}, nil
}

// Save writes the hash and index entry in one transaction.
func (r *Redis) Save(ctx context.Context, rec meeting.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	key := RedisKey(rec)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, hashValues(rec)...)
	pipe.SAdd(ctx, MeetingsCollection, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return saveError(err, "redis", rec)
	}
	return nil
}

func (r *Redis) Close() error { return r.client.Close() }

// RedisKey is the hash key for rec.
func RedisKey(rec meeting.Record) string {
	return redisKeyPrefix + rec.Date + ":" + rec.Title
}

func hashValues(rec meeting.Record) []any {
	fields := rec.Fields()
	values := make([]any, 0, 2*len(fields))
	for _, f := range fields {
		values = append(values, f.Name, f.Value)
	}
	return values
}
