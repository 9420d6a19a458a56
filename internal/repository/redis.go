package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/GoPolymarket/bulkgate/internal/config"
	"github.com/GoPolymarket/bulkgate/internal/model"
	"github.com/redis/go-redis/v9"
)

func NewRedisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return rdb, nil
}

// RedisBatchRepo stores each batch as one JSON value. Batches expire after
// ttl; signing a batch does not extend its life.
type RedisBatchRepo struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisBatchRepo(client *redis.Client, ttl time.Duration, prefix string) *RedisBatchRepo {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if prefix == "" {
		prefix = "bulkgate:"
	}
	return &RedisBatchRepo{client: client, ttl: ttl, prefix: prefix}
}

func (r *RedisBatchRepo) key(id string) string {
	return r.prefix + "batch:" + id
}

func (r *RedisBatchRepo) Save(ctx context.Context, batch *model.Batch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	ttl := r.ttl - time.Since(batch.CreatedAt)
	if ttl <= 0 {
		return fmt.Errorf("batch %s already expired", batch.ID)
	}

	return r.client.Set(ctx, r.key(batch.ID), payload, ttl).Err()
}

func (r *RedisBatchRepo) Get(ctx context.Context, id string) (*model.Batch, error) {
	payload, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, model.ErrBatchNotFound
	}
	if err != nil {
		return nil, err
	}
	var batch model.Batch
	if err := json.Unmarshal(payload, &batch); err != nil {
		return nil, fmt.Errorf("decode batch %s: %w", id, err)
	}
	return &batch, nil
}
