package repository

import (
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/GoPolymarket/bulkgate/internal/config"
	"github.com/GoPolymarket/bulkgate/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batchRepo interface {
	Save(ctx context.Context, batch *model.Batch) error
	Get(ctx context.Context, id string) (*model.Batch, error)
}

func sampleBatch() *model.Batch {
	return &model.Batch{
		ID:      uuid.NewString(),
		ChainID: 1,
		Seaport: "0x0000000000000068F116a894984e2DB1123eB395",
		Orders: []model.OrderInput{{
			Offerer: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
			Consideration: []model.ConsiderationItemInput{{
				StartAmount: model.NewAmount(big.NewInt(10)),
				EndAmount:   model.NewAmount(big.NewInt(10)),
				Recipient:   "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
			}},
			Salt: model.NewAmount(big.NewInt(7)),
		}},
		StartIndex:    0,
		Height:        1,
		Root:          "0x01",
		BulkOrderHash: "0x02",
		Digest:        "0x03",
		Status:        model.BatchPending,
		CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}
}

func exerciseRepo(t *testing.T, repo batchRepo) {
	ctx := context.Background()
	batch := sampleBatch()

	_, err := repo.Get(ctx, batch.ID)
	assert.ErrorIs(t, err, model.ErrBatchNotFound)

	require.NoError(t, repo.Save(ctx, batch))
	got, err := repo.Get(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, batch.Root, got.Root)
	assert.Equal(t, model.BatchPending, got.Status)
	require.Len(t, got.Orders, 1)
	assert.Equal(t, "10", got.Orders[0].Consideration[0].StartAmount.String())
	assert.Nil(t, got.SignedAt)

	now := time.Now().UTC().Truncate(time.Millisecond)
	batch.Status = model.BatchSigned
	batch.Signer = batch.Orders[0].Offerer
	batch.Signature = "0xabcd"
	batch.SignedAt = &now
	require.NoError(t, repo.Save(ctx, batch))

	got, err = repo.Get(ctx, batch.ID)
	require.NoError(t, err)
	assert.True(t, got.Signed())
	assert.Equal(t, "0xabcd", got.Signature)
	require.NotNil(t, got.SignedAt)
	assert.True(t, now.Equal(*got.SignedAt))
}

func TestRedisBatchRepo(t *testing.T) {
	addr := os.Getenv("BULKGATE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BULKGATE_TEST_REDIS_ADDR not set")
	}
	cfg := &config.Config{}
	cfg.Redis.Addr = addr
	client, err := NewRedisClient(cfg)
	require.NoError(t, err)
	defer client.Close()

	exerciseRepo(t, NewRedisBatchRepo(client, time.Hour, "bulkgate-test:"))

	expired := sampleBatch()
	expired.CreatedAt = time.Now().Add(-2 * time.Hour)
	assert.Error(t, NewRedisBatchRepo(client, time.Hour, "bulkgate-test:").Save(context.Background(), expired))
}

func TestPostgresBatchRepo(t *testing.T) {
	dsn := os.Getenv("BULKGATE_TEST_DSN")
	if dsn == "" {
		t.Skip("BULKGATE_TEST_DSN not set")
	}
	cfg := &config.Config{}
	cfg.Database.DSN = dsn
	db, err := NewDB(cfg)
	require.NoError(t, err)
	defer db.Close()

	repo, err := NewPostgresBatchRepo(db)
	require.NoError(t, err)
	exerciseRepo(t, repo)

	stale := sampleBatch()
	stale.CreatedAt = time.Now().UTC().Add(-72 * time.Hour)
	require.NoError(t, repo.Save(context.Background(), stale))
	n, err := repo.Cleanup(context.Background(), 48*time.Hour)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
	_, err = repo.Get(context.Background(), stale.ID)
	assert.ErrorIs(t, err, model.ErrBatchNotFound)
}

func TestRedisIdempotencyStore(t *testing.T) {
	addr := os.Getenv("BULKGATE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BULKGATE_TEST_REDIS_ADDR not set")
	}
	cfg := &config.Config{}
	cfg.Redis.Addr = addr
	client, err := NewRedisClient(cfg)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	store := NewRedisIdempotencyStore(client, time.Minute, "bulkgate-test:")
	key := uuid.NewString()

	rec, hit := store.GetOrLock(ctx, key)
	assert.False(t, hit)
	assert.Nil(t, rec)

	rec, hit = store.GetOrLock(ctx, key)
	require.True(t, hit)
	assert.True(t, rec.Processing)

	store.Save(ctx, key, 201, []byte(`{"ok":true}`))
	rec, hit = store.GetOrLock(ctx, key)
	require.True(t, hit)
	assert.False(t, rec.Processing)
	assert.Equal(t, 201, rec.Status)
	assert.JSONEq(t, `{"ok":true}`, string(rec.Body))

	store.Unlock(ctx, key)
	_, hit = store.GetOrLock(ctx, key)
	assert.False(t, hit)
}
