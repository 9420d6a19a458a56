package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/GoPolymarket/bulkgate/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
)

type PostgresBatchRepo struct {
	db *sqlx.DB
}

func NewPostgresBatchRepo(db *sqlx.DB) (*PostgresBatchRepo, error) {
	repo := &PostgresBatchRepo{db: db}
	if err := repo.ensureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("ensure batches schema: %w", err)
	}
	return repo, nil
}

type batchRow struct {
	ID            string         `db:"id"`
	ChainID       int64          `db:"chain_id"`
	Seaport       string         `db:"seaport"`
	Orders        types.JSONText `db:"orders"`
	StartIndex    int            `db:"start_index"`
	Height        int            `db:"height"`
	Root          string         `db:"root"`
	BulkOrderHash string         `db:"bulk_order_hash"`
	Digest        string         `db:"digest"`
	Status        string         `db:"status"`
	Signer        sql.NullString `db:"signer"`
	Signature     sql.NullString `db:"signature"`
	CreatedAt     time.Time      `db:"created_at"`
	SignedAt      sql.NullTime   `db:"signed_at"`
}

func (r *PostgresBatchRepo) Save(ctx context.Context, batch *model.Batch) error {
	orders, err := json.Marshal(batch.Orders)
	if err != nil {
		return err
	}
	row := batchRow{
		ID:            batch.ID,
		ChainID:       batch.ChainID,
		Seaport:       batch.Seaport,
		Orders:        orders,
		StartIndex:    batch.StartIndex,
		Height:        batch.Height,
		Root:          batch.Root,
		BulkOrderHash: batch.BulkOrderHash,
		Digest:        batch.Digest,
		Status:        string(batch.Status),
		Signer:        sql.NullString{String: batch.Signer, Valid: batch.Signer != ""},
		Signature:     sql.NullString{String: batch.Signature, Valid: batch.Signature != ""},
		CreatedAt:     batch.CreatedAt,
	}
	if batch.SignedAt != nil {
		row.SignedAt = sql.NullTime{Time: *batch.SignedAt, Valid: true}
	}

	// Only the signature columns change after creation.
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO batches (
			id, chain_id, seaport, orders, start_index, height,
			root, bulk_order_hash, digest, status, signer, signature,
			created_at, signed_at
		) VALUES (
			:id, :chain_id, :seaport, :orders, :start_index, :height,
			:root, :bulk_order_hash, :digest, :status, :signer, :signature,
			:created_at, :signed_at
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			signer = EXCLUDED.signer,
			signature = EXCLUDED.signature,
			signed_at = EXCLUDED.signed_at
	`, row)
	return err
}

func (r *PostgresBatchRepo) Get(ctx context.Context, id string) (*model.Batch, error) {
	var row batchRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, chain_id, seaport, orders, start_index, height,
			root, bulk_order_hash, digest, status, signer, signature,
			created_at, signed_at
		FROM batches WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrBatchNotFound
	}
	if err != nil {
		return nil, err
	}

	batch := &model.Batch{
		ID:            row.ID,
		ChainID:       row.ChainID,
		Seaport:       row.Seaport,
		StartIndex:    row.StartIndex,
		Height:        row.Height,
		Root:          row.Root,
		BulkOrderHash: row.BulkOrderHash,
		Digest:        row.Digest,
		Status:        model.BatchStatus(row.Status),
		Signer:        row.Signer.String,
		Signature:     row.Signature.String,
		CreatedAt:     row.CreatedAt,
	}
	if row.SignedAt.Valid {
		t := row.SignedAt.Time
		batch.SignedAt = &t
	}
	if err := row.Orders.Unmarshal(&batch.Orders); err != nil {
		return nil, fmt.Errorf("decode orders of batch %s: %w", id, err)
	}
	return batch, nil
}

func (r *PostgresBatchRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS batches (
			id TEXT PRIMARY KEY,
			chain_id BIGINT NOT NULL,
			seaport TEXT NOT NULL,
			orders JSONB NOT NULL,
			start_index INTEGER NOT NULL DEFAULT 0,
			height INTEGER NOT NULL,
			root TEXT NOT NULL,
			bulk_order_hash TEXT NOT NULL,
			digest TEXT NOT NULL,
			status TEXT NOT NULL,
			signer TEXT,
			signature TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			signed_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_batches_created ON batches(created_at)`)
	return nil
}

// Cleanup removes batches created before now - olderThan.
func (r *PostgresBatchRepo) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := r.db.ExecContext(ctx, `DELETE FROM batches WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
