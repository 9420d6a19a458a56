package model

import (
	"errors"
	"time"
)

type BatchStatus string

const (
	BatchPending BatchStatus = "pending_signature"
	BatchSigned  BatchStatus = "signed"
)

// Batch is a persisted bulk order. Only its inputs and signature are
// stored; the tree is rebuilt from Orders, StartIndex and Height on read.
type Batch struct {
	ID         string       `json:"id"`
	ChainID    int64        `json:"chain_id"`
	Seaport    string       `json:"seaport"`
	Orders     []OrderInput `json:"orders"`
	StartIndex int          `json:"start_index"`
	Height     int          `json:"height"`

	Root          string `json:"root"`
	BulkOrderHash string `json:"bulk_order_hash"`
	Digest        string `json:"digest"`

	Status    BatchStatus `json:"status"`
	Signer    string      `json:"signer,omitempty"`
	Signature string      `json:"signature,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	SignedAt  *time.Time `json:"signed_at,omitempty"`
}

func (b *Batch) Signed() bool {
	return b.Status == BatchSigned && b.Signature != ""
}

// ErrBatchNotFound is returned by batch repositories for unknown ids.
var ErrBatchNotFound = errors.New("batch not found")
