package service

import (
	"context"
	"sync"
	"time"

	"github.com/GoPolymarket/bulkgate/internal/model"
)

// BatchRepo persists bulk order batches.
type BatchRepo interface {
	Save(ctx context.Context, batch *model.Batch) error
	// Get returns model.ErrBatchNotFound for unknown ids.
	Get(ctx context.Context, id string) (*model.Batch, error)
}

// BatchCleaner is implemented by repos that need explicit retention sweeps.
type BatchCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// MemoryBatchStore keeps batches in process memory. It is the fallback
// when neither Redis nor Postgres is configured.
type MemoryBatchStore struct {
	mu      sync.RWMutex
	batches map[string]model.Batch
}

func NewMemoryBatchStore() *MemoryBatchStore {
	return &MemoryBatchStore{
		batches: make(map[string]model.Batch),
	}
}

func (s *MemoryBatchStore) Save(ctx context.Context, batch *model.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batch.ID] = *batch
	return nil
}

func (s *MemoryBatchStore) Get(ctx context.Context, id string) (*model.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.batches[id]
	if !ok {
		return nil, model.ErrBatchNotFound
	}
	return &batch, nil
}

func (s *MemoryBatchStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, batch := range s.batches {
		if batch.CreatedAt.Before(cutoff) {
			delete(s.batches, id)
			removed++
		}
	}
	return removed, nil
}
