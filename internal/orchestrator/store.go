package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"

	"storflow/internal/models"
)

// ErrOperationNotFound is returned when no operation exists for an id
var ErrOperationNotFound = errors.New("operation not found")

// OperationStore persists operation records. The orchestrator writes a
// snapshot after every stage transition; readers always get copies.
type OperationStore interface {
	Put(ctx context.Context, op *models.StorageOperation) error
	Get(ctx context.Context, id string) (*models.StorageOperation, error)
	List(ctx context.Context) ([]*models.StorageOperation, error)
}

// MemoryStore is the default OperationStore, a mutex-guarded map
type MemoryStore struct {
	mu  sync.RWMutex
	ops map[string]*models.StorageOperation
}

// NewMemoryStore builds an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ops: make(map[string]*models.StorageOperation)}
}

func (s *MemoryStore) Put(ctx context.Context, op *models.StorageOperation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[op.ID] = op.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.StorageOperation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.ops[id]
	if !ok {
		return nil, ErrOperationNotFound
	}
	return op.Clone(), nil
}

// List returns all operations, newest first
func (s *MemoryStore) List(ctx context.Context) ([]*models.StorageOperation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.StorageOperation, 0, len(s.ops))
	for _, op := range s.ops {
		out = append(out, op.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
