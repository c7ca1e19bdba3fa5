package orders

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrVersionConflict = errors.New("order was modified concurrently")
)

// Store persists finalized orders. Orders are never deleted.
type Store interface {
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// List returns orders newest first. An empty userID lists every order.
	List(ctx context.Context, userID string, limit int) ([]Order, error)
	// Update replaces the stored order iff its version is still expectedVersion.
	Update(ctx context.Context, o *Order, expectedVersion int) error
}

type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]*Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]*Order)}
}

func (s *MemoryStore) Insert(ctx context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return errors.New("order already exists")
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, userID string, limit int) ([]Order, error) {
	s.mu.RLock()
	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		if userID == "" || o.UserID == userID {
			out = append(out, *o.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, o *Order, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.ID]
	if !ok {
		return ErrOrderNotFound
	}
	if cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

// Len is used by tests to assert that failed attempts persist nothing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}
