package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// NewInMemoryStore constructs an in-memory order store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{orders: make(map[string]*Order)}
}

// InMemoryStore keeps orders in memory with the same version-check semantics
// as the Postgres store.
type InMemoryStore struct {
	mu     sync.Mutex
	orders map[string]*Order
}

func (s *InMemoryStore) Create(ctx context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *InMemoryStore) Save(ctx context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.orders[o.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, o.ID)
	}
	if stored.Version != o.Version {
		return fmt.Errorf("%w: order=%s stored=%d given=%d", ErrVersionConflict, o.ID, stored.Version, o.Version)
	}
	o.Version++
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *InMemoryStore) FindByID(ctx context.Context, id string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return cloneOrder(stored), nil
}

func (s *InMemoryStore) FindByIDAndMember(ctx context.Context, id, memberID string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.orders[id]
	if !ok || stored.MemberID != memberID {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return cloneOrder(stored), nil
}

func (s *InMemoryStore) ListByMember(ctx context.Context, memberID string, page Page) ([]*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*Order
	for _, o := range s.orders {
		if o.MemberID == memberID {
			matched = append(matched, cloneOrder(o))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	size := page.Size
	if size <= 0 {
		size = 20
	}
	number := page.Number
	if number < 0 {
		number = 0
	}
	start := number * size
	if start >= len(matched) {
		return nil, nil
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func cloneOrder(o *Order) *Order {
	clone := *o
	clone.Lines = append([]OrderLine(nil), o.Lines...)
	return &clone
}
