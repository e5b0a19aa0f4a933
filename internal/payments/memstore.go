package payments

import (
	"context"
	"fmt"
	"sync"
)

// NewInMemoryStore constructs an in-memory payment store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{payments: make(map[string]*Payment)}
}

// InMemoryStore keeps payments in memory.
type InMemoryStore struct {
	mu       sync.Mutex
	payments map[string]*Payment
}

func (s *InMemoryStore) Create(ctx context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.ID]; ok {
		return fmt.Errorf("payment %s already exists", p.ID)
	}
	clone := *p
	s.payments[p.ID] = &clone
	return nil
}

func (s *InMemoryStore) Save(ctx context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.ID]; !ok {
		return fmt.Errorf("payment %s not found", p.ID)
	}
	clone := *p
	s.payments[p.ID] = &clone
	return nil
}

func (s *InMemoryStore) FindSuccessfulByOrder(ctx context.Context, orderID string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var earliest *Payment
	for _, p := range s.payments {
		if p.OrderID != orderID || p.Status != StatusSuccess {
			continue
		}
		if earliest == nil || p.CreatedAt.Before(earliest.CreatedAt) {
			earliest = p
		}
	}
	if earliest == nil {
		return nil, nil
	}
	clone := *earliest
	return &clone, nil
}

// SuccessCount reports SUCCESS payments for an order (for testing/inspection).
func (s *InMemoryStore) SuccessCount(orderID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, p := range s.payments {
		if p.OrderID == orderID && p.Status == StatusSuccess {
			count++
		}
	}
	return count
}
