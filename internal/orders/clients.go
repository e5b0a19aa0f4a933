package orders

import (
	"context"
	"fmt"
	"sync"
)

// NewInMemoryMemberClient constructs an in-memory member client.
func NewInMemoryMemberClient() *InMemoryMemberClient {
	return &InMemoryMemberClient{members: make(map[string]Member)}
}

// InMemoryMemberClient resolves members from memory.
type InMemoryMemberClient struct {
	mu      sync.Mutex
	members map[string]Member
}

// AddMember registers a member.
func (c *InMemoryMemberClient) AddMember(m Member) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members[m.ID] = m
}

func (c *InMemoryMemberClient) FindMember(ctx context.Context, id string) (Member, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.members[id]
	if !ok {
		return Member{}, fmt.Errorf("%w: %s", ErrMemberNotFound, id)
	}
	return m, nil
}

// NewInMemoryProductClient constructs an in-memory product client.
func NewInMemoryProductClient() *InMemoryProductClient {
	return &InMemoryProductClient{
		products: make(map[string]Product),
		stock:    make(map[string]int),
		reserved: make(map[string]int),
	}
}

// InMemoryProductClient tracks catalog data and stock reservations in memory.
type InMemoryProductClient struct {
	mu       sync.Mutex
	products map[string]Product
	stock    map[string]int
	reserved map[string]int
}

// AddProduct registers a product with an initial stock level.
func (c *InMemoryProductClient) AddProduct(p Product, stock int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
	c.stock[p.ID] = stock
}

func (c *InMemoryProductClient) GetProducts(ctx context.Context, ids []string) ([]Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	found := make([]Product, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := c.products[id]; ok {
			found = append(found, p)
		}
	}
	return found, nil
}

func (c *InMemoryProductClient) CheckStock(ctx context.Context, productID string, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkLocked(productID, quantity)
}

func (c *InMemoryProductClient) ReserveStock(ctx context.Context, productID string, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkLocked(productID, quantity); err != nil {
		return err
	}
	c.reserved[productID] += quantity
	return nil
}

// ReleaseStock returns reserved quantity to the pool. Over-release clamps at
// zero so compensating a reservation that never happened stays a no-op.
func (c *InMemoryProductClient) ReleaseStock(ctx context.Context, productID string, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reserved[productID] -= quantity
	if c.reserved[productID] < 0 {
		c.reserved[productID] = 0
	}
	return nil
}

// Available reports unreserved stock (for testing/inspection).
func (c *InMemoryProductClient) Available(productID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stock[productID] - c.reserved[productID]
}

// Reserved reports the reserved quantity (for testing/inspection).
func (c *InMemoryProductClient) Reserved(productID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reserved[productID]
}

func (c *InMemoryProductClient) checkLocked(productID string, quantity int) error {
	if _, ok := c.products[productID]; !ok {
		return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if quantity > c.stock[productID]-c.reserved[productID] {
		return fmt.Errorf("%w: product=%s requested=%d", ErrInsufficientStock, productID, quantity)
	}
	return nil
}
