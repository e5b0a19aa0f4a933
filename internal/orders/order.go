package orders

import (
	"context"
	"errors"
	"time"
)

// OrderStatus is the lifecycle state of an order. Transitions are monotonic:
// PENDING -> PAID, with CANCELLED reachable from PENDING or PAID only.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// OrderLine is one ordered product. Amounts are in minor currency units.
type OrderLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
}

// Order is the aggregate persisted by the saga. TotalAmount always equals the
// sum of line totals at the moment of last mutation. Version is the optimistic
// concurrency counter checked and incremented by the store on every save.
type Order struct {
	ID             string      `json:"id"`
	MemberID       string      `json:"member_id"`
	Lines          []OrderLine `json:"lines"`
	TotalAmount    int64       `json:"total_amount"`
	Status         OrderStatus `json:"status"`
	IdempotencyKey string      `json:"idempotency_key"`
	PaymentID      string      `json:"payment_id,omitempty"`
	Version        int64       `json:"version"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Page selects a window of a member's order history.
type Page struct {
	Number int
	Size   int
}

// Store persists orders. Save must check the in-memory version against the
// stored one and increment it atomically, failing with ErrVersionConflict on a
// mismatch.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Save(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByIDAndMember(ctx context.Context, id, memberID string) (*Order, error)
	ListByMember(ctx context.Context, memberID string, page Page) ([]*Order, error)
}

// Member is the slice of member data the saga needs.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MemberClient resolves members.
type MemberClient interface {
	FindMember(ctx context.Context, id string) (Member, error)
}

// Product is the slice of catalog data the saga needs. Price is in minor
// currency units.
type Product struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// ProductClient resolves products and manages stock reservations.
// ReleaseStock is best-effort at the inventory boundary: releasing more than
// was reserved is a no-op there.
type ProductClient interface {
	GetProducts(ctx context.Context, ids []string) ([]Product, error)
	CheckStock(ctx context.Context, productID string, quantity int) error
	ReserveStock(ctx context.Context, productID string, quantity int) error
	ReleaseStock(ctx context.Context, productID string, quantity int) error
}

// PaymentProcessor executes and cancels payments for orders.
type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, orderID, idempotencyKey, method string) (paymentID string, err error)
	CancelPayment(ctx context.Context, paymentID string) error
}

// Locker serializes saga invocations by a caller-chosen key. The returned
// release function is safe to call more than once. Serialization is a
// throughput optimization: saga correctness does not depend on it.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Event is published on order lifecycle changes.
type Event struct {
	Type      string      `json:"type"`
	OrderID   string      `json:"order_id"`
	MemberID  string      `json:"member_id"`
	Status    OrderStatus `json:"status"`
	PaymentID string      `json:"payment_id,omitempty"`
	At        time.Time   `json:"at"`
}

// EventSink receives order events. Publish must not block.
type EventSink interface {
	Publish(ev Event)
}

var (
	// ErrIdempotencyKeyRequired rejects create requests without a key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrMemberNotFound signals the owning member could not be resolved.
	ErrMemberNotFound = errors.New("member not found")
	// ErrProductNotFound signals a requested product id is unknown.
	ErrProductNotFound = errors.New("product not found")
	// ErrInsufficientStock signals a stock check or reservation failed.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOrderNotFound signals the order does not exist for the member.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyCancelled rejects cancelling a CANCELLED order.
	ErrOrderAlreadyCancelled = errors.New("order already cancelled")
	// ErrOrderCancellationNotAllowed rejects cancellation outside PENDING/PAID.
	ErrOrderCancellationNotAllowed = errors.New("order cancellation not allowed")
	// ErrOrderInProgress signals a concurrent create with the same key is in flight.
	ErrOrderInProgress = errors.New("order request already in progress")
	// ErrOrderCreationFailed wraps any failure inside the creation workflow.
	ErrOrderCreationFailed = errors.New("order creation failed")
	// ErrOrderCancellationFailed wraps any failure inside the cancellation sequence.
	ErrOrderCancellationFailed = errors.New("order cancellation failed")
	// ErrVersionConflict signals a concurrent modification detected on save.
	ErrVersionConflict = errors.New("order modified concurrently")
)
