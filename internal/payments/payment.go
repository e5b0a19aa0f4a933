package payments

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a payment record.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Payment is the persisted payment record. Amount is in minor currency units
// and equals the order's aggregate total at creation time. At most one
// SUCCESS payment exists per order.
type Payment struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"order_id"`
	Amount        int64     `json:"amount"`
	Method        string    `json:"method"`
	Status        Status    `json:"status"`
	TransactionID string    `json:"transaction_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store persists payments. Payments have a lifecycle independent of orders.
type Store interface {
	Create(ctx context.Context, p *Payment) error
	Save(ctx context.Context, p *Payment) error
	// FindSuccessfulByOrder returns the earliest SUCCESS payment for the
	// order, or (nil, nil) when none exists.
	FindSuccessfulByOrder(ctx context.Context, orderID string) (*Payment, error)
}

var (
	// ErrPaymentAlreadyInProgress signals the idempotency key is claimed by an
	// in-flight execution; callers must not retry synchronously.
	ErrPaymentAlreadyInProgress = errors.New("payment already in progress")
	// ErrPaymentProcessingFailed wraps a gateway or persistence failure.
	ErrPaymentProcessingFailed = errors.New("payment processing failed")
)
