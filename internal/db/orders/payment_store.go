package ordersdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"orderflow/internal/payments"
)

// PaymentStore persists payment records in Postgres. Payments have a
// lifecycle independent of orders, so they live in their own table without a
// foreign key.
type PaymentStore struct {
	db *sql.DB
}

// NewPaymentStore constructs a PaymentStore backed by Postgres.
func NewPaymentStore(db *sql.DB) *PaymentStore {
	return &PaymentStore{db: db}
}

// NewPaymentStoreWithSchema initializes the schema then returns the store.
func NewPaymentStoreWithSchema(ctx context.Context, db *sql.DB) (*PaymentStore, error) {
	store := NewPaymentStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the payments table if it does not exist.
func (s *PaymentStore) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			amount BIGINT NOT NULL,
			method TEXT NOT NULL,
			status TEXT NOT NULL,
			transaction_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

// Create inserts a new payment record.
func (s *PaymentStore) Create(ctx context.Context, p *payments.Payment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, amount, method, status, transaction_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.OrderID, p.Amount, p.Method, string(p.Status), p.TransactionID, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// Save updates a payment's status. Amount and method are immutable.
func (s *PaymentStore) Save(ctx context.Context, p *payments.Payment) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, updated_at = $3
		WHERE id = $1`,
		p.ID, string(p.Status), p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("payment %s not found", p.ID)
	}
	return nil
}

// FindSuccessfulByOrder returns the earliest SUCCESS payment for the order,
// or (nil, nil) when none exists.
func (s *PaymentStore) FindSuccessfulByOrder(ctx context.Context, orderID string) (*payments.Payment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, amount, method, status, transaction_id, created_at, updated_at
		FROM payments
		WHERE order_id = $1 AND status = $2
		ORDER BY created_at ASC
		LIMIT 1`,
		orderID, string(payments.StatusSuccess),
	)

	var p payments.Payment
	var status string
	err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &status, &p.TransactionID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Status = payments.Status(status)
	return &p, nil
}
