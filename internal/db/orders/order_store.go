package ordersdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"orderflow/internal/orders"
)

// OrderStore persists orders and their lines in Postgres.
type OrderStore struct {
	db *sql.DB
}

// NewOrderStore constructs an OrderStore backed by Postgres.
func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

// NewOrderStoreWithSchema initializes the schema then returns the store.
func NewOrderStoreWithSchema(ctx context.Context, db *sql.DB) (*OrderStore, error) {
	store := NewOrderStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the order tables if they do not exist.
func (s *OrderStore) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			member_id TEXT NOT NULL,
			idempotency_key TEXT NOT NULL,
			payment_id TEXT,
			status TEXT NOT NULL,
			total_amount BIGINT NOT NULL,
			version BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS order_lines (
			order_id TEXT NOT NULL,
			line_no INT NOT NULL,
			product_id TEXT NOT NULL,
			quantity INT NOT NULL,
			unit_price BIGINT NOT NULL,
			line_total BIGINT NOT NULL,
			PRIMARY KEY (order_id, line_no),
			FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

// Create inserts the order and its lines in one transaction.
func (s *OrderStore) Create(ctx context.Context, o *orders.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, member_id, idempotency_key, payment_id, status, total_amount, version, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9)`,
		o.ID, o.MemberID, o.IdempotencyKey, o.PaymentID, string(o.Status), o.TotalAmount, o.Version, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return err
	}

	for i, line := range o.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, line_no, product_id, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID, i, line.ProductID, line.Quantity, line.UnitPrice, line.LineTotal,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Save updates the order's mutable fields with a version check-and-increment.
// A stale in-memory version fails with orders.ErrVersionConflict.
func (s *OrderStore) Save(ctx context.Context, o *orders.Order) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, payment_id = NULLIF($3, ''), total_amount = $4, version = version + 1, updated_at = $5
		WHERE id = $1 AND version = $6`,
		o.ID, string(o.Status), o.PaymentID, o.TotalAmount, o.UpdatedAt, o.Version,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var stored int64
		row := s.db.QueryRowContext(ctx, `SELECT version FROM orders WHERE id = $1`, o.ID)
		switch scanErr := row.Scan(&stored); {
		case scanErr == nil:
			return fmt.Errorf("%w: order=%s stored=%d given=%d", orders.ErrVersionConflict, o.ID, stored, o.Version)
		case errors.Is(scanErr, sql.ErrNoRows):
			return fmt.Errorf("%w: %s", orders.ErrOrderNotFound, o.ID)
		default:
			return scanErr
		}
	}

	o.Version++
	return nil
}

// FindByID loads one order with its lines.
func (s *OrderStore) FindByID(ctx context.Context, id string) (*orders.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, member_id, idempotency_key, payment_id, status, total_amount, version, created_at, updated_at
		FROM orders
		WHERE id = $1`,
		id,
	)
	return s.scanOrder(ctx, row, id)
}

// FindByIDAndMember loads one order scoped to its owning member.
func (s *OrderStore) FindByIDAndMember(ctx context.Context, id, memberID string) (*orders.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, member_id, idempotency_key, payment_id, status, total_amount, version, created_at, updated_at
		FROM orders
		WHERE id = $1 AND member_id = $2`,
		id, memberID,
	)
	return s.scanOrder(ctx, row, id)
}

// ListByMember returns a page of the member's orders, newest first.
func (s *OrderStore) ListByMember(ctx context.Context, memberID string, page orders.Page) ([]*orders.Order, error) {
	size := page.Size
	if size <= 0 {
		size = 20
	}
	number := page.Number
	if number < 0 {
		number = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, member_id, idempotency_key, payment_id, status, total_amount, version, created_at, updated_at
		FROM orders
		WHERE member_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		memberID, size, number*size,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*orders.Order
	for rows.Next() {
		o, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, o := range result {
		if err := s.loadLines(ctx, o); err != nil {
			return nil, err
		}
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *OrderStore) scanOrder(ctx context.Context, row rowScanner, id string) (*orders.Order, error) {
	o, err := scanOrderRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", orders.ErrOrderNotFound, id)
		}
		return nil, err
	}
	if err := s.loadLines(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func scanOrderRow(row rowScanner) (*orders.Order, error) {
	var o orders.Order
	var paymentID sql.NullString
	var status string
	if err := row.Scan(&o.ID, &o.MemberID, &o.IdempotencyKey, &paymentID, &status, &o.TotalAmount, &o.Version, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.PaymentID = paymentID.String
	o.Status = orders.OrderStatus(status)
	return &o, nil
}

func (s *OrderStore) loadLines(ctx context.Context, o *orders.Order) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price, line_total
		FROM order_lines
		WHERE order_id = $1
		ORDER BY line_no`,
		o.ID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var line orders.OrderLine
		if err := rows.Scan(&line.ProductID, &line.Quantity, &line.UnitPrice, &line.LineTotal); err != nil {
			return err
		}
		o.Lines = append(o.Lines, line)
	}
	return rows.Err()
}
