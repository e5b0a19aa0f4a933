package payments

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"orderflow/internal/idempotency"
	"orderflow/internal/observability"
	"orderflow/internal/orders"

	"github.com/google/uuid"
)

// paymentKeyScope namespaces executor claims in the shared ledger so they
// never collide with the order saga's claims for the same client key.
const paymentKeyScope = "payment:"

// DefaultMethod is used when the caller does not name a payment method.
const DefaultMethod = "DEFAULT"

// ExecutorConfig wires an Executor. Store, Orders, Ledger and Gateway are
// required; the rest default.
type ExecutorConfig struct {
	Store            Store
	Orders           orders.Store
	Ledger           *idempotency.Ledger
	Gateway          Gateway
	Metrics          *observability.Metrics
	NewPaymentID     func() string
	NewTransactionID func() string
	Now              func() time.Time
	Logf             func(format string, args ...any)
}

// Executor runs payments exactly once per idempotency key and guards against
// double-charging an order across distinct keys.
type Executor struct {
	store            Store
	orders           orders.Store
	ledger           *idempotency.Ledger
	gateway          Gateway
	metrics          *observability.Metrics
	newPaymentID     func() string
	newTransactionID func() string
	now              func() time.Time
	logf             func(format string, args ...any)
}

// NewExecutor constructs an Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	newPaymentID := cfg.NewPaymentID
	if newPaymentID == nil {
		newPaymentID = func() string { return "pay-" + uuid.NewString() }
	}
	newTransactionID := cfg.NewTransactionID
	if newTransactionID == nil {
		newTransactionID = NewTransactionID
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}
	return &Executor{
		store:            cfg.Store,
		orders:           cfg.Orders,
		ledger:           cfg.Ledger,
		gateway:          cfg.Gateway,
		metrics:          cfg.Metrics,
		newPaymentID:     newPaymentID,
		newTransactionID: newTransactionID,
		now:              now,
		logf:             logf,
	}
}

// NewTransactionID generates a provider-style transaction identifier.
func NewTransactionID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TXN_" + strings.ToUpper(hex[:16])
}

// ProcessPayment executes payment for the order under the given idempotency
// key. A duplicate claim with a stored payment returns it unchanged; a
// duplicate claim still in flight fails with ErrPaymentAlreadyInProgress. An
// order that already has a SUCCESS payment converges on it without charging
// again. Any failure releases the key so a retry starts fresh.
func (e *Executor) ProcessPayment(ctx context.Context, orderID, idempotencyKey, method string) (p *Payment, err error) {
	span := e.metrics.Start("payments.process")
	defer func() { span.End(err) }()

	key := paymentKeyScope + idempotencyKey
	claim := e.ledger.Claim(key)
	if claim.Duplicate {
		if claim.ExistingResult == nil {
			return nil, fmt.Errorf("%w: key=%s", ErrPaymentAlreadyInProgress, idempotencyKey)
		}
		prev, ok := claim.ExistingResult.(*Payment)
		if !ok {
			e.logf("[payment] stored result has unexpected type %T, releasing key: key=%s", claim.ExistingResult, idempotencyKey)
			e.ledger.Fail(key)
			return nil, fmt.Errorf("%w: corrupted idempotency result", ErrPaymentProcessingFailed)
		}
		return prev, nil
	}

	payment, err := e.execute(ctx, orderID, method)
	if err != nil {
		e.ledger.Fail(key)
		e.logf("[payment] processing failed: order=%s idempotency_key=%s err=%v", orderID, idempotencyKey, err)
		return nil, err
	}
	e.ledger.Commit(key, payment)
	return payment, nil
}

func (e *Executor) execute(ctx context.Context, orderID, method string) (*Payment, error) {
	order, err := e.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	// Order-level duplicate guard, independent of the key-level one: a second
	// key for an already-paid order converges on the existing payment.
	existing, err := e.store.FindSuccessfulByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		e.logf("[payment] order already paid, reusing payment: order=%s payment=%s", orderID, existing.ID)
		return existing, nil
	}

	if method == "" {
		method = DefaultMethod
	}
	now := e.now()
	payment := &Payment{
		ID:            e.newPaymentID(),
		OrderID:       orderID,
		Amount:        order.TotalAmount,
		Method:        method,
		Status:        StatusPending,
		TransactionID: e.newTransactionID(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.store.Create(ctx, payment); err != nil {
		return nil, err
	}

	if err := e.gateway.Charge(ctx, payment.OrderID, payment.Amount); err != nil {
		e.persistStatus(ctx, payment, StatusFailed)
		return nil, fmt.Errorf("%w: %w", ErrPaymentProcessingFailed, err)
	}

	payment.Status = StatusSuccess
	payment.UpdatedAt = e.now()
	if err := e.store.Save(ctx, payment); err != nil {
		return nil, err
	}

	order.Status = orders.OrderStatusPaid
	order.UpdatedAt = e.now()
	if err := e.orders.Save(ctx, order); err != nil {
		// Lost the optimistic-concurrency race: another writer paid this order
		// first. The charge must not stand as a second SUCCESS.
		e.persistStatus(ctx, payment, StatusFailed)
		return nil, fmt.Errorf("order update failed due to concurrent modification: %w", err)
	}
	return payment, nil
}

// CancelPayment is the boundary for gateway-side reversal. It must not fail
// the order-cancellation flow.
// TODO: reconcile the payment record to a reversed state once the gateway
// exposes a refund call.
func (e *Executor) CancelPayment(ctx context.Context, paymentID string) error {
	e.logf("[payment] cancel requested: payment=%s", paymentID)
	return nil
}

func (e *Executor) persistStatus(ctx context.Context, payment *Payment, status Status) {
	payment.Status = status
	payment.UpdatedAt = e.now()
	if err := e.store.Save(context.WithoutCancel(ctx), payment); err != nil {
		e.logf("[payment] persisting %s status failed: payment=%s err=%v", status, payment.ID, err)
	}
}

// Processor adapts Executor to the order saga's payment contract.
type Processor struct {
	exec *Executor
}

// NewProcessor constructs a Processor.
func NewProcessor(exec *Executor) *Processor {
	return &Processor{exec: exec}
}

func (p *Processor) ProcessPayment(ctx context.Context, orderID, idempotencyKey, method string) (string, error) {
	payment, err := p.exec.ProcessPayment(ctx, orderID, idempotencyKey, method)
	if err != nil {
		return "", err
	}
	return payment.ID, nil
}

func (p *Processor) CancelPayment(ctx context.Context, paymentID string) error {
	return p.exec.CancelPayment(ctx, paymentID)
}
