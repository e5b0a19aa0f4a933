package orders

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"orderflow/internal/idempotency"
	"orderflow/internal/observability"

	"github.com/google/uuid"
)

// orderKeyScope namespaces saga claims in the shared ledger so they never
// collide with the payment executor's claims for the same client key.
const orderKeyScope = "order:"

// CreateOrderRequest is the saga's create input. Method may be empty; the
// payment executor substitutes its default.
type CreateOrderRequest struct {
	IdempotencyKey string        `json:"idempotency_key"`
	Method         string        `json:"method"`
	Lines          []LineRequest `json:"lines"`
}

// LineRequest is one requested product/quantity pair.
type LineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// ServiceConfig wires a Service. Store, Members, Products, Payments and
// Ledger are required; the rest default.
type ServiceConfig struct {
	Store      Store
	Members    MemberClient
	Products   ProductClient
	Payments   PaymentProcessor
	Ledger     *idempotency.Ledger
	Locks      Locker
	Events     EventSink
	Metrics    *observability.Metrics
	NewOrderID func() string
	Now        func() time.Time
	Logf       func(format string, args ...any)
}

// Service executes the order-creation saga and the cancellation flow.
type Service struct {
	store      Store
	members    MemberClient
	products   ProductClient
	payments   PaymentProcessor
	ledger     *idempotency.Ledger
	locks      Locker
	events     EventSink
	metrics    *observability.Metrics
	newOrderID func() string
	now        func() time.Time
	logf       func(format string, args ...any)
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	newOrderID := cfg.NewOrderID
	if newOrderID == nil {
		newOrderID = func() string { return "order-" + uuid.NewString() }
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}
	locks := cfg.Locks
	if locks == nil {
		locks = noopLocker{}
	}
	return &Service{
		store:      cfg.Store,
		members:    cfg.Members,
		products:   cfg.Products,
		payments:   cfg.Payments,
		ledger:     cfg.Ledger,
		locks:      locks,
		events:     cfg.Events,
		metrics:    cfg.Metrics,
		newOrderID: newOrderID,
		now:        now,
		logf:       logf,
	}
}

// CreateOrder runs the creation workflow: member validation, stock check and
// reservation, order persistence, payment, completion. On any failure it
// walks the compensation list accumulated so far (stock releases), fails the
// saga's ledger claim and returns a single ErrOrderCreationFailed wrapping
// the cause. A retry with the same idempotency key within the retention
// window returns the stored order without touching inventory again.
func (s *Service) CreateOrder(ctx context.Context, memberID string, req CreateOrderRequest) (o *Order, err error) {
	span := s.metrics.Start("orders.create")
	defer func() { span.End(err) }()

	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, ErrIdempotencyKeyRequired
	}

	release, err := s.locks.Acquire(ctx, "member:"+memberID)
	if err != nil {
		return nil, err
	}
	defer release()

	key := orderKeyScope + req.IdempotencyKey
	claim := s.ledger.Claim(key)
	if claim.Duplicate {
		if claim.ExistingResult == nil {
			return nil, ErrOrderInProgress
		}
		orderID, ok := claim.ExistingResult.(string)
		if !ok {
			s.ledger.Fail(key)
			return nil, fmt.Errorf("%w: unexpected replay result type %T", ErrOrderCreationFailed, claim.ExistingResult)
		}
		return s.store.FindByID(ctx, orderID)
	}

	var compensations []func()
	order, err := s.runCreate(ctx, memberID, req, &compensations)
	if err != nil {
		s.compensate(compensations)
		s.ledger.Fail(key)
		s.logf("[order] create failed: member=%s idempotency_key=%s err=%v", memberID, req.IdempotencyKey, err)
		return nil, fmt.Errorf("%w: %w", ErrOrderCreationFailed, err)
	}
	s.ledger.Commit(key, order.ID)

	s.logf("[order] created: order=%s payment=%s total=%d", order.ID, order.PaymentID, order.TotalAmount)
	s.publish(Event{Type: "order_paid", OrderID: order.ID, MemberID: order.MemberID, Status: order.Status, PaymentID: order.PaymentID, At: s.now()})
	return order, nil
}

func (s *Service) runCreate(ctx context.Context, memberID string, req CreateOrderRequest, compensations *[]func()) (*Order, error) {
	member, err := s.members.FindMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(req.Lines))
	for _, line := range req.Lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.products.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for _, line := range req.Lines {
		if _, ok := byID[line.ProductID]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, line.ProductID)
		}
	}

	for _, line := range req.Lines {
		if err := s.products.CheckStock(ctx, line.ProductID, line.Quantity); err != nil {
			return nil, err
		}
	}
	for _, line := range req.Lines {
		if err := s.products.ReserveStock(ctx, line.ProductID, line.Quantity); err != nil {
			return nil, err
		}
		line := line
		*compensations = append(*compensations, func() {
			// Compensation outlives a cancelled request context.
			releaseCtx := context.WithoutCancel(ctx)
			if err := s.products.ReleaseStock(releaseCtx, line.ProductID, line.Quantity); err != nil {
				s.logf("[order] compensating release failed: product=%s quantity=%d err=%v", line.ProductID, line.Quantity, err)
			}
		})
	}

	now := s.now()
	order := &Order{
		ID:             s.newOrderID(),
		MemberID:       member.ID,
		Status:         OrderStatusPending,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, line := range req.Lines {
		p := byID[line.ProductID]
		orderLine := OrderLine{
			ProductID: p.ID,
			Quantity:  line.Quantity,
			UnitPrice: p.Price,
			LineTotal: p.Price * int64(line.Quantity),
		}
		order.Lines = append(order.Lines, orderLine)
		order.TotalAmount += orderLine.LineTotal
	}
	if err := s.store.Create(ctx, order); err != nil {
		return nil, err
	}

	paymentID, err := s.payments.ProcessPayment(ctx, order.ID, req.IdempotencyKey, req.Method)
	if err != nil {
		return nil, err
	}

	// The executor bumped the order's version when it marked it PAID; reload
	// before completing so our save passes the version check.
	order, err = s.store.FindByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.PaymentID = paymentID
	order.Status = OrderStatusPaid
	order.UpdatedAt = s.now()
	if err := s.store.Save(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// CancelOrder cancels a PENDING or PAID order: payment cancellation, stock
// release for every line, then the CANCELLED transition. Partial effects are
// surfaced as a single ErrOrderCancellationFailed without further automatic
// compensation.
func (s *Service) CancelOrder(ctx context.Context, orderID, memberID string) (err error) {
	span := s.metrics.Start("orders.cancel")
	defer func() { span.End(err) }()

	release, err := s.locks.Acquire(ctx, "order:"+orderID)
	if err != nil {
		return err
	}
	defer release()

	order, err := s.store.FindByIDAndMember(ctx, orderID, memberID)
	if err != nil {
		return err
	}
	if order.Status == OrderStatusCancelled {
		return fmt.Errorf("%w: %s", ErrOrderAlreadyCancelled, orderID)
	}
	if order.Status != OrderStatusPending && order.Status != OrderStatusPaid {
		return fmt.Errorf("%w: order=%s status=%s", ErrOrderCancellationNotAllowed, orderID, order.Status)
	}

	if err := s.runCancel(ctx, order); err != nil {
		s.logf("[order] cancel failed: order=%s err=%v", orderID, err)
		return fmt.Errorf("%w: %w", ErrOrderCancellationFailed, err)
	}

	s.logf("[order] cancelled: order=%s member=%s", orderID, memberID)
	s.publish(Event{Type: "order_cancelled", OrderID: orderID, MemberID: memberID, Status: OrderStatusCancelled, At: s.now()})
	return nil
}

func (s *Service) runCancel(ctx context.Context, order *Order) error {
	if order.PaymentID != "" {
		if err := s.payments.CancelPayment(ctx, order.PaymentID); err != nil {
			return err
		}
	}
	for _, line := range order.Lines {
		if err := s.products.ReleaseStock(ctx, line.ProductID, line.Quantity); err != nil {
			return err
		}
	}
	order.Status = OrderStatusCancelled
	order.UpdatedAt = s.now()
	return s.store.Save(ctx, order)
}

// GetOrder resolves one order scoped to its owning member.
func (s *Service) GetOrder(ctx context.Context, orderID, memberID string) (o *Order, err error) {
	span := s.metrics.Start("orders.get")
	defer func() { span.End(err) }()
	return s.store.FindByIDAndMember(ctx, orderID, memberID)
}

// ListOrders returns a member's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, memberID string, page Page) (list []*Order, err error) {
	span := s.metrics.Start("orders.list")
	defer func() { span.End(err) }()
	return s.store.ListByMember(ctx, memberID, page)
}

// compensate walks the accumulated compensations in reverse order.
func (s *Service) compensate(compensations []func()) {
	for i := len(compensations) - 1; i >= 0; i-- {
		compensations[i]()
	}
}

func (s *Service) publish(ev Event) {
	if s.events == nil {
		return
	}
	s.events.Publish(ev)
}

type noopLocker struct{}

func (noopLocker) Acquire(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}
