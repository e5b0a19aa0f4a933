package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"orderflow/internal/idempotency"
)

type spyProcessor struct {
	calls      int
	cancels    []string
	paymentID  string
	processErr error
	cancelErr  error
}

func (s *spyProcessor) ProcessPayment(ctx context.Context, orderID, idempotencyKey, method string) (string, error) {
	s.calls++
	if s.processErr != nil {
		return "", s.processErr
	}
	if s.paymentID != "" {
		return s.paymentID, nil
	}
	return "payment-" + orderID, nil
}

func (s *spyProcessor) CancelPayment(ctx context.Context, paymentID string) error {
	s.cancels = append(s.cancels, paymentID)
	return s.cancelErr
}

type collectSink struct {
	events []Event
}

func (c *collectSink) Publish(ev Event) {
	c.events = append(c.events, ev)
}

type spyLocker struct {
	keys     []string
	releases int
	err      error
}

func (l *spyLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.keys = append(l.keys, key)
	return func() { l.releases++ }, nil
}

type serviceFixture struct {
	service   *Service
	store     *InMemoryStore
	products  *InMemoryProductClient
	processor *spyProcessor
	sink      *collectSink
	locker    *spyLocker
	ledger    *idempotency.Ledger
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	members := NewInMemoryMemberClient()
	members.AddMember(Member{ID: "member-1", Name: "Ada"})

	products := NewInMemoryProductClient()
	products.AddProduct(Product{ID: "product-1", Name: "Keyboard", Price: 1000}, 10)
	products.AddProduct(Product{ID: "product-2", Name: "Mouse", Price: 500}, 10)

	f := &serviceFixture{
		store:     NewInMemoryStore(),
		products:  products,
		processor: &spyProcessor{},
		sink:      &collectSink{},
		locker:    &spyLocker{},
		ledger:    idempotency.New(idempotency.Config{Logf: func(string, ...any) {}}),
	}
	f.service = NewService(ServiceConfig{
		Store:    f.store,
		Members:  members,
		Products: products,
		Payments: f.processor,
		Ledger:   f.ledger,
		Locks:    f.locker,
		Events:   f.sink,
		Logf:     func(string, ...any) {},
	})
	return f
}

func defaultRequest() CreateOrderRequest {
	return CreateOrderRequest{
		IdempotencyKey: "idem-1",
		Lines: []LineRequest{
			{ProductID: "product-1", Quantity: 2},
			{ProductID: "product-2", Quantity: 1},
		},
	}
}

func TestCreateOrder_Success(t *testing.T) {
	f := newServiceFixture(t)

	order, err := f.service.CreateOrder(context.Background(), "member-1", defaultRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != OrderStatusPaid {
		t.Fatalf("expected PAID, got %s", order.Status)
	}
	if order.TotalAmount != 2500 {
		t.Fatalf("expected total 2500, got %d", order.TotalAmount)
	}
	if order.PaymentID == "" {
		t.Fatalf("expected payment id")
	}
	if len(order.Lines) != 2 || order.Lines[0].LineTotal != 2000 {
		t.Fatalf("unexpected lines: %+v", order.Lines)
	}
	if f.products.Reserved("product-1") != 2 || f.products.Reserved("product-2") != 1 {
		t.Fatalf("unexpected reservations: %d/%d", f.products.Reserved("product-1"), f.products.Reserved("product-2"))
	}
	if len(f.sink.events) != 1 || f.sink.events[0].Type != "order_paid" {
		t.Fatalf("unexpected events: %+v", f.sink.events)
	}
	if len(f.locker.keys) != 1 || f.locker.keys[0] != "member:member-1" {
		t.Fatalf("unexpected lock keys: %v", f.locker.keys)
	}
	if f.locker.releases != 1 {
		t.Fatalf("expected lock released once, got %d", f.locker.releases)
	}
}

func TestCreateOrder_RequiresIdempotencyKey(t *testing.T) {
	f := newServiceFixture(t)

	req := defaultRequest()
	req.IdempotencyKey = "  "
	if _, err := f.service.CreateOrder(context.Background(), "member-1", req); !errors.Is(err, ErrIdempotencyKeyRequired) {
		t.Fatalf("expected key-required error, got %v", err)
	}
}

func TestCreateOrder_DuplicateKeyReturnsSameOrder(t *testing.T) {
	f := newServiceFixture(t)

	first, err := f.service.CreateOrder(context.Background(), "member-1", defaultRequest())
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	second, err := f.service.CreateOrder(context.Background(), "member-1", defaultRequest())
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same order, got %s and %s", first.ID, second.ID)
	}
	if f.processor.calls != 1 {
		t.Fatalf("expected one payment call, got %d", f.processor.calls)
	}
	if f.products.Reserved("product-1") != 2 {
		t.Fatalf("replay must not reserve again, got %d", f.products.Reserved("product-1"))
	}
}

func TestCreateOrder_InProgressDuplicate(t *testing.T) {
	f := newServiceFixture(t)

	f.ledger.Claim("order:idem-1")
	if _, err := f.service.CreateOrder(context.Background(), "member-1", defaultRequest()); !errors.Is(err, ErrOrderInProgress) {
		t.Fatalf("expected in-progress error, got %v", err)
	}
}

func TestCreateOrder_MemberNotFound(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.CreateOrder(context.Background(), "member-999", defaultRequest())
	if !errors.Is(err, ErrOrderCreationFailed) || !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("expected wrapped member-not-found, got %v", err)
	}
}

func TestCreateOrder_ProductNotFound(t *testing.T) {
	f := newServiceFixture(t)

	req := defaultRequest()
	req.Lines = append(req.Lines, LineRequest{ProductID: "product-999", Quantity: 1})
	_, err := f.service.CreateOrder(context.Background(), "member-1", req)
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected product-not-found, got %v", err)
	}
	if f.products.Reserved("product-1") != 0 {
		t.Fatalf("expected no reservations, got %d", f.products.Reserved("product-1"))
	}
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	f := newServiceFixture(t)

	req := defaultRequest()
	req.Lines[0].Quantity = 100
	_, err := f.service.CreateOrder(context.Background(), "member-1", req)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient-stock, got %v", err)
	}
	if f.products.Reserved("product-1") != 0 || f.products.Reserved("product-2") != 0 {
		t.Fatalf("expected no reservations after stock failure")
	}
}

func TestCreateOrder_PaymentFailureReleasesStock(t *testing.T) {
	f := newServiceFixture(t)
	f.processor.processErr = errors.New("gateway declined")

	_, err := f.service.CreateOrder(context.Background(), "member-1", defaultRequest())
	if !errors.Is(err, ErrOrderCreationFailed) {
		t.Fatalf("expected creation failure, got %v", err)
	}
	if f.products.Reserved("product-1") != 0 || f.products.Reserved("product-2") != 0 {
		t.Fatalf("expected all reservations released, got %d/%d",
			f.products.Reserved("product-1"), f.products.Reserved("product-2"))
	}
	if len(f.sink.events) != 0 {
		t.Fatalf("no event expected on failure, got %+v", f.sink.events)
	}

	// The key is released on failure so a retry can run the saga again.
	f.processor.processErr = nil
	order, err := f.service.CreateOrder(context.Background(), "member-1", defaultRequest())
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if order.Status != OrderStatusPaid {
		t.Fatalf("expected PAID after retry, got %s", order.Status)
	}
}

func TestCreateOrder_LockUnavailable(t *testing.T) {
	f := newServiceFixture(t)
	lockErr := errors.New("lock unavailable")
	f.locker.err = lockErr

	if _, err := f.service.CreateOrder(context.Background(), "member-1", defaultRequest()); !errors.Is(err, lockErr) {
		t.Fatalf("expected lock error, got %v", err)
	}
	if f.processor.calls != 0 {
		t.Fatalf("no payment expected when lock fails")
	}
}

func TestCancelOrder_Success(t *testing.T) {
	f := newServiceFixture(t)

	order, err := f.service.CreateOrder(context.Background(), "member-1", defaultRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := f.service.CancelOrder(context.Background(), order.ID, "member-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, err := f.store.FindByID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != OrderStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", got.Status)
	}
	if f.products.Reserved("product-1") != 0 || f.products.Reserved("product-2") != 0 {
		t.Fatalf("expected stock released on cancel")
	}
	if len(f.processor.cancels) != 1 || f.processor.cancels[0] != order.PaymentID {
		t.Fatalf("expected payment cancel for %s, got %v", order.PaymentID, f.processor.cancels)
	}
	if len(f.sink.events) != 2 || f.sink.events[1].Type != "order_cancelled" {
		t.Fatalf("unexpected events: %+v", f.sink.events)
	}
}

func TestCancelOrder_AlreadyCancelled(t *testing.T) {
	f := newServiceFixture(t)

	order, err := f.service.CreateOrder(context.Background(), "member-1", defaultRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.service.CancelOrder(context.Background(), order.ID, "member-1"); err != nil {
		t.Fatalf("first cancel: %v", err)
	}

	err = f.service.CancelOrder(context.Background(), order.ID, "member-1")
	if !errors.Is(err, ErrOrderAlreadyCancelled) {
		t.Fatalf("expected already-cancelled, got %v", err)
	}
	if f.products.Available("product-1") != 10 {
		t.Fatalf("second cancel must not release stock again, available=%d", f.products.Available("product-1"))
	}
}

func TestCancelOrder_WrongMember(t *testing.T) {
	f := newServiceFixture(t)

	order, err := f.service.CreateOrder(context.Background(), "member-1", defaultRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := f.service.CancelOrder(context.Background(), order.ID, "member-2"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not-found for other member, got %v", err)
	}
}

func TestCancelOrder_SaveFailureWrapped(t *testing.T) {
	f := newServiceFixture(t)

	order, err := f.service.CreateOrder(context.Background(), "member-1", defaultRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.processor.cancelErr = errors.New("reversal boom")

	err = f.service.CancelOrder(context.Background(), order.ID, "member-1")
	if !errors.Is(err, ErrOrderCancellationFailed) {
		t.Fatalf("expected cancellation failure, got %v", err)
	}

	got, _ := f.store.FindByID(context.Background(), order.ID)
	if got.Status != OrderStatusPaid {
		t.Fatalf("order must stay PAID when cancel fails, got %s", got.Status)
	}
}

func TestGetOrder(t *testing.T) {
	f := newServiceFixture(t)

	order, err := f.service.CreateOrder(context.Background(), "member-1", defaultRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := f.service.GetOrder(context.Background(), order.ID, "member-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != order.ID {
		t.Fatalf("unexpected order: %s", got.ID)
	}

	if _, err := f.service.GetOrder(context.Background(), "missing", "member-1"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListOrders_NewestFirst(t *testing.T) {
	f := newServiceFixture(t)

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.service.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	for _, key := range []string{"idem-a", "idem-b", "idem-c"} {
		req := defaultRequest()
		req.IdempotencyKey = key
		req.Lines = []LineRequest{{ProductID: "product-2", Quantity: 1}}
		if _, err := f.service.CreateOrder(context.Background(), "member-1", req); err != nil {
			t.Fatalf("create %s: %v", key, err)
		}
	}

	list, err := f.service.ListOrders(context.Background(), "member-1", Page{Number: 0, Size: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(list))
	}
	if list[0].CreatedAt.Before(list[1].CreatedAt) {
		t.Fatalf("expected newest first")
	}

	rest, err := f.service.ListOrders(context.Background(), "member-1", Page{Number: 1, Size: 2})
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("expected 1 order on last page, got %d", len(rest))
	}
}
