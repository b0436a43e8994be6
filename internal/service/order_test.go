package service

import (
	"context"
	"errors"
	"testing"

	"github.com/campus-eats/api/internal/database"
	"github.com/campus-eats/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr   error
	rollbackErr error
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error          { return m.commitErr }
func (m *mockTx) Rollback(ctx context.Context) error        { return m.rollbackErr }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockTxBeginner implements TxBeginner.
type mockTxBeginner struct {
	tx  pgx.Tx
	err error
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	return m.tx, m.err
}

// mockOrderStore implements OrderStore with configurable behavior.
type mockOrderStore struct {
	getLastOrderIdentifierFn       func(ctx context.Context) (string, error)
	createOrderFn                  func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	createOrderItemFn              func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	deleteOrderItemsFn             func(ctx context.Context, orderID uuid.UUID) error
	getOrderFn                     func(ctx context.Context, id uuid.UUID) (database.Order, error)
	getOrderWithOwnerFn            func(ctx context.Context, id uuid.UUID) (database.OrderWithOwner, error)
	listOrderItemsByOrderFn        func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	listOrdersByOwnerAndStatusesFn func(ctx context.Context, arg database.ListOrdersByOwnerAndStatusesParams) ([]database.OrderWithOwner, error)
	listOrdersByStatusesFn         func(ctx context.Context, statuses []string) ([]database.OrderWithOwner, error)
	updateOrderDetailsFn           func(ctx context.Context, arg database.UpdateOrderDetailsParams) (database.Order, error)
	updateOrderStatusFn            func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	cancelOrderFn                  func(ctx context.Context, arg database.CancelOrderParams) (database.Order, error)
}

func (m *mockOrderStore) GetLastOrderIdentifier(ctx context.Context) (string, error) {
	return m.getLastOrderIdentifierFn(ctx)
}
func (m *mockOrderStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	return m.createOrderFn(ctx, arg)
}
func (m *mockOrderStore) CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	return m.createOrderItemFn(ctx, arg)
}
func (m *mockOrderStore) DeleteOrderItems(ctx context.Context, orderID uuid.UUID) error {
	return m.deleteOrderItemsFn(ctx, orderID)
}
func (m *mockOrderStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return m.getOrderFn(ctx, id)
}
func (m *mockOrderStore) GetOrderWithOwner(ctx context.Context, id uuid.UUID) (database.OrderWithOwner, error) {
	return m.getOrderWithOwnerFn(ctx, id)
}
func (m *mockOrderStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	return m.listOrderItemsByOrderFn(ctx, orderID)
}
func (m *mockOrderStore) ListOrdersByOwnerAndStatuses(ctx context.Context, arg database.ListOrdersByOwnerAndStatusesParams) ([]database.OrderWithOwner, error) {
	return m.listOrdersByOwnerAndStatusesFn(ctx, arg)
}
func (m *mockOrderStore) ListOrdersByStatuses(ctx context.Context, statuses []string) ([]database.OrderWithOwner, error) {
	return m.listOrdersByStatusesFn(ctx, statuses)
}
func (m *mockOrderStore) UpdateOrderDetails(ctx context.Context, arg database.UpdateOrderDetailsParams) (database.Order, error) {
	return m.updateOrderDetailsFn(ctx, arg)
}
func (m *mockOrderStore) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	return m.updateOrderStatusFn(ctx, arg)
}
func (m *mockOrderStore) CancelOrder(ctx context.Context, arg database.CancelOrderParams) (database.Order, error) {
	return m.cancelOrderFn(ctx, arg)
}

// mockMenuGate answers availability checks from a fixed map.
type mockMenuGate struct {
	items map[string]ItemAvailability
}

func (m *mockMenuGate) CheckAvailable(ctx context.Context, name string) (ItemAvailability, error) {
	return m.items[name], nil
}

// --- Test helpers ---

func makeNumeric(val string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(val)
	return n
}

func numericEquals(n pgtype.Numeric, expected string) bool {
	d := NumericToDecimal(n)
	exp, _ := decimal.NewFromString(expected)
	return d.Equal(exp)
}

func price(val string) decimal.Decimal {
	d, _ := decimal.NewFromString(val)
	return d
}

// openGate lists every named item as orderable.
func openGate(names ...string) *mockMenuGate {
	items := make(map[string]ItemAvailability, len(names))
	for _, name := range names {
		items[name] = ItemAvailability{Exists: true, Available: true}
	}
	return &mockMenuGate{items: items}
}

// newTestService creates an OrderService with mocked dependencies.
// store backs both the pool-bound store and the tx-bound factory.
func newTestService(store *mockOrderStore, gate MenuGate) *OrderService {
	pool := &mockTxBeginner{tx: &mockTx{}}
	newStore := func(db database.DBTX) OrderStore { return store }
	return NewOrderService(pool, newStore, store, gate)
}

// testOrder builds a stored order in the given status.
func testOrder(ownerID uuid.UUID, status string) database.Order {
	return database.Order{
		ID:         uuid.New(),
		Identifier: "ORD001",
		OwnerID:    ownerID,
		PickupTime: "12:30",
		Status:     status,
		Version:    1,
	}
}

// defaultStore returns a mockOrderStore wired around one stored order.
// Individual tests override the functions they care about.
func defaultStore(ord database.Order) *mockOrderStore {
	return &mockOrderStore{
		getLastOrderIdentifierFn: func(ctx context.Context) (string, error) {
			return "", pgx.ErrNoRows
		},
		createOrderFn: func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
			return database.Order{
				ID:                  uuid.New(),
				Identifier:          arg.Identifier,
				OwnerID:             arg.OwnerID,
				PickupTime:          arg.PickupTime,
				SpecialInstructions: arg.SpecialInstructions,
				Status:              enum.OrderStatusPending,
				Version:             1,
			}, nil
		},
		createOrderItemFn: func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
			return database.OrderItem{
				ID:        uuid.New(),
				OrderID:   arg.OrderID,
				Name:      arg.Name,
				Quantity:  arg.Quantity,
				UnitPrice: arg.UnitPrice,
			}, nil
		},
		deleteOrderItemsFn: func(ctx context.Context, orderID uuid.UUID) error { return nil },
		getOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			return ord, nil
		},
		getOrderWithOwnerFn: func(ctx context.Context, id uuid.UUID) (database.OrderWithOwner, error) {
			return database.OrderWithOwner{Order: ord, OwnerUsername: "casey"}, nil
		},
		listOrderItemsByOrderFn: func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
			return nil, nil
		},
		listOrdersByOwnerAndStatusesFn: func(ctx context.Context, arg database.ListOrdersByOwnerAndStatusesParams) ([]database.OrderWithOwner, error) {
			return nil, nil
		},
		listOrdersByStatusesFn: func(ctx context.Context, statuses []string) ([]database.OrderWithOwner, error) {
			return nil, nil
		},
		updateOrderDetailsFn: func(ctx context.Context, arg database.UpdateOrderDetailsParams) (database.Order, error) {
			return ord, nil
		},
		updateOrderStatusFn: func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
			next := ord
			next.Status = arg.Status
			next.Version = ord.Version + 1
			return next, nil
		},
		cancelOrderFn: func(ctx context.Context, arg database.CancelOrderParams) (database.Order, error) {
			next := ord
			next.Status = enum.OrderStatusCancelled
			next.Version = ord.Version + 1
			return next, nil
		},
	}
}

func basicReq(items ...ItemInput) CreateOrderRequest {
	if items == nil {
		items = []ItemInput{{Name: "Burger", Quantity: 2, UnitPrice: price("5.00")}}
	}
	return CreateOrderRequest{PickupTime: "12:30", Items: items}
}

func identifierConflict() *pgconn.PgError {
	return &pgconn.PgError{Code: "23505", ConstraintName: "orders_identifier_key"}
}

// =====================
// Create: validation
// =====================

func TestCreateOrder_StaffCannotCreate(t *testing.T) {
	svc := newTestService(defaultStore(database.Order{}), openGate("Burger"))

	_, err := svc.Create(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStaff}, basicReq())
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got: %v", err)
	}
}

func TestCreateOrder_EmptyItems(t *testing.T) {
	svc := newTestService(defaultStore(database.Order{}), openGate("Burger"))

	_, err := svc.Create(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStudent}, CreateOrderRequest{
		PickupTime: "12:30",
		Items:      nil,
	})
	if !errors.Is(err, ErrEmptyItems) {
		t.Fatalf("expected ErrEmptyItems, got: %v", err)
	}
}

func TestCreateOrder_MissingPickupTime(t *testing.T) {
	svc := newTestService(defaultStore(database.Order{}), openGate("Burger"))

	_, err := svc.Create(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStudent}, CreateOrderRequest{
		Items: []ItemInput{{Name: "Burger", Quantity: 1, UnitPrice: price("5.00")}},
	})
	if !errors.Is(err, ErrMissingPickupTime) {
		t.Fatalf("expected ErrMissingPickupTime, got: %v", err)
	}
}

func TestCreateOrder_ZeroQuantity(t *testing.T) {
	svc := newTestService(defaultStore(database.Order{}), openGate("Burger"))

	_, err := svc.Create(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStudent},
		basicReq(ItemInput{Name: "Burger", Quantity: 0, UnitPrice: price("5.00")}))
	if !errors.Is(err, ErrInvalidItem) {
		t.Fatalf("expected ErrInvalidItem, got: %v", err)
	}
}

func TestCreateOrder_NegativePrice(t *testing.T) {
	svc := newTestService(defaultStore(database.Order{}), openGate("Burger"))

	_, err := svc.Create(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStudent},
		basicReq(ItemInput{Name: "Burger", Quantity: 1, UnitPrice: price("-1.00")}))
	if !errors.Is(err, ErrInvalidItem) {
		t.Fatalf("expected ErrInvalidItem, got: %v", err)
	}
}

func TestCreateOrder_ItemNotOnMenu(t *testing.T) {
	svc := newTestService(defaultStore(database.Order{}), openGate("Burger"))

	_, err := svc.Create(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStudent},
		basicReq(ItemInput{Name: "Sushi", Quantity: 1, UnitPrice: price("9.00")}))
	if !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got: %v", err)
	}
}

func TestCreateOrder_ItemUnavailableWritesNothing(t *testing.T) {
	store := defaultStore(database.Order{})
	created := false
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		created = true
		return database.Order{}, nil
	}

	gate := openGate("Burger")
	gate.items["Soup"] = ItemAvailability{Exists: true, Available: false}

	svc := newTestService(store, gate)
	_, err := svc.Create(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStudent}, basicReq(
		ItemInput{Name: "Burger", Quantity: 1, UnitPrice: price("5.00")},
		ItemInput{Name: "Soup", Quantity: 1, UnitPrice: price("3.00")},
	))
	if !errors.Is(err, ErrItemUnavailable) {
		t.Fatalf("expected ErrItemUnavailable, got: %v", err)
	}
	if created {
		t.Error("order must not be written when any item is unavailable")
	}
}

// =====================
// Create: identifier allocation
// =====================

func TestCreateOrder_FirstIdentifier(t *testing.T) {
	store := defaultStore(database.Order{})

	var captured database.CreateOrderParams
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		captured = arg
		return database.Order{ID: uuid.New(), Identifier: arg.Identifier, Status: enum.OrderStatusPending, Version: 1}, nil
	}

	svc := newTestService(store, openGate("Burger"))
	if _, err := svc.Create(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStudent}, basicReq()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.Identifier != "ORD001" {
		t.Errorf("identifier: got %q, want ORD001", captured.Identifier)
	}
}

func TestCreateOrder_SequentialIdentifier(t *testing.T) {
	store := defaultStore(database.Order{})
	store.getLastOrderIdentifierFn = func(ctx context.Context) (string, error) {
		return "ORD001", nil
	}

	var captured database.CreateOrderParams
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		captured = arg
		return database.Order{ID: uuid.New(), Identifier: arg.Identifier, Status: enum.OrderStatusPending, Version: 1}, nil
	}

	svc := newTestService(store, openGate("Burger"))
	if _, err := svc.Create(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStudent}, basicReq()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.Identifier != "ORD002" {
		t.Errorf("identifier: got %q, want ORD002", captured.Identifier)
	}
}

func TestCreateOrder_IdentifierWidensPast999(t *testing.T) {
	store := defaultStore(database.Order{})
	store.getLastOrderIdentifierFn = func(ctx context.Context) (string, error) {
		return "ORD999", nil
	}

	var captured database.CreateOrderParams
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		captured = arg
		return database.Order{ID: uuid.New(), Identifier: arg.Identifier, Status: enum.OrderStatusPending, Version: 1}, nil
	}

	svc := newTestService(store, openGate("Burger"))
	if _, err := svc.Create(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStudent}, basicReq()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.Identifier != "ORD1000" {
		t.Errorf("identifier: got %q, want ORD1000", captured.Identifier)
	}
}

func TestCreateOrder_MalformedLastIdentifier(t *testing.T) {
	store := defaultStore(database.Order{})
	store.getLastOrderIdentifierFn = func(ctx context.Context) (string, error) {
		return "BOGUS42", nil
	}

	svc := newTestService(store, openGate("Burger"))
	_, err := svc.Create(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStudent}, basicReq())
	if !errors.Is(err, ErrMalformedIdentifier) {
		t.Fatalf("expected ErrMalformedIdentifier, got: %v", err)
	}
}

func TestCreateOrder_RetriesOnceOnIdentifierConflict(t *testing.T) {
	store := defaultStore(database.Order{})

	lastReads := 0
	store.getLastOrderIdentifierFn = func(ctx context.Context) (string, error) {
		lastReads++
		if lastReads == 1 {
			return "ORD004", nil
		}
		return "ORD005", nil // someone else took ORD005 meanwhile
	}

	var captured database.CreateOrderParams
	attempts := 0
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		attempts++
		if attempts == 1 {
			return database.Order{}, identifierConflict()
		}
		captured = arg
		return database.Order{ID: uuid.New(), Identifier: arg.Identifier, Status: enum.OrderStatusPending, Version: 1}, nil
	}

	svc := newTestService(store, openGate("Burger"))
	if _, err := svc.Create(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStudent}, basicReq()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 2 {
		t.Errorf("create attempts: got %d, want 2", attempts)
	}
	if captured.Identifier != "ORD006" {
		t.Errorf("identifier after retry: got %q, want ORD006", captured.Identifier)
	}
}

func TestCreateOrder_SecondConflictSurfaces(t *testing.T) {
	store := defaultStore(database.Order{})
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		return database.Order{}, identifierConflict()
	}

	svc := newTestService(store, openGate("Burger"))
	_, err := svc.Create(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStudent}, basicReq())
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got: %v", err)
	}
}

func TestCreateOrder_SnapshotsItemPrice(t *testing.T) {
	store := defaultStore(database.Order{})

	var capturedItem database.CreateOrderItemParams
	store.createOrderItemFn = func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
		capturedItem = arg
		return database.OrderItem{ID: uuid.New(), OrderID: arg.OrderID, Name: arg.Name, Quantity: arg.Quantity, UnitPrice: arg.UnitPrice}, nil
	}

	svc := newTestService(store, openGate("Burger"))
	if _, err := svc.Create(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStudent},
		basicReq(ItemInput{Name: "Burger", Quantity: 3, UnitPrice: price("5.50")})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if capturedItem.Name != "Burger" || capturedItem.Quantity != 3 {
		t.Errorf("item: got %q x%d, want Burger x3", capturedItem.Name, capturedItem.Quantity)
	}
	if !numericEquals(capturedItem.UnitPrice, "5.50") {
		t.Errorf("unit_price: got %v, want 5.50", NumericToDecimal(capturedItem.UnitPrice))
	}
}

// =====================
// Update
// =====================

func TestUpdateOrder_NotFound(t *testing.T) {
	store := defaultStore(database.Order{})
	store.getOrderFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		return database.Order{}, pgx.ErrNoRows
	}

	svc := newTestService(store, openGate("Burger"))
	_, err := svc.Update(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStudent}, uuid.New(), UpdateOrderRequest{})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got: %v", err)
	}
}

func TestUpdateOrder_OtherStudentForbidden(t *testing.T) {
	ord := testOrder(uuid.New(), enum.OrderStatusPending)
	svc := newTestService(defaultStore(ord), openGate("Burger"))

	_, err := svc.Update(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStudent}, ord.ID, UpdateOrderRequest{})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got: %v", err)
	}
}

func TestUpdateOrder_StaffForbidden(t *testing.T) {
	ord := testOrder(uuid.New(), enum.OrderStatusPending)
	svc := newTestService(defaultStore(ord), openGate("Burger"))

	_, err := svc.Update(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleManager}, ord.ID, UpdateOrderRequest{})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got: %v", err)
	}
}

func TestUpdateOrder_AfterPendingInvalidState(t *testing.T) {
	owner := uuid.New()
	ord := testOrder(owner, enum.OrderStatusPreparing)
	svc := newTestService(defaultStore(ord), openGate("Burger"))

	_, err := svc.Update(context.Background(), Actor{ID: owner, Role: enum.RoleStudent}, ord.ID, UpdateOrderRequest{})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got: %v", err)
	}
}

func TestUpdateOrder_EmptyReplacementItems(t *testing.T) {
	owner := uuid.New()
	ord := testOrder(owner, enum.OrderStatusPending)
	svc := newTestService(defaultStore(ord), openGate("Burger"))

	_, err := svc.Update(context.Background(), Actor{ID: owner, Role: enum.RoleStudent}, ord.ID, UpdateOrderRequest{
		Items: []ItemInput{},
	})
	if !errors.Is(err, ErrEmptyItems) {
		t.Fatalf("expected ErrEmptyItems, got: %v", err)
	}
}

func TestUpdateOrder_StaleVersionConflicts(t *testing.T) {
	owner := uuid.New()
	ord := testOrder(owner, enum.OrderStatusPending)
	store := defaultStore(ord)
	store.updateOrderDetailsFn = func(ctx context.Context, arg database.UpdateOrderDetailsParams) (database.Order, error) {
		return database.Order{}, pgx.ErrNoRows
	}

	svc := newTestService(store, openGate("Burger"))
	_, err := svc.Update(context.Background(), Actor{ID: owner, Role: enum.RoleStudent}, ord.ID, UpdateOrderRequest{
		PickupTime: "13:00",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got: %v", err)
	}
}

func TestUpdateOrder_ReplacesItems(t *testing.T) {
	owner := uuid.New()
	ord := testOrder(owner, enum.OrderStatusPending)
	store := defaultStore(ord)

	deleted := false
	store.deleteOrderItemsFn = func(ctx context.Context, orderID uuid.UUID) error {
		deleted = true
		if orderID != ord.ID {
			t.Errorf("deleting items of order %s, want %s", orderID, ord.ID)
		}
		return nil
	}

	var inserted []database.CreateOrderItemParams
	store.createOrderItemFn = func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
		inserted = append(inserted, arg)
		return database.OrderItem{ID: uuid.New(), OrderID: arg.OrderID, Name: arg.Name, Quantity: arg.Quantity, UnitPrice: arg.UnitPrice}, nil
	}

	var captured database.UpdateOrderDetailsParams
	store.updateOrderDetailsFn = func(ctx context.Context, arg database.UpdateOrderDetailsParams) (database.Order, error) {
		captured = arg
		return ord, nil
	}

	svc := newTestService(store, openGate("Burger", "Fries"))
	_, err := svc.Update(context.Background(), Actor{ID: owner, Role: enum.RoleStudent}, ord.ID, UpdateOrderRequest{
		Items: []ItemInput{{Name: "Fries", Quantity: 2, UnitPrice: price("2.50")}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !deleted {
		t.Error("existing items should be deleted before replacement")
	}
	if len(inserted) != 1 || inserted[0].Name != "Fries" {
		t.Errorf("inserted items: got %v, want one Fries", inserted)
	}
	if captured.Version != ord.Version {
		t.Errorf("version: got %d, want %d", captured.Version, ord.Version)
	}
}

func TestUpdateOrder_OmittedFieldsKept(t *testing.T) {
	owner := uuid.New()
	ord := testOrder(owner, enum.OrderStatusPending)
	ord.SpecialInstructions = "no onions"
	store := defaultStore(ord)

	store.deleteOrderItemsFn = func(ctx context.Context, orderID uuid.UUID) error {
		t.Error("items must not be touched when the request omits them")
		return nil
	}

	var captured database.UpdateOrderDetailsParams
	store.updateOrderDetailsFn = func(ctx context.Context, arg database.UpdateOrderDetailsParams) (database.Order, error) {
		captured = arg
		return ord, nil
	}

	svc := newTestService(store, openGate("Burger"))
	_, err := svc.Update(context.Background(), Actor{ID: owner, Role: enum.RoleStudent}, ord.ID, UpdateOrderRequest{
		PickupTime: "13:15",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.PickupTime != "13:15" {
		t.Errorf("pickup time: got %q, want 13:15", captured.PickupTime)
	}
	if captured.SpecialInstructions != "no onions" {
		t.Errorf("instructions: got %q, want existing text kept", captured.SpecialInstructions)
	}
}

// =====================
// Cancel
// =====================

func TestCancelOrder_StudentOwnPending(t *testing.T) {
	owner := uuid.New()
	ord := testOrder(owner, enum.OrderStatusPending)
	store := defaultStore(ord)

	var captured database.CancelOrderParams
	store.cancelOrderFn = func(ctx context.Context, arg database.CancelOrderParams) (database.Order, error) {
		captured = arg
		next := ord
		next.Status = enum.OrderStatusCancelled
		return next, nil
	}

	svc := newTestService(store, openGate())
	if _, err := svc.Cancel(context.Background(), Actor{ID: owner, Role: enum.RoleStudent}, ord.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.CancelledBy != enum.RoleStudent {
		t.Errorf("cancelled_by: got %q, want student", captured.CancelledBy)
	}
	if captured.Version != ord.Version {
		t.Errorf("version: got %d, want %d", captured.Version, ord.Version)
	}
}

func TestCancelOrder_StudentAfterPendingForbidden(t *testing.T) {
	owner := uuid.New()
	ord := testOrder(owner, enum.OrderStatusPreparing)
	svc := newTestService(defaultStore(ord), openGate())

	_, err := svc.Cancel(context.Background(), Actor{ID: owner, Role: enum.RoleStudent}, ord.ID)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got: %v", err)
	}
}

func TestCancelOrder_OtherStudentForbidden(t *testing.T) {
	ord := testOrder(uuid.New(), enum.OrderStatusPending)
	svc := newTestService(defaultStore(ord), openGate())

	_, err := svc.Cancel(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStudent}, ord.ID)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got: %v", err)
	}
}

func TestCancelOrder_StaffCancelsActiveOrder(t *testing.T) {
	ord := testOrder(uuid.New(), enum.OrderStatusPreparing)
	store := defaultStore(ord)

	var captured database.CancelOrderParams
	store.cancelOrderFn = func(ctx context.Context, arg database.CancelOrderParams) (database.Order, error) {
		captured = arg
		next := ord
		next.Status = enum.OrderStatusCancelled
		return next, nil
	}

	svc := newTestService(store, openGate())
	if _, err := svc.Cancel(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStaff}, ord.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.CancelledBy != enum.RoleStaff {
		t.Errorf("cancelled_by: got %q, want staff", captured.CancelledBy)
	}
}

func TestCancelOrder_AlreadyCancelled(t *testing.T) {
	ord := testOrder(uuid.New(), enum.OrderStatusCancelled)
	svc := newTestService(defaultStore(ord), openGate())

	_, err := svc.Cancel(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleManager}, ord.ID)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got: %v", err)
	}
}

func TestCancelOrder_PickedOrder(t *testing.T) {
	ord := testOrder(uuid.New(), enum.OrderStatusPicked)
	svc := newTestService(defaultStore(ord), openGate())

	_, err := svc.Cancel(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStaff}, ord.ID)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got: %v", err)
	}
}

func TestCancelOrder_StaleVersionConflicts(t *testing.T) {
	ord := testOrder(uuid.New(), enum.OrderStatusPending)
	store := defaultStore(ord)
	store.cancelOrderFn = func(ctx context.Context, arg database.CancelOrderParams) (database.Order, error) {
		return database.Order{}, pgx.ErrNoRows
	}

	svc := newTestService(store, openGate())
	_, err := svc.Cancel(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStaff}, ord.ID)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got: %v", err)
	}
}

// =====================
// AdvanceStatus
// =====================

func TestAdvanceStatus_StudentForbidden(t *testing.T) {
	ord := testOrder(uuid.New(), enum.OrderStatusPending)
	svc := newTestService(defaultStore(ord), openGate())

	_, err := svc.AdvanceStatus(context.Background(), Actor{ID: ord.OwnerID, Role: enum.RoleStudent}, ord.ID, enum.OrderStatusPreparing)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got: %v", err)
	}
}

func TestAdvanceStatus_UnknownStatus(t *testing.T) {
	ord := testOrder(uuid.New(), enum.OrderStatusPending)
	svc := newTestService(defaultStore(ord), openGate())

	_, err := svc.AdvanceStatus(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStaff}, ord.ID, "shipped")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got: %v", err)
	}
}

func TestAdvanceStatus_TransitionTable(t *testing.T) {
	statuses := []string{
		enum.OrderStatusPending,
		enum.OrderStatusPreparing,
		enum.OrderStatusReady,
		enum.OrderStatusPicked,
		enum.OrderStatusCancelled,
	}
	allowed := map[string]map[string]bool{
		enum.OrderStatusPending:   {enum.OrderStatusPreparing: true, enum.OrderStatusCancelled: true},
		enum.OrderStatusPreparing: {enum.OrderStatusReady: true, enum.OrderStatusCancelled: true},
		enum.OrderStatusReady:     {enum.OrderStatusPicked: true},
	}

	for _, from := range []string{enum.OrderStatusPending, enum.OrderStatusPreparing, enum.OrderStatusReady} {
		for _, to := range statuses {
			t.Run(from+"_to_"+to, func(t *testing.T) {
				ord := testOrder(uuid.New(), from)
				svc := newTestService(defaultStore(ord), openGate())

				_, err := svc.AdvanceStatus(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStaff}, ord.ID, to)
				if allowed[from][to] {
					if err != nil {
						t.Fatalf("%s -> %s should be allowed, got: %v", from, to, err)
					}
					return
				}
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("%s -> %s: expected ErrInvalidTransition, got: %v", from, to, err)
				}
			})
		}
	}
}

func TestAdvanceStatus_TerminalOrdersLocked(t *testing.T) {
	for _, status := range []string{enum.OrderStatusPicked, enum.OrderStatusCancelled} {
		t.Run(status, func(t *testing.T) {
			ord := testOrder(uuid.New(), status)
			svc := newTestService(defaultStore(ord), openGate())

			_, err := svc.AdvanceStatus(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleManager}, ord.ID, enum.OrderStatusPreparing)
			if !errors.Is(err, ErrTerminalState) {
				t.Fatalf("expected ErrTerminalState, got: %v", err)
			}
		})
	}
}

func TestAdvanceStatus_CancelStampsRole(t *testing.T) {
	ord := testOrder(uuid.New(), enum.OrderStatusPending)
	store := defaultStore(ord)

	store.updateOrderStatusFn = func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
		t.Error("cancellation must go through CancelOrder, not UpdateOrderStatus")
		return ord, nil
	}

	var captured database.CancelOrderParams
	store.cancelOrderFn = func(ctx context.Context, arg database.CancelOrderParams) (database.Order, error) {
		captured = arg
		next := ord
		next.Status = enum.OrderStatusCancelled
		return next, nil
	}

	svc := newTestService(store, openGate())
	_, err := svc.AdvanceStatus(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleManager}, ord.ID, enum.OrderStatusCancelled)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.CancelledBy != enum.RoleManager {
		t.Errorf("cancelled_by: got %q, want manager", captured.CancelledBy)
	}
}

func TestAdvanceStatus_StaleVersionConflicts(t *testing.T) {
	ord := testOrder(uuid.New(), enum.OrderStatusReady)
	store := defaultStore(ord)
	store.updateOrderStatusFn = func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
		return database.Order{}, pgx.ErrNoRows
	}

	svc := newTestService(store, openGate())
	_, err := svc.AdvanceStatus(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStaff}, ord.ID, enum.OrderStatusPicked)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got: %v", err)
	}
}

// =====================
// Get and lists
// =====================

func TestGetOrder_OwnerSeesOwn(t *testing.T) {
	owner := uuid.New()
	ord := testOrder(owner, enum.OrderStatusPending)
	svc := newTestService(defaultStore(ord), openGate())

	detail, err := svc.Get(context.Background(), Actor{ID: owner, Role: enum.RoleStudent}, ord.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.Order.Identifier != ord.Identifier {
		t.Errorf("identifier: got %q, want %q", detail.Order.Identifier, ord.Identifier)
	}
}

func TestGetOrder_OtherStudentForbidden(t *testing.T) {
	ord := testOrder(uuid.New(), enum.OrderStatusPending)
	svc := newTestService(defaultStore(ord), openGate())

	_, err := svc.Get(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStudent}, ord.ID)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got: %v", err)
	}
}

func TestGetOrder_StaffSeesAll(t *testing.T) {
	ord := testOrder(uuid.New(), enum.OrderStatusReady)
	svc := newTestService(defaultStore(ord), openGate())

	if _, err := svc.Get(context.Background(), Actor{ID: uuid.New(), Role: enum.RoleStaff}, ord.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestListCurrent_QueriesActiveStatuses(t *testing.T) {
	owner := uuid.New()
	store := defaultStore(database.Order{})

	var captured database.ListOrdersByOwnerAndStatusesParams
	store.listOrdersByOwnerAndStatusesFn = func(ctx context.Context, arg database.ListOrdersByOwnerAndStatusesParams) ([]database.OrderWithOwner, error) {
		captured = arg
		return nil, nil
	}

	svc := newTestService(store, openGate())
	if _, err := svc.ListCurrent(context.Background(), owner); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.OwnerID != owner {
		t.Errorf("owner: got %s, want %s", captured.OwnerID, owner)
	}
	want := []string{enum.OrderStatusPending, enum.OrderStatusPreparing, enum.OrderStatusReady}
	if len(captured.Statuses) != len(want) {
		t.Fatalf("statuses: got %v, want %v", captured.Statuses, want)
	}
	for i, st := range want {
		if captured.Statuses[i] != st {
			t.Errorf("statuses[%d]: got %q, want %q", i, captured.Statuses[i], st)
		}
	}
}

func TestListHistory_QueriesTerminalStatuses(t *testing.T) {
	store := defaultStore(database.Order{})

	var captured database.ListOrdersByOwnerAndStatusesParams
	store.listOrdersByOwnerAndStatusesFn = func(ctx context.Context, arg database.ListOrdersByOwnerAndStatusesParams) ([]database.OrderWithOwner, error) {
		captured = arg
		return nil, nil
	}

	svc := newTestService(store, openGate())
	if _, err := svc.ListHistory(context.Background(), uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{enum.OrderStatusPicked, enum.OrderStatusCancelled}
	if len(captured.Statuses) != 2 || captured.Statuses[0] != want[0] || captured.Statuses[1] != want[1] {
		t.Errorf("statuses: got %v, want %v", captured.Statuses, want)
	}
}

func TestListActive_FilterNarrowsToOneStatus(t *testing.T) {
	store := defaultStore(database.Order{})

	var captured []string
	store.listOrdersByStatusesFn = func(ctx context.Context, statuses []string) ([]database.OrderWithOwner, error) {
		captured = statuses
		return nil, nil
	}

	svc := newTestService(store, openGate())
	if _, err := svc.ListActive(context.Background(), enum.OrderStatusReady); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(captured) != 1 || captured[0] != enum.OrderStatusReady {
		t.Errorf("statuses: got %v, want [ready]", captured)
	}
}

func TestListActive_IgnoresNonActiveFilter(t *testing.T) {
	store := defaultStore(database.Order{})

	var captured []string
	store.listOrdersByStatusesFn = func(ctx context.Context, statuses []string) ([]database.OrderWithOwner, error) {
		captured = statuses
		return nil, nil
	}

	svc := newTestService(store, openGate())
	if _, err := svc.ListActive(context.Background(), enum.OrderStatusCancelled); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(captured) != 3 {
		t.Errorf("statuses: got %v, want the full active set", captured)
	}
}
