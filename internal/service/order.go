package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/campus-eats/api/internal/database"
	"github.com/campus-eats/api/internal/enum"
	"github.com/campus-eats/api/internal/policy"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Errors returned by the order service. Handlers map these to HTTP statuses
// with errors.Is, so every failure keeps a stable kind.
var (
	ErrEmptyItems        = errors.New("at least one item is required")
	ErrMissingPickupTime = errors.New("pickup time is required")
	ErrInvalidItem       = errors.New("each item needs a name, a positive quantity, and a non-negative price")
	ErrItemNotFound      = errors.New("menu item not found")
	ErrItemUnavailable   = errors.New("menu item is not available")
	ErrForbidden         = errors.New("not authorized for this order")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidState      = errors.New("order state does not allow this change")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTerminalState     = errors.New("order is locked in a terminal state")
	ErrConflict          = errors.New("order was modified concurrently")

	// ErrMalformedIdentifier means the newest stored identifier does not
	// parse as ORD+number. That is corrupt data, not a user error.
	ErrMalformedIdentifier = errors.New("malformed order identifier")
)

// allowedTransitions is keyed by current status; a requested status outside
// the listed set is rejected. Terminal statuses have no entry.
var allowedTransitions = map[string][]string{
	enum.OrderStatusPending:   {enum.OrderStatusPreparing, enum.OrderStatusCancelled},
	enum.OrderStatusPreparing: {enum.OrderStatusReady, enum.OrderStatusCancelled},
	enum.OrderStatusReady:     {enum.OrderStatusPicked},
}

func transitionAllowed(current, next string) bool {
	for _, s := range allowedTransitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the database methods the order engine needs.
// Satisfied by *database.Queries (pool-bound or tx-bound).
type OrderStore interface {
	GetLastOrderIdentifier(ctx context.Context) (string, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	DeleteOrderItems(ctx context.Context, orderID uuid.UUID) error
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderWithOwner(ctx context.Context, id uuid.UUID) (database.OrderWithOwner, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListOrdersByOwnerAndStatuses(ctx context.Context, arg database.ListOrdersByOwnerAndStatusesParams) ([]database.OrderWithOwner, error)
	ListOrdersByStatuses(ctx context.Context, statuses []string) ([]database.OrderWithOwner, error)
	UpdateOrderDetails(ctx context.Context, arg database.UpdateOrderDetailsParams) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	CancelOrder(ctx context.Context, arg database.CancelOrderParams) (database.Order, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx), so the
// engine can run multi-statement writes inside a transaction.
type NewOrderStore func(db database.DBTX) OrderStore

// Actor identifies who is performing an operation. Handlers build it from
// verified JWT claims; the engine trusts it.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// ItemInput is a single requested line item. Price and quantity are
// snapshotted onto the order and never re-derived from the menu afterwards.
type ItemInput struct {
	Name      string
	Quantity  int32
	UnitPrice decimal.Decimal
}

// CreateOrderRequest is the validated input for creating an order.
type CreateOrderRequest struct {
	PickupTime          string
	SpecialInstructions string
	Items               []ItemInput
}

// UpdateOrderRequest patches a pending order. Nil Items keeps the existing
// items; an empty PickupTime keeps the existing one; a nil
// SpecialInstructions pointer keeps the existing text.
type UpdateOrderRequest struct {
	Items               []ItemInput
	PickupTime          string
	SpecialInstructions *string
}

// OrderDetail is the fully hydrated view returned by every operation:
// the order joined with its owner, plus its items.
type OrderDetail struct {
	Order database.OrderWithOwner
	Items []database.OrderItem
}

// OrderService is the order lifecycle engine: creation, student edits,
// cancellation, and the staff status workflow.
type OrderService struct {
	pool     TxBeginner
	newStore NewOrderStore
	store    OrderStore
	gate     MenuGate
}

// NewOrderService creates a new OrderService. store must be pool-bound;
// newStore builds tx-bound stores for multi-statement writes.
func NewOrderService(pool TxBeginner, newStore NewOrderStore, store OrderStore, gate MenuGate) *OrderService {
	return &OrderService{pool: pool, newStore: newStore, store: store, gate: gate}
}

// Create validates the request against the menu and persists a new pending
// order under a freshly allocated identifier. Two concurrent creations can
// derive the same identifier from the same "last" read; the unique
// constraint catches that and the engine retries exactly once with a fresh
// read before surfacing ErrConflict.
func (s *OrderService) Create(ctx context.Context, actor Actor, req CreateOrderRequest) (*OrderDetail, error) {
	if !policy.CanAct(actor.Role, actor.ID, policy.Order{}, policy.OpCreate) {
		return nil, ErrForbidden
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if req.PickupTime == "" {
		return nil, ErrMissingPickupTime
	}
	if err := s.validateItems(ctx, req.Items); err != nil {
		return nil, err
	}

	detail, err := s.createTx(ctx, actor.ID, req)
	if isIdentifierConflict(err) {
		detail, err = s.createTx(ctx, actor.ID, req)
		if isIdentifierConflict(err) {
			return nil, fmt.Errorf("%w: identifier collision", ErrConflict)
		}
	}
	return detail, err
}

// createTx allocates the identifier and inserts the order with its items in
// a single transaction.
func (s *OrderService) createTx(ctx context.Context, ownerID uuid.UUID, req CreateOrderRequest) (*OrderDetail, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	last, err := store.GetLastOrderIdentifier(ctx)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("read last identifier: %w", err)
		}
		last = ""
	}
	identifier, err := nextIdentifier(last)
	if err != nil {
		return nil, err
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		Identifier:          identifier,
		OwnerID:             ownerID,
		PickupTime:          req.PickupTime,
		SpecialInstructions: req.SpecialInstructions,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if err := insertItems(ctx, store, order.ID, req.Items); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return s.hydrate(ctx, order.ID)
}

// Update lets the owning student modify a still-pending order. Replaced
// items pass the same menu validation as on creation; pickup time and
// instructions replace wholesale when present.
func (s *OrderService) Update(ctx context.Context, actor Actor, orderID uuid.UUID, req UpdateOrderRequest) (*OrderDetail, error) {
	ord, err := s.fetch(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !policy.CanAct(actor.Role, actor.ID, policyOrder(ord), policy.OpUpdate) {
		if actor.Role == enum.RoleStudent && actor.ID == ord.OwnerID {
			return nil, fmt.Errorf("%w: order is %s", ErrInvalidState, ord.Status)
		}
		return nil, ErrForbidden
	}

	if req.Items != nil {
		if len(req.Items) == 0 {
			return nil, ErrEmptyItems
		}
		if err := s.validateItems(ctx, req.Items); err != nil {
			return nil, err
		}
	}

	pickupTime := ord.PickupTime
	if req.PickupTime != "" {
		pickupTime = req.PickupTime
	}
	instructions := ord.SpecialInstructions
	if req.SpecialInstructions != nil {
		instructions = *req.SpecialInstructions
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// The version check makes the read-modify-write safe: if anything
	// touched the order since our read, no row matches and we conflict.
	if _, err := store.UpdateOrderDetails(ctx, database.UpdateOrderDetailsParams{
		ID:                  ord.ID,
		Version:             ord.Version,
		PickupTime:          pickupTime,
		SpecialInstructions: instructions,
	}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("update order: %w", err)
	}

	if req.Items != nil {
		if err := store.DeleteOrderItems(ctx, ord.ID); err != nil {
			return nil, fmt.Errorf("delete order items: %w", err)
		}
		if err := insertItems(ctx, store, ord.ID, req.Items); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return s.hydrate(ctx, ord.ID)
}

// Cancel cancels an order. Students may cancel only their own pending
// orders; staff and managers may cancel anything not yet terminal. The
// cancelling role is stamped on the record.
func (s *OrderService) Cancel(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDetail, error) {
	ord, err := s.fetch(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if enum.IsTerminalStatus(ord.Status) {
		return nil, fmt.Errorf("%w: order is already %s", ErrInvalidState, ord.Status)
	}
	if !policy.CanAct(actor.Role, actor.ID, policyOrder(ord), policy.OpCancel) {
		return nil, ErrForbidden
	}

	if _, err := s.store.CancelOrder(ctx, database.CancelOrderParams{
		ID:          ord.ID,
		Version:     ord.Version,
		CancelledBy: actor.Role,
	}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("cancel order: %w", err)
	}

	return s.hydrate(ctx, ord.ID)
}

// AdvanceStatus moves an order through the fulfillment workflow. Terminal
// orders answer ErrTerminalState so callers can message "locked" rather
// than "wrong transition".
func (s *OrderService) AdvanceStatus(ctx context.Context, actor Actor, orderID uuid.UUID, target string) (*OrderDetail, error) {
	if !enum.IsStaffRole(actor.Role) {
		return nil, ErrForbidden
	}
	if !enum.IsOrderStatus(target) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, target)
	}

	ord, err := s.fetch(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if enum.IsTerminalStatus(ord.Status) {
		return nil, fmt.Errorf("%w: order is %s", ErrTerminalState, ord.Status)
	}
	if !transitionAllowed(ord.Status, target) {
		return nil, fmt.Errorf("%w: cannot change %s to %s", ErrInvalidTransition, ord.Status, target)
	}

	// Cancellation through the workflow still stamps cancelled_at/by.
	if target == enum.OrderStatusCancelled {
		_, err = s.store.CancelOrder(ctx, database.CancelOrderParams{
			ID:          ord.ID,
			Version:     ord.Version,
			CancelledBy: actor.Role,
		})
	} else {
		_, err = s.store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
			ID:      ord.ID,
			Version: ord.Version,
			Status:  target,
		})
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	return s.hydrate(ctx, ord.ID)
}

// Get returns one hydrated order. Students see only their own.
func (s *OrderService) Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDetail, error) {
	ord, err := s.fetch(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !policy.CanAct(actor.Role, actor.ID, policyOrder(ord), policy.OpView) {
		return nil, ErrForbidden
	}
	return s.hydrate(ctx, ord.ID)
}

// activeStatuses are the statuses of orders still moving through the
// workflow.
var activeStatuses = []string{
	enum.OrderStatusPending,
	enum.OrderStatusPreparing,
	enum.OrderStatusReady,
}

// ListCurrent returns a student's in-flight orders.
func (s *OrderService) ListCurrent(ctx context.Context, ownerID uuid.UUID) ([]OrderDetail, error) {
	return s.listByOwner(ctx, ownerID, activeStatuses)
}

// ListHistory returns a student's finished orders (picked up or cancelled).
func (s *OrderService) ListHistory(ctx context.Context, ownerID uuid.UUID) ([]OrderDetail, error) {
	return s.listByOwner(ctx, ownerID, []string{enum.OrderStatusPicked, enum.OrderStatusCancelled})
}

// ListActive returns every in-flight order for the staff dashboard,
// optionally narrowed to one active status. A filter outside the active set
// is ignored, matching the student-facing definition of "current".
func (s *OrderService) ListActive(ctx context.Context, statusFilter string) ([]OrderDetail, error) {
	statuses := activeStatuses
	for _, st := range activeStatuses {
		if statusFilter == st {
			statuses = []string{statusFilter}
			break
		}
	}
	orders, err := s.store.ListOrdersByStatuses(ctx, statuses)
	if err != nil {
		return nil, fmt.Errorf("list active orders: %w", err)
	}
	return s.attachItems(ctx, orders)
}

// ListCancelled returns every cancelled order.
func (s *OrderService) ListCancelled(ctx context.Context) ([]OrderDetail, error) {
	orders, err := s.store.ListOrdersByStatuses(ctx, []string{enum.OrderStatusCancelled})
	if err != nil {
		return nil, fmt.Errorf("list cancelled orders: %w", err)
	}
	return s.attachItems(ctx, orders)
}

// --- Internals ---

func (s *OrderService) fetch(ctx context.Context, orderID uuid.UUID) (database.Order, error) {
	ord, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	return ord, nil
}

// validateItems checks shape and menu availability for every item before
// anything is written, so a single bad item aborts the whole operation.
func (s *OrderService) validateItems(ctx context.Context, items []ItemInput) error {
	for i, item := range items {
		if item.Name == "" || item.Quantity <= 0 || item.UnitPrice.IsNegative() {
			return fmt.Errorf("items[%d]: %w", i, ErrInvalidItem)
		}
		avail, err := s.gate.CheckAvailable(ctx, item.Name)
		if err != nil {
			return err
		}
		if !avail.Exists {
			return fmt.Errorf("menu item %q: %w", item.Name, ErrItemNotFound)
		}
		if !avail.Available {
			return fmt.Errorf("menu item %q: %w", item.Name, ErrItemUnavailable)
		}
	}
	return nil
}

func insertItems(ctx context.Context, store OrderStore, orderID uuid.UUID, items []ItemInput) error {
	for _, item := range items {
		if _, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:   orderID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: DecimalToNumeric(item.UnitPrice),
		}); err != nil {
			return fmt.Errorf("create order item: %w", err)
		}
	}
	return nil
}

// hydrate re-reads the order joined with its owner plus its items, so every
// operation returns the same consistent view.
func (s *OrderService) hydrate(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error) {
	ord, err := s.store.GetOrderWithOwner(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("reload order: %w", err)
	}
	items, err := s.store.ListOrderItemsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	return &OrderDetail{Order: ord, Items: items}, nil
}

func (s *OrderService) listByOwner(ctx context.Context, ownerID uuid.UUID, statuses []string) ([]OrderDetail, error) {
	orders, err := s.store.ListOrdersByOwnerAndStatuses(ctx, database.ListOrdersByOwnerAndStatusesParams{
		OwnerID:  ownerID,
		Statuses: statuses,
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return s.attachItems(ctx, orders)
}

func (s *OrderService) attachItems(ctx context.Context, orders []database.OrderWithOwner) ([]OrderDetail, error) {
	details := make([]OrderDetail, len(orders))
	for i, ord := range orders {
		items, err := s.store.ListOrderItemsByOrder(ctx, ord.ID)
		if err != nil {
			return nil, fmt.Errorf("load order items: %w", err)
		}
		details[i] = OrderDetail{Order: ord, Items: items}
	}
	return details, nil
}

func policyOrder(ord database.Order) policy.Order {
	return policy.Order{OwnerID: ord.OwnerID, Status: ord.Status}
}

// isIdentifierConflict checks for a unique-constraint violation on the
// order identifier (pg error code 23505).
func isIdentifierConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_identifier_key"
	}
	return false
}

// --- Numeric helpers ---

func NumericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func DecimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
