package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, identifier, owner_id, pickup_time, special_instructions,
	status, version, cancelled_at, cancelled_by, created_at, updated_at`

const orderWithOwnerColumns = `o.id, o.identifier, o.owner_id, o.pickup_time,
	o.special_instructions, o.status, o.version, o.cancelled_at, o.cancelled_by,
	o.created_at, o.updated_at, u.username, u.email, u.first_name, u.last_name`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Identifier, &o.OwnerID, &o.PickupTime, &o.SpecialInstructions,
		&o.Status, &o.Version, &o.CancelledAt, &o.CancelledBy, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func scanOrderWithOwner(row interface{ Scan(dest ...any) error }) (OrderWithOwner, error) {
	var o OrderWithOwner
	err := row.Scan(&o.ID, &o.Identifier, &o.OwnerID, &o.PickupTime, &o.SpecialInstructions,
		&o.Status, &o.Version, &o.CancelledAt, &o.CancelledBy, &o.CreatedAt, &o.UpdatedAt,
		&o.OwnerUsername, &o.OwnerEmail, &o.OwnerFirstName, &o.OwnerLastName)
	return o, err
}

// GetLastOrderIdentifier returns the identifier of the most recently created
// order. pgx.ErrNoRows means no order exists yet. Identifiers widen past the
// pad width, so ties on created_at sort by length before lexicographic order.
func (q *Queries) GetLastOrderIdentifier(ctx context.Context) (string, error) {
	var identifier string
	err := q.db.QueryRow(ctx, `
		SELECT identifier FROM orders
		ORDER BY created_at DESC, length(identifier) DESC, identifier DESC
		LIMIT 1`).
		Scan(&identifier)
	return identifier, err
}

type CreateOrderParams struct {
	Identifier          string
	OwnerID             uuid.UUID
	PickupTime          string
	SpecialInstructions string
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO orders (identifier, owner_id, pickup_time, special_instructions)
		VALUES ($1, $2, $3, $4)
		RETURNING `+orderColumns,
		arg.Identifier, arg.OwnerID, arg.PickupTime, arg.SpecialInstructions)
	return scanOrder(row)
}

type CreateOrderItemParams struct {
	OrderID   uuid.UUID
	Name      string
	Quantity  int32
	UnitPrice pgtype.Numeric
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO order_items (order_id, name, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id, order_id, name, quantity, unit_price`,
		arg.OrderID, arg.Name, arg.Quantity, arg.UnitPrice)
	var i OrderItem
	err := row.Scan(&i.ID, &i.OrderID, &i.Name, &i.Quantity, &i.UnitPrice)
	return i, err
}

func (q *Queries) DeleteOrderItems(ctx context.Context, orderID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID)
	return err
}

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (q *Queries) GetOrderWithOwner(ctx context.Context, id uuid.UUID) (OrderWithOwner, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+orderWithOwnerColumns+`
		FROM orders o JOIN users u ON u.id = o.owner_id
		WHERE o.id = $1`, id)
	return scanOrderWithOwner(row)
}

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, order_id, name, quantity, unit_price
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var i OrderItem
		if err := rows.Scan(&i.ID, &i.OrderID, &i.Name, &i.Quantity, &i.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type ListOrdersByOwnerAndStatusesParams struct {
	OwnerID  uuid.UUID
	Statuses []string
}

func (q *Queries) ListOrdersByOwnerAndStatuses(ctx context.Context, arg ListOrdersByOwnerAndStatusesParams) ([]OrderWithOwner, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderWithOwnerColumns+`
		FROM orders o JOIN users u ON u.id = o.owner_id
		WHERE o.owner_id = $1 AND o.status = ANY($2)
		ORDER BY o.created_at DESC`, arg.OwnerID, arg.Statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []OrderWithOwner
	for rows.Next() {
		o, err := scanOrderWithOwner(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (q *Queries) ListOrdersByStatuses(ctx context.Context, statuses []string) ([]OrderWithOwner, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderWithOwnerColumns+`
		FROM orders o JOIN users u ON u.id = o.owner_id
		WHERE o.status = ANY($1)
		ORDER BY o.created_at DESC`, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []OrderWithOwner
	for rows.Next() {
		o, err := scanOrderWithOwner(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type UpdateOrderDetailsParams struct {
	ID                  uuid.UUID
	Version             int32
	PickupTime          string
	SpecialInstructions string
}

// UpdateOrderDetails rewrites the mutable fields of a pending order. The
// version read by the caller must still match; a stale version yields
// pgx.ErrNoRows so the caller can surface a concurrency conflict.
func (q *Queries) UpdateOrderDetails(ctx context.Context, arg UpdateOrderDetailsParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders SET
			pickup_time = $3,
			special_instructions = $4,
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING `+orderColumns,
		arg.ID, arg.Version, arg.PickupTime, arg.SpecialInstructions)
	return scanOrder(row)
}

type UpdateOrderStatusParams struct {
	ID      uuid.UUID
	Version int32
	Status  string
}

// UpdateOrderStatus advances the status with the same version check as
// UpdateOrderDetails.
func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders SET
			status = $3,
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING `+orderColumns,
		arg.ID, arg.Version, arg.Status)
	return scanOrder(row)
}

type CancelOrderParams struct {
	ID          uuid.UUID
	Version     int32
	CancelledBy string
}

// CancelOrder marks the order cancelled and stamps who did it. Version
// checked like every other write.
func (q *Queries) CancelOrder(ctx context.Context, arg CancelOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders SET
			status = 'cancelled',
			cancelled_at = now(),
			cancelled_by = $3,
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING `+orderColumns,
		arg.ID, arg.Version, arg.CancelledBy)
	return scanOrder(row)
}
