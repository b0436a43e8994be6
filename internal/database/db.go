// Package database is the hand-written query layer over pgx.
// Queries works against either a pool or a transaction via the DBTX
// interface, so the service layer can run multi-statement operations
// atomically with the same query set.
package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New creates a Queries instance bound to db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

// --- Models ---

type User struct {
	ID             uuid.UUID
	Username       string
	Email          string
	HashedPassword string
	Role           string
	FirstName      string
	LastName       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type PasswordResetCode struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Code      string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type MenuItem struct {
	ID          uuid.UUID
	Name        string
	Description string
	Category    string
	Price       pgtype.Numeric
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Order struct {
	ID                  uuid.UUID
	Identifier          string
	OwnerID             uuid.UUID
	PickupTime          string
	SpecialInstructions string
	Status              string
	Version             int32
	CancelledAt         pgtype.Timestamptz
	CancelledBy         pgtype.Text
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Name      string
	Quantity  int32
	UnitPrice pgtype.Numeric
}

// OrderWithOwner is an order row joined with its owner's identity,
// returned by every read that feeds an API response.
type OrderWithOwner struct {
	Order
	OwnerUsername  string
	OwnerEmail     string
	OwnerFirstName string
	OwnerLastName  string
}
