package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/campus-eats/api/internal/database"
	"github.com/jackc/pgx/v5"
)

// ItemAvailability is the answer to "can this menu item be ordered right now".
type ItemAvailability struct {
	Exists    bool
	Available bool
}

// MenuGate checks whether a menu item exists and is currently orderable.
// The order engine consults it for every item before committing anything.
type MenuGate interface {
	CheckAvailable(ctx context.Context, name string) (ItemAvailability, error)
}

// MenuLookup defines the database method the gate needs.
// Satisfied by *database.Queries.
type MenuLookup interface {
	GetMenuItemByName(ctx context.Context, name string) (database.MenuItem, error)
}

// StoreMenuGate answers availability checks from the menu table.
type StoreMenuGate struct {
	store MenuLookup
}

func NewStoreMenuGate(store MenuLookup) *StoreMenuGate {
	return &StoreMenuGate{store: store}
}

func (g *StoreMenuGate) CheckAvailable(ctx context.Context, name string) (ItemAvailability, error) {
	item, err := g.store.GetMenuItemByName(ctx, name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ItemAvailability{}, nil
		}
		return ItemAvailability{}, fmt.Errorf("lookup menu item %q: %w", name, err)
	}
	return ItemAvailability{Exists: true, Available: item.IsAvailable}, nil
}
