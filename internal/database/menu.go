package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const menuItemColumns = `id, name, description, category, price, is_available, created_at, updated_at`

func scanMenuItem(row interface{ Scan(dest ...any) error }) (MenuItem, error) {
	var m MenuItem
	err := row.Scan(&m.ID, &m.Name, &m.Description, &m.Category, &m.Price,
		&m.IsAvailable, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

// ListMenuItems returns all items, or only available ones when onlyAvailable
// is set (the anonymous/student view).
func (q *Queries) ListMenuItems(ctx context.Context, onlyAvailable bool) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+menuItemColumns+`
		FROM menu_items
		WHERE NOT $1::boolean OR is_available
		ORDER BY created_at DESC`, onlyAvailable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []MenuItem
	for rows.Next() {
		m, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (q *Queries) GetMenuItem(ctx context.Context, id uuid.UUID) (MenuItem, error) {
	row := q.db.QueryRow(ctx, `SELECT `+menuItemColumns+` FROM menu_items WHERE id = $1`, id)
	return scanMenuItem(row)
}

func (q *Queries) GetMenuItemByName(ctx context.Context, name string) (MenuItem, error) {
	row := q.db.QueryRow(ctx, `SELECT `+menuItemColumns+` FROM menu_items WHERE name = $1`, name)
	return scanMenuItem(row)
}

type CreateMenuItemParams struct {
	Name        string
	Description string
	Category    string
	Price       pgtype.Numeric
}

func (q *Queries) CreateMenuItem(ctx context.Context, arg CreateMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO menu_items (name, description, category, price)
		VALUES ($1, $2, $3, $4)
		RETURNING `+menuItemColumns,
		arg.Name, arg.Description, arg.Category, arg.Price)
	return scanMenuItem(row)
}

type UpdateMenuItemParams struct {
	ID          uuid.UUID
	Name        pgtype.Text
	Description pgtype.Text
	Category    pgtype.Text
	Price       pgtype.Numeric
}

// UpdateMenuItem patches the provided fields, leaving NULL params unchanged.
func (q *Queries) UpdateMenuItem(ctx context.Context, arg UpdateMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE menu_items SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			category = COALESCE($4, category),
			price = COALESCE($5, price),
			updated_at = now()
		WHERE id = $1
		RETURNING `+menuItemColumns,
		arg.ID, arg.Name, arg.Description, arg.Category, arg.Price)
	return scanMenuItem(row)
}

func (q *Queries) ToggleMenuItemAvailability(ctx context.Context, id uuid.UUID) (MenuItem, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE menu_items SET is_available = NOT is_available, updated_at = now()
		WHERE id = $1
		RETURNING `+menuItemColumns, id)
	return scanMenuItem(row)
}

func (q *Queries) DeleteMenuItem(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM menu_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
