package database

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const userColumns = `id, username, email, hashed_password, role, first_name, last_name, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.HashedPassword, &u.Role,
		&u.FirstName, &u.LastName, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

type CreateUserParams struct {
	Username       string
	Email          string
	HashedPassword string
	Role           string
	FirstName      string
	LastName       string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO users (username, email, hashed_password, role, first_name, last_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		arg.Username, arg.Email, arg.HashedPassword, arg.Role, arg.FirstName, arg.LastName)
	return scanUser(row)
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

type UpdateUserPasswordParams struct {
	ID             uuid.UUID
	HashedPassword string
}

func (q *Queries) UpdateUserPassword(ctx context.Context, arg UpdateUserPasswordParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE users SET hashed_password = $2, updated_at = now() WHERE id = $1`,
		arg.ID, arg.HashedPassword)
	return err
}

// --- Password reset codes ---

type CreatePasswordResetCodeParams struct {
	UserID    uuid.UUID
	Code      string
	ExpiresAt time.Time
}

func (q *Queries) CreatePasswordResetCode(ctx context.Context, arg CreatePasswordResetCodeParams) (PasswordResetCode, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO password_reset_codes (user_id, code, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, code, expires_at, created_at`,
		arg.UserID, arg.Code, arg.ExpiresAt)
	var c PasswordResetCode
	err := row.Scan(&c.ID, &c.UserID, &c.Code, &c.ExpiresAt, &c.CreatedAt)
	return c, err
}

type GetValidPasswordResetCodeParams struct {
	UserID uuid.UUID
	Code   string
}

// GetValidPasswordResetCode returns the code row only while it has not expired.
func (q *Queries) GetValidPasswordResetCode(ctx context.Context, arg GetValidPasswordResetCodeParams) (PasswordResetCode, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, user_id, code, expires_at, created_at
		FROM password_reset_codes
		WHERE user_id = $1 AND code = $2 AND expires_at > now()`,
		arg.UserID, arg.Code)
	var c PasswordResetCode
	err := row.Scan(&c.ID, &c.UserID, &c.Code, &c.ExpiresAt, &c.CreatedAt)
	return c, err
}

func (q *Queries) DeletePasswordResetCodesForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM password_reset_codes WHERE user_id = $1`, userID)
	return err
}
