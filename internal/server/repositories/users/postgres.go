package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jonathandlab/coyn/internal/common"
	"github.com/jonathandlab/coyn/internal/dbx"
	"github.com/jonathandlab/coyn/internal/server/models"
)

const uniqueViolation = "23505"

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts user and fills in its ID and CreatedAt.
// A duplicate email yields common.ErrorAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, user.Email, user.PasswordHash).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("user %q: %w", user.Email, common.ErrorAlreadyExists)
		}
		return nil, fmt.Errorf("%w: insert user: %w", common.ErrPersistence, err)
	}
	return user, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, created_at
		FROM users
		WHERE email = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, created_at
		FROM users
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("%w: select user: %w", common.ErrPersistence, err)
	}
	return user, nil
}

// Roles returns the role names held by userID, ordered by name. A user with
// no roles yields an empty, non-nil slice.
func (r *PostgresRepository) Roles(ctx context.Context, userID int64) ([]string, error) {
	query := `
		SELECT r.name
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: select roles: %w", common.ErrPersistence, err)
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: scan role: %w", common.ErrPersistence, err)
		}
		roles = append(roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate roles: %w", common.ErrPersistence, err)
	}
	return roles, nil
}

// AssignRole grants role to userID, creating the role when it does not exist.
// Assigning a role twice is a no-op.
func (r *PostgresRepository) AssignRole(ctx context.Context, userID int64, role string) error {
	query := `
		WITH role AS (
			INSERT INTO roles (name) VALUES ($2)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		)
		INSERT INTO user_roles (user_id, role_id)
		SELECT $1, id FROM role
		ON CONFLICT DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, userID, role); err != nil {
		return fmt.Errorf("%w: assign role: %w", common.ErrPersistence, err)
	}
	return nil
}
