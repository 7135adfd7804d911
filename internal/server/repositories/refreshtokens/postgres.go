package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonathandlab/coyn/internal/common"
	"github.com/jonathandlab/coyn/internal/dbx"
	"github.com/jonathandlab/coyn/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx). Records are never deleted.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a record for userID at generation 0 and returns its id.
func (r *PostgresRepository) Create(ctx context.Context, userID int64, expiresAt time.Time) (int64, error) {
	query := `
		INSERT INTO refresh_tokens (user_id, expires_at)
		VALUES ($1, $2)
		RETURNING id
	`
	var id int64
	if err := r.db.QueryRowContext(ctx, query, userID, expiresAt).Scan(&id); err != nil {
		return 0, fmt.Errorf("%w: insert refresh token: %w", common.ErrPersistence, err)
	}
	return id, nil
}

// FindByID returns the record or common.ErrorNotFound.
func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, generation, expires_at, created_at, revoked_at
		FROM refresh_tokens
		WHERE id = $1
	`
	return scan(r.db.QueryRowContext(ctx, query, id))
}

// FindByIDForUpdate is FindByID holding a row lock until the surrounding
// transaction ends. Outside a transaction the lock is released immediately.
func (r *PostgresRepository) FindByIDForUpdate(ctx context.Context, id int64) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, generation, expires_at, created_at, revoked_at
		FROM refresh_tokens
		WHERE id = $1
		FOR UPDATE
	`
	return scan(r.db.QueryRowContext(ctx, query, id))
}

func scan(row *sql.Row) (*models.RefreshToken, error) {
	var (
		rt      models.RefreshToken
		revoked sql.NullTime
	)
	err := row.Scan(&rt.ID, &rt.UserID, &rt.Generation, &rt.ExpiresAt, &rt.CreatedAt, &revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("%w: select refresh token: %w", common.ErrPersistence, err)
	}
	if revoked.Valid {
		at := revoked.Time
		rt.RevokedAt = &at
	}
	return &rt, nil
}

// UpdateExpiration sets a new expiry if the record is still at
// expectedGeneration and returns the incremented generation. A missing record
// yields common.ErrorNotFound; a record that moved on yields
// common.ErrVersionConflict.
func (r *PostgresRepository) UpdateExpiration(ctx context.Context, id, expectedGeneration int64, expiresAt time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET expires_at = $1, generation = generation + 1
		WHERE id = $2 AND generation = $3
		RETURNING generation
	`
	var gen int64
	err := r.db.QueryRowContext(ctx, query, expiresAt, id, expectedGeneration).Scan(&gen)
	if err == nil {
		return gen, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: update refresh token: %w", common.ErrPersistence, err)
	}

	exists, err := r.exists(ctx, id)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, common.ErrorNotFound
	}
	return 0, common.ErrVersionConflict
}

// Revoke marks the record revoked at the given time. Revoking twice keeps the
// first timestamp.
func (r *PostgresRepository) Revoke(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = COALESCE(revoked_at, $1)
		WHERE id = $2
	`
	res, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("%w: revoke refresh token: %w", common.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: revoke refresh token: %w", common.ErrPersistence, err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) exists(ctx context.Context, id int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE id = $1)`
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("%w: check refresh token: %w", common.ErrPersistence, err)
	}
	return ok, nil
}
