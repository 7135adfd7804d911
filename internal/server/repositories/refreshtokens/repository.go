// Package refreshtokens declares the refresh credential store contract and
// its PostgreSQL implementation.
package refreshtokens

import (
	"context"
	"time"

	"github.com/jonathandlab/coyn/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, userID int64, expiresAt time.Time) (int64, error)
	FindByID(ctx context.Context, id int64) (*models.RefreshToken, error)
	FindByIDForUpdate(ctx context.Context, id int64) (*models.RefreshToken, error)
	UpdateExpiration(ctx context.Context, id, expectedGeneration int64, expiresAt time.Time) (int64, error)
	Revoke(ctx context.Context, id int64, at time.Time) error
}
