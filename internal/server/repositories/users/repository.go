// Package users declares the principal directory contract and its
// PostgreSQL implementation.
package users

import (
	"context"

	"github.com/jonathandlab/coyn/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	Roles(ctx context.Context, userID int64) ([]string, error)
	AssignRole(ctx context.Context, userID int64, role string) error
}
