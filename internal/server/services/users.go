// Package services contains server-side business logic: session credential
// issuance, verification and rotation (SessionService) and principal
// registration and login (UserService).
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonathandlab/coyn/internal/common"
	"github.com/jonathandlab/coyn/internal/dbx"
	"github.com/jonathandlab/coyn/internal/logging"
	"github.com/jonathandlab/coyn/internal/server/models"
	"github.com/jonathandlab/coyn/internal/server/repositories/repomanager"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// UserService registers principals and logs them in.
type UserService struct {
	tx       dbx.Transactor
	repos    repomanager.RepositoryManager
	sessions *SessionService
	log      logging.Logger
	cost     int
}

func NewUserService(tx dbx.Transactor, repos repomanager.RepositoryManager, sessions *SessionService, log logging.Logger) *UserService {
	return &UserService{
		tx:       tx,
		repos:    repos,
		sessions: sessions,
		log:      log.With("module", "users"),
		cost:     bcrypt.DefaultCost,
	}
}

// Register creates a principal with the given roles, or the default role
// when none are given. User and role rows are written in one transaction.
func (s *UserService) Register(ctx context.Context, email, password string, roles ...string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email", common.ErrorValidation)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", common.ErrorValidation, minPasswordLength)
	}
	if len(roles) == 0 {
		roles = []string{common.DefaultRoleName}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %w", common.ErrorValidation, err)
	}

	var user *models.User
	err = s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Users(tx)
		u, err := repo.Create(ctx, &models.User{Email: email, PasswordHash: hash})
		if err != nil {
			return err
		}
		for _, role := range roles {
			if err := repo.AssignRole(ctx, u.ID, role); err != nil {
				return err
			}
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Login checks the password and issues a session for the principal's
// current roles. Unknown email and wrong password are indistinguishable.
func (s *UserService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	repo := s.repos.Users(s.tx.Conn())
	user, err := repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.log.Warn(ctx, "login rejected", "reason", "unknown_principal")
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		s.log.Warn(ctx, "login rejected", "reason", "bad_password", "user_id", user.ID)
		return nil, common.ErrorUnauthorized
	}

	roles, err := repo.Roles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return s.sessions.IssuePair(ctx, user.ID, roles)
}

// Whoami returns the principal behind a verified identity.
func (s *UserService) Whoami(ctx context.Context, userID int64) (*models.User, error) {
	return s.repos.Users(s.tx.Conn()).GetByID(ctx, userID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
