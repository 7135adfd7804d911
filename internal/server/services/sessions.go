package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jonathandlab/coyn/internal/common"
	"github.com/jonathandlab/coyn/internal/dbx"
	"github.com/jonathandlab/coyn/internal/logging"
	"github.com/jonathandlab/coyn/internal/server/auth"
	"github.com/jonathandlab/coyn/internal/server/config"
	"github.com/jonathandlab/coyn/internal/server/metrics"
	"github.com/jonathandlab/coyn/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a refresh token together
// with their expiry instants.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Identity is what a verified access credential asserts.
type Identity struct {
	UserID    int64
	Roles     []string
	TokenID   string
	ExpiresAt time.Time
}

// rejection carries the internal reason a credential was refused. It always
// unwraps to common.ErrInvalidRefreshToken so callers only see one outcome.
type rejection struct {
	reason string
}

func (r *rejection) Error() string { return common.ErrInvalidRefreshToken.Error() }
func (r *rejection) Unwrap() error { return common.ErrInvalidRefreshToken }

// SessionService issues, verifies, rotates and revokes session credentials.
type SessionService struct {
	tx         dbx.Transactor
	repos      repomanager.RepositoryManager
	signer     *auth.Signer
	denylist   *auth.Denylist
	accessTTL  time.Duration
	refreshTTL time.Duration
	log        logging.Logger
	metrics    *metrics.Recorder
}

func NewSessionService(
	tx dbx.Transactor,
	repos repomanager.RepositoryManager,
	signer *auth.Signer,
	denylist *auth.Denylist,
	cfg *config.Config,
	log logging.Logger,
	rec *metrics.Recorder,
) *SessionService {
	return &SessionService{
		tx:         tx,
		repos:      repos,
		signer:     signer,
		denylist:   denylist,
		accessTTL:  cfg.AccessTokenValidityDuration,
		refreshTTL: cfg.RefreshTokenValidityDuration,
		log:        log.With("module", "sessions"),
		metrics:    rec,
	}
}

// IssuePair creates one refresh record for userID and returns a fresh access
// and refresh credential. Both expiries derive from the same instant.
func (s *SessionService) IssuePair(ctx context.Context, userID int64, roles []string) (*TokenPair, error) {
	return s.issuePair(ctx, s.tx.Conn(), userID, roles)
}

// IssueForPrincipal resolves email in the directory, reads its current roles
// and issues a pair. An unknown email yields common.ErrPrincipalNotFound.
func (s *SessionService) IssueForPrincipal(ctx context.Context, email string) (*TokenPair, error) {
	repo := s.repos.Users(s.tx.Conn())
	user, err := repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	roles, err := repo.Roles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return s.IssuePair(ctx, user.ID, roles)
}

func (s *SessionService) issuePair(ctx context.Context, db dbx.DBTX, userID int64, roles []string) (*TokenPair, error) {
	now := issuedAt(s.signer.Now())
	refreshExp := now.Add(s.refreshTTL)

	id, err := s.repos.RefreshTokens(db).Create(ctx, userID, refreshExp)
	if err != nil {
		return nil, err
	}
	return s.signPair(userID, roles, id, 0, now, refreshExp)
}

// issuedAt drops the sub-second part of now. Signed exp claims carry whole
// seconds, and the stored record must hold the same instant.
func issuedAt(now time.Time) time.Time {
	return now.Truncate(time.Second)
}

func (s *SessionService) signPair(userID int64, roles []string, recordID, gen int64, now, refreshExp time.Time) (*TokenPair, error) {
	subject := strconv.FormatInt(userID, 10)
	accessExp := now.Add(s.accessTTL)

	access, _, err := s.signer.GenerateAccessToken(subject, roles, accessExp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}
	refresh, err := s.signer.GenerateRefreshToken(subject, recordID, gen, refreshExp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}

	s.metrics.Issued(metrics.KindAccess)
	s.metrics.Issued(metrics.KindRefresh)

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess checks an access credential. Every failure is reported as
// common.ErrorUnauthorized; the concrete reason only reaches logs and metrics.
func (s *SessionService) VerifyAccess(ctx context.Context, token string) (*Identity, error) {
	id, err := s.verifyAccess(token)
	if err != nil {
		reason := common.KindOf(err).String()
		if errors.Is(err, common.ErrTokenRevoked) {
			reason = "revoked"
		}
		s.log.Warn(ctx, "access credential rejected", "reason", reason)
		s.metrics.Verification(reason)
		return nil, common.ErrorUnauthorized
	}
	s.metrics.Verification(metrics.ResultOK)
	return id, nil
}

func (s *SessionService) verifyAccess(token string) (*Identity, error) {
	claims, err := s.signer.ParseAccessToken(token)
	if err != nil {
		return nil, err
	}
	if s.denylist != nil && s.denylist.IsRevoked(claims.ID, s.signer.Now()) {
		return nil, common.ErrTokenRevoked
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: subject %q", common.ErrMalformedToken, claims.Subject)
	}
	return &Identity{
		UserID:    userID,
		Roles:     claims.Roles,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Rotate exchanges a refresh credential for a new pair bound to the same
// record. The record is locked for the duration of the exchange and moves to
// the next generation, so each refresh credential can be used at most once.
//
// A record that does not exist yields common.ErrorNotFound. Any other
// rejection yields common.ErrInvalidRefreshToken.
func (s *SessionService) Rotate(ctx context.Context, token string) (*TokenPair, error) {
	pair, err := s.rotate(ctx, token)
	switch {
	case err == nil:
		s.metrics.Rotation(metrics.ResultOK)
		return pair, nil
	case common.KindOf(err) == common.KindPersistence:
		s.log.Error(ctx, "rotation failed", "error", err)
		s.metrics.Rotation(metrics.ResultError)
		return nil, err
	}

	var rej *rejection
	if errors.As(err, &rej) {
		s.log.Warn(ctx, "refresh credential rejected", "reason", rej.reason)
		s.metrics.Rotation(metrics.ResultRejected)
		return nil, common.ErrInvalidRefreshToken
	}
	if errors.Is(err, common.ErrorNotFound) {
		s.log.Warn(ctx, "refresh credential rejected", "reason", common.KindNotFound.String())
		s.metrics.Rotation(metrics.ResultRejected)
		return nil, common.ErrorNotFound
	}
	s.log.Error(ctx, "rotation failed", "error", err)
	s.metrics.Rotation(metrics.ResultError)
	return nil, err
}

func (s *SessionService) rotate(ctx context.Context, token string) (*TokenPair, error) {
	claims, userID, err := s.parseRefresh(token)
	if err != nil {
		return nil, err
	}

	var pair *TokenPair
	err = s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		tokens := s.repos.RefreshTokens(tx)

		rt, err := tokens.FindByIDForUpdate(ctx, claims.RecordID)
		if err != nil {
			return err
		}

		now := s.signer.Now()
		switch {
		case rt.UserID != userID:
			return &rejection{reason: "subject_mismatch"}
		case rt.Revoked():
			return &rejection{reason: "revoked"}
		case rt.ExpiredAt(now):
			return &rejection{reason: "expired"}
		case rt.Generation != claims.Generation:
			return &rejection{reason: "replayed"}
		}

		users := s.repos.Users(tx)
		if _, err := users.GetByID(ctx, rt.UserID); err != nil {
			return err
		}
		roles, err := users.Roles(ctx, rt.UserID)
		if err != nil {
			return err
		}

		issued := issuedAt(now)
		refreshExp := issued.Add(s.refreshTTL)
		gen, err := tokens.UpdateExpiration(ctx, rt.ID, rt.Generation, refreshExp)
		if err != nil {
			if errors.Is(err, common.ErrVersionConflict) {
				return &rejection{reason: "conflict"}
			}
			return err
		}

		pair, err = s.signPair(rt.UserID, roles, rt.ID, gen, issued, refreshExp)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *SessionService) parseRefresh(token string) (*auth.RefreshClaims, int64, error) {
	claims, err := s.signer.ParseRefreshToken(token)
	if err != nil {
		return nil, 0, &rejection{reason: common.KindOf(err).String()}
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, 0, &rejection{reason: common.KindMalformed.String()}
	}
	return claims, userID, nil
}

// Logout revokes the record behind a refresh credential. Later rotations of
// any credential in that chain fail. Logging out twice is not an error, but a
// credential that was already rotated away can not end the session.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	claims, userID, err := s.parseRefresh(token)
	if err != nil {
		var rej *rejection
		if errors.As(err, &rej) {
			s.log.Warn(ctx, "logout rejected", "reason", rej.reason)
		}
		return common.ErrInvalidRefreshToken
	}

	return s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		tokens := s.repos.RefreshTokens(tx)
		rt, err := tokens.FindByIDForUpdate(ctx, claims.RecordID)
		if err != nil {
			return err
		}
		if rt.UserID != userID {
			s.log.Warn(ctx, "logout rejected", "reason", "subject_mismatch")
			return common.ErrInvalidRefreshToken
		}
		if rt.Generation != claims.Generation {
			s.log.Warn(ctx, "logout rejected", "reason", "replayed")
			return common.ErrInvalidRefreshToken
		}
		if err := tokens.Revoke(ctx, rt.ID, s.signer.Now()); err != nil {
			return err
		}
		s.log.Info(ctx, "session revoked", "record_id", rt.ID, "user_id", rt.UserID)
		return nil
	})
}

// RevokeAccess denylists an access credential until its own expiry.
func (s *SessionService) RevokeAccess(ctx context.Context, token string) error {
	if s.denylist == nil {
		return fmt.Errorf("%w: access revocation is disabled", common.ErrorInternal)
	}
	claims, err := s.signer.ParseAccessToken(token)
	if err != nil {
		s.log.Warn(ctx, "access revocation rejected", "reason", common.KindOf(err).String())
		return common.ErrorUnauthorized
	}
	now := s.signer.Now()
	s.denylist.Cleanup(now)
	s.denylist.Revoke(claims.ID, claims.ExpiresAt.Time)
	return nil
}
