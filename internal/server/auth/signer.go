// Package auth contains the credential signing primitive (HS256 JWT), the
// claim types used for access and refresh credentials, and an in-memory
// denylist for revoked access credentials.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonathandlab/coyn/internal/common"
)

var errEmptySecret = errors.New("signing secret is empty")

// Signer signs and verifies credentials with a single HMAC secret.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner builds a Signer. now defaults to time.Now when nil.
func NewSigner(secret []byte, now func() time.Time) (*Signer, error) {
	if len(secret) == 0 {
		return nil, errEmptySecret
	}
	if now == nil {
		now = time.Now
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return &Signer{secret: s, now: now}, nil
}

// Now returns the current time as seen by the signer's clock.
func (s *Signer) Now() time.Time {
	return s.now()
}

// Sign serializes and signs arbitrary claims.
func (s *Signer) Sign(claims jwt.Claims) (string, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// GenerateAccessToken issues an access credential for subject and returns it
// together with its unique id.
func (s *Signer) GenerateAccessToken(subject string, roles []string, expiresAt time.Time) (string, string, error) {
	jti := uuid.NewString()
	if roles == nil {
		roles = []string{}
	}
	token, err := s.Sign(AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Type:  TypeAccess,
		Roles: roles,
	})
	if err != nil {
		return "", "", err
	}
	return token, jti, nil
}

// ParseAccessToken verifies signature and expiry of an access credential.
// A refresh credential is reported as malformed.
func (s *Signer) ParseAccessToken(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, mapParseError(err)
	}
	if claims.Type != TypeAccess || claims.Subject == "" {
		return nil, common.ErrMalformedToken
	}
	return claims, nil
}

// GenerateRefreshToken issues a refresh credential bound to a refresh record
// at the given generation.
func (s *Signer) GenerateRefreshToken(subject string, recordID, generation int64, expiresAt time.Time) (string, error) {
	return s.Sign(RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Type:       TypeRefresh,
		RecordID:   recordID,
		Generation: generation,
	})
}

// ParseRefreshToken verifies only the signature of a refresh credential.
// Expiry is decided by the persisted record, not by the exp claim.
func (s *Signer) ParseRefreshToken(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	_, err := jwt.ParseWithClaims(token, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, mapParseError(err)
	}
	if claims.Type != TypeRefresh || claims.Subject == "" || claims.RecordID <= 0 {
		return nil, common.ErrMalformedToken
	}
	return claims, nil
}

func (s *Signer) keyFunc(*jwt.Token) (any, error) {
	return s.secret, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", common.ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", common.ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", common.ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %w", common.ErrMalformedToken, err)
	}
}
