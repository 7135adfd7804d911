package linking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonathandlab/coyn/internal/common"
	"github.com/jonathandlab/coyn/internal/logging"
)

// Service wraps an Aggregator with validation and logging.
type Service struct {
	agg Aggregator
	log logging.Logger
}

func NewService(agg Aggregator, log logging.Logger) *Service {
	return &Service{agg: agg, log: log.With("module", "linking")}
}

// CreateLinkToken starts a linking flow on behalf of userID.
func (s *Service) CreateLinkToken(ctx context.Context, userID int64) (*LinkToken, error) {
	lt, err := s.agg.CreateLinkToken(ctx, strconv.FormatInt(userID, 10))
	if err != nil {
		s.log.Error(ctx, "create link token failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}
	return lt, nil
}

// ExchangePublicToken trades the UI's public token for an item access token.
func (s *Service) ExchangePublicToken(ctx context.Context, userID int64, publicToken string) (*Item, error) {
	publicToken = strings.TrimSpace(publicToken)
	if publicToken == "" {
		return nil, fmt.Errorf("%w: public token is required", common.ErrorValidation)
	}
	item, err := s.agg.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		s.log.Error(ctx, "public token exchange failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}
	s.log.Info(ctx, "item linked", "user_id", userID, "item_id", item.ItemID)
	return item, nil
}

// InvalidateAccessTokens invalidates every access token in a packed
// "id=token,id=token" list on behalf of userID. All tokens are attempted;
// failures are joined. A list without a single usable pair is invalid.
func (s *Service) InvalidateAccessTokens(ctx context.Context, userID int64, packed string) error {
	tokens := ParseAccessTokens(packed)
	if len(tokens) == 0 {
		return fmt.Errorf("%w: no item access tokens given", common.ErrorValidation)
	}

	var failed []error
	for id, token := range tokens {
		if _, err := s.agg.InvalidateAccessToken(ctx, token); err != nil {
			s.log.Error(ctx, "access token invalidation failed", "user_id", userID, "item", id, "error", err)
			failed = append(failed, fmt.Errorf("item %s: %w", id, err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %w", common.ErrorInternal, errors.Join(failed...))
	}
	s.log.Info(ctx, "items unlinked", "user_id", userID, "count", len(tokens))
	return nil
}
