// Package linking talks to the bank-aggregation provider: it creates link
// tokens for the client UI, exchanges public tokens for item access tokens
// and invalidates those access tokens. It is unrelated to session credentials.
package linking

import (
	"context"
	"time"
)

// LinkToken is a short-lived handle the client UI uses to start the
// provider's account-linking flow.
type LinkToken struct {
	Token      string    `json:"link_token"`
	Expiration time.Time `json:"expiration"`
	RequestID  string    `json:"request_id"`
}

// Item is the long-lived access handle for one linked institution.
type Item struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
	RequestID   string `json:"request_id"`
}

// Aggregator is the provider API surface the service needs.
type Aggregator interface {
	CreateLinkToken(ctx context.Context, clientUserID string) (*LinkToken, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (*Item, error)
	InvalidateAccessToken(ctx context.Context, accessToken string) (string, error)
}
