package linking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonathandlab/coyn/internal/netx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var errEmptyResponse = errors.New("empty response")

// PlaidConfig holds the credentials and defaults for PlaidClient.
type PlaidConfig struct {
	BaseURL    string
	ClientID   string
	Secret     string
	ClientName string
}

// PlaidClient is an Aggregator speaking Plaid's JSON API.
type PlaidClient struct {
	cfg  PlaidConfig
	http *http.Client
}

// NewPlaidClient builds a client. A nil httpClient gets a traced client with
// a 10s timeout.
func NewPlaidClient(cfg PlaidConfig, httpClient *http.Client) *PlaidClient {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &PlaidClient{cfg: cfg, http: httpClient}
}

type linkTokenUser struct {
	ClientUserID string `json:"client_user_id"`
}

type depositoryFilter struct {
	AccountSubtypes []string `json:"account_subtypes"`
}

type accountFilters struct {
	Depository depositoryFilter `json:"depository"`
}

type linkTokenCreateRequest struct {
	ClientID       string         `json:"client_id"`
	Secret         string         `json:"secret"`
	ClientName     string         `json:"client_name"`
	User           linkTokenUser  `json:"user"`
	Products       []string       `json:"products"`
	CountryCodes   []string       `json:"country_codes"`
	Language       string         `json:"language"`
	AccountFilters accountFilters `json:"account_filters"`
}

func (c *PlaidClient) CreateLinkToken(ctx context.Context, clientUserID string) (*LinkToken, error) {
	req := linkTokenCreateRequest{
		ClientID:     c.cfg.ClientID,
		Secret:       c.cfg.Secret,
		ClientName:   c.cfg.ClientName,
		User:         linkTokenUser{ClientUserID: clientUserID},
		Products:     []string{"auth"},
		CountryCodes: []string{"US"},
		Language:     "en",
		AccountFilters: accountFilters{
			Depository: depositoryFilter{AccountSubtypes: []string{"checking"}},
		},
	}
	var out LinkToken
	if err := netx.PostJSON(ctx, c.http, c.cfg.BaseURL+"/link/token/create", req, &out); err != nil {
		return nil, fmt.Errorf("link token create: %w", err)
	}
	if out.Token == "" {
		return nil, fmt.Errorf("link token create: %w", errEmptyResponse)
	}
	return &out, nil
}

type publicTokenExchangeRequest struct {
	ClientID    string `json:"client_id"`
	Secret      string `json:"secret"`
	PublicToken string `json:"public_token"`
}

func (c *PlaidClient) ExchangePublicToken(ctx context.Context, publicToken string) (*Item, error) {
	req := publicTokenExchangeRequest{
		ClientID:    c.cfg.ClientID,
		Secret:      c.cfg.Secret,
		PublicToken: publicToken,
	}
	var out Item
	if err := netx.PostJSON(ctx, c.http, c.cfg.BaseURL+"/item/public_token/exchange", req, &out); err != nil {
		return nil, fmt.Errorf("public token exchange: %w", err)
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("public token exchange: %w", errEmptyResponse)
	}
	return &out, nil
}

type accessTokenInvalidateRequest struct {
	ClientID    string `json:"client_id"`
	Secret      string `json:"secret"`
	AccessToken string `json:"access_token"`
}

type accessTokenInvalidateResponse struct {
	NewAccessToken string `json:"new_access_token"`
	RequestID      string `json:"request_id"`
}

// InvalidateAccessToken rotates the item's access token at the provider and
// returns the replacement.
func (c *PlaidClient) InvalidateAccessToken(ctx context.Context, accessToken string) (string, error) {
	req := accessTokenInvalidateRequest{
		ClientID:    c.cfg.ClientID,
		Secret:      c.cfg.Secret,
		AccessToken: accessToken,
	}
	var out accessTokenInvalidateResponse
	if err := netx.PostJSON(ctx, c.http, c.cfg.BaseURL+"/item/access_token/invalidate", req, &out); err != nil {
		return "", fmt.Errorf("access token invalidate: %w", err)
	}
	return out.NewAccessToken, nil
}
