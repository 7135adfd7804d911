package common

const (
	// AccessTokenHeaderName is the gRPC metadata key that may carry the
	// access token on inbound requests.
	AccessTokenHeaderName = "access_token"

	// AuthorizationHeaderName carries "Bearer <token>".
	AuthorizationHeaderName = "authorization"

	// DefaultRoleName is assigned to newly registered principals that
	// were not given any explicit role.
	DefaultRoleName = "USER"
)
