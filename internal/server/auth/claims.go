package auth

import "github.com/golang-jwt/jwt/v5"

// Values of the typ claim. A credential is only accepted by the parser for
// its own type.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// AccessClaims are carried by short-lived access credentials. The roles are a
// snapshot taken at issuance time.
type AccessClaims struct {
	jwt.RegisteredClaims
	Type  string   `json:"typ"`
	Roles []string `json:"roles"`
}

// RefreshClaims are carried by refresh credentials. RecordID points at the
// persisted refresh record and Generation pins the credential to one state
// of that record, so a rotated credential can not be replayed.
type RefreshClaims struct {
	jwt.RegisteredClaims
	Type       string `json:"typ"`
	RecordID   int64  `json:"id"`
	Generation int64  `json:"gen"`
}
