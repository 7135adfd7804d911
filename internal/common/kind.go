package common

import "errors"

// Kind classifies an error independently of any transport. The boundary
// layer maps kinds to its own status codes.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindMalformed
	KindInvalidSignature
	KindExpired
	KindNotFound
	KindPersistence
	KindUnauthorized
	KindConflict
	KindValidation
)

var kindNames = map[Kind]string{
	KindUnknown:          "unknown",
	KindMalformed:        "malformed",
	KindInvalidSignature: "invalid_signature",
	KindExpired:          "expired",
	KindNotFound:         "not_found",
	KindPersistence:      "persistence",
	KindUnauthorized:     "unauthorized",
	KindConflict:         "conflict",
	KindValidation:       "validation",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// KindOf reports the kind of err. Persistence failures win over everything
// else so that a caller can always tell a retryable storage outage apart
// from a rejected credential.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrorUnauthorized), errors.Is(err, ErrTokenRevoked):
		return KindUnauthorized
	case errors.Is(err, ErrInvalidSignature):
		return KindInvalidSignature
	case errors.Is(err, ErrMalformedToken):
		return KindMalformed
	case errors.Is(err, ErrTokenExpired):
		return KindExpired
	case errors.Is(err, ErrorNotFound):
		return KindNotFound
	case errors.Is(err, ErrorAlreadyExists), errors.Is(err, ErrVersionConflict):
		return KindConflict
	case errors.Is(err, ErrorValidation):
		return KindValidation
	default:
		return KindUnknown
	}
}

// IsCredentialRejection reports whether err is one of the kinds that the
// verifier collapses into a single unauthorized outcome.
func IsCredentialRejection(err error) bool {
	switch KindOf(err) {
	case KindMalformed, KindInvalidSignature, KindExpired, KindUnauthorized:
		return true
	}
	return false
}
