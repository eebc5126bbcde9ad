package auth

import (
	"errors"

	"accounts/backend/internal/domain/recovery"
)

// Kind classifies a domain failure so callers can branch without string matching.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnauthorized
	KindForbidden
	KindInvalidToken
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindInvalidToken:
		return "invalid_token"
	default:
		return "internal"
	}
}

// KindOf maps an error returned by the services to its Kind.
// Anything unrecognised, including context deadlines, is KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrInvalidRole),
		errors.Is(err, recovery.ErrUnknownPurpose):
		return KindValidation
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrSessionNotFound):
		return KindNotFound
	case errors.Is(err, ErrEmailExists):
		return KindConflict
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUnauthenticated):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, recovery.ErrInvalidToken):
		return KindInvalidToken
	default:
		return KindInternal
	}
}
