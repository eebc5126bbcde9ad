package recovery

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrInvalidToken covers unknown, consumed, revoked and expired tokens alike.
	ErrInvalidToken = errors.New("token invalid or expired")
	// ErrUnknownPurpose indicates the caller asked for a purpose this service does not issue.
	ErrUnknownPurpose = errors.New("unknown token purpose")
)

// Purpose scopes what a recovery token may authorize.
type Purpose string

const (
	// PurposeResetPassword authorizes a password change without a session.
	PurposeResetPassword Purpose = "reset-password"
)

// ParsePurpose validates raw input, defaulting to PurposeResetPassword when empty.
func ParsePurpose(raw string) (Purpose, error) {
	switch Purpose(raw) {
	case "", PurposeResetPassword:
		return PurposeResetPassword, nil
	default:
		return "", ErrUnknownPurpose
	}
}

// Token is a single-use capability issued to one account. Email records the
// address it was mailed to; redemption is bound to UserID.
// Only the hash of the raw value is persisted.
type Token struct {
	ID         int64
	UserID     int64
	Email      string
	TokenHash  string
	Purpose    Purpose
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	RevokedAt  *time.Time
}

// HashValue derives the lookup key stored for a raw token value.
func HashValue(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
