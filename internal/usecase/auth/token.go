package auth

import "time"

// TokenManager abstracts the signed handle that names a server-side session.
type TokenManager interface {
	Generate(sessionID string, userID int64, ttl time.Duration) (string, error)
	Validate(token string) (sessionID string, err error)
}
