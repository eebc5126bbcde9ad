package auth

import (
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials indicates a login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailExists signals a duplicate email registration.
	ErrEmailExists = errors.New("email already registered")
	// ErrUserNotFound indicates missing user.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionNotFound indicates the session is unknown or expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUnauthenticated is returned when an operation needs a session and none is attached.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden indicates the acting user may not touch the target record.
	ErrForbidden = errors.New("users may only modify their own account")
	// ErrInvalidArgument marks malformed input such as a negative page index.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidRole indicates the provided role is not supported.
	ErrInvalidRole = errors.New("invalid role")
)

// UserRole identifies the privileges assigned to a user.
type UserRole string

const (
	// RoleUser represents a standard application user.
	RoleUser UserRole = "user"
	// RoleAdmin represents an administrative user.
	RoleAdmin UserRole = "admin"
)

// User models the account entity persisted in storage.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         UserRole  `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Public returns a copy of u without the password hash.
func (u *User) Public() *User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.PasswordHash = ""
	return &clone
}

// Credentials captures raw credential input for login.
type Credentials struct {
	Email    string
	Password string
}

// RoleAnalytics is the number of accounts holding a role.
type RoleAnalytics struct {
	Role  UserRole `json:"role"`
	Count int      `json:"count"`
}

// AuthContext is the server-held record of an authenticated session.
type AuthContext struct {
	SessionID string    `json:"sessionId"`
	UserID    int64     `json:"userId"`
	Email     string    `json:"email"`
	Role      UserRole  `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
