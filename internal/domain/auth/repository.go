package auth

import (
	"context"
	"time"
)

// UserRepository defines persistence operations for accounts.
type UserRepository interface {
	Create(ctx context.Context, user *User) (int64, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// GetByEmailForUpdate is GetByEmail holding a row lock until the
	// surrounding transaction ends.
	GetByEmailForUpdate(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	List(ctx context.Context, offset, limit int) ([]*User, error)
	Count(ctx context.Context) (int, error)
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id int64) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string, updatedAt time.Time) error
	CountByRole(ctx context.Context) ([]RoleAnalytics, error)
}

// SessionStore keeps authenticated sessions on the server side.
type SessionStore interface {
	Save(ctx context.Context, session *AuthContext, ttl time.Duration) error
	Get(ctx context.Context, id string) (*AuthContext, error)
	Delete(ctx context.Context, id string) error
}

// PasswordHasher hashes passwords and verifies candidates against stored hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) (bool, error)
}
