package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"accounts/backend/internal/domain/recovery"
)

// TokenRepository persists hashed recovery tokens in PostgreSQL.
type TokenRepository struct {
	db DBTX
}

var _ recovery.Repository = (*TokenRepository)(nil)

// NewTokenRepository constructs a repository.
func NewTokenRepository(db DBTX) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create inserts a freshly issued token.
func (r *TokenRepository) Create(ctx context.Context, token *recovery.Token) error {
	const query = `
INSERT INTO recovery_tokens (user_id, email, token_hash, purpose, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id
`
	return r.db.QueryRowContext(ctx, query,
		token.UserID,
		token.Email,
		token.TokenHash,
		token.Purpose,
		token.CreatedAt,
		token.ExpiresAt,
	).Scan(&token.ID)
}

// RevokeOutstanding retires every open token of the account for purpose.
// Expired tokens are included so the one-open-token index stays satisfied.
func (r *TokenRepository) RevokeOutstanding(ctx context.Context, userID int64, purpose recovery.Purpose, at time.Time) (int64, error) {
	const query = `
UPDATE recovery_tokens
SET revoked_at = $3
WHERE user_id = $1 AND purpose = $2
  AND consumed_at IS NULL AND revoked_at IS NULL
`
	res, err := r.db.ExecContext(ctx, query, userID, purpose, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Consume flips consumed_at on the matching actionable token. The
// conditional update makes concurrent consumers race on the row lock;
// only the first sees a returned row.
func (r *TokenRepository) Consume(ctx context.Context, tokenHash string, purpose recovery.Purpose, at time.Time) (*recovery.Token, error) {
	const query = `
UPDATE recovery_tokens
SET consumed_at = $3
WHERE token_hash = $1 AND purpose = $2
  AND consumed_at IS NULL AND revoked_at IS NULL AND expires_at > $3
RETURNING id, user_id, email, token_hash, purpose, created_at, expires_at, consumed_at, revoked_at
`
	var (
		t        recovery.Token
		consumed sql.NullTime
		revoked  sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, tokenHash, purpose, at).Scan(
		&t.ID,
		&t.UserID,
		&t.Email,
		&t.TokenHash,
		&t.Purpose,
		&t.CreatedAt,
		&t.ExpiresAt,
		&consumed,
		&revoked,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, recovery.ErrInvalidToken
		}
		return nil, err
	}
	if consumed.Valid {
		t.ConsumedAt = &consumed.Time
	}
	if revoked.Valid {
		t.RevokedAt = &revoked.Time
	}
	return &t, nil
}
