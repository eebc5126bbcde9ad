package recovery

import (
	"context"
	"time"
)

// Repository defines persistence behaviours for recovery tokens.
type Repository interface {
	Create(ctx context.Context, token *Token) error
	// RevokeOutstanding retires every unconsumed token the account holds for purpose.
	RevokeOutstanding(ctx context.Context, userID int64, purpose Purpose, at time.Time) (int64, error)
	// Consume marks the matching actionable token consumed and returns it.
	// Concurrent calls for the same token must see exactly one success;
	// every other caller gets ErrInvalidToken.
	Consume(ctx context.Context, tokenHash string, purpose Purpose, at time.Time) (*Token, error)
}
