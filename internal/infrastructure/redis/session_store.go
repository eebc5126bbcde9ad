package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	domain "accounts/backend/internal/domain/auth"
)

const keyPrefix = "session:"

// SessionStore keeps AuthContext records in Redis with a TTL.
type SessionStore struct {
	client goredis.UniversalClient
}

var _ domain.SessionStore = (*SessionStore)(nil)

// NewSessionStore constructs a store on top of an existing client.
func NewSessionStore(client goredis.UniversalClient) *SessionStore {
	return &SessionStore{client: client}
}

// Save writes the session, replacing any previous record with the same id.
func (s *SessionStore) Save(ctx context.Context, session *domain.AuthContext, ttl time.Duration) error {
	if session == nil || session.SessionID == "" {
		return fmt.Errorf("%w: session id is required", domain.ErrInvalidArgument)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, keyPrefix+session.SessionID, data, ttl).Err()
}

// Get loads a session. Missing or expired records yield ErrSessionNotFound.
func (s *SessionStore) Get(ctx context.Context, id string) (*domain.AuthContext, error) {
	payload, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}

	var session domain.AuthContext
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("redis: decode session %s: %w", id, err)
	}
	return &session, nil
}

// Delete removes a session; deleting an unknown id is not an error.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, keyPrefix+id).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		return err
	}
	return nil
}
