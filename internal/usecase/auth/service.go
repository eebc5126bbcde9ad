package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"

	domain "accounts/backend/internal/domain/auth"
)

// Login is the outcome of a successful authentication.
type Login struct {
	Token   string              `json:"token"`
	Session *domain.AuthContext `json:"session"`
	User    *domain.User        `json:"user"`
}

// Service coordinates authentication workflows between domain and infrastructure.
type Service struct {
	users      domain.UserRepository
	sessions   domain.SessionStore
	tokens     TokenManager
	hasher     domain.PasswordHasher
	sessionTTL time.Duration
	logger     logrus.FieldLogger
	nowFunc    func() time.Time
	newID      func() string
}

// NewService constructs an auth service.
func NewService(users domain.UserRepository, sessions domain.SessionStore, tokens TokenManager, hasher domain.PasswordHasher, sessionTTL time.Duration, logger logrus.FieldLogger) *Service {
	return &Service{
		users:      users,
		sessions:   sessions,
		tokens:     tokens,
		hasher:     hasher,
		sessionTTL: sessionTTL,
		logger:     logger.WithField("component", "auth"),
		nowFunc:    time.Now,
		newID:      uuid.NewString,
	}
}

// Authenticate checks credentials and opens a session. An unknown email or
// a wrong password yields (nil, false, nil); errors are reserved for
// infrastructure failures.
func (s *Service) Authenticate(ctx context.Context, creds domain.Credentials) (*Login, bool, error) {
	email := FoldEmail(creds.Email)
	if email == "" || creds.Password == "" {
		return nil, false, nil
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("auth: lookup user: %w", err)
	}

	ok, err := s.hasher.Compare(user.PasswordHash, creds.Password)
	if err != nil {
		return nil, false, fmt.Errorf("auth: compare password: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	now := s.nowFunc().UTC()
	session := &domain.AuthContext{
		SessionID: s.newID(),
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	token, err := s.tokens.Generate(session.SessionID, user.ID, s.sessionTTL)
	if err != nil {
		return nil, false, fmt.Errorf("auth: sign session token: %w", err)
	}
	if err := s.sessions.Save(ctx, session, s.sessionTTL); err != nil {
		return nil, false, fmt.Errorf("auth: save session: %w", err)
	}

	s.logger.WithFields(logrus.Fields{"user_id": user.ID, "session_id": session.SessionID}).Info("session opened")
	return &Login{Token: token, Session: session, User: user.Public()}, true, nil
}

// EndSession destroys the session named by token. Unknown or malformed
// tokens are ignored.
func (s *Service) EndSession(ctx context.Context, token string) error {
	sessionID, err := s.tokens.Validate(token)
	if err != nil {
		return nil
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("auth: delete session: %w", err)
	}
	s.logger.WithField("session_id", sessionID).Info("session closed")
	return nil
}

// CurrentUser resolves the session named by token. Absence is reported as
// false without an error. A session whose account has been deleted is
// dropped and reported absent.
func (s *Service) CurrentUser(ctx context.Context, token string) (*domain.AuthContext, bool, error) {
	if token == "" {
		return nil, false, nil
	}
	sessionID, err := s.tokens.Validate(token)
	if err != nil {
		return nil, false, nil
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("auth: load session: %w", err)
	}

	if _, err := s.users.GetByID(ctx, session.UserID); err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, false, fmt.Errorf("auth: load session user: %w", err)
		}
		if err := s.sessions.Delete(ctx, sessionID); err != nil {
			s.logger.WithError(err).WithField("session_id", sessionID).Warn("drop orphaned session")
		}
		return nil, false, nil
	}
	return session, true, nil
}

// FoldEmail trims and case-folds an email so lookups are case-insensitive.
// A Caser is stateful, so one is built per call.
func FoldEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}
