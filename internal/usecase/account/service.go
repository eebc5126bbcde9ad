package account

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	domain "accounts/backend/internal/domain/auth"
	"accounts/backend/internal/domain/paging"
	"accounts/backend/internal/domain/recovery"
	authuc "accounts/backend/internal/usecase/auth"
)

const (
	// DefaultTokenTTL bounds how long an issued reset token stays valid.
	DefaultTokenTTL = time.Hour
	// DefaultMaxPageSize caps ListPage requests.
	DefaultMaxPageSize = 100

	tokenBytes = 32
)

// Transactor runs fn with repositories bound to one database transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, users domain.UserRepository, tokens recovery.Repository) error) error
}

// Notifier delivers the reset token to the account owner.
type Notifier interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// Options tunes the recovery protocol and paging.
type Options struct {
	TokenTTL            time.Duration
	ConcealUnknownEmail bool
	MaxPageSize         int
}

// RegisterInput defines the payload to create a new account.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Role     string
}

// UpdateInput carries optional profile changes; nil fields are left untouched.
type UpdateInput struct {
	Email *string
	Name  *string
}

// ChangePasswordInput redeems a recovery token for a new password.
type ChangePasswordInput struct {
	Token       string
	Purpose     string
	NewPassword string
}

// Service implements account management and the password recovery protocol.
type Service struct {
	users    domain.UserRepository
	tx       Transactor
	hasher   domain.PasswordHasher
	notifier Notifier
	opts     Options
	logger   logrus.FieldLogger
	nowFunc  func() time.Time
	random   io.Reader
}

// NewService constructs an account service.
func NewService(users domain.UserRepository, tx Transactor, hasher domain.PasswordHasher, notifier Notifier, opts Options, logger logrus.FieldLogger) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = DefaultMaxPageSize
	}
	return &Service{
		users:    users,
		tx:       tx,
		hasher:   hasher,
		notifier: notifier,
		opts:     opts,
		logger:   logger.WithField("component", "account"),
		nowFunc:  time.Now,
		random:   rand.Reader,
	}
}

// Register persists a new account and returns its id.
func (s *Service) Register(ctx context.Context, input RegisterInput) (int64, error) {
	email := authuc.FoldEmail(input.Email)
	if email == "" {
		return 0, fmt.Errorf("%w: email is required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(input.Password) == "" {
		return 0, fmt.Errorf("%w: password is required", domain.ErrInvalidArgument)
	}
	role, err := ensureRole(input.Role)
	if err != nil {
		return 0, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return 0, domain.ErrEmailExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return 0, fmt.Errorf("account: lookup email: %w", err)
	}

	hashed, err := s.hasher.Hash(input.Password)
	if err != nil {
		return 0, fmt.Errorf("account: hash password: %w", err)
	}

	now := s.nowFunc().UTC()
	user := &domain.User{
		Email:        email,
		Name:         strings.TrimSpace(input.Name),
		Role:         role,
		PasswordHash: hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	id, err := s.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, domain.ErrEmailExists) {
			return 0, err
		}
		return 0, fmt.Errorf("account: create user: %w", err)
	}

	s.logger.WithField("user_id", id).Info("account registered")
	return id, nil
}

// Get retrieves a single account by id.
func (s *Service) Get(ctx context.Context, id int64) (*domain.User, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id must be positive", domain.ErrInvalidArgument)
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.Public(), nil
}

// ListPage returns accounts ordered by id. A page past the end is empty, not an error.
func (s *Service) ListPage(ctx context.Context, pageIndex, pageSize int) (*paging.Page[*domain.User], error) {
	if pageIndex < 0 {
		return nil, fmt.Errorf("%w: pageIndex must not be negative", domain.ErrInvalidArgument)
	}
	if pageSize <= 0 || pageSize > s.opts.MaxPageSize {
		return nil, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrInvalidArgument, s.opts.MaxPageSize)
	}

	total, err := s.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("account: count users: %w", err)
	}

	var users []*domain.User
	if paging.Reachable(pageIndex, pageSize, total) {
		users, err = s.users.List(ctx, paging.Offset(pageIndex, pageSize), pageSize)
		if err != nil {
			return nil, fmt.Errorf("account: list users: %w", err)
		}
	}
	return paging.New(sanitizeUsers(users), pageIndex, pageSize, total), nil
}

// Update changes the profile of targetID. Only the account owner may do so.
// Changing the email revokes reset tokens mailed to the previous address.
func (s *Service) Update(ctx context.Context, targetID, actingUserID int64, input UpdateInput) (*domain.User, error) {
	if targetID <= 0 {
		return nil, fmt.Errorf("%w: id must be positive", domain.ErrInvalidArgument)
	}
	if actingUserID <= 0 {
		return nil, domain.ErrUnauthenticated
	}
	if targetID != actingUserID {
		return nil, domain.ErrForbidden
	}

	user, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	previousEmail := user.Email

	if input.Email != nil {
		email := authuc.FoldEmail(*input.Email)
		if email == "" {
			return nil, fmt.Errorf("%w: email must not be empty", domain.ErrInvalidArgument)
		}
		if email != user.Email {
			if _, err := s.users.GetByEmail(ctx, email); err == nil {
				return nil, domain.ErrEmailExists
			} else if !errors.Is(err, domain.ErrUserNotFound) {
				return nil, fmt.Errorf("account: lookup email: %w", err)
			}
			user.Email = email
		}
	}
	if input.Name != nil {
		user.Name = strings.TrimSpace(*input.Name)
	}

	now := s.nowFunc().UTC()
	user.UpdatedAt = now
	err = s.tx.WithinTx(ctx, func(ctx context.Context, users domain.UserRepository, tokens recovery.Repository) error {
		if err := users.Update(ctx, user); err != nil {
			return err
		}
		if user.Email == previousEmail {
			return nil
		}
		return s.revokeTokens(ctx, tokens, user.ID, now)
	})
	if err != nil {
		return nil, err
	}
	return user.Public(), nil
}

// Delete removes the account with the given id together with its open reset tokens.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: id must be positive", domain.ErrInvalidArgument)
	}
	now := s.nowFunc().UTC()
	err := s.tx.WithinTx(ctx, func(ctx context.Context, users domain.UserRepository, tokens recovery.Repository) error {
		if err := s.revokeTokens(ctx, tokens, id, now); err != nil {
			return err
		}
		return users.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.WithField("user_id", id).Info("account deleted")
	return nil
}

func (s *Service) revokeTokens(ctx context.Context, tokens recovery.Repository, userID int64, at time.Time) error {
	revoked, err := tokens.RevokeOutstanding(ctx, userID, recovery.PurposeResetPassword, at)
	if err != nil {
		return fmt.Errorf("account: revoke reset tokens: %w", err)
	}
	if revoked > 0 {
		s.logger.WithFields(logrus.Fields{"user_id": userID, "revoked": revoked}).Debug("revoked reset tokens")
	}
	return nil
}

// Analytics counts accounts per role. The result is never nil.
func (s *Service) Analytics(ctx context.Context) ([]domain.RoleAnalytics, error) {
	stats, err := s.users.CountByRole(ctx)
	if err != nil {
		return nil, fmt.Errorf("account: role analytics: %w", err)
	}
	if stats == nil {
		stats = []domain.RoleAnalytics{}
	}
	return stats, nil
}

func ensureRole(raw string) (domain.UserRole, error) {
	role := domain.UserRole(strings.TrimSpace(strings.ToLower(raw)))
	switch role {
	case "":
		return domain.RoleUser, nil
	case domain.RoleUser, domain.RoleAdmin:
		return role, nil
	default:
		return "", domain.ErrInvalidRole
	}
}

func sanitizeUsers(items []*domain.User) []*domain.User {
	out := make([]*domain.User, 0, len(items))
	for _, item := range items {
		out = append(out, item.Public())
	}
	return out
}
