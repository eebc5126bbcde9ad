package account

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	domain "accounts/backend/internal/domain/auth"
	"accounts/backend/internal/domain/recovery"
	authuc "accounts/backend/internal/usecase/auth"
)

// RequestReset issues a reset token for email and hands it to the notifier.
// Unknown emails fail with ErrUserNotFound unless concealment is enabled.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	email = authuc.FoldEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", domain.ErrInvalidArgument)
	}

	raw, err := s.newTokenValue()
	if err != nil {
		return fmt.Errorf("account: generate token: %w", err)
	}

	now := s.nowFunc().UTC()
	token := &recovery.Token{
		Email:     email,
		TokenHash: recovery.HashValue(raw),
		Purpose:   recovery.PurposeResetPassword,
		CreatedAt: now,
		ExpiresAt: now.Add(s.opts.TokenTTL),
	}
	// The row lock serialises concurrent requests for one account, so each
	// revoke sees the token the previous request inserted.
	err = s.tx.WithinTx(ctx, func(ctx context.Context, users domain.UserRepository, tokens recovery.Repository) error {
		user, err := users.GetByEmailForUpdate(ctx, email)
		if err != nil {
			return err
		}
		token.UserID = user.ID
		if err := s.revokeTokens(ctx, tokens, user.ID, now); err != nil {
			return err
		}
		return tokens.Create(ctx, token)
	})
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			if s.opts.ConcealUnknownEmail {
				s.logger.Debug("reset requested for unknown email")
				return nil
			}
			return err
		}
		return fmt.Errorf("account: issue token: %w", err)
	}

	if err := s.notifier.SendPasswordReset(ctx, email, raw); err != nil {
		s.logger.WithError(err).WithField("token_id", token.ID).Warn("reset email dispatch failed")
	}
	return nil
}

// ConsumePasswordChange redeems a token and sets a new password on the
// account the token was issued to, in one transaction. Concurrent
// redemptions of the same token yield exactly one success; the rest fail
// with recovery.ErrInvalidToken.
func (s *Service) ConsumePasswordChange(ctx context.Context, input ChangePasswordInput) error {
	raw := strings.TrimSpace(input.Token)
	if raw == "" {
		return recovery.ErrInvalidToken
	}
	if strings.TrimSpace(input.NewPassword) == "" {
		return fmt.Errorf("%w: password is required", domain.ErrInvalidArgument)
	}
	purpose, err := recovery.ParsePurpose(input.Purpose)
	if err != nil {
		return err
	}

	hashed, err := s.hasher.Hash(input.NewPassword)
	if err != nil {
		return fmt.Errorf("account: hash password: %w", err)
	}

	now := s.nowFunc().UTC()
	var consumed *recovery.Token
	err = s.tx.WithinTx(ctx, func(ctx context.Context, users domain.UserRepository, tokens recovery.Repository) error {
		tok, err := tokens.Consume(ctx, recovery.HashValue(raw), purpose, now)
		if err != nil {
			return err
		}
		if err := users.UpdatePassword(ctx, tok.UserID, hashed, now); err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return recovery.ErrInvalidToken
			}
			return err
		}
		consumed = tok
		return nil
	})
	if err != nil {
		if errors.Is(err, recovery.ErrInvalidToken) {
			return err
		}
		return fmt.Errorf("account: change password: %w", err)
	}

	s.logger.WithField("token_id", consumed.ID).Info("password changed via recovery token")
	return nil
}

func (s *Service) newTokenValue() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
