// Package identity signs operators in and out and manages the user store.
package identity

import (
	"context"
	"errors"

	"github.com/flexidesk/backend/internal/domain/identity"
	"github.com/flexidesk/backend/internal/domain/shared"
	"github.com/flexidesk/backend/internal/infrastructure/auth"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuthService handles authentication operations
type AuthService struct {
	userRepo   identity.UserRepository
	sessions   *auth.SessionService
	revocation auth.RevocationStore
	logger     *zap.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	userRepo identity.UserRepository,
	sessions *auth.SessionService,
	revocation auth.RevocationStore,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		sessions:   sessions,
		revocation: revocation,
		logger:     logger,
	}
}

// Login verifies credentials and issues a session. Unknown users and wrong
// passwords both yield shared.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	user, err := s.userRepo.FindByUsername(ctx, input.Username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("Login attempt for unknown user",
				zap.String("username", input.Username),
				zap.String("ip", input.IP))
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.VerifyPassword(input.Password) {
		s.logger.Warn("Invalid password attempt",
			zap.String("username", user.Username),
			zap.String("ip", input.IP))
		return nil, shared.ErrInvalidCredentials
	}

	session, err := s.sessions.Issue(user.ID, user.Username)
	if err != nil {
		s.logger.Error("Failed to issue session", zap.Error(err))
		return nil, err
	}

	s.logger.Info("User logged in",
		zap.String("username", user.Username),
		zap.String("user_id", user.ID.String()))

	return &LoginResult{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      toUserInfo(user),
	}, nil
}

// Authenticate verifies a token and checks it has not been revoked. Every
// failure maps to shared.ErrUnauthorized.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := s.sessions.Verify(token)
	if err != nil {
		return nil, unauthorized(err)
	}
	if err := auth.CheckSession(ctx, s.revocation, claims); err != nil {
		if errors.Is(err, auth.ErrSessionRevoked) {
			return nil, unauthorized(err)
		}
		return nil, err
	}
	return claims, nil
}

// Logout revokes the session the claims belong to for the rest of its lifetime.
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	if err := s.revocation.Revoke(ctx, claims.ID, claims.RemainingTTL()); err != nil {
		s.logger.Error("Failed to revoke session", zap.Error(err))
		return err
	}
	s.logger.Info("User logged out", zap.String("user_id", claims.UserID))
	return nil
}

// Me returns the signed-in user.
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*UserInfo, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	info := toUserInfo(user)
	return &info, nil
}

// ChangePassword replaces the password and revokes every session the user
// holds, including the current one.
func (s *AuthService) ChangePassword(ctx context.Context, input ChangePasswordInput) error {
	user, err := s.userRepo.FindByID(ctx, input.UserID)
	if err != nil {
		return err
	}
	if err := user.ChangePassword(input.OldPassword, input.NewPassword); err != nil {
		return err
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		return err
	}
	if err := s.revocation.RevokeUser(ctx, user.ID.String(), s.sessions.MaxAge()); err != nil {
		s.logger.Error("Failed to revoke sessions after password change",
			zap.String("user_id", user.ID.String()),
			zap.Error(err))
		return err
	}

	s.logger.Info("Password changed", zap.String("user_id", user.ID.String()))
	return nil
}

func unauthorized(cause error) error {
	return shared.NewDomainError(shared.CodeUnauthorized, cause.Error())
}
