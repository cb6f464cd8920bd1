package identity

import (
	"context"
	"errors"
	"time"

	"github.com/flexidesk/backend/internal/domain/identity"
	"github.com/flexidesk/backend/internal/domain/shared"
	"github.com/flexidesk/backend/internal/infrastructure/auth"
	"go.uber.org/zap"
)

// UserService handles user management operations
type UserService struct {
	userRepo   identity.UserRepository
	revocation auth.RevocationStore
	sessionTTL time.Duration
	logger     *zap.Logger
}

// NewUserService creates a new user service. sessionTTL bounds how long a
// user-wide revocation has to be remembered.
func NewUserService(
	userRepo identity.UserRepository,
	revocation auth.RevocationStore,
	sessionTTL time.Duration,
	logger *zap.Logger,
) *UserService {
	return &UserService{
		userRepo:   userRepo,
		revocation: revocation,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

// EnsureDefaultAdmin creates the admin account when the store is empty. It
// reports whether a user was created.
func (s *UserService) EnsureDefaultAdmin(ctx context.Context, password string) (bool, error) {
	count, err := s.userRepo.Count(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	if _, err := s.CreateUser(ctx, identity.DefaultAdminUsername, password); err != nil {
		// another instance seeded it first
		if errors.Is(err, shared.ErrAlreadyExists) {
			return false, nil
		}
		return false, err
	}
	s.logger.Warn("Created default admin user, change its password",
		zap.String("username", identity.DefaultAdminUsername))
	return true, nil
}

// CreateUser adds a user. A taken username yields shared.ErrAlreadyExists.
func (s *UserService) CreateUser(ctx context.Context, username, password string) (*UserInfo, error) {
	exists, err := s.userRepo.ExistsByUsername(ctx, identity.NormalizeUsername(username))
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, shared.NewDomainError(shared.CodeAlreadyExists, "Username already exists")
	}

	user, err := identity.NewUser(username, password)
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User created",
		zap.String("username", user.Username),
		zap.String("user_id", user.ID.String()))
	info := toUserInfo(user)
	return &info, nil
}

// SetPassword overwrites a user's password without the current one and
// revokes the user's sessions.
func (s *UserService) SetPassword(ctx context.Context, username, password string) error {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return err
	}
	if err := user.SetPassword(password); err != nil {
		return err
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		return err
	}
	if err := s.revocation.RevokeUser(ctx, user.ID.String(), s.sessionTTL); err != nil {
		return err
	}
	s.logger.Info("Password reset", zap.String("username", user.Username))
	return nil
}
