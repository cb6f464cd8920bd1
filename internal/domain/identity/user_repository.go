package identity

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository defines the interface for user persistence
type UserRepository interface {
	// Create stores a new user. A taken username yields shared.ErrAlreadyExists.
	Create(ctx context.Context, user *User) error

	// Update saves the password hash and timestamps of an existing user
	Update(ctx context.Context, user *User) error

	// FindByID returns shared.ErrNotFound when the user does not exist
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)

	// FindByUsername matches case-insensitively
	FindByUsername(ctx context.Context, username string) (*User, error)

	// ExistsByUsername checks if a username already exists
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// Count returns the number of users
	Count(ctx context.Context) (int64, error)
}
