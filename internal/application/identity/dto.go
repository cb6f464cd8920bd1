package identity

import (
	"time"

	"github.com/flexidesk/backend/internal/domain/identity"
	"github.com/google/uuid"
)

// LoginInput contains the input for user login
type LoginInput struct {
	Username string
	Password string
	IP       string // Client IP, logged only
}

// LoginResult contains the result of a successful login
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      UserInfo  `json:"user"`
}

// UserInfo contains basic user information
type UserInfo struct {
	ID                uuid.UUID  `json:"id"`
	Username          string     `json:"username"`
	PasswordChangedAt *time.Time `json:"passwordChangedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// ChangePasswordInput contains the input for password change
type ChangePasswordInput struct {
	UserID      uuid.UUID
	OldPassword string
	NewPassword string
}

func toUserInfo(u *identity.User) UserInfo {
	return UserInfo{
		ID:                u.ID,
		Username:          u.Username,
		PasswordChangedAt: u.PasswordChangedAt,
		CreatedAt:         u.CreatedAt,
	}
}
