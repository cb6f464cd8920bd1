// Package models holds the GORM row types of the user store.
package models

import (
	"time"

	"github.com/flexidesk/backend/internal/domain/identity"
	"github.com/google/uuid"
)

// UserModel is a row of the users table.
type UserModel struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username          string    `gorm:"type:varchar(100);not null;uniqueIndex"`
	PasswordHash      string    `gorm:"type:varchar(255);not null"`
	PasswordChangedAt *time.Time
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts the row to a domain user.
func (m *UserModel) ToDomain() *identity.User {
	return &identity.User{
		ID:                m.ID,
		Username:          m.Username,
		PasswordHash:      m.PasswordHash,
		PasswordChangedAt: m.PasswordChangedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// UserModelFromDomain converts a domain user to a row.
func UserModelFromDomain(u *identity.User) *UserModel {
	return &UserModel{
		ID:                u.ID,
		Username:          u.Username,
		PasswordHash:      u.PasswordHash,
		PasswordChangedAt: u.PasswordChangedAt,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}
