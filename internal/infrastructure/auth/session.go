// Package auth issues and verifies session tokens and tracks revoked sessions.
package auth

import (
	"errors"
	"time"

	"github.com/flexidesk/backend/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultMaxAge is the session lifetime when none is configured.
const DefaultMaxAge = 30 * 24 * time.Hour

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid session token")
	ErrExpiredToken     = errors.New("session has expired")
	ErrTokenNotYetValid = errors.New("session is not yet valid")
	ErrMissingUserID    = errors.New("missing user_id in session")
	ErrSessionRevoked   = errors.New("session has been revoked")
)

// Claims are the contents of a session token.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// UserUUID parses the user id claim.
func (c *Claims) UserUUID() (uuid.UUID, error) {
	return uuid.Parse(c.UserID)
}

// IssuedAtTime returns the issued-at claim, or the zero time.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt != nil {
		return c.IssuedAt.Time
	}
	return time.Time{}
}

// RemainingTTL returns the time until the session expires, never negative.
func (c *Claims) RemainingTTL() time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	if remaining := time.Until(c.ExpiresAt.Time); remaining > 0 {
		return remaining
	}
	return 0
}

// Session is a freshly issued token.
type Session struct {
	ID        string    `json:"-"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionService signs and verifies HS256 session tokens.
type SessionService struct {
	secret []byte
	maxAge time.Duration
	issuer string
	now    func() time.Time
}

// NewSessionService creates a session service from configuration
func NewSessionService(cfg config.SessionConfig) *SessionService {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &SessionService{
		secret: []byte(cfg.Secret),
		maxAge: maxAge,
		issuer: cfg.Issuer,
		now:    time.Now,
	}
}

// MaxAge returns the session lifetime.
func (s *SessionService) MaxAge() time.Duration {
	return s.maxAge
}

// Issue signs a new session for the user.
func (s *SessionService) Issue(userID uuid.UUID, username string) (*Session, error) {
	now := s.now()
	expiresAt := now.Add(s.maxAge)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID:   userID.String(),
		Username: username,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	return &Session{ID: claims.ID, Token: token, ExpiresAt: expiresAt}, nil
}

// Verify checks signature, expiry and required claims. Revocation is checked
// separately against a RevocationStore.
func (s *SessionService) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, ErrMissingUserID
	}
	return claims, nil
}
