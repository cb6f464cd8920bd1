package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/flexidesk/backend/internal/domain/shared"
	"github.com/flexidesk/backend/internal/infrastructure/auth"
	"github.com/flexidesk/backend/internal/infrastructure/logger"
	"github.com/flexidesk/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Session context keys
const (
	SessionClaimsKey = "session_claims"
	SessionUserIDKey = "session_user_id"
	AuthHeaderKey    = "Authorization"
	BearerPrefix     = "Bearer "
)

// Authenticator resolves a session token to its claims.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

// SessionGateConfig holds configuration for the session gate
type SessionGateConfig struct {
	Authenticator Authenticator
	// CookieName is read when no Authorization header is sent
	CookieName string
	// SkipPaths are exact paths that do not require a session
	SkipPaths []string
}

// SessionGate rejects requests without a valid session before any handler
// runs. The token comes from "Authorization: Bearer" or the session cookie.
func SessionGate(cfg SessionGateConfig) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		token := SessionToken(c, cfg.CookieName)
		if token == "" {
			abort(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Authentication required")
			return
		}

		claims, err := cfg.Authenticator.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, shared.ErrUnauthorized) {
				abort(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Invalid or expired session")
				return
			}
			logger.For(c.Request.Context()).Error("Session check failed", zap.Error(err))
			abort(c, http.StatusInternalServerError, dto.ErrCodeInternal, "Failed to verify session")
			return
		}

		c.Set(SessionClaimsKey, claims)
		c.Set(SessionUserIDKey, claims.UserID)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), claims.UserID))
		c.Next()
	}
}

// SessionToken extracts the raw token from the request.
func SessionToken(c *gin.Context, cookieName string) string {
	if header := c.GetHeader(AuthHeaderKey); header != "" {
		if strings.HasPrefix(header, BearerPrefix) {
			return strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
		}
		return ""
	}
	if cookieName == "" {
		return ""
	}
	cookie, err := c.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return cookie
}

// GetSessionClaims returns the claims set by SessionGate, or nil.
func GetSessionClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(SessionClaimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

// GetSessionUserID returns the authenticated user id, or "".
func GetSessionUserID(c *gin.Context) string {
	return c.GetString(SessionUserIDKey)
}
