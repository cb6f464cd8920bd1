package handler

import (
	"net/http"
	"time"

	"github.com/flexidesk/backend/internal/application/identity"
	"github.com/flexidesk/backend/internal/infrastructure/config"
	"github.com/flexidesk/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DefaultSessionCookie is used when no cookie name is configured.
const DefaultSessionCookie = "flexidesk_session"

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	BaseHandler
	authService *identity.AuthService
	userService *identity.UserService
	cfg         config.SessionConfig
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *identity.AuthService, userService *identity.UserService, cfg config.SessionConfig) *AuthHandler {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultSessionCookie
	}
	return &AuthHandler{
		authService: authService,
		userService: userService,
		cfg:         cfg,
	}
}

// CookieName returns the session cookie name.
func (h *AuthHandler) CookieName() string {
	return h.cfg.CookieName
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Password string `json:"password" binding:"required,max=72"`
}

// ChangePasswordRequest is the body of PUT /auth/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8,max=72"`
}

// InitResponse reports whether the default admin was created.
type InitResponse struct {
	Created bool `json:"created"`
}

// Login authenticates a user and issues a session token, also set as an
// HttpOnly cookie.
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.authService.Login(c.Request.Context(), identity.LoginInput{
		Username: req.Username,
		Password: req.Password,
		IP:       c.ClientIP(),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.setSessionCookie(c, result.Token, time.Until(result.ExpiresAt))
	h.Success(c, result)
}

// Init creates the default admin when the user table is empty.
// POST /api/v1/auth/init
func (h *AuthHandler) Init(c *gin.Context) {
	created, err := h.userService.EnsureDefaultAdmin(c.Request.Context(), h.cfg.AdminDefaultPassword)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, InitResponse{Created: created})
}

// Logout revokes the current session.
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.GetSessionClaims(c)
	if claims == nil {
		h.Unauthorized(c, "Authentication required")
		return
	}
	if err := h.authService.Logout(c.Request.Context(), claims); err != nil {
		h.HandleError(c, err)
		return
	}
	h.clearSessionCookie(c)
	h.Success(c, nil)
}

// Me returns the signed-in user.
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := h.sessionUser(c)
	if !ok {
		return
	}
	user, err := h.authService.Me(c.Request.Context(), userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, user)
}

// ChangePassword replaces the password. Every session of the user, the
// current one included, is revoked.
// PUT /api/v1/auth/password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := h.sessionUser(c)
	if !ok {
		return
	}
	var req ChangePasswordRequest
	if !h.bindJSON(c, &req) {
		return
	}

	err := h.authService.ChangePassword(c.Request.Context(), identity.ChangePasswordInput{
		UserID:      userID,
		OldPassword: req.CurrentPassword,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.clearSessionCookie(c)
	h.Success(c, nil)
}

func (h *AuthHandler) sessionUser(c *gin.Context) (uuid.UUID, bool) {
	claims := middleware.GetSessionClaims(c)
	if claims == nil {
		h.Unauthorized(c, "Authentication required")
		return uuid.Nil, false
	}
	userID, err := claims.UserUUID()
	if err != nil {
		h.Unauthorized(c, "Invalid session")
		return uuid.Nil, false
	}
	return userID, true
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, token string, ttl time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		MaxAge:   int(ttl.Seconds()),
		Secure:   h.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: sameSite(h.cfg.CookieSameSite),
	})
}

func (h *AuthHandler) clearSessionCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		MaxAge:   -1,
		Secure:   h.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: sameSite(h.cfg.CookieSameSite),
	})
}

func sameSite(mode string) http.SameSite {
	switch mode {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
