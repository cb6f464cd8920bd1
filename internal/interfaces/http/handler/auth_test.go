package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	appidentity "github.com/flexidesk/backend/internal/application/identity"
	"github.com/flexidesk/backend/internal/domain/identity"
	"github.com/flexidesk/backend/internal/domain/shared"
	"github.com/flexidesk/backend/internal/infrastructure/auth"
	"github.com/flexidesk/backend/internal/infrastructure/config"
	"github.com/flexidesk/backend/internal/interfaces/http/dto"
	"github.com/flexidesk/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *identity.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) Update(ctx context.Context, user *identity.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *MockUserRepository) FindByUsername(ctx context.Context, username string) (*identity.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *MockUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type authFixture struct {
	repo       *MockUserRepository
	revocation *auth.MemoryRevocationStore
	handler    *AuthHandler
	router     *gin.Engine
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	cfg := config.SessionConfig{
		Secret:               "0123456789abcdef0123456789abcdef",
		MaxAge:               time.Hour,
		Issuer:               "flexidesk",
		AdminDefaultPassword: "changeme123",
	}
	repo := new(MockUserRepository)
	revocation := auth.NewMemoryRevocationStore()
	sessions := auth.NewSessionService(cfg)
	authService := appidentity.NewAuthService(repo, sessions, revocation, zap.NewNop())
	userService := appidentity.NewUserService(repo, revocation, sessions.MaxAge(), zap.NewNop())
	h := NewAuthHandler(authService, userService, cfg)

	router := gin.New()
	router.Use(middleware.RequestID())
	api := router.Group("/api/v1")
	api.Use(middleware.SessionGate(middleware.SessionGateConfig{
		Authenticator: authService,
		CookieName:    h.CookieName(),
		SkipPaths:     []string{"/api/v1/auth/login", "/api/v1/auth/init"},
	}))
	api.POST("/auth/login", h.Login)
	api.POST("/auth/init", h.Init)
	api.POST("/auth/logout", h.Logout)
	api.GET("/auth/me", h.Me)
	api.PUT("/auth/password", h.ChangePassword)

	return &authFixture{repo: repo, revocation: revocation, handler: h, router: router}
}

func (f *authFixture) request(method, target, body, token string) *http.Response {
	req, _ := http.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := newRecorder()
	f.router.ServeHTTP(w, req)
	return w.Result()
}

func (f *authFixture) login(t *testing.T, user *identity.User, password string) string {
	t.Helper()

	f.repo.On("FindByUsername", mock.Anything, user.Username).Return(user, nil).Once()
	resp := f.request(http.MethodPost, "/api/v1/auth/login", `{"username":"`+user.Username+`","password":"`+password+`"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data appidentity.LoginResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Data.Token)
	return body.Data.Token
}

func testUser(t *testing.T) *identity.User {
	t.Helper()
	user, err := identity.NewUser("operator", "secret123")
	require.NoError(t, err)
	return user
}

func TestAuth_LoginSetsCookie(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t)
	f.repo.On("FindByUsername", mock.Anything, "operator").Return(user, nil)

	resp := f.request(http.MethodPost, "/api/v1/auth/login", `{"username":"operator","password":"secret123"}`, "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, DefaultSessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.NotEmpty(t, cookies[0].Value)
}

func TestAuth_LoginBadCredentials(t *testing.T) {
	f := newAuthFixture(t)
	f.repo.On("FindByUsername", mock.Anything, "ghost").Return(nil, shared.ErrNotFound)

	resp := f.request(http.MethodPost, "/api/v1/auth/login", `{"username":"ghost","password":"whatever1"}`, "")

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var body dto.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, dto.ErrCodeUnauthorized, body.Code)
	assert.Equal(t, "Invalid username or password", body.Error)
}

func TestAuth_LoginMissingFields(t *testing.T) {
	f := newAuthFixture(t)

	resp := f.request(http.MethodPost, "/api/v1/auth/login", `{"username":"operator"}`, "")

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	f.repo.AssertNotCalled(t, "FindByUsername", mock.Anything, mock.Anything)
}

func TestAuth_Init(t *testing.T) {
	f := newAuthFixture(t)
	f.repo.On("Count", mock.Anything).Return(int64(0), nil).Once()
	f.repo.On("ExistsByUsername", mock.Anything, "admin").Return(false, nil)
	f.repo.On("Create", mock.Anything, mock.MatchedBy(func(u *identity.User) bool {
		return u.Username == "admin" && u.VerifyPassword("changeme123")
	})).Return(nil)

	resp := f.request(http.MethodPost, "/api/v1/auth/init", ``, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readAll(t, resp), `"created":true`)

	f.repo.On("Count", mock.Anything).Return(int64(1), nil).Once()
	resp = f.request(http.MethodPost, "/api/v1/auth/init", ``, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readAll(t, resp), `"created":false`)
}

func TestAuth_MeRequiresSession(t *testing.T) {
	f := newAuthFixture(t)

	resp := f.request(http.MethodGet, "/api/v1/auth/me", "", "")

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_MeAndLogout(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t)
	token := f.login(t, user, "secret123")

	f.repo.On("FindByID", mock.Anything, user.ID).Return(user, nil)
	resp := f.request(http.MethodGet, "/api/v1/auth/me", "", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readAll(t, resp), `"username":"operator"`)

	resp = f.request(http.MethodPost, "/api/v1/auth/logout", "", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.request(http.MethodGet, "/api/v1/auth/me", "", token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_ChangePasswordRevokesSessions(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t)
	token := f.login(t, user, "secret123")

	f.repo.On("FindByID", mock.Anything, user.ID).Return(user, nil)
	f.repo.On("Update", mock.Anything, user).Return(nil)

	resp := f.request(http.MethodPut, "/api/v1/auth/password", `{"currentPassword":"secret123","newPassword":"better456"}`, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, user.VerifyPassword("better456"))

	resp = f.request(http.MethodGet, "/api/v1/auth/me", "", token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_ChangePasswordWrongCurrent(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t)
	token := f.login(t, user, "secret123")
	f.repo.On("FindByID", mock.Anything, user.ID).Return(user, nil)

	resp := f.request(http.MethodPut, "/api/v1/auth/password", `{"currentPassword":"nope12345","newPassword":"better456"}`, token)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	f.repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}
