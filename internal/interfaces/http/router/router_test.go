package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flexidesk/backend/internal/application/balance"
	"github.com/flexidesk/backend/internal/application/evidence"
	"github.com/flexidesk/backend/internal/application/exports"
	"github.com/flexidesk/backend/internal/application/matching"
	"github.com/flexidesk/backend/internal/domain/shared"
	"github.com/flexidesk/backend/internal/infrastructure/auth"
	"github.com/flexidesk/backend/internal/infrastructure/config"
	"github.com/flexidesk/backend/internal/infrastructure/flexi"
	"github.com/flexidesk/backend/internal/interfaces/http/handler"
	"github.com/flexidesk/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

func ok(body string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, body)
	}
}

func do(engine *gin.Engine, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "v1", r.apiVersion)
	assert.Equal(t, "/api/v1", r.Prefix())
	assert.Empty(t, r.registrars)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "/api/v2", r.Prefix())
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)
	r.Use(func(c *gin.Context) {
		c.Header("X-Api", "yes")
		c.Next()
	})
	r.Register(
		NewDomainGroup("auth", "/auth").GET("/me", ok("me")),
		NewDomainGroup("flexi", "/flexi").GET("/evidences", ok("evidences")),
	).Setup()
	engine.GET("/health", ok("healthy"))

	w := do(engine, http.MethodGet, "/api/v1/auth/me", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "me", w.Body.String())
	assert.Equal(t, "yes", w.Header().Get("X-Api"))

	w = do(engine, http.MethodGet, "/api/v1/flexi/evidences", "")
	assert.Equal(t, "evidences", w.Body.String())

	// api middleware does not leak onto routes outside the group
	w = do(engine, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Api"))
}

func TestDomainGroup(t *testing.T) {
	t.Run("name and prefix", func(t *testing.T) {
		g := NewDomainGroup("flexi", "/flexi")
		assert.Equal(t, "flexi", g.Name())
		assert.Equal(t, "/flexi", g.Prefix())
	})

	t.Run("registers every method", func(t *testing.T) {
		engine := gin.New()
		NewDomainGroup("evidence", "/evidence/:evidence").
			GET("", ok("list")).
			POST("", ok("create")).
			PUT("", ok("update")).
			DELETE("", ok("delete")).
			RegisterRoutes(engine.Group("/api/v1"))

		for method, want := range map[string]string{
			http.MethodGet:    "list",
			http.MethodPost:   "create",
			http.MethodPut:    "update",
			http.MethodDelete: "delete",
		} {
			w := do(engine, method, "/api/v1/evidence/adresar", "")
			assert.Equal(t, http.StatusOK, w.Code, method)
			assert.Equal(t, want, w.Body.String(), method)
		}
	})

	t.Run("applies middleware to the group only", func(t *testing.T) {
		engine := gin.New()
		api := engine.Group("/api/v1")
		NewDomainGroup("auth", "/auth").
			Use(func(c *gin.Context) {
				c.Header("X-Group", "auth")
				c.Next()
			}).
			GET("/me", ok("me")).
			RegisterRoutes(api)
		NewDomainGroup("flexi", "/flexi").GET("/evidences", ok("evidences")).RegisterRoutes(api)

		assert.Equal(t, "auth", do(engine, http.MethodGet, "/api/v1/auth/me", "").Header().Get("X-Group"))
		assert.Empty(t, do(engine, http.MethodGet, "/api/v1/flexi/evidences", "").Header().Get("X-Group"))
	})

	t.Run("nested groups with static and param siblings", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("flexi", "/flexi")
		g.Group("evidence", "/evidence/:evidence").
			GET("/sum", ok("sum")).
			GET("/:id", func(c *gin.Context) {
				c.String(http.StatusOK, c.Param("evidence")+"/"+c.Param("id"))
			})
		g.RegisterRoutes(engine.Group("/api/v1"))

		assert.Equal(t, "sum", do(engine, http.MethodGet, "/api/v1/flexi/evidence/banka/sum", "").Body.String())
		assert.Equal(t, "banka/42", do(engine, http.MethodGet, "/api/v1/flexi/evidence/banka/42", "").Body.String())
	})
}

// stubAuthenticator accepts exactly one token.
type stubAuthenticator struct {
	token string
}

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (*auth.Claims, error) {
	if token != s.token {
		return nil, shared.ErrUnauthorized
	}
	return &auth.Claims{UserID: "7b0c5d0e-4a8c-4f57-9d9e-2f5a4c1e0a11", Username: "admin"}, nil
}

type engineFixture struct {
	engine      *gin.Engine
	remoteCalls *atomic.Int32
}

func newEngine(t *testing.T) *engineFixture {
	t.Helper()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"winstrom": map[string]any{
			"@rowCount": "1",
			"adresar":   []any{map[string]any{"id": "1", "kod": "ACME"}},
		}})
	}))
	t.Cleanup(srv.Close)

	client, err := flexi.NewClient(flexi.Config{BaseURL: srv.URL, Company: "demo", Username: "api", Password: "secret"})
	require.NoError(t, err)

	publisher := exports.NewPublisher(nil)
	engine, err := New(Options{
		Logger:        zap.NewNop(),
		HTTP:          config.HTTPConfig{MaxBodySize: 1 << 20},
		Authenticator: stubAuthenticator{token: "valid"},
	}, Handlers{
		// auth services are not reached by these tests
		Auth:     handler.NewAuthHandler(nil, nil, config.SessionConfig{}),
		Balance:  handler.NewBalanceHandler(balance.NewService(client, publisher)),
		Matching: handler.NewMatchingHandler(matching.NewService(client, publisher)),
		Evidence: handler.NewEvidenceHandler(evidence.NewService(client)),
		Export:   handler.NewExportHandler(publisher),
		System:   handler.NewSystemHandler("test", nil),
	})
	require.NoError(t, err)
	return &engineFixture{engine: engine, remoteCalls: &calls}
}

func TestNew_PublicRoutes(t *testing.T) {
	f := newEngine(t)

	w := do(f.engine, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	w = do(f.engine, http.MethodGet, "/api/v1/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)

	// reaches the handler, which rejects the empty body instead of the gate
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestNew_GateRunsBeforeHandlers(t *testing.T) {
	f := newEngine(t)

	for _, target := range []string{
		"/api/v1/auth/me",
		"/api/v1/flexi/evidences",
		"/api/v1/flexi/evidence/adresar",
		"/api/v1/flexi/customer-balance",
		"/api/v1/flexi/export-matching",
	} {
		w := do(f.engine, http.MethodGet, target, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, target)

		w = do(f.engine, http.MethodGet, target, "forged")
		assert.Equal(t, http.StatusUnauthorized, w.Code, target)
	}
	assert.Zero(t, f.remoteCalls.Load(), "no remote call without a session")
}

func TestNew_AuthenticatedRoutes(t *testing.T) {
	f := newEngine(t)

	w := do(f.engine, http.MethodGet, "/api/v1/flexi/evidences", "valid")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(f.engine, http.MethodGet, "/api/v1/flexi/evidence/adresar", "valid")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"rowCount":1`)
	assert.EqualValues(t, 1, f.remoteCalls.Load())

	w = do(f.engine, http.MethodGet, "/api/v1/flexi/exports/url?key=exports/2024/01/01/a.csv", "valid")
	assert.Equal(t, http.StatusNotFound, w.Code, "archive is disabled")

	w = do(f.engine, http.MethodGet, "/api/v1/flexi/unknown", "valid")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNew_RateLimit(t *testing.T) {
	limiter := middleware.NewRateLimiter(1, time.Minute)
	t.Cleanup(limiter.Stop)

	engine, err := New(Options{
		Logger:        zap.NewNop(),
		RateLimiter:   limiter,
		Authenticator: stubAuthenticator{token: "valid"},
	}, Handlers{
		Auth:   handler.NewAuthHandler(nil, nil, config.SessionConfig{}),
		System: handler.NewSystemHandler("test", nil),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, do(engine, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(engine, http.MethodGet, "/health", "").Code)
}

func TestPublicPaths(t *testing.T) {
	assert.Equal(t, []string{"/api/v1/auth/login", "/api/v1/auth/init", "/api/v1/ping"}, PublicPaths("/api/v1"))
}
