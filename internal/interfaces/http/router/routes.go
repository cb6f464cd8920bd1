package router

import (
	"github.com/flexidesk/backend/internal/infrastructure/config"
	"github.com/flexidesk/backend/internal/infrastructure/logger"
	"github.com/flexidesk/backend/internal/interfaces/http/handler"
	"github.com/flexidesk/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// DefaultMaxBodySize applies when no body limit is configured.
const DefaultMaxBodySize int64 = 10 << 20

// Handlers bundles everything served by the engine
type Handlers struct {
	Auth     *handler.AuthHandler
	Balance  *handler.BalanceHandler
	Matching *handler.MatchingHandler
	Evidence *handler.EvidenceHandler
	Export   *handler.ExportHandler
	System   *handler.SystemHandler
}

// Options configure the middleware chain
type Options struct {
	Logger        *zap.Logger
	HTTP          config.HTTPConfig
	Tracing       middleware.TracingConfig
	Meter         metric.Meter            // nil disables HTTP metrics
	RateLimiter   *middleware.RateLimiter // nil disables rate limiting
	Authenticator middleware.Authenticator
	APIVersion    string
}

// New builds the engine with the full middleware chain and every route.
// /health and the public auth endpoints are served without a session.
func New(opts Options, h Handlers) (*gin.Engine, error) {
	engine := gin.New()
	if err := engine.SetTrustedProxies(opts.HTTP.TrustedProxies); err != nil {
		return nil, err
	}

	maxBody := opts.HTTP.MaxBodySize
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}

	cors := middleware.DefaultCORSConfig()
	if len(opts.HTTP.CORSAllowOrigins) > 0 {
		cors.AllowOrigins = opts.HTTP.CORSAllowOrigins
	}
	if len(opts.HTTP.CORSAllowMethods) > 0 {
		cors.AllowMethods = opts.HTTP.CORSAllowMethods
	}
	if len(opts.HTTP.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = opts.HTTP.CORSAllowHeaders
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Tracing(opts.Tracing),
		middleware.SpanAttributes(),
		middleware.HTTPMetrics(opts.Meter),
		logger.Recovery(opts.Logger),
		logger.GinMiddleware(opts.Logger),
		middleware.Secure(),
		middleware.CORSWithConfig(cors),
		middleware.BodyLimit(maxBody),
	)
	if opts.RateLimiter != nil {
		engine.Use(middleware.RateLimit(opts.RateLimiter))
	}

	engine.GET("/health", h.System.Health)

	r := NewRouter(engine, WithAPIVersion(apiVersion(opts.APIVersion)))
	r.Use(middleware.SessionGate(middleware.SessionGateConfig{
		Authenticator: opts.Authenticator,
		CookieName:    h.Auth.CookieName(),
		SkipPaths:     PublicPaths(r.Prefix()),
	}))
	r.Register(
		NewDomainGroup("system", "").GET("/ping", h.System.Ping),
		authRoutes(h.Auth),
		flexiRoutes(h),
	)
	r.Setup()

	return engine, nil
}

// PublicPaths lists the API paths reachable without a session.
func PublicPaths(prefix string) []string {
	return []string{
		prefix + "/auth/login",
		prefix + "/auth/init",
		prefix + "/ping",
	}
}

func apiVersion(v string) string {
	if v == "" {
		return "v1"
	}
	return v
}

func authRoutes(h *handler.AuthHandler) *DomainGroup {
	return NewDomainGroup("auth", "/auth").
		POST("/login", h.Login).
		POST("/init", h.Init).
		POST("/logout", h.Logout).
		GET("/me", h.Me).
		PUT("/password", h.ChangePassword)
}

func flexiRoutes(h Handlers) *DomainGroup {
	flexi := NewDomainGroup("flexi", "/flexi").
		GET("/connection", h.Evidence.Connection).
		GET("/evidences", h.Evidence.Evidences).
		GET("/customer-balance", h.Balance.CustomerBalance).
		GET("/export-customer-balance", h.Balance.ExportCustomerBalance).
		GET("/export-matching", h.Matching.ExportMatching).
		GET("/find-invoices", h.Matching.FindInvoices).
		POST("/match-payment", h.Matching.MatchPayment).
		GET("/exports/url", h.Export.DownloadURL)

	flexi.Group("evidence", "/evidence/:evidence").
		GET("", h.Evidence.List).
		GET("/sum", h.Evidence.Sum).
		GET("/:id", h.Evidence.Get).
		POST("", h.Evidence.Create).
		PUT("", h.Evidence.Update).
		DELETE("", h.Evidence.Delete)

	return flexi
}
