package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/time/rate"

	_ "github.com/medora/clinic-core/docs"
	"github.com/medora/clinic-core/internal/api/handler"
	"github.com/medora/clinic-core/internal/api/middleware"
	"github.com/medora/clinic-core/internal/core/domain"
	"github.com/medora/clinic-core/internal/core/ports"
)

const bodyLimit = "64K"

// RouterConfig holds the transport-level settings.
type RouterConfig struct {
	Log zerolog.Logger
	// ExposeErrors adds the internal error text to 500 responses.
	ExposeErrors bool
	// SecureCookies marks the refresh cookie Secure.
	SecureCookies bool
	// AuthRateLimit is requests per second per client IP on the login and
	// password flows. Zero disables it.
	AuthRateLimit float64
}

// Services are the collaborators the handlers call into.
type Services struct {
	Auth     ports.AuthService
	Staff    ports.StaffService
	Audit    ports.AuditService
	Recorder middleware.AuditRecorder
	Health   map[string]handler.Check
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(cfg RouterConfig, svc Services) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(cfg.Log, cfg.ExposeErrors)

	// --- Global middleware ---
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(cfg.Log))
	e.Use(echomiddleware.Recover())
	e.Use(middleware.Metrics())
	e.Use(echomiddleware.Secure())
	e.Use(echomiddleware.BodyLimit(bodyLimit))
	e.Use(middleware.Audit(svc.Recorder))

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(svc.Auth, handler.CookieConfig{Secure: cfg.SecureCookies})
	staffHandler := handler.NewStaffHandler(svc.Auth, svc.Staff)
	auditHandler := handler.NewAuditHandler(svc.Audit)
	requireAuth := middleware.Auth(svc.Auth)
	admins := middleware.RequireRoles(domain.RoleOwner, domain.RoleAdmin)

	var limited []echo.MiddlewareFunc
	if cfg.AuthRateLimit > 0 {
		limited = append(limited, authRateLimiter(cfg.AuthRateLimit))
	}

	// --- Auth routes ---
	auth := e.Group("/auth")
	auth.POST("/login", authHandler.Login, limited...)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", authHandler.Logout)
	auth.GET("/me", authHandler.Me, requireAuth)
	auth.POST("/forgot-password", authHandler.ForgotPassword, limited...)
	auth.POST("/reset-password", authHandler.ResetPassword, limited...)
	auth.POST("/accept-invite", authHandler.AcceptInvite, limited...)
	auth.POST("/change-password", authHandler.ChangePassword, requireAuth)

	e.POST("/portal/auth/login", authHandler.PortalLogin, limited...)

	// --- Tenant administration ---
	staff := e.Group("/staff", requireAuth, admins)
	staff.POST("/invitations", staffHandler.Invite)
	staff.GET("", staffHandler.List)
	staff.GET("/:id", staffHandler.Get)
	staff.PATCH("/:id/role", staffHandler.ChangeRole, middleware.RequireRoles(domain.RoleOwner))

	e.GET("/audit-logs", auditHandler.List, requireAuth, admins)

	// --- Operations (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(svc.Health)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func authRateLimiter(perSecond float64) echo.MiddlewareFunc {
	return echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Store: echomiddleware.NewRateLimiterMemoryStoreWithConfig(echomiddleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(perSecond),
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
		},
	})
}
