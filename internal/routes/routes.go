package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/middleware"
	"github.com/BradenHooton/bastion/internal/services"
	"github.com/BradenHooton/bastion/internal/threat"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
)

// Dependencies are the collaborators the router wires together
type Dependencies struct {
	Env            string
	Production     bool
	RequestTimeout time.Duration

	AuthHandler   *handlers.AuthHandler
	AdminHandler  *handlers.AdminHandler
	Health        handlers.HealthChecker
	Authenticator *auth.Authenticator

	Detector      *threat.Detector
	Limiter       middleware.RateLimiter
	TierPolicy    services.TierPolicy
	Locks         middleware.LockChecker
	Audit         services.AuditSink
	Resolver      *pkghttp.IPResolver
	EndpointLimit middleware.RateLimitConfig
	Clock         clockwork.Clock
	Logger        *slog.Logger
}

// NewRouter builds the HTTP handler. Every request passes the security
// pipeline (threat scan, rate limit, development URL block, locked session)
// before reaching a route.
func NewRouter(d Dependencies) http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(middleware.SecureLogger(d.Logger, d.Resolver, d.Clock))
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: d.Env}))
	if d.RequestTimeout > 0 {
		router.Use(chimiddleware.Timeout(d.RequestTimeout))
	}
	router.Use(d.Authenticator.ParseClaims)
	router.Use(middleware.NoStoreAuthenticated)
	router.Use(middleware.Pipeline(d.Logger,
		&middleware.ThreatScanCheck{
			Detector: d.Detector,
			Audit:    d.Audit,
			Resolver: d.Resolver,
			Logger:   d.Logger,
		},
		&middleware.TieredRateLimitCheck{
			Limiter:  d.Limiter,
			Policy:   d.TierPolicy,
			Resolver: d.Resolver,
			Logger:   d.Logger,
		},
		&middleware.DevelopmentURLCheck{
			Production: d.Production,
			Prefixes:   middleware.DefaultDevelopmentURLs,
			Audit:      d.Audit,
			Resolver:   d.Resolver,
		},
		&middleware.LockedSessionCheck{
			Locks:  d.Locks,
			Logger: d.Logger,
		},
	))

	router.Get("/health", handlers.Health(d.Health))

	// Credential endpoints get an extra per-process burst limit
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(d.EndpointLimit, d.Resolver))
		r.Post("/auth/login", d.AuthHandler.Login)
		r.Post("/auth/register", d.AuthHandler.Register)
		r.Post("/auth/activate", d.AuthHandler.Activate)
		r.Post("/auth/activation-code", d.AuthHandler.ResendCode)
	})

	router.Group(func(r chi.Router) {
		r.Use(d.Authenticator.RequireAuth)
		r.Post("/auth/logout", d.AuthHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireStaff)
			r.Post("/admin/accounts/{id}/unlock", d.AdminHandler.UnlockAccount)
			r.Delete("/admin/accounts/{id}/activation-code", d.AdminHandler.ResetActivationCode)
			r.Delete("/admin/rate-limits/{scope}/{identity}", d.AdminHandler.ClearRateLimit)
		})
	})

	return router
}
