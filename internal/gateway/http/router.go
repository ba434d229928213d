package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gateway/metrics"
	"github.com/aussiebroadwan/gatekeeper/internal/gateway/service"
	"github.com/aussiebroadwan/gatekeeper/internal/gateway/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/kv"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"

	_ "github.com/aussiebroadwan/gatekeeper/api/gateway" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// RateLimits are the per-IP limits applied to each route class.
type RateLimits struct {
	Auth           httpx.RateLimitConfig
	ForgotPassword httpx.RateLimitConfig
	Public         httpx.RateLimitConfig
}

// DefaultRateLimits returns the package profiles from httpx.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		Auth:           httpx.AuthLimit,
		ForgotPassword: httpx.ForgotPasswordLimit,
		Public:         httpx.PublicLimit,
	}
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store
	kv    kv.Store

	SessionService *service.SessionService
	MFAService     *service.MFAService
	AccountService *service.AccountService
	Metrics        *metrics.Metrics
	Limits         RateLimits

	access    jwtx.TokenValidator
	twoFactor jwtx.TokenValidator
	refresh   jwtx.TokenValidator
}

func NewRouter(buildVersion string, st store.Store, kvs kv.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		store:        st,
		kv:           kvs,
		Limits:       DefaultRateLimits(),
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

// ApplyRoutes registers every route. Services must be set first.
func (r *Router) ApplyRoutes() {
	issuer := r.SessionService.Issuer
	r.access = jwtx.NewSignatureValidator(issuer, jwtx.KindAccess)
	r.twoFactor = jwtx.NewSignatureValidator(issuer, jwtx.KindTwoFactor)
	r.refresh = &service.RefreshValidator{Sessions: r.SessionService}

	r.registerAuth()
	r.registerUsers()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Gatekeeper Authentication Gateway API
//	@version		0.1.0
//	@description	Password login with optional TOTP two-factor, rotating refresh tokens and emailed action links.
//	@description
//	@description	Every response is wrapped in {statusCode, message, data}; errors carry {statusCode, message}.
//
//	@contact.name	AussieBroadWAN Team
//	@contact.url	https://github.com/aussiebroadwan/gatekeeper
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host			localhost:8080
//	@BasePath		/
//
//	@schemes		http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Access, two-factor challenge or refresh token depending on the route. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// handle registers h under pattern, instrumented with the pattern as route label.
func (r *Router) handle(pattern string, h http.Handler, mws ...httpx.Middleware) {
	r.Mux.Handle(pattern, r.Metrics.Instrument(pattern, httpx.Chain(h, mws...)))
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		Sessions: r.SessionService,
		MFA:      r.MFAService,
		Accounts: r.AccountService,
	}

	// POST /login - class limit by IP (credential brute force)
	r.handle("POST /v1/auth/login", http.HandlerFunc(h.HandleLogin),
		httpx.RateLimitByIP(r.Limits.Auth),
	)

	// GET /refresh-token - refresh token in the bearer header, consumed on use
	r.handle("GET /v1/auth/refresh-token", http.HandlerFunc(h.HandleRefresh),
		httpx.RateLimitByIP(r.Limits.Auth),
		httpx.AuthnMiddleware(r.refresh),
	)

	r.handle("GET /v1/auth/enable-2fa", http.HandlerFunc(h.HandleEnable2FA),
		httpx.RateLimitByIP(r.Limits.Auth),
		httpx.AuthnMiddleware(r.access),
	)

	r.handle("POST /v1/auth/confirm-2fa", http.HandlerFunc(h.HandleConfirm2FA),
		httpx.RateLimitByIP(r.Limits.Auth),
		httpx.AuthnMiddleware(r.access),
	)

	r.handle("POST /v1/auth/disable-2fa", http.HandlerFunc(h.HandleDisable2FA),
		httpx.RateLimitByIP(r.Limits.Auth),
		httpx.AuthnMiddleware(r.access),
	)

	// POST /verify-otp - only a two-factor challenge token is accepted
	r.handle("POST /v1/auth/verify-otp", http.HandlerFunc(h.HandleVerifyOTP),
		httpx.RateLimitByIP(r.Limits.Auth),
		httpx.AuthnMiddleware(r.twoFactor),
	)

	// POST /forgot-password - tighter limit, one reset email per minute per IP
	r.handle("POST /v1/auth/forgot-password", http.HandlerFunc(h.HandleForgotPassword),
		httpx.RateLimitByIP(r.Limits.ForgotPassword),
	)

	r.handle("POST /v1/auth/reset-password", http.HandlerFunc(h.HandleResetPassword),
		httpx.RateLimitByIP(r.Limits.Auth),
	)

	r.handle("DELETE /v1/auth/logout", http.HandlerFunc(h.HandleLogout),
		httpx.RateLimitByIP(r.Limits.Auth),
		httpx.AuthnMiddleware(r.refresh),
	)
}

func (r *Router) registerUsers() {
	h := &UsersHandler{Accounts: r.AccountService}

	r.handle("POST /v1/users/register", http.HandlerFunc(h.HandleRegister),
		httpx.RateLimitByIP(r.Limits.Public),
	)
	r.handle("GET /v1/users/verify-email", http.HandlerFunc(h.HandleVerifyEmail),
		httpx.RateLimitByIP(r.Limits.Public),
	)
	r.handle("POST /v1/users/resend-email-verification", http.HandlerFunc(h.HandleResendVerification),
		httpx.RateLimitByIP(r.Limits.Auth),
	)

	// Authenticated - limit by subject once the token is verified
	r.handle("GET /v1/users/me", http.HandlerFunc(h.HandleProfile),
		httpx.AuthnMiddleware(r.access),
		httpx.RateLimitByUser(r.Limits.Public),
	)
	r.handle("DELETE /v1/users/me", http.HandlerFunc(h.HandleDelete),
		httpx.AuthnMiddleware(r.access),
		httpx.RateLimitByUser(r.Limits.Auth),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.kv))
	if r.Metrics != nil {
		r.Mux.Handle("GET /metrics", r.Metrics.Handler())
	}
}
