package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"tradejournal/internal/auth"
	"tradejournal/internal/config"
	"tradejournal/internal/constants"
	"tradejournal/internal/db"
	"tradejournal/internal/service"
)

// Services bundles what the HTTP layer calls into.
type Services struct {
	Accounts       *service.AccountService
	Sessions       *service.SessionService
	PasswordResets *service.PasswordResetService
}

type Server struct {
	router *chi.Mux
}

// NewServer wires the /api/v1 routes. redisClient may be nil, in which case
// rate limits are kept in process memory and the health check skips Redis.
func NewServer(
	cfg *config.Config,
	database *db.DB,
	redisClient redis.UniversalClient,
	jwtService *auth.JWTService,
	services Services,
) (*Server, error) {
	ipResolver, err := NewClientIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("initializing client IP resolver: %w", err)
	}

	errs := errorWriter{verbose: !cfg.IsProduction()}
	limiters := rateLimiters{redis: redisClient, resolver: ipResolver}
	window := cfg.RateLimit.Window.Std()

	apiLimit := limiters.limit("api", cfg.RateLimit.MaxRequests, window)
	registerLimit := limiters.limit("register", cfg.RateLimit.AuthMaxRequests, window)
	resendLimit := limiters.limit("resend-verification", cfg.RateLimit.AuthMaxRequests, window)
	loginLimit := limiters.failures("login-failures", cfg.RateLimit.AuthMaxRequests, window)
	resetLimit := limiters.limit("reset", cfg.RateLimit.ResetMaxRequests, window)

	authHandler := NewAuthHandler(services.Accounts, services.Sessions, errs)
	adminHandler := NewAdminHandler(services.Accounts, services.PasswordResets, errs)
	passwordHandler := NewPasswordHandler(services.PasswordResets, ipResolver, errs)
	healthHandler := NewHealthHandler(database, redisClient)

	authMiddleware := NewAuthMiddleware(jwtService, services.Accounts, errs)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(ipResolver))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.Server.CORSOrigins))
	r.Use(securityHeadersMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, constants.ErrCodeRouteNotFound, fmt.Sprintf("Route %s %s not found", r.Method, r.URL.Path), nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, constants.ErrCodeRouteNotFound, fmt.Sprintf("Method %s not allowed on %s", r.Method, r.URL.Path), nil)
	})

	r.Get("/health", healthHandler.Check)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(maxBodySizeMiddleware(1 << 20)) // 1 MB
		r.Use(apiLimit)
		r.Use(authMiddleware.OptionalAuthenticate)

		r.Get("/health", healthHandler.Check)

		r.Route("/auth", func(r chi.Router) {
			r.With(registerLimit).Post("/register", authHandler.Register)
			r.With(loginLimit).Post("/login", authHandler.Login)
			r.With(resendLimit).Post("/resend-verification", authHandler.ResendVerification)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)
			r.Get("/verify-email", authHandler.VerifyEmail)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.Authenticate)
				r.Get("/me", authHandler.Me)
				r.With(authMiddleware.RequireVerifiedEmail).Post("/change-password", authHandler.ChangePassword)
				r.With(authMiddleware.RequireAdmin).Post("/admin/register", adminHandler.RegisterUser)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Use(authMiddleware.RequireAdmin)

			r.Post("/register", adminHandler.RegisterUser)
			r.Post("/users", adminHandler.RegisterUser)
			r.Post("/approve/{userId}", adminHandler.Approve)
			r.Post("/activate/{userId}", adminHandler.Approve)
			r.Post("/deactivate/{userId}", adminHandler.Deactivate)
			r.Get("/pending-users", adminHandler.PendingUsers)

			r.With(authMiddleware.RequireSuperAdmin).Post("/maintenance/cleanup-reset-attempts", adminHandler.CleanupResetAttempts)
		})

		r.Route("/password", func(r chi.Router) {
			r.With(resetLimit).Post("/request-reset", passwordHandler.RequestReset)
			r.Post("/reset", passwordHandler.ResetPassword)
			r.Get("/validate-token", passwordHandler.ValidateToken)
		})
	})

	return &Server{router: r}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// corsMiddleware reflects allowed origins. Loopback origins are always
// allowed so a local front-end works against any deployment.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" {
			allowed[origin] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if _, ok := allowed[origin]; !ok && !isLoopbackOrigin(origin) {
				writeError(w, http.StatusForbidden, constants.ErrCodeInvalidRequest, "Origin not allowed", nil)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func maxBodySizeMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func requestLogger(resolver *ClientIPResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			meta := &requestMeta{}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(contextWithRequestMeta(r.Context(), meta)))

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
				"client_ip", resolver.Resolve(r),
				"request_id", middleware.GetReqID(r.Context()),
			}
			if meta.userID != "" {
				attrs = append(attrs, "user_id", meta.userID)
			}
			slog.Info("http request", attrs...)
		})
	}
}
