package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zenohealth/salus/internal/accounts"
	"github.com/zenohealth/salus/internal/auth"
	"github.com/zenohealth/salus/internal/http/handlers"
	httpmiddleware "github.com/zenohealth/salus/internal/http/middleware"
	"github.com/zenohealth/salus/pkg/logging"
	"github.com/zenohealth/salus/web"
)

// Config holds router configuration
type Config struct {
	Logger       *logging.Logger
	Sessions     *auth.SessionManager
	Accounts     accounts.Repository
	Auth         *handlers.AuthHandler
	Portal       *handlers.PortalHandler
	Registration *handlers.RegistrationHandler

	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	r.Use(auth.CurrentUser(cfg.Sessions, cfg.Accounts))

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(web.Static()))))

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", cfg.Portal.Health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}

		public.Get("/login", cfg.Auth.ShowLogin)
		public.Get("/password/recover", cfg.Auth.ShowPasswordRecover)
		public.Get("/password/recover/sent", cfg.Auth.ShowPasswordRecoverSent)
		public.Get("/password/reset", cfg.Auth.ShowPasswordReset)
		if cfg.Registration != nil {
			public.Get("/register", cfg.Registration.ShowRegister)
		}

		// Credential submissions get per-IP rate limiting against
		// brute force and enumeration.
		public.Group(func(limited chi.Router) {
			limited.Use(httpmiddleware.RateLimit(1, 10))

			limited.Post("/login", cfg.Auth.Login)
			limited.Post("/password/recover", cfg.Auth.PasswordRecover)
			// Forced password change; guarded by the single-use
			// reset session, not by a login.
			limited.Post("/password/reset", cfg.Auth.PasswordReset)
			if cfg.Registration != nil {
				limited.Post("/register", cfg.Registration.Register)
			}
		})
	})

	// Patient pages (session required)
	r.Group(func(portal chi.Router) {
		portal.Use(auth.RequireLogin)
		portal.Use(auth.RequireCSRF)

		portal.Get("/", cfg.Portal.Home)
		portal.Get("/appointments", cfg.Portal.Appointments)
		portal.Get("/reports", cfg.Portal.Reports)
		portal.Get("/examinations/{examinationID}/report", cfg.Portal.DownloadReport)
		portal.Post("/logout", cfg.Auth.Logout)
	})

	return r
}
