// Package api provides the HTTP API server and handlers for the invitation server.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/invitarr/invitarr-server/internal/http/response"
	"github.com/invitarr/invitarr-server/internal/interaction"
	"github.com/invitarr/invitarr-server/internal/progress"
	"github.com/invitarr/invitarr-server/internal/ratelimit"
	"github.com/invitarr/invitarr-server/internal/service"
	"github.com/invitarr/invitarr-server/internal/store"
)

// Services groups all business logic services used by the API server.
type Services struct {
	Invitations  *service.InvitationService
	Wizards      *service.WizardService
	Servers      *service.ServerService
	Redemptions  *service.RedemptionService
	Accounts     *service.AccountService
	Sweeper      *service.Sweeper
	Interactions *interaction.Registry
}

// Options configures the HTTP surface.
type Options struct {
	Version string

	// AdminToken is the bearer token for /api/v1/admin. Empty disables the admin API.
	AdminToken  string
	CORSOrigins []string

	// PublicLimiter throttles the unauthenticated redemption routes per client IP.
	PublicLimiter *ratelimit.KeyedRateLimiter

	// Gatherer backs /metrics. Nil leaves the route unregistered.
	Gatherer prometheus.Gatherer
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store      store.Store
	sessions   *progress.Store
	services   *Services
	router     *chi.Mux
	api        huma.API
	adminToken string
	logger     *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(st store.Store, sessions *progress.Store, services *Services, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		store:      st,
		sessions:   sessions,
		services:   services,
		router:     chi.NewRouter(),
		adminToken: opts.AdminToken,
		logger:     logger,
	}

	s.setupMiddleware(opts)

	humaConfig := huma.DefaultConfig("Invitarr API", opts.Version)
	humaConfig.Info.Description = "Invitation codes, guided onboarding and account provisioning for media servers."
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:   "http",
			Scheme: "bearer",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerInvitationRoutes()
	s.registerRedemptionRoutes()
	s.registerServerRoutes()
	s.registerWizardRoutes()
	s.registerUserRoutes()
	s.registerSweepRoutes()

	if opts.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	s.router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.NotFound(w, "route not found", s.logger)
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.MethodNotAllowed(w, s.logger)
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, for tests and OpenAPI export.
func (s *Server) API() huma.API {
	return s.api
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware(opts Options) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)

	if len(opts.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	if opts.PublicLimiter != nil {
		s.router.Use(publicRateLimit(opts.PublicLimiter, s.logger))
	}
}

// adminSecurity marks an operation as requiring the admin bearer token.
var adminSecurity = []map[string][]string{{"bearer": {}}}
