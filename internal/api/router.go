package api

import (
	"net/http"

	"github.com/Togather-Foundation/rsvp/internal/api/handlers"
	"github.com/Togather-Foundation/rsvp/internal/api/middleware"
	"github.com/Togather-Foundation/rsvp/internal/audit"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/Togather-Foundation/rsvp/internal/uploads"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Deps is everything the HTTP gateway routes to. Photos, Health and
// RateLimiter are optional.
type Deps struct {
	Config        config.Config
	Logger        zerolog.Logger
	Tokens        *auth.JWTManager
	Users         *users.Service
	Events        *events.Service
	Registrations *registrations.Service
	Photos        *uploads.Store
	Health        *handlers.HealthChecker
	RateLimiter   *middleware.RateLimiter

	Version   string
	GitCommit string
	BuildDate string
}

// NewRouter mounts the API routes and wraps them in the middleware chain.
func NewRouter(deps Deps) http.Handler {
	env := deps.Config.Environment

	var photos handlers.PhotoStore
	maxPhoto := deps.Config.Uploads.MaxBytes
	if deps.Photos != nil {
		photos = deps.Photos
		maxPhoto = deps.Photos.MaxBytes()
	}

	authHandler := handlers.NewAuthHandler(deps.Users, env)
	eventsHandler := handlers.NewEventsHandler(deps.Events, photos, env)
	registrationsHandler := handlers.NewRegistrationsHandler(deps.Registrations, env)

	health := deps.Health
	if health == nil {
		health = handlers.NewHealthChecker(nil, nil, deps.Version, deps.GitCommit)
	}

	authenticated := middleware.JWTAuth(deps.Tokens, env)
	manageEvents := middleware.RequireCapability(auth.CapManageEvents, env)
	jsonBody := middleware.JSONRequestSize()
	uploadBody := middleware.UploadRequestSize(maxPhoto)

	login := http.Handler(http.HandlerFunc(authHandler.Login))
	if deps.RateLimiter != nil {
		login = deps.RateLimiter.Tier(middleware.TierLogin)(login)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", handlers.Healthz())
	mux.Handle("GET /readyz", health.Readyz())
	mux.Handle("GET /health", health.Health())
	mux.Handle("GET /version", VersionHandler(deps.Version, deps.GitCommit, deps.BuildDate))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{Registry: metrics.Registry}))
	mux.Handle("GET /api/openapi.json", OpenAPIHandler())
	if deps.Photos != nil {
		mux.Handle("GET "+uploads.PublicPrefix, deps.Photos.Handler())
	}

	mux.Handle("POST /api/auth/register", jsonBody(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /api/auth/login", jsonBody(login))

	mux.HandleFunc("GET /api/events", eventsHandler.List)
	mux.HandleFunc("GET /api/events/{id}", eventsHandler.Get)
	mux.Handle("POST /api/events", authenticated(manageEvents(uploadBody(http.HandlerFunc(eventsHandler.Create)))))
	mux.Handle("PUT /api/events/{id}", authenticated(uploadBody(http.HandlerFunc(eventsHandler.Update))))
	mux.Handle("DELETE /api/events/{id}", authenticated(http.HandlerFunc(eventsHandler.Delete)))

	mux.Handle("POST /api/registrations", authenticated(jsonBody(http.HandlerFunc(registrationsHandler.Create))))
	mux.Handle("GET /api/registrations/status/{eventId}", authenticated(http.HandlerFunc(registrationsHandler.Status)))
	mux.Handle("GET /api/registrations/{eventId}", authenticated(http.HandlerFunc(registrationsHandler.ListForEvent)))
	mux.Handle("DELETE /api/registrations/{registrationId}", authenticated(http.HandlerFunc(registrationsHandler.Cancel)))

	var handler http.Handler = mux
	if deps.RateLimiter != nil {
		handler = deps.RateLimiter.Middleware(handler)
	}
	handler = middleware.CORS(deps.Config.CORS, deps.Logger)(handler)
	handler = middleware.SecurityHeaders(env == "production")(handler)
	// Tracing and metrics read the matched pattern off the request the mux
	// receives, so nothing between them and the mux may replace the request.
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.RequestLogging(deps.Logger)(handler)
	handler = middleware.Tracing(handler)
	handler = audit.Middleware(handler)
	handler = middleware.CorrelationID(deps.Logger)(handler)
	handler = middleware.Recover(env)(handler)
	return handler
}
