package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"pagespace/application/services"
	"pagespace/infrastructure/config"
	"pagespace/interfaces/http/rest/handlers"
	"pagespace/interfaces/http/rest/middleware"
	"pagespace/interfaces/ws"
	"pagespace/pkg/auth"
)

// Router creates and configures the HTTP router
type Router struct {
	cfg        *config.Config
	pages      *services.PageService
	workspaces *services.WorkspaceService
	sync       *ws.Handler
	validator  *auth.JWTValidator
	logger     *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	cfg *config.Config,
	pages *services.PageService,
	workspaces *services.WorkspaceService,
	sync *ws.Handler,
	validator *auth.JWTValidator,
	logger *zap.Logger,
) *Router {
	return &Router{
		cfg:        cfg,
		pages:      pages,
		workspaces: workspaces,
		sync:       sync,
		validator:  validator,
		logger:     logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))

	if rt.cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:3000", "https://*.pagespace.app"},
			AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health check
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)

	// API v1 routes
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(rt.validator, rt.logger))

		// Page endpoints
		r.Route("/pages", func(r chi.Router) {
			pageHandler := handlers.NewPageHandler(rt.pages, rt.logger)
			r.Post("/", pageHandler.CreatePage)
			r.Get("/{pageID}", pageHandler.GetPage)
			r.Patch("/{pageID}", pageHandler.UpdatePage)
			r.Put("/{pageID}", pageHandler.UpdatePage)
			r.Delete("/{pageID}", pageHandler.DeletePage)
		})

		// Workspace endpoints
		r.Route("/workspaces", func(r chi.Router) {
			workspaceHandler := handlers.NewWorkspaceHandler(rt.workspaces, rt.logger)
			pageHandler := handlers.NewPageHandler(rt.pages, rt.logger)
			r.Post("/", workspaceHandler.CreateWorkspace)
			r.Get("/", workspaceHandler.ListWorkspaces)
			r.Post("/{workspaceID}/members", workspaceHandler.AddMember)
			r.Get("/{workspaceID}/pages", pageHandler.ListPages)
			r.Get("/{workspaceID}/pages/tree", pageHandler.PageTree)
		})

		// Collaborative editing transport
		r.Get("/sync/{document}", rt.sync.Serve)
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck handles readiness check requests
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
