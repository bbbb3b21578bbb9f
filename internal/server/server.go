// Package server wires the admin HTTP surface's middleware chain and
// route table into a single http.Server, in the teacher's
// internal/server/router.go shape (a struct holding *http.Server plus
// Start/StartAsync/Shutdown methods), narrowed to this repo's single
// admin surface — there is no separate "manager" server here, since
// resharding/operator/backup, the teacher's reason for a second server,
// is out of scope.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sharding-system/internal/api"
	"github.com/sharding-system/internal/middleware"
	"github.com/sharding-system/pkg/config"
	"github.com/sharding-system/pkg/health"
	"github.com/sharding-system/pkg/iterator"
	"github.com/sharding-system/pkg/lookupservice"
	"github.com/sharding-system/pkg/registry"
	"github.com/sharding-system/pkg/security"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// Deps bundles every component the admin HTTP surface fronts.
type Deps struct {
	Config      *config.Config
	AuthManager *security.AuthManager
	Audit       *security.AuditLogger
	Lookup      *lookupservice.Service
	Registry    *registry.Registry
	Iterator    *iterator.Iterator
	Health      *health.Controller
	Logger      *zap.Logger
}

// Server is the admin HTTP surface.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *zap.Logger
}

// Handler returns the root http.Handler, for tests that want to drive
// requests through httptest.NewServer or httptest.NewRecorder without
// binding a real listener.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// New builds the mux.Router, applies the middleware chain (CORS first so
// error responses still carry CORS headers, then logging, then the
// request-size and content-type guards; auth runs only on the /api/v1
// subrouter), and registers every route.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	authHandler := api.NewAuthHandler(deps.AuthManager, deps.Config.Server.Operators, logger)
	healthHandler := api.NewHealthHandler(deps.Health, logger)
	directoryHandler := api.NewDirectoryHandler(deps.Lookup, deps.Registry, deps.Audit, logger)
	iteratorHandler := api.NewIteratorHandler(deps.Iterator, deps.Lookup, logger)

	root := mux.NewRouter()
	root.Use(middleware.CORS)
	root.Use(middleware.Logging(logger))
	root.Use(middleware.RequestSizeLimit(10 << 20))
	root.Use(middleware.ContentTypeValidation([]string{"application/json"}))

	api.SetupPublicRoutes(root, authHandler, healthHandler)

	protected := root.PathPrefix("/api/v1").Subrouter()
	protected.Use(middleware.RequireAuth(deps.AuthManager, logger))
	api.SetupDirectoryRoutes(protected, deps.AuthManager, directoryHandler)
	api.SetupIteratorRoutes(protected, deps.AuthManager, iteratorHandler)

	root.Handle("/metrics", promhttp.Handler()).Methods("GET", "OPTIONS")

	root.HandleFunc("/docs/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(swaggerTemplate))
	}).Methods("GET", "OPTIONS")
	root.PathPrefix("/docs/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DomID("swagger-ui"),
	)).Methods("GET", "OPTIONS")

	addr := fmt.Sprintf("%s:%d", deps.Config.Server.Host, deps.Config.Server.Port)
	return &Server{
		logger:  logger,
		handler: root,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      root,
			ReadTimeout:  deps.Config.Server.ReadTimeout,
			WriteTimeout: deps.Config.Server.WriteTimeout,
			IdleTimeout:  deps.Config.Server.IdleTimeout,
		},
	}
}

// Start blocks serving the admin HTTP surface until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting admin server", zap.String("address", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin server failed: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine, exiting the process on a
// listen failure.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Fatal("admin server failed", zap.Error(err))
		}
	}()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down admin server")
	return s.httpServer.Shutdown(ctx)
}

const swaggerTemplate = `{"swagger":"2.0","info":{"title":"sharding router admin API","version":"1.0"},"paths":{}}`
