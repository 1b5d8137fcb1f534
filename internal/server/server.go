// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: New opens the relational store and the
// optional blob store, builds the services on top of them, and maps routes
// to handlers. Nothing below this package knows which concrete store or
// transport is in use.
//
// ROUTES:
//
//	GET  /healthz                   store reachability
//	POST /api/auth/register         create a login
//	POST /api/auth/login            set the session cookie
//	POST /api/auth/logout           clear the session cookie
//	GET  /api/me                    (auth) current session
//	GET  /api/households/{hshdNum}  (auth) joined records for one household
//	GET  /api/dashboard             (auth) household count, top departments
//	POST /api/datasets              (auth) replace the three tables from CSV
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/retail-analytics/internal/auth"
	"github.com/sakif/retail-analytics/internal/blob"
	"github.com/sakif/retail-analytics/internal/config"
	"github.com/sakif/retail-analytics/internal/handler"
	"github.com/sakif/retail-analytics/internal/middleware"
	"github.com/sakif/retail-analytics/internal/repository/sqldb"
	"github.com/sakif/retail-analytics/internal/service"
)

// Server owns the store connections for its lifetime; Close (or Start
// returning) releases them.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger

	db    *sqldb.DB
	blobs blob.Store // nil when no blob connection is configured

	Ingest *service.IngestService
}

// New connects to the stores and wires every layer.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("server: JWT_SECRET is required")
	}
	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	db, err := sqldb.New(ctx, cfg.StoreDSN, sqldb.Options{
		Retry:   cfg.Retry(),
		Timeout: cfg.IOTimeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	var blobs blob.Store
	if cfg.BlobConnection != "" {
		blobs, err = blob.New(ctx, cfg.BlobConnection, cfg.BlobContainer)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("opening blob store: %w", err)
		}
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		blobs:  blobs,
		Ingest: service.NewIngestService(db, blobs, IngestOptions(cfg, logger), logger),
	}
	s.setupRoutes(tokens)
	return s, nil
}

// IngestOptions derives the ingestion settings from cfg.
func IngestOptions(cfg *config.Config, logger *slog.Logger) service.IngestOptions {
	return service.IngestOptions{
		ChunkSize:      cfg.ChunkSize,
		TransactionCap: cfg.TransactionCap,
		Stage: blob.StageOptions{
			Prefix:  cfg.BlobPrefix,
			Dir:     cfg.StagingDir,
			Timeout: cfg.IOTimeout,
			Retry:   cfg.Retry(),
			Logger:  logger,
		},
	}
}

// Middleware order: RequestID must come before Logger so every log line
// carries the ID.
func (s *Server) setupRoutes(tokens *auth.TokenService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	authService := service.NewAuthService(s.db, tokens, auth.NewPasswordService(), s.logger)
	householdService := service.NewHouseholdService(s.db, s.logger)

	authHandler := handler.NewAuthHandler(authService, tokens.TTL(), s.config.CookieSecure, s.logger)
	householdHandler := handler.NewHouseholdHandler(householdService, s.logger)
	datasetHandler := handler.NewDatasetHandler(s.Ingest, s.logger)

	s.router.Get("/healthz", handler.HandleHealth(s.db, s.logger))

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.HandleRegister)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/logout", authHandler.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/me", authHandler.HandleMe)
			r.Get("/households/{hshdNum}", householdHandler.HandleLookup)
			r.Get("/dashboard", householdHandler.HandleDashboard)
			r.Post("/datasets", datasetHandler.HandleUpload)
		})
	})
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store connections.
func (s *Server) Close() error {
	var errs []error
	if s.blobs != nil {
		errs = append(errs, s.blobs.Close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

// httpServer applies the listen address and timeouts. ReadTimeout covers
// the whole request body and a full dataset upload can run to hundreds of
// MiB, so both body timeouts follow IOTimeout; headers get a short fixed
// limit.
func (s *Server) httpServer() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       s.config.IOTimeout + 15*time.Second,
		WriteTimeout:      s.config.IOTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to 30 seconds and closes the stores.
func (s *Server) Start() error {
	defer s.Close()

	srv := s.httpServer()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("dialect", s.db.Dialect().Name()),
			slog.Bool("blob_store", s.blobs != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
