package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	handlers "github.com/de-tools/cloud-sentinel/pkg/handlers/findings"
	sentinelmiddleware "github.com/de-tools/cloud-sentinel/pkg/server/middleware"
	"github.com/de-tools/cloud-sentinel/pkg/services/lifecycle"
)

type WebAPI struct {
	router          *chi.Mux
	logger          *zerolog.Logger
	server          *http.Server
	shutdownTimeout time.Duration
}

type Dependencies struct {
	Service lifecycle.Service
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	// RequestTimeout bounds a single request; scans and remediations run inside it.
	RequestTimeout time.Duration
	Dependencies   Dependencies
}

func NewWebAPI(logger zerolog.Logger, config Config) *WebAPI {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 5 * time.Minute
	}

	h := handlers.NewHandler(config.Dependencies.Service)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(sentinelmiddleware.Logger(&logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(config.RequestTimeout))

	router.Get("/healthz", h.Health)
	if config.Dependencies.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", config.Dependencies.Metrics)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/findings", h.ListFindings)
		r.Get("/findings/{id}", h.GetFinding)
		r.Get("/findings/{id}/remediations", h.ListRemediations)
		r.Post("/findings/{id}/remediate", h.Remediate)
		r.Post("/findings/{id}/suppress", h.Suppress)
		r.Post("/scans", h.Scan)
	})

	return &WebAPI{
		router:          router,
		logger:          &logger,
		shutdownTimeout: config.ShutdownTimeout,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (w *WebAPI) Handler() http.Handler {
	return w.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (w *WebAPI) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	go func() {
		w.logger.Info().Str("addr", w.server.Addr).Msg("starting server")
		serverErrors <- w.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		w.logger.Info().Msg("shutdown initiated")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
		defer cancel()

		err := w.server.Shutdown(shutdownCtx)
		if err != nil {
			w.logger.Error().Err(err).Msg("graceful shutdown failed")
			err = w.server.Close()
		}

		if err != nil {
			return err
		}
	}

	return nil
}
