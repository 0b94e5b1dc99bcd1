package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/craftbase/task-scheduler/internal/config"
	handlers "github.com/craftbase/task-scheduler/internal/handlers/v1alpha1"
	"github.com/craftbase/task-scheduler/internal/service"
	"github.com/craftbase/task-scheduler/internal/store"
	"github.com/craftbase/task-scheduler/internal/tasks"
	"github.com/craftbase/task-scheduler/pkg/metrics"
	"github.com/craftbase/task-scheduler/pkg/middleware"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg      *config.Config
	store    store.Store
	registry *tasks.Registry
	listener net.Listener
}

// New returns a new instance of a task-scheduler API server.
func New(
	cfg *config.Config,
	store store.Store,
	registry *tasks.Registry,
	listener net.Listener,
) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		registry: registry,
		listener: listener,
	}
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegisterDefault()

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "PUT", "POST", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	execution := service.NewExecutionService(s.store, s.registry)
	jobHandler := handlers.NewJobHandler(execution)
	workflowHandler := handlers.NewWorkflowHandler(execution)

	router.Route("/api/v1alpha1", func(r chi.Router) {
		r.Post("/jobs", jobHandler.CreateJob)
		r.Get("/jobs", jobHandler.ListJobs)
		r.Get("/jobs/{id}", jobHandler.GetJob)
		r.Post("/workflows/cake", workflowHandler.StartCakeWorkflow)
	})
	router.Get("/health", handlers.Health)
	router.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Handler: router}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
