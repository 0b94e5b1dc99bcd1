package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apiserver "github.com/craftbase/task-scheduler/internal/api_server"
	"github.com/craftbase/task-scheduler/internal/bakery"
	"github.com/craftbase/task-scheduler/internal/config"
	"github.com/craftbase/task-scheduler/internal/events"
	"github.com/craftbase/task-scheduler/internal/scheduler"
	"github.com/craftbase/task-scheduler/internal/store"
	"github.com/craftbase/task-scheduler/internal/tasks"
	"github.com/craftbase/task-scheduler/pkg/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler api",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}

		logLvl, err := zap.ParseAtomicLevel(cfg.Service.LogLevel)
		if err != nil {
			logLvl = zap.NewAtomicLevelAt(zap.InfoLevel)
		}

		logger := log.InitLog(logLvl)
		defer func() { _ = logger.Sync() }()
		undo := zap.ReplaceGlobals(logger)
		defer undo()

		zap.S().Info("Starting scheduler service")
		defer zap.S().Info("Scheduler service stopped")

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalf("initializing data store: %v", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if err := s.InitialMigration(); err != nil {
			zap.S().Fatalf("running initial migration: %v", err)
		}

		// The registry must be complete before the coordinator starts polling.
		registry := tasks.NewRegistry()
		bakery.RegisterAll(registry)

		producer := events.NewEventProducer(&events.StdoutWriter{})
		defer func() { _ = producer.Close() }()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		clock := scheduler.NewClock()
		pool := scheduler.NewWorkerPool(
			cfg.Scheduler.CorePoolSize,
			cfg.Scheduler.MaxPoolSize,
			cfg.Scheduler.QueueCapacity,
			cfg.Scheduler.ThreadNamePrefix,
		)

		coordinator := scheduler.NewCoordinator(cfg, s, registry, pool, clock, producer)
		go coordinator.Run(ctx)

		reaper := scheduler.NewReaper(s, clock, cfg.Scheduler.LeaseReapAfter)
		go reaper.Run(ctx)

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				zap.S().Fatalf("creating listener: %s", err)
			}

			server := apiserver.New(cfg, s, registry, listener)
			if err := server.Run(ctx); err != nil {
				zap.S().Fatalf("Error running server: %s", err)
			}
		}()

		<-ctx.Done()
		return nil
	},
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
