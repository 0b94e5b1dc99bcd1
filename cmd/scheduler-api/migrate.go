package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/craftbase/task-scheduler/internal/config"
	"github.com/craftbase/task-scheduler/internal/store"
	"github.com/craftbase/task-scheduler/pkg/log"
	"github.com/craftbase/task-scheduler/pkg/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the db",
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

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalf("initializing data store: %v", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if cfg.Service.MigrationsFolder != "" {
			if err := migrations.MigrateStore(db, cfg.Service.MigrationsFolder); err != nil {
				zap.S().Fatalf("running store migrations: %v", err)
			}
		} else if err := s.InitialMigration(); err != nil {
			zap.S().Fatalf("running initial migration: %v", err)
		}

		zap.S().Info("Db migrated")
		return nil
	},
}
