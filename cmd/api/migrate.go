package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flames/api/internal/store"
)

var errMemoryDriver = errors.New("command needs FLAMES_STORE_DRIVER=postgres")

func dbPool() store.Pool {
	return store.Pool{MaxOpen: cfg.DBMaxOpen, MaxIdle: cfg.DBMaxIdle}
}

func openDatabase(ctx context.Context) (*sql.DB, error) {
	if cfg.StoreDriver != "postgres" {
		return nil, errMemoryDriver
	}
	db, err := store.Open(ctx, cfg.DatabaseURL, dbPool())
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return db, nil
}

func migrateCommand() *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if down {
				if err := store.RevertMigrations(ctx, db, cfg.MigrationsDir); err != nil {
					return err
				}
				logger.Info("migrations reverted", zap.String("dir", cfg.MigrationsDir))
				return nil
			}
			if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
				return err
			}
			logger.Info("migrations applied", zap.String("dir", cfg.MigrationsDir))
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "revert every applied migration")
	return cmd
}
