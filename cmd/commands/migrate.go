package commands

import (
	"github.com/Automobile-System/backend-sub001/config"
	"github.com/Automobile-System/backend-sub001/db"
	"github.com/Automobile-System/backend-sub001/internal/logging"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Args:  cobra.NoArgs,
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			logger := logging.New(cfg.LogLevel, cfg.IsProduction())

			pool, err := db.NewPostgresPool(cmd.Context(), cfg.DBURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			logger.Info("schema applied")
			return nil
		},
	}
}
