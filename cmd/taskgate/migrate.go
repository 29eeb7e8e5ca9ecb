package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/phrazzld/taskgate/internal/platform/postgres"
)

func newMigrateCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [" + strings.Join(postgres.MigrationCommands, "|") + "]",
		Short: "Run postgres snapshot schema migrations",
		Long: `Apply or inspect the task_snapshots schema used by the postgres snapshot backend.

Reads the database URL from --database-url, TASKGATE_SNAPSHOT_DATABASE_URL or the config file.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: postgres.MigrationCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}
			if !slices.Contains(postgres.MigrationCommands, command) {
				return fmt.Errorf("unknown migration command %q", command)
			}

			cfg, err := loadConfig(cmd, *cfgFile, flagBinding{key: "snapshot.database_url", flag: "database-url"})
			if err != nil {
				return err
			}
			if cfg.Snapshot.DatabaseURL == "" {
				return errors.New("database URL is required (--database-url or TASKGATE_SNAPSHOT_DATABASE_URL)")
			}
			logger, err := setupLogger(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			db, err := postgres.Open(ctx, cfg.Snapshot.DatabaseURL, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(ctx, db, command, logger); err != nil {
				return err
			}
			logger.Info("migration command completed", "command", command)
			return nil
		},
	}
	cmd.Flags().String("database-url", "", "postgres connection URL")
	return cmd
}
