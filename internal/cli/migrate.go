package cli

import (
	"fmt"

	"github.com/Freeeeeet/evalcalendar/internal/app"
	"github.com/Freeeeeet/evalcalendar/internal/config"
	"github.com/spf13/cobra"
)

func NewMigrateCmd() *cobra.Command {
	var statusOnly bool

	c := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Store != config.StorePostgres {
				return fmt.Errorf("migrate requires STORE=%s", config.StorePostgres)
			}

			ctx := cmd.Context()
			pool, err := app.OpenPool(ctx, cfg.DBDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator, err := app.NewMigrator(pool, logger)
			if err != nil {
				return err
			}
			defer migrator.Close()

			if statusOnly {
				version, err := migrator.Version(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", version)
				return nil
			}

			return migrator.Run(ctx)
		},
	}

	c.Flags().BoolVar(&statusOnly, "status", false, "print current schema version and exit")
	return c
}
