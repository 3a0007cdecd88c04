package cli

import (
	"os/signal"
	"syscall"

	"github.com/Freeeeeet/evalcalendar/internal/app"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API, background sweeps and notification delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info("Starting evalcalendar",
				zap.String("environment", cfg.Environment),
				zap.String("store", cfg.Store),
				zap.String("timezone", cfg.Timezone.String()))

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
}
