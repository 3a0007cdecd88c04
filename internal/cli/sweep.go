package cli

import (
	"github.com/Freeeeeet/evalcalendar/internal/app"
	"github.com/spf13/cobra"
)

// NewSweepCmd один проход отмены просроченных заявок и напоминаний (для cron)
func NewSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run expiry and reminder sweeps once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			a.Dispatcher.Start(ctx)
			a.Scheduler.RunOnce(ctx)
			// Дожидаемся доставки уведомлений, поставленных проходом
			a.Dispatcher.Stop()
			return nil
		},
	}
}
