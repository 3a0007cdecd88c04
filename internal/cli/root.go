package cli

import (
	"github.com/Freeeeeet/evalcalendar/internal/app"
	"github.com/Freeeeeet/evalcalendar/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "evalcalendar",
		Short:         "Evaluation calendar: supervisor availability and booking lifecycle",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSweepCmd())
	cmd.AddCommand(NewSupervisorCmd())
	cmd.AddCommand(NewChallengeCmd())
	return cmd
}

// bootstrap загружает конфигурацию и создаёт логгер
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, app.NewLogger(cfg.Environment), nil
}
