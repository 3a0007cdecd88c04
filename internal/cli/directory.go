package cli

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/evalcalendar/internal/app"
	"github.com/Freeeeeet/evalcalendar/internal/config"
	"github.com/Freeeeeet/evalcalendar/internal/service"
	"github.com/spf13/cobra"
)

func NewSupervisorCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "supervisor",
		Short: "Manage supervisors",
	}

	var in service.SupervisorInput
	var chatID int64

	add := &cobra.Command{
		Use:   "add",
		Short: "Register a supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("telegram-chat-id") {
				in.TelegramChatID = &chatID
			}
			return withDirectory(cmd.Context(), func(ctx context.Context, d *service.DirectoryService) error {
				user, err := d.RegisterSupervisor(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "supervisor %d: %s <%s>\n", user.ID, user.Name, user.Email)
				return nil
			})
		},
	}
	add.Flags().StringVar(&in.Name, "name", "", "display name")
	add.Flags().StringVar(&in.Email, "email", "", "email for notifications")
	add.Flags().Int64Var(&chatID, "telegram-chat-id", 0, "Telegram chat shown by the bot's /start")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("email")

	c.AddCommand(add)
	return c
}

func NewChallengeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "challenge",
		Short: "Manage challenges",
	}

	var in service.ChallengeInput

	add := &cobra.Command{
		Use:   "add",
		Short: "Create a challenge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(cmd.Context(), func(ctx context.Context, d *service.DirectoryService) error {
				challenge, err := d.CreateChallenge(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "challenge %d: %s\n", challenge.ID, challenge.Name)
				return nil
			})
		},
	}
	add.Flags().StringVar(&in.Name, "name", "", "challenge name")
	add.Flags().StringVar(&in.Description, "description", "", "optional description")
	_ = add.MarkFlagRequired("name")

	c.AddCommand(add)
	return c
}

// withDirectory открывает Postgres для команд администрирования справочников
func withDirectory(ctx context.Context, fn func(ctx context.Context, d *service.DirectoryService) error) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Store != config.StorePostgres {
		return fmt.Errorf("directory commands require STORE=%s", config.StorePostgres)
	}

	pool, err := app.OpenPool(ctx, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, service.NewDirectoryService(app.PostgresStores(pool), logger.Named("directory")))
}
