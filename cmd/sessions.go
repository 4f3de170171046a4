package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/novaops/nova/internal/app"
	"github.com/novaops/nova/internal/config"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage conversation sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			sessions, err := a.Assistant.Sessions(ctx)
			if err != nil {
				return fmt.Errorf("listing sessions: %w", err)
			}
			if len(sessions) == 0 {
				fmt.Println("No live sessions.")
				return nil
			}
			fmt.Printf("%-38s %-22s %-22s %s\n", "ID", "CREATED", "UPDATED", "TURNS")
			for _, s := range sessions {
				fmt.Printf("%-38s %-22s %-22s %d\n",
					s.ID,
					s.CreatedAt.Format("2006-01-02 15:04:05"),
					s.UpdatedAt.Format("2006-01-02 15:04:05"),
					s.TurnCount)
			}
			return nil
		})
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			turns, err := a.Assistant.History(ctx, args[0])
			if err != nil {
				return fmt.Errorf("loading session: %w", err)
			}
			for _, turn := range turns {
				label := string(turn.Role)
				if turn.InvokedTool != "" {
					label = fmt.Sprintf("%s (%s)", label, turn.InvokedTool)
				}
				fmt.Printf("[%3d] %-24s %s\n", turn.Seq, label, turn.Content)
			}
			return nil
		})
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session and its turns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			if err := a.Assistant.DeleteSession(ctx, args[0]); err != nil {
				return fmt.Errorf("deleting session: %w", err)
			}
			fmt.Printf("Session %s deleted.\n", args[0])
			return nil
		})
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// withApp loads config, sets up the application, runs fn, and tears
// everything down. Shared plumbing for the short-lived CLI commands.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	return fn(ctx, a)
}
