package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/novaops/nova/internal/app"
	"github.com/novaops/nova/internal/config"
	"github.com/novaops/nova/internal/executor"
)

var askConfirm bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a one-shot question about the cluster",
	Long: `Ask submits a single question in a fresh session and prints the
answer. Destructive operations are refused unless --confirm is given.

Examples:
  nova ask "list my buckets"
  nova ask "how big is bucket media?"
  nova ask --confirm "delete bucket scratch"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askConfirm, "confirm", false, "confirm a destructive operation")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	sess, err := a.Assistant.CreateSession(ctx)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	defer func() {
		_ = a.Assistant.DeleteSession(context.Background(), sess.ID)
	}()

	question := strings.Join(args, " ")
	resp, err := a.Assistant.SubmitTurn(ctx, sess.ID, question, askConfirm)
	if err != nil {
		return fmt.Errorf("processing question: %w", err)
	}

	fmt.Println(resp.Response)

	if resp.NeedsConfirmation {
		fmt.Println()
		fmt.Println("Re-run with --confirm to proceed.")
	}
	for _, inv := range resp.Invocations {
		if inv.Status == executor.StatusError {
			return fmt.Errorf("tool %s failed (%s)", inv.Tool, inv.ErrorKind)
		}
	}
	return nil
}
