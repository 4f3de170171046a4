// Package cmd defines the nova command line interface.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/novaops/nova/internal/log"
)

var (
	flagDebug   bool
	flagLogJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "nova",
	Short: "NOVA - conversational assistant for object storage clusters",
	Long: `NOVA answers natural-language questions about an object storage
cluster. It translates requests into metadata queries, control plane
calls, or live metric lookups, and asks before anything destructive.

Run "nova serve" to start the HTTP API, "nova mcp" to expose the tool
catalog to MCP clients, or "nova ask" for a one-shot question.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "log in JSON format")
}

// newLogger builds the process logger from the global flags.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagDebug {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level, JSON: flagLogJSON})
	slog.SetDefault(logger)
	return logger
}
