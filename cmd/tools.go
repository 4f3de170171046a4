package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/novaops/nova/internal/tool"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the tool catalog",
	Long: `Print every tool the assistant can invoke, with its mutation class
and required arguments. The catalog is fixed at build time; no cluster
connection is needed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTools()
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools() error {
	logger := newLogger()

	reg := tool.NewRegistry(logger)
	if err := tool.RegisterBuiltins(reg); err != nil {
		return fmt.Errorf("building tool catalog: %w", err)
	}
	reg.Freeze()

	fmt.Printf("Catalog version: %s\n\n", reg.Version())
	for _, d := range reg.All() {
		flags := string(d.Class)
		if d.Destructive {
			flags += ", destructive"
		}
		fmt.Printf("%s [%s]\n", d.Name, flags)
		fmt.Printf("  %s\n", d.Description)
		if req := d.RequiredArgs(); len(req) > 0 {
			fmt.Printf("  requires: %s\n", strings.Join(req, ", "))
		}
		fmt.Println()
	}
	return nil
}
