package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noorlib/bahith/internal/lexical"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index document counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		lex, err := lexical.NewEngine(lexical.Config{Dir: cfg.Paths.IndexDir})
		if err != nil {
			return err
		}
		defer func() { _ = lex.Close() }()

		fmt.Printf("env: %s\n", cfg.Env)
		for name, count := range lex.DocCounts() {
			fmt.Printf("%-10s %d docs\n", name, count)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("bahith", Version)
	},
}

// Version is stamped by the build.
var Version = "dev"

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}
