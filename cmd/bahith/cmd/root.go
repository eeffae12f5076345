// Package cmd implements the bahith debug CLI. The service itself is
// consumed as a library by the HTTP layer; these commands exist for
// operators poking at a local deployment.
package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/noorlib/bahith/internal/config"
	"github.com/noorlib/bahith/internal/logging"
)

var (
	cfgPath string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "bahith",
	Short: "Hybrid Arabic/Islamic search core",
	Long: `bahith runs hybrid lexical + semantic search over book pages,
Quran verses and hadiths. This CLI is a debug surface over the library.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real deployments export the variables.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		logging.Setup(cfg.Logging.Level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "bahith.yaml", "config file path")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
