// Package commands implements the crowdfund command line.
package commands

import (
	"github.com/spf13/cobra"

	"crowdfund/internal/cli"
	"crowdfund/internal/config"
	"crowdfund/internal/log"
)

var (
	globalConfig *config.Config
	logger       *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "crowdfund",
	Short: "Crowdfund - a multi-project crowdfunding ledger",
	Long: `Crowdfund keeps the books for many crowdfunding projects at once: donations,
owner withdrawals once a goal is met, and donor refunds after a failed raise.
Configuration is read from the environment and an optional .env file.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cli.LoadEnvFile()
		cfg, err := cli.LoadAndValidateConfig()
		if err != nil {
			return err
		}
		globalConfig = cfg
		logger = cli.SetupLogger(cfg)
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(relayCmd)
}
