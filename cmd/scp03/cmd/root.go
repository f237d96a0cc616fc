// Package cmd provides the CLI commands for the scp03 tool.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jkolo/go-scp03/internal/config"
	"github.com/jkolo/go-scp03/internal/logging"
)

var (
	debug bool
	human bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "scp03",
	Short: "SCP03 secure channel utilities",
	Long:  `Utilities for opening GlobalPlatform SCP03 secure channels to smart-card-class secure elements and exchanging protected APDUs.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if err := config.Initialize(); err != nil {
			return err
		}

		logging.InitLogger(debug, human)

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&human, "human", true, "human-readable log output")
}
