// Package cmd implements the command-line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/webcron/cmd/serve"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var debug bool

var rootCmd = &cobra.Command{
	Use:   "webcron",
	Short: "A persistent HTTP job scheduler",
	Long: `Webcron schedules HTTP requests on cron or fixed-interval schedules,
records every execution and serves a REST API for managing jobs.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if debug {
			viper.Set("app_debug", true)
			viper.Set("log_level", "debug")
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("webcron %s\n", Version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Environment from a local .env file, when present.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}

	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serve.Command())
}
