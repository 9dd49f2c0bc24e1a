package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
	actor      string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lounge",
	Short: "Lounge - billing engine for gaming and billiard lounges",
	Long: `Lounge tracks customer sessions on consoles and billiard tables. Activities
can pause, resume, switch between single and multi player pricing and order
products; every change recomputes the bill.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to server command when no subcommand is provided
		return runServer(cmd, args)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/lounge/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", defaultActor(), "Staff member recorded on changes")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// defaultActor is the login name recorded when --actor is not given.
func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "staff"
}
