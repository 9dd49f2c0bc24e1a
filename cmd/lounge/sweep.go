package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goodtune/lounge/internal/sweep"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "End every activity whose scheduled end has passed",
	Long:  `Run the auto-end sweep once, for deployments that schedule it externally (cron, systemd timer).`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel)
			ended, err := sweep.NewScheduler(a.lifecycle, 0, logger).RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Ended %d expired activities\n", ended)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
