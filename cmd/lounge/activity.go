package main

import (
	"context"
	"time"

	"github.com/goodtune/lounge/internal/activity"
	"github.com/goodtune/lounge/internal/storage"
	"github.com/spf13/cobra"
)

var (
	activityDevice   string
	activityMode     string
	activityDuration time.Duration
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Manage activities within a session",
}

var activityAddCmd = &cobra.Command{
	Use:   "add [flags] SESSION",
	Short: "Add an activity to a session",
	Example: `  lounge activity add --device ps4-3 --actor alice 6f1c...
  lounge activity add --actor alice 6f1c...   # chill-out slot`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			created, err := a.lifecycle.Create(ctx, activity.CreateRequest{
				SessionID: args[0],
				DeviceID:  activityDevice,
				Mode:      storage.Mode(activityMode),
				Duration:  activityDuration,
				Actor:     actor,
			})
			if err != nil {
				return err
			}
			printActivity(created)
			return nil
		})
	},
}

var activityModeCmd = &cobra.Command{
	Use:   "mode ACTIVITY MODE",
	Short: "Switch an activity between single and multi player pricing",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			changed, err := a.lifecycle.ChangeMode(ctx, args[0], storage.Mode(args[1]), actor)
			if err != nil {
				return err
			}
			printActivity(changed)
			return nil
		})
	},
}

// transitionCmd builds a single-argument activity command around a lifecycle transition.
func transitionCmd(use, short string, op func(l *activity.Lifecycle) func(ctx context.Context, id, actor string) (*storage.Activity, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ACTIVITY",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				updated, err := op(a.lifecycle)(ctx, args[0], actor)
				if err != nil {
					return err
				}
				printActivity(updated)
				return nil
			})
		},
	}
}

func init() {

	activityAddCmd.Flags().StringVar(&activityDevice, "device", "", "Device to occupy (omit for a chill-out slot)")
	activityAddCmd.Flags().StringVar(&activityMode, "mode", "single", "Pricing mode: single or multi")
	activityAddCmd.Flags().DurationVar(&activityDuration, "duration", 0, "Planned duration (0 = open-ended)")

	activityCmd.AddCommand(
		activityAddCmd,
		activityModeCmd,
		transitionCmd("pause", "Pause an active activity", func(l *activity.Lifecycle) func(context.Context, string, string) (*storage.Activity, error) {
			return l.Pause
		}),
		transitionCmd("resume", "Resume a paused activity", func(l *activity.Lifecycle) func(context.Context, string, string) (*storage.Activity, error) {
			return l.Resume
		}),
		transitionCmd("end", "End an activity", func(l *activity.Lifecycle) func(context.Context, string, string) (*storage.Activity, error) {
			return l.End
		}),
		transitionCmd("reopen", "Reopen an ended activity", func(l *activity.Lifecycle) func(context.Context, string, string) (*storage.Activity, error) {
			return l.Reopen
		}),
	)
	rootCmd.AddCommand(activityCmd)
}
