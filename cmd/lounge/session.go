package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goodtune/lounge/internal/session"
	"github.com/goodtune/lounge/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	sessionDevice   string
	sessionMode     string
	sessionDuration time.Duration
	sessionConfirm  bool
	sessionDiscount string
	sessionStatus   string
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage customer sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start [flags] CUSTOMER",
	Short: "Start a session",
	Long:  `Start a session for a customer. With --device the first activity uses the device; without it the session is a chill-out visit.`,
	Example: `  lounge session start --device ps5-1 --mode multi --actor alice cust-42
  lounge session start --device pool-2 --duration 2h --actor alice cust-7`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			s, first, err := a.aggregator.Start(ctx, session.StartRequest{
				CustomerID: args[0],
				DeviceID:   sessionDevice,
				Mode:       storage.Mode(sessionMode),
				Duration:   sessionDuration,
				Actor:      actor,
			})
			if err != nil {
				return err
			}
			printSession(s)
			printActivity(first)
			return nil
		})
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end [flags] SESSION",
	Short: "End a session",
	Long:  `End a session. Running activities are ended only with --confirm.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		discount, err := decimal.NewFromString(sessionDiscount)
		if err != nil {
			return fmt.Errorf("invalid discount: %s", sessionDiscount)
		}
		return withApp(func(ctx context.Context, a *app) error {
			s, err := a.aggregator.End(ctx, args[0], session.EndRequest{
				Confirm:  sessionConfirm,
				Discount: discount,
				Actor:    actor,
			})
			if err != nil {
				return err
			}
			bill, err := a.aggregator.Bill(ctx, s.ID)
			if err != nil {
				return err
			}
			printBill(os.Stdout, bill)
			return nil
		})
	},
}

var sessionPauseCmd = &cobra.Command{
	Use:   "pause SESSION",
	Short: "Pause every active activity of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			s, err := a.aggregator.PauseAll(ctx, args[0], actor)
			if err != nil {
				return err
			}
			printSession(s)
			return nil
		})
	},
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume SESSION",
	Short: "Resume every paused activity of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			s, err := a.aggregator.ResumeAll(ctx, args[0], actor)
			if err != nil {
				return err
			}
			printSession(s)
			return nil
		})
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show SESSION",
	Short: "Show the itemised bill of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			bill, err := a.aggregator.Bill(ctx, args[0])
			if err != nil {
				return err
			}
			printBill(os.Stdout, bill)
			return nil
		})
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			sessions, err := a.aggregator.List(ctx, storage.SessionFilter{Status: storage.SessionStatus(sessionStatus)})
			if err != nil {
				return err
			}
			for i := range sessions {
				printSession(&sessions[i])
			}
			return nil
		})
	},
}

func init() {

	sessionStartCmd.Flags().StringVar(&sessionDevice, "device", "", "Device for the first activity (omit for chill-out)")
	sessionStartCmd.Flags().StringVar(&sessionMode, "mode", "single", "Pricing mode: single or multi")
	sessionStartCmd.Flags().DurationVar(&sessionDuration, "duration", 0, "Planned duration of the first activity (0 = open-ended)")

	sessionEndCmd.Flags().BoolVar(&sessionConfirm, "confirm", false, "End running activities")
	sessionEndCmd.Flags().StringVar(&sessionDiscount, "discount", "0", "Discount subtracted from the total")

	sessionListCmd.Flags().StringVar(&sessionStatus, "status", "", "Only sessions with this status (active, paused, ended)")

	sessionCmd.AddCommand(sessionStartCmd, sessionEndCmd, sessionPauseCmd, sessionResumeCmd, sessionShowCmd, sessionListCmd)
	rootCmd.AddCommand(sessionCmd)
}
