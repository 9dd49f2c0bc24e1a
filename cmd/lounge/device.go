package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goodtune/lounge/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	deviceName       string
	deviceMultiPrice string
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage consoles and billiard tables",
}

var deviceUpsertCmd = &cobra.Command{
	Use:   "upsert [flags] DEVICE TYPE PRICE_PER_HOUR",
	Short: "Create or update a device",
	Long:  `Create or update a device. TYPE is one of ps4, ps5, billboard.`,
	Example: `  lounge device upsert --name "PS5 #1" --multi-price 50 ps5-1 ps5 25
  lounge device upsert pool-1 billboard 20`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		price, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("invalid price: %s", args[2])
		}
		device := storage.Device{
			ID:           args[0],
			Name:         deviceName,
			Type:         storage.DeviceType(args[1]),
			PricePerHour: price,
		}
		if deviceMultiPrice != "" {
			multi, err := decimal.NewFromString(deviceMultiPrice)
			if err != nil {
				return fmt.Errorf("invalid multi price: %s", deviceMultiPrice)
			}
			device.PricePerHourMulti = &multi
		}

		return withApp(func(ctx context.Context, a *app) error {
			// Keep the current status of an existing device
			if existing, err := a.devices.Get(ctx, device.ID); err == nil {
				device.Status = existing.Status
				if device.Name == "" {
					device.Name = existing.Name
				}
			}
			if device.Name == "" {
				device.Name = device.ID
			}
			return a.devices.Upsert(ctx, device)
		})
	},
}

var deviceStatusCmd = &cobra.Command{
	Use:   "status DEVICE STATUS",
	Short: "Set a device's status (available, in_use, maintenance)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			return a.devices.SetStatus(ctx, args[0], storage.DeviceStatus(args[1]))
		})
	},
}

var deviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			list, err := a.devices.List(ctx)
			if err != nil {
				return err
			}
			for _, d := range list {
				printDevice(os.Stdout, d)
			}
			return nil
		})
	},
}

func init() {
	deviceUpsertCmd.Flags().StringVar(&deviceName, "name", "", "Display name")
	deviceUpsertCmd.Flags().StringVar(&deviceMultiPrice, "multi-price", "", "Hourly price in multi player mode (defaults to the single price)")
	deviceCmd.AddCommand(deviceUpsertCmd, deviceStatusCmd, deviceListCmd)
	rootCmd.AddCommand(deviceCmd)
}
