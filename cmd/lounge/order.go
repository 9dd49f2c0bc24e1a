package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goodtune/lounge/internal/orders"
	"github.com/goodtune/lounge/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	orderQuantity    int
	orderNewQuantity int
	orderProduct     string
	productName      string
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Manage product orders of an activity",
}

var orderAddCmd = &cobra.Command{
	Use:     "add [flags] ACTIVITY PRODUCT",
	Short:   "Order a product within an activity",
	Example: `  lounge order add --quantity 2 --actor alice 9b2e... cola`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			order, err := a.ledger.Add(ctx, orders.AddRequest{
				ActivityID: args[0],
				ProductID:  args[1],
				Quantity:   orderQuantity,
				Actor:      actor,
			})
			if err != nil {
				return err
			}
			printOrder(os.Stdout, order)
			return nil
		})
	},
}

var orderUpdateCmd = &cobra.Command{
	Use:   "update [flags] ORDER",
	Short: "Change the product or quantity of an order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			order, err := a.ledger.Update(ctx, orders.UpdateRequest{
				OrderID:   args[0],
				ProductID: orderProduct,
				Quantity:  orderNewQuantity,
				Actor:     actor,
			})
			if err != nil {
				return err
			}
			printOrder(os.Stdout, order)
			return nil
		})
	},
}

var orderRemoveCmd = &cobra.Command{
	Use:   "remove ORDER",
	Short: "Remove an order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.ledger.Remove(ctx, args[0], actor); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Order %s removed\n", args[0])
			return nil
		})
	},
}

var orderListCmd = &cobra.Command{
	Use:   "list ACTIVITY",
	Short: "List the orders of an activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			list, err := a.ledger.List(ctx, args[0])
			if err != nil {
				return err
			}
			for i := range list {
				printOrder(os.Stdout, &list[i])
			}
			return nil
		})
	},
}

var productCmd = &cobra.Command{
	Use:   "product",
	Short: "Manage the product catalog",
}

var productUpsertCmd = &cobra.Command{
	Use:     "upsert [flags] PRODUCT PRICE",
	Short:   "Create or update a product",
	Example: `  lounge product upsert --name "Cola 0.5l" cola 2.50`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		price, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("invalid price: %s", args[1])
		}
		name := productName
		if name == "" {
			name = args[0]
		}
		return withApp(func(ctx context.Context, a *app) error {
			return a.ledger.UpsertProduct(ctx, storage.Product{ID: args[0], Name: name, Price: price})
		})
	},
}

var productListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the product catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			products, err := a.ledger.Products(ctx)
			if err != nil {
				return err
			}
			for _, p := range products {
				fmt.Fprintf(os.Stdout, "%-16s %-24s %10s\n", p.ID, p.Name, money(p.Price))
			}
			return nil
		})
	},
}

func init() {
	orderAddCmd.Flags().IntVar(&orderQuantity, "quantity", 1, "Quantity ordered")
	orderUpdateCmd.Flags().IntVar(&orderNewQuantity, "quantity", 0, "New quantity (0 keeps the current one)")
	orderUpdateCmd.Flags().StringVar(&orderProduct, "product", "", "New product (snapshots its current price)")
	orderCmd.AddCommand(orderAddCmd, orderUpdateCmd, orderRemoveCmd, orderListCmd)

	productUpsertCmd.Flags().StringVar(&productName, "name", "", "Display name (defaults to the id)")
	productCmd.AddCommand(productUpsertCmd, productListCmd)

	rootCmd.AddCommand(orderCmd, productCmd)
}
