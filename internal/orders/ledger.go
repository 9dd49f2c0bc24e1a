// Package orders records products ordered within an activity. Unit prices are
// snapshotted when ordered; every change reprices the activity and its session.
package orders

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goodtune/lounge/internal/activity"
	"github.com/goodtune/lounge/internal/apperrors"
	"github.com/goodtune/lounge/internal/clock"
	"github.com/goodtune/lounge/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AddRequest orders a product within an activity
type AddRequest struct {
	ActivityID string `validate:"required"`
	ProductID  string `validate:"required"`
	Quantity   int    `validate:"gte=1"`
	Actor      string `validate:"required"`
}

// UpdateRequest changes an order. Empty ProductID and zero Quantity keep the current values.
type UpdateRequest struct {
	OrderID   string `validate:"required"`
	ProductID string
	Quantity  int    `validate:"gte=0"`
	Actor     string `validate:"required"`
}

// Ledger manages product orders and the product catalog
type Ledger struct {
	products  storage.ProductStore
	orders    storage.OrderStore
	lifecycle *activity.Lifecycle
	clock     clock.Clock
	validate  *validator.Validate
	logger    zerolog.Logger
}

// NewLedger creates a new product ledger
func NewLedger(store storage.Store, lifecycle *activity.Lifecycle, clk clock.Clock, logger zerolog.Logger) *Ledger {
	return &Ledger{
		products:  store.Products(),
		orders:    store.Orders(),
		lifecycle: lifecycle,
		clock:     clk,
		validate:  validator.New(),
		logger:    logger.With().Str("component", "product-ledger").Logger(),
	}
}

// Add records an order and reprices the activity
func (l *Ledger) Add(ctx context.Context, req AddRequest) (*storage.Order, error) {
	if err := l.validate.Struct(req); err != nil {
		return nil, apperrors.FromValidator(err)
	}

	product, err := l.product(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	order := storage.Order{
		ID:         uuid.NewString(),
		ActivityID: req.ActivityID,
		ProductID:  product.ID,
		Quantity:   req.Quantity,
		Price:      product.Price,
		TotalPrice: lineTotal(product.Price, req.Quantity),
		OrderedBy:  req.Actor,
		CreatedAt:  l.clock.Now(),
	}

	_, err = l.lifecycle.Mutate(ctx, req.ActivityID, func(ctx context.Context, _ storage.Activity) error {
		return l.orders.Upsert(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info().
		Str("order_id", order.ID).
		Str("activity_id", order.ActivityID).
		Str("product_id", order.ProductID).
		Int("quantity", order.Quantity).
		Str("total_price", order.TotalPrice.String()).
		Msg("Product ordered")

	return &order, nil
}

// Update changes the product or quantity of an order. A product change
// snapshots the new product's current price.
func (l *Ledger) Update(ctx context.Context, req UpdateRequest) (*storage.Order, error) {
	if err := l.validate.Struct(req); err != nil {
		return nil, apperrors.FromValidator(err)
	}

	existing, err := l.order(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	var updated storage.Order
	_, err = l.lifecycle.Mutate(ctx, existing.ActivityID, func(ctx context.Context, _ storage.Activity) error {
		// Reload under the activity lock
		order, err := l.order(ctx, req.OrderID)
		if err != nil {
			return err
		}

		if req.ProductID != "" && req.ProductID != order.ProductID {
			product, err := l.product(ctx, req.ProductID)
			if err != nil {
				return err
			}
			order.ProductID = product.ID
			order.Price = product.Price
		}
		if req.Quantity > 0 {
			order.Quantity = req.Quantity
		}
		order.TotalPrice = lineTotal(order.Price, order.Quantity)

		updated = *order
		return l.orders.Upsert(ctx, updated)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info().
		Str("order_id", updated.ID).
		Str("product_id", updated.ProductID).
		Int("quantity", updated.Quantity).
		Str("actor", req.Actor).
		Msg("Order updated")

	return &updated, nil
}

// Remove deletes an order and reprices the activity
func (l *Ledger) Remove(ctx context.Context, orderID, actor string) error {
	order, err := l.order(ctx, orderID)
	if err != nil {
		return err
	}

	_, err = l.lifecycle.Mutate(ctx, order.ActivityID, func(ctx context.Context, _ storage.Activity) error {
		if err := l.orders.Delete(ctx, orderID); err != nil {
			return apperrors.FromStorage("order", orderID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.logger.Info().Str("order_id", orderID).Str("activity_id", order.ActivityID).Str("actor", actor).Msg("Order removed")
	return nil
}

// List returns the orders of an activity
func (l *Ledger) List(ctx context.Context, activityID string) ([]storage.Order, error) {
	return l.orders.ListByActivity(ctx, activityID)
}

// UpsertProduct validates and stores a catalog product
func (l *Ledger) UpsertProduct(ctx context.Context, product storage.Product) error {
	switch {
	case product.ID == "":
		return apperrors.Validation("product id is required")
	case product.Price.IsNegative():
		return apperrors.Validation("product price must not be negative")
	}
	product.UpdatedAt = l.clock.Now()

	if err := l.products.Upsert(ctx, product); err != nil {
		return fmt.Errorf("failed to store product %s: %w", product.ID, err)
	}
	return nil
}

// Products returns the product catalog
func (l *Ledger) Products(ctx context.Context) ([]storage.Product, error) {
	return l.products.List(ctx)
}

func (l *Ledger) product(ctx context.Context, id string) (*storage.Product, error) {
	p, err := l.products.Get(ctx, id)
	if err != nil {
		return nil, apperrors.FromStorage("product", id, err)
	}
	return p, nil
}

func (l *Ledger) order(ctx context.Context, id string) (*storage.Order, error) {
	o, err := l.orders.Get(ctx, id)
	if err != nil {
		return nil, apperrors.FromStorage("order", id, err)
	}
	return o, nil
}

func lineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}
