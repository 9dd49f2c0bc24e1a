package session

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/lounge/internal/pricing"
	"github.com/goodtune/lounge/internal/storage"
	"github.com/shopspring/decimal"
)

// Bill is the itemised bill of a session.
type Bill struct {
	Session  storage.Session
	Lines    []BillLine
	Total    decimal.Decimal
	Discount decimal.Decimal
	Final    decimal.Decimal
}

// BillLine is one activity on a bill. Quote is the elapsed breakdown at
// AsOf; Activity.TotalPrice may also include the remaining plan of a
// scheduled activity.
type BillLine struct {
	Activity storage.Activity
	AsOf     time.Time
	Quote    pricing.Quote
	Orders   []storage.Order
}

// Bill builds the itemised bill of a session from stored records.
func (a *Aggregator) Bill(ctx context.Context, id string) (*Bill, error) {
	s, err := a.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	activities, err := a.activities.ListBySession(ctx, id)
	if err != nil {
		return nil, err
	}

	now := a.clock.Now()
	bill := &Bill{
		Session:  *s,
		Lines:    make([]BillLine, 0, len(activities)),
		Total:    s.TotalPrice,
		Discount: s.Discount,
		Final:    FinalPrice(*s),
	}
	for _, act := range activities {
		asOf := now
		if act.Status == storage.ActivityEnded && act.EndedAt != nil {
			asOf = *act.EndedAt
		}

		quote, err := a.pricing.Quote(ctx, act, asOf)
		if err != nil {
			return nil, fmt.Errorf("failed to price activity %s: %w", act.ID, err)
		}
		orders, err := a.orders.ListByActivity(ctx, act.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list orders of activity %s: %w", act.ID, err)
		}

		bill.Lines = append(bill.Lines, BillLine{
			Activity: act,
			AsOf:     asOf,
			Quote:    *quote,
			Orders:   orders,
		})
	}
	return bill, nil
}
