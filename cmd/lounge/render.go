package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/lounge/internal/session"
	"github.com/goodtune/lounge/internal/storage"
	"github.com/shopspring/decimal"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	totalColor  = color.New(color.FgGreen, color.Bold)
	dimColor    = color.New(color.FgHiBlack)
)

func statusColor(status string) *color.Color {
	switch status {
	case string(storage.ActivityActive), string(storage.DeviceAvailable):
		return color.New(color.FgGreen)
	case string(storage.ActivityPaused), string(storage.DeviceInUse):
		return color.New(color.FgYellow)
	case string(storage.DeviceMaintenance):
		return color.New(color.FgRed)
	default:
		return dimColor
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func printSession(s *storage.Session) {
	_, _ = headerColor.Fprintf(os.Stdout, "session %s", s.ID)
	fmt.Fprintf(os.Stdout, "  customer=%s type=%s status=", s.CustomerID, s.Type)
	_, _ = statusColor(string(s.Status)).Fprint(os.Stdout, s.Status)
	fmt.Fprintf(os.Stdout, " total=%s\n", money(s.TotalPrice))
}

func printActivity(a *storage.Activity) {
	fmt.Fprintf(os.Stdout, "  activity %s  %s", a.ID, a.Type)
	if a.DeviceID != "" {
		fmt.Fprintf(os.Stdout, " on %s (%s)", a.DeviceID, a.Mode)
	}
	fmt.Fprint(os.Stdout, " status=")
	_, _ = statusColor(string(a.Status)).Fprint(os.Stdout, a.Status)
	fmt.Fprintf(os.Stdout, " hours=%s total=%s\n", a.DurationHours, money(a.TotalPrice))
}

func printOrder(w io.Writer, o *storage.Order) {
	fmt.Fprintf(w, "  order %s  %d x %-12s @ %8s = %8s\n", o.ID, o.Quantity, o.ProductID, money(o.Price), money(o.TotalPrice))
}

func printDevice(w io.Writer, d storage.Device) {
	fmt.Fprintf(w, "%-12s %-10s %-20s %8s/h %8s/h  ", d.ID, d.Type, d.Name, money(d.PricePerHour), money(d.MultiRate()))
	_, _ = statusColor(string(d.Status)).Fprintln(w, d.Status)
}

// printBill renders an itemised session bill.
func printBill(w io.Writer, bill *session.Bill) {
	s := bill.Session
	_, _ = headerColor.Fprintf(w, "Bill for session %s (customer %s)\n", s.ID, s.CustomerID)
	fmt.Fprintf(w, "Started %s", s.StartedAt.Local().Format(time.DateTime))
	if s.EndedAt != nil {
		fmt.Fprintf(w, ", ended %s", s.EndedAt.Local().Format(time.DateTime))
	}
	fmt.Fprint(w, "  status ")
	_, _ = statusColor(string(s.Status)).Fprintln(w, s.Status)
	fmt.Fprintln(w, strings.Repeat("-", 72))

	for _, line := range bill.Lines {
		a := line.Activity
		label := "chill-out"
		if a.DeviceID != "" {
			label = a.DeviceID
		}
		fmt.Fprintf(w, "%-12s ", label)
		_, _ = statusColor(string(a.Status)).Fprintf(w, "%-7s", a.Status)
		fmt.Fprintf(w, " active %s", formatDuration(line.Quote.Active))
		if line.Quote.Multi > 0 {
			fmt.Fprintf(w, " (single %s, multi %s)", formatDuration(line.Quote.Single), formatDuration(line.Quote.Multi))
		}
		fmt.Fprintf(w, "  device %s\n", money(line.Quote.DevicePrice))

		for i := range line.Orders {
			printOrder(w, &line.Orders[i])
		}
		if a.Scheduled(line.AsOf) {
			_, _ = dimColor.Fprintf(w, "  includes remaining planned time until %s\n", a.EndedAt.Local().Format(time.Kitchen))
		}
		fmt.Fprintf(w, "%58s %12s\n", "activity total", money(a.TotalPrice))
	}

	fmt.Fprintln(w, strings.Repeat("-", 72))
	fmt.Fprintf(w, "%58s %12s\n", "total", money(bill.Total))
	if bill.Discount.IsPositive() {
		fmt.Fprintf(w, "%58s %12s\n", "discount", "-"+money(bill.Discount))
	}
	_, _ = totalColor.Fprintf(w, "%58s %12s\n", "to pay", money(bill.Final))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}
