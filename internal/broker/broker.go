// Package broker defines the narrow brokerage capability set consumed
// by the ExecutionEngine and Scheduler, plus a deterministic paper
// trading adapter for development and testing.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
)

// OrderOptions carries optional per-order instructions.
type OrderOptions struct {
	PostOnly bool
}

// OrderAck acknowledges a placed order.
type OrderAck struct {
	OrderID   string
	FillPrice decimal.Decimal
	Filled    decimal.Decimal
	Status    string
}

// Ack acknowledges a cancellation.
type Ack struct {
	OrderID string
	Success bool
}

// Broker is the capability set an execution adapter must provide. Safe
// for concurrent calls from one Scheduler and background decoy-
// cancellation goroutines.
type Broker interface {
	PlaceOrder(ctx context.Context, symbol string, side types.OrderSide, size, price decimal.Decimal, opts OrderOptions) (OrderAck, error)
	CancelOrder(ctx context.Context, orderID string) (Ack, error)
	GetPortfolio(ctx context.Context) (types.PortfolioSnapshot, error)
	GetQuote(ctx context.Context, symbol string) (types.Quote, error)
	GetHistorical(ctx context.Context, symbol string, bars int) ([]types.OHLCV, error)
	GetWatchlist(ctx context.Context) ([]string, error)
	MarketIsOpen(ctx context.Context) (bool, error)
}

// marketOpenWeekday reports whether t falls within Eastern-time weekday
// 09:30-16:00, the hours assumed by the default market-open check.
func marketOpenWeekday(t time.Time) bool {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	local := t.In(loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	open := time.Date(local.Year(), local.Month(), local.Day(), 9, 30, 0, 0, loc)
	close := time.Date(local.Year(), local.Month(), local.Day(), 16, 0, 0, 0, loc)
	return !local.Before(open) && local.Before(close)
}
