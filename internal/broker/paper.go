package broker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
	"github.com/atlas-desktop/trading-orchestrator/pkg/utils"
)

// PaperBroker fills every order in full at the order's own price and
// serves injected quotes and history, for deterministic testing and
// demo-mode operation without a live brokerage connection.
type PaperBroker struct {
	logger *zap.Logger
	rnd    *rand.Rand

	mu        sync.Mutex
	cash      decimal.Decimal
	positions map[string]types.PositionState
	quotes    map[string]types.Quote
	history   map[string][]types.OHLCV
	watchlist []string
	openOrders map[string]bool

	forceMarketOpen *bool
}

// NewPaperBroker builds a paper broker seeded with startingCash.
func NewPaperBroker(logger *zap.Logger, startingCash decimal.Decimal, rnd *rand.Rand) *PaperBroker {
	return &PaperBroker{
		logger:     logger.Named("paper-broker"),
		rnd:        rnd,
		cash:       startingCash,
		positions:  make(map[string]types.PositionState),
		quotes:     make(map[string]types.Quote),
		history:    make(map[string][]types.OHLCV),
		openOrders: make(map[string]bool),
	}
}

// SeedQuote installs or replaces the current quote for a symbol.
func (b *PaperBroker) SeedQuote(q types.Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[q.Symbol] = q
}

// SeedHistory installs historical bars for a symbol.
func (b *PaperBroker) SeedHistory(symbol string, bars []types.OHLCV) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history[symbol] = bars
}

// SeedWatchlist sets the symbols returned by GetWatchlist.
func (b *PaperBroker) SeedWatchlist(symbols []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watchlist = symbols
}

// SetMarketOpen overrides MarketIsOpen with a fixed answer, bypassing
// the Eastern-time weekday clock check. Used by demo mode and tests
// that must not depend on the wall-clock hour they happen to run in.
func (b *PaperBroker) SetMarketOpen(open bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forceMarketOpen = &open
}

func (b *PaperBroker) PlaceOrder(ctx context.Context, symbol string, side types.OrderSide, size, price decimal.Decimal, opts OrderOptions) (OrderAck, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	orderID := utils.GenerateOrderIntentID()
	notional := size.Mul(price)

	if side == types.OrderSideBuy {
		if b.cash.LessThan(notional) {
			return OrderAck{}, fmt.Errorf("%w: insufficient paper cash", types.ErrBrokerTransient)
		}
		b.cash = b.cash.Sub(notional)
		pos := b.positions[symbol]
		pos.Quantity = pos.Quantity.Add(size)
		pos.MarketValue = pos.MarketValue.Add(notional)
		b.positions[symbol] = pos
	} else {
		pos := b.positions[symbol]
		if pos.Quantity.LessThan(size) {
			size = pos.Quantity
			notional = size.Mul(price)
		}
		pos.Quantity = pos.Quantity.Sub(size)
		pos.MarketValue = pos.Quantity.Mul(price)
		b.positions[symbol] = pos
		b.cash = b.cash.Add(notional)
	}

	if !opts.PostOnly {
		b.openOrders[orderID] = false
	} else {
		b.openOrders[orderID] = true
	}

	return OrderAck{OrderID: orderID, FillPrice: price, Filled: size, Status: "filled"}, nil
}

func (b *PaperBroker) CancelOrder(ctx context.Context, orderID string) (Ack, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	open, ok := b.openOrders[orderID]
	if !ok || !open {
		return Ack{OrderID: orderID, Success: false}, nil
	}
	delete(b.openOrders, orderID)
	return Ack{OrderID: orderID, Success: true}, nil
}

func (b *PaperBroker) GetPortfolio(ctx context.Context) (types.PortfolioSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	equity := b.cash
	positions := make(map[string]types.PositionState, len(b.positions))
	for symbol, pos := range b.positions {
		positions[symbol] = pos
		equity = equity.Add(pos.MarketValue)
	}

	return types.PortfolioSnapshot{
		Cash:      b.cash,
		Equity:    equity,
		Positions: positions,
		AsOf:      time.Now(),
	}, nil
}

func (b *PaperBroker) GetQuote(ctx context.Context, symbol string) (types.Quote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.quotes[symbol]
	if !ok {
		return types.Quote{}, fmt.Errorf("%w: no quote seeded for %s", types.ErrBrokerTransient, symbol)
	}
	return q, nil
}

func (b *PaperBroker) GetHistorical(ctx context.Context, symbol string, bars int) ([]types.OHLCV, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := b.history[symbol]
	if len(h) > bars {
		h = h[len(h)-bars:]
	}
	return h, nil
}

func (b *PaperBroker) GetWatchlist(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.watchlist))
	copy(out, b.watchlist)
	return out, nil
}

func (b *PaperBroker) MarketIsOpen(ctx context.Context) (bool, error) {
	b.mu.Lock()
	override := b.forceMarketOpen
	b.mu.Unlock()
	if override != nil {
		return *override, nil
	}
	return marketOpenWeekday(time.Now()), nil
}
