package execution_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-orchestrator/internal/broker"
	"github.com/atlas-desktop/trading-orchestrator/internal/execution"
	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
)

type stubBroker struct {
	mu        sync.Mutex
	failNext  int
	placed    []decimal.Decimal
}

func (s *stubBroker) PlaceOrder(ctx context.Context, symbol string, side types.OrderSide, size, price decimal.Decimal, opts broker.OrderOptions) (broker.OrderAck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return broker.OrderAck{}, types.ErrBrokerTransient
	}
	s.placed = append(s.placed, size)
	return broker.OrderAck{OrderID: "o", FillPrice: price, Filled: size, Status: "filled"}, nil
}
func (s *stubBroker) CancelOrder(ctx context.Context, orderID string) (broker.Ack, error) {
	return broker.Ack{OrderID: orderID, Success: true}, nil
}
func (s *stubBroker) GetPortfolio(ctx context.Context) (types.PortfolioSnapshot, error) {
	return types.PortfolioSnapshot{}, nil
}
func (s *stubBroker) GetQuote(ctx context.Context, symbol string) (types.Quote, error) {
	return types.Quote{}, nil
}
func (s *stubBroker) GetHistorical(ctx context.Context, symbol string, bars int) ([]types.OHLCV, error) {
	return nil, nil
}
func (s *stubBroker) GetWatchlist(ctx context.Context) ([]string, error) { return nil, nil }
func (s *stubBroker) MarketIsOpen(ctx context.Context) (bool, error)     { return true, nil }

func TestIcebergSplitExactChunking(t *testing.T) {
	sb := &stubBroker{}
	cfg := execution.DefaultConfig()
	cfg.MinIcebergChunks = 4
	cfg.MaxIcebergChunks = 4
	cfg.SizeVariance = 0
	cfg.JitterRangeMs = [2]int{0, 0}
	cfg.DecoyProbability = 0

	eng := execution.NewEngine(zap.NewNop(), cfg, sb, rand.New(rand.NewSource(1)))
	defer eng.Close()

	intent := types.OrderIntent{
		Symbol:         "AAPL",
		Side:           types.OrderSideBuy,
		TotalQuantity:  decimal.NewFromInt(100),
		ReferencePrice: decimal.NewFromInt(100),
		Strategy:       types.StrategyIceberg,
	}

	result, err := eng.Execute(context.Background(), intent, decimal.Zero, decimal.NewFromInt(1000))
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.ChunkResults, 4)

	total := decimal.Zero
	for _, c := range result.ChunkResults {
		total = total.Add(c.Quantity)
	}
	require.True(t, total.Equal(decimal.NewFromInt(100)))
	require.True(t, result.ChunkResults[0].Quantity.Equal(decimal.NewFromInt(25)))
	require.True(t, result.ChunkResults[3].Quantity.Equal(decimal.NewFromInt(25)))
}

func TestSymbolBreakerTripsThenResets(t *testing.T) {
	sb := &stubBroker{failNext: 3}
	cfg := execution.DefaultConfig()
	cfg.MaxConsecutiveFailures = 3
	cfg.SymbolBreakerCooldown = time.Second
	cfg.JitterRangeMs = [2]int{0, 0}
	cfg.DecoyProbability = 0

	eng := execution.NewEngine(zap.NewNop(), cfg, sb, rand.New(rand.NewSource(1)))
	defer eng.Close()

	intent := types.OrderIntent{
		Symbol:         "TSLA",
		Side:           types.OrderSideBuy,
		TotalQuantity:  decimal.NewFromInt(10),
		ReferencePrice: decimal.NewFromInt(50),
		Strategy:       types.StrategySimple,
	}

	for i := 0; i < 3; i++ {
		result, err := eng.Execute(context.Background(), intent, decimal.Zero, decimal.NewFromInt(1000))
		require.NoError(t, err)
		require.False(t, result.Success)
	}

	_, err := eng.Execute(context.Background(), intent, decimal.Zero, decimal.NewFromInt(1000))
	require.ErrorIs(t, err, types.ErrSymbolBreakerOpen)

	time.Sleep(1100 * time.Millisecond)

	result, err := eng.Execute(context.Background(), intent, decimal.Zero, decimal.NewFromInt(1000))
	require.NoError(t, err)
	require.True(t, result.Success)
}
