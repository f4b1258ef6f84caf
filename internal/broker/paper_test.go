package broker_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-orchestrator/internal/broker"
	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
)

func TestPaperBrokerPlaceOrderUpdatesPortfolio(t *testing.T) {
	b := broker.NewPaperBroker(zap.NewNop(), decimal.NewFromInt(10000), rand.New(rand.NewSource(1)))
	ctx := context.Background()

	ack, err := b.PlaceOrder(ctx, "AAPL", types.OrderSideBuy, decimal.NewFromInt(10), decimal.NewFromInt(100), broker.OrderOptions{})
	require.NoError(t, err)
	require.True(t, ack.Filled.Equal(decimal.NewFromInt(10)))

	snapshot, err := b.GetPortfolio(ctx)
	require.NoError(t, err)
	require.True(t, snapshot.Cash.Equal(decimal.NewFromInt(9000)))
	require.True(t, snapshot.Positions["AAPL"].Quantity.Equal(decimal.NewFromInt(10)))
}

func TestPaperBrokerSellClipsToHeldQuantity(t *testing.T) {
	b := broker.NewPaperBroker(zap.NewNop(), decimal.NewFromInt(10000), rand.New(rand.NewSource(1)))
	ctx := context.Background()

	_, err := b.PlaceOrder(ctx, "AAPL", types.OrderSideBuy, decimal.NewFromInt(5), decimal.NewFromInt(100), broker.OrderOptions{})
	require.NoError(t, err)

	ack, err := b.PlaceOrder(ctx, "AAPL", types.OrderSideSell, decimal.NewFromInt(100), decimal.NewFromInt(100), broker.OrderOptions{})
	require.NoError(t, err)
	require.True(t, ack.Filled.Equal(decimal.NewFromInt(5)))
}
