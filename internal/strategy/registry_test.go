package strategy_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-orchestrator/internal/strategy"
	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
)

type failingStrategy struct{}

func (failingStrategy) Name() string            { return "failing" }
func (failingStrategy) RequiredFields() []string { return []string{"close"} }
func (failingStrategy) Generate(strategy.MarketData) ([]types.Signal, error) {
	return nil, errors.New("boom")
}

func TestRegistryListReturnsRegistrationOrder(t *testing.T) {
	reg := strategy.NewRegistry(zap.NewNop())
	reg.Register(stubStrategy{name: "a"}, 0.5)
	reg.Register(stubStrategy{name: "b"}, 0.5)
	reg.Register(stubStrategy{name: "a"}, 0.9) // re-registering keeps position, updates weight

	require.Equal(t, []string{"a", "b"}, reg.List())
}

func TestRegistryExcludesFailingStrategyFromFusion(t *testing.T) {
	reg := strategy.NewRegistry(zap.NewNop())
	reg.Register(failingStrategy{}, 1.0)
	reg.Register(stubStrategy{name: "ok", output: types.Signal{Symbol: "AAPL", Kind: types.SignalBuy, Confidence: decimal.NewFromFloat(0.9)}}, 1.0)

	combiner := strategy.NewCombiner(reg)
	result := combiner.Combine(strategy.MarketData{Bars: map[string][]types.OHLCV{"AAPL": {{Symbol: "AAPL"}}}})

	sig, ok := result["AAPL"]
	require.True(t, ok)
	require.Equal(t, types.SignalBuy, sig.Kind)
}
