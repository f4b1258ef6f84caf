package strategy_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-orchestrator/internal/strategy"
	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
)

type stubStrategy struct {
	name   string
	output types.Signal
}

func (s stubStrategy) Name() string             { return s.name }
func (s stubStrategy) RequiredFields() []string  { return []string{"close"} }
func (s stubStrategy) Generate(strategy.MarketData) ([]types.Signal, error) {
	return []types.Signal{s.output}, nil
}

func TestFusionMixedConfidences(t *testing.T) {
	reg := strategy.NewRegistry(zap.NewNop())
	reg.Register(stubStrategy{name: "ma", output: types.Signal{Symbol: "AAPL", Kind: types.SignalBuy, Confidence: decimal.NewFromFloat(0.8)}}, 0.3)
	reg.Register(stubStrategy{name: "rsi", output: types.Signal{Symbol: "AAPL", Kind: types.SignalSell, Confidence: decimal.NewFromFloat(0.6)}}, 0.3)
	reg.Register(stubStrategy{name: "ai", output: types.Signal{Symbol: "AAPL", Kind: types.SignalBuy, Confidence: decimal.NewFromFloat(0.9)}}, 0.4)

	combiner := strategy.NewCombiner(reg)
	result := combiner.Combine(strategy.MarketData{Bars: map[string][]types.OHLCV{"AAPL": {{Symbol: "AAPL", Timestamp: time.Now()}}}})

	sig, ok := result["AAPL"]
	require.True(t, ok)
	require.Equal(t, types.SignalBuy, sig.Kind)
	require.InDelta(t, 0.78, confidenceFloat(sig), 0.001)
}

func TestFusionBoundaryResolvesToHold(t *testing.T) {
	reg := strategy.NewRegistry(zap.NewNop())
	// score exactly 0.3: a weight 0.3 strategy at BUY with a weight 0.7 HOLD
	// counterweight, so the weighted average lands exactly at the boundary.
	reg.Register(stubStrategy{name: "a", output: types.Signal{Symbol: "TSLA", Kind: types.SignalBuy, Confidence: decimal.NewFromFloat(0.5)}}, 0.3)
	reg.Register(stubStrategy{name: "b", output: types.Signal{Symbol: "TSLA", Kind: types.SignalHold, Confidence: decimal.NewFromFloat(0.5)}}, 0.7)

	combiner := strategy.NewCombiner(reg)
	result := combiner.Combine(strategy.MarketData{Bars: map[string][]types.OHLCV{"TSLA": {{Symbol: "TSLA", Timestamp: time.Now()}}}})

	require.Equal(t, types.SignalHold, result["TSLA"].Kind)
}

func TestFusionZeroWeightEmitsNoSignal(t *testing.T) {
	reg := strategy.NewRegistry(zap.NewNop())
	combiner := strategy.NewCombiner(reg)
	result := combiner.Combine(strategy.MarketData{Bars: map[string][]types.OHLCV{"AAPL": {{Symbol: "AAPL"}}}})
	require.Empty(t, result)
}

func confidenceFloat(s types.Signal) float64 {
	f, _ := s.Confidence.Float64()
	return f
}
