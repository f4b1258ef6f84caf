package strategy_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atlas-desktop/trading-orchestrator/internal/strategy"
	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
)

func barsAt(symbol string, closes ...int64) []types.OHLCV {
	bars := make([]types.OHLCV, 0, len(closes))
	for _, c := range closes {
		price := decimal.NewFromInt(c)
		bars = append(bars, types.OHLCV{
			Symbol:    symbol,
			Close:     price,
			Timestamp: time.Now(),
		})
	}
	return bars
}

func TestMACrossStrategyEmitsBuyOnGoldenCross(t *testing.T) {
	s := strategy.NewMACrossStrategy(2, 4)
	// Both SMAs sit at 10 until the final bar, where the fast SMA (15)
	// rises above the slow SMA (12.5), producing a golden cross.
	closes := []int64{10, 10, 10, 10, 10, 20}
	signals, err := s.Generate(strategy.MarketData{Bars: map[string][]types.OHLCV{"BTCUSDT": barsAt("BTCUSDT", closes...)}})

	require.NoError(t, err)
	require.Len(t, signals, 1)
	require.Equal(t, types.SignalBuy, signals[0].Kind)
}

func TestMACrossStrategySkipsWhenHistoryTooShort(t *testing.T) {
	s := strategy.NewMACrossStrategy(12, 26)
	signals, err := s.Generate(strategy.MarketData{Bars: map[string][]types.OHLCV{"BTCUSDT": barsAt("BTCUSDT", 10, 11, 12)}})

	require.NoError(t, err)
	require.Empty(t, signals)
}

func TestRSIStrategyEmitsBuyWhenOversold(t *testing.T) {
	s := strategy.NewRSIStrategy(5)
	// A monotonic downtrend over the whole window has zero gains, so
	// RSI bottoms out at 0, well below the oversold threshold.
	closes := []int64{100, 95, 90, 85, 80, 75}
	signals, err := s.Generate(strategy.MarketData{Bars: map[string][]types.OHLCV{"ETHUSDT": barsAt("ETHUSDT", closes...)}})

	require.NoError(t, err)
	require.Len(t, signals, 1)
	require.Equal(t, types.SignalBuy, signals[0].Kind)
}

func TestBollingerBandStrategyEmitsBuyBelowLowerBand(t *testing.T) {
	s := strategy.NewBollingerBandStrategy(5, decimal.NewFromFloat(1.5))
	closes := []int64{100, 100, 100, 100, 100, 50}
	signals, err := s.Generate(strategy.MarketData{Bars: map[string][]types.OHLCV{"SOLUSDT": barsAt("SOLUSDT", closes...)}})

	require.NoError(t, err)
	require.Len(t, signals, 1)
	require.Equal(t, types.SignalBuy, signals[0].Kind)
}

func TestStrategyNamesAndRequiredFields(t *testing.T) {
	require.Equal(t, "ma_cross", strategy.NewMACrossStrategy(12, 26).Name())
	require.Equal(t, "rsi", strategy.NewRSIStrategy(14).Name())
	require.Equal(t, "macd", strategy.NewMACDStrategy(12, 26, 9).Name())
	require.Equal(t, "bollinger_bands", strategy.NewBollingerBandStrategy(20, decimal.NewFromInt(2)).Name())
	require.Equal(t, []string{"close"}, strategy.NewRSIStrategy(14).RequiredFields())
}
