package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
)

func sqrtDecimal(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() || d.IsNegative() {
		return decimal.Zero
	}
	x := d
	for i := 0; i < 20; i++ {
		x = x.Add(d.Div(x)).Div(decimal.NewFromInt(2))
	}
	return x
}

func sma(bars []types.OHLCV, period int) decimal.Decimal {
	sum := decimal.Zero
	for i := len(bars) - period; i < len(bars); i++ {
		sum = sum.Add(bars[i].Close)
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}

// MACrossStrategy emits BUY/SELL when a fast SMA crosses a slow SMA.
type MACrossStrategy struct {
	fastPeriod int
	slowPeriod int
}

// NewMACrossStrategy creates a moving-average-cross strategy.
func NewMACrossStrategy(fastPeriod, slowPeriod int) *MACrossStrategy {
	return &MACrossStrategy{fastPeriod: fastPeriod, slowPeriod: slowPeriod}
}

func (s *MACrossStrategy) Name() string { return "ma_cross" }

func (s *MACrossStrategy) RequiredFields() []string { return []string{"close"} }

func (s *MACrossStrategy) Generate(data MarketData) ([]types.Signal, error) {
	var signals []types.Signal
	for symbol, bars := range data.Bars {
		if len(bars) < s.slowPeriod+1 {
			continue
		}
		fastNow := sma(bars, s.fastPeriod)
		slowNow := sma(bars, s.slowPeriod)
		fastPrev := sma(bars[:len(bars)-1], s.fastPeriod)
		slowPrev := sma(bars[:len(bars)-1], s.slowPeriod)

		kind := types.SignalHold
		switch {
		case fastPrev.LessThanOrEqual(slowPrev) && fastNow.GreaterThan(slowNow):
			kind = types.SignalBuy
		case fastPrev.GreaterThanOrEqual(slowPrev) && fastNow.LessThan(slowNow):
			kind = types.SignalSell
		default:
			continue
		}

		spread := fastNow.Sub(slowNow).Abs().Div(slowNow)
		confidence := decimal.Min(spread.Mul(decimal.NewFromInt(10)), decimal.NewFromInt(1))

		signals = append(signals, types.Signal{
			Symbol:     symbol,
			Kind:       kind,
			Confidence: confidence,
			Source:     s.Name(),
			CreatedAt:  time.Now(),
		}.Normalized())
	}
	return signals, nil
}

// RSIStrategy emits BUY when RSI crosses out of oversold, SELL out of overbought.
type RSIStrategy struct {
	period     int
	oversold   decimal.Decimal
	overbought decimal.Decimal
}

// NewRSIStrategy creates an RSI mean-reversion strategy.
func NewRSIStrategy(period int) *RSIStrategy {
	return &RSIStrategy{
		period:     period,
		oversold:   decimal.NewFromInt(30),
		overbought: decimal.NewFromInt(70),
	}
}

func (s *RSIStrategy) Name() string { return "rsi" }

func (s *RSIStrategy) RequiredFields() []string { return []string{"close"} }

func (s *RSIStrategy) Generate(data MarketData) ([]types.Signal, error) {
	var signals []types.Signal
	for symbol, bars := range data.Bars {
		if len(bars) < s.period+1 {
			continue
		}
		rsi := relativeStrengthIndex(bars, s.period)

		kind := types.SignalHold
		confidence := decimal.Zero
		switch {
		case rsi.LessThan(s.oversold):
			kind = types.SignalBuy
			confidence = s.oversold.Sub(rsi).Div(s.oversold)
		case rsi.GreaterThan(s.overbought):
			kind = types.SignalSell
			confidence = rsi.Sub(s.overbought).Div(decimal.NewFromInt(100).Sub(s.overbought))
		default:
			continue
		}

		signals = append(signals, types.Signal{
			Symbol:     symbol,
			Kind:       kind,
			Confidence: decimal.Min(confidence, decimal.NewFromInt(1)),
			Source:     s.Name(),
			CreatedAt:  time.Now(),
		}.Normalized())
	}
	return signals, nil
}

func relativeStrengthIndex(bars []types.OHLCV, period int) decimal.Decimal {
	gains, losses := decimal.Zero, decimal.Zero
	start := len(bars) - period
	for i := start; i < len(bars); i++ {
		diff := bars[i].Close.Sub(bars[i-1].Close)
		if diff.IsPositive() {
			gains = gains.Add(diff)
		} else {
			losses = losses.Add(diff.Abs())
		}
	}
	if losses.IsZero() {
		return decimal.NewFromInt(100)
	}
	rs := gains.Div(losses)
	hundred := decimal.NewFromInt(100)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
}

// MACDStrategy emits BUY/SELL on MACD-line/signal-line crossovers.
type MACDStrategy struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACDStrategy creates a MACD-crossover strategy.
func NewMACDStrategy(fastPeriod, slowPeriod, signalPeriod int) *MACDStrategy {
	return &MACDStrategy{fastPeriod: fastPeriod, slowPeriod: slowPeriod, signalPeriod: signalPeriod}
}

func (s *MACDStrategy) Name() string { return "macd" }

func (s *MACDStrategy) RequiredFields() []string { return []string{"close"} }

func (s *MACDStrategy) Generate(data MarketData) ([]types.Signal, error) {
	var signals []types.Signal
	for symbol, bars := range data.Bars {
		needed := s.slowPeriod + s.signalPeriod + 1
		if len(bars) < needed {
			continue
		}

		macdLine := make([]decimal.Decimal, 0, len(bars))
		for i := s.slowPeriod; i <= len(bars); i++ {
			macdLine = append(macdLine, sma(bars[:i], s.fastPeriod).Sub(sma(bars[:i], s.slowPeriod)))
		}
		if len(macdLine) < s.signalPeriod+1 {
			continue
		}

		signalNow := average(macdLine[len(macdLine)-s.signalPeriod:])
		signalPrev := average(macdLine[len(macdLine)-s.signalPeriod-1 : len(macdLine)-1])
		macdNow := macdLine[len(macdLine)-1]
		macdPrev := macdLine[len(macdLine)-2]

		kind := types.SignalHold
		switch {
		case macdPrev.LessThanOrEqual(signalPrev) && macdNow.GreaterThan(signalNow):
			kind = types.SignalBuy
		case macdPrev.GreaterThanOrEqual(signalPrev) && macdNow.LessThan(signalNow):
			kind = types.SignalSell
		default:
			continue
		}

		gap := macdNow.Sub(signalNow).Abs()
		confidence := decimal.Min(gap.Mul(decimal.NewFromInt(5)), decimal.NewFromInt(1))

		signals = append(signals, types.Signal{
			Symbol:     symbol,
			Kind:       kind,
			Confidence: confidence,
			Source:     s.Name(),
			CreatedAt:  time.Now(),
		}.Normalized())
	}
	return signals, nil
}

func average(values []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

// BollingerBandStrategy emits BUY/SELL at band extremes for mean reversion.
type BollingerBandStrategy struct {
	period     int
	stdDevMult decimal.Decimal
}

// NewBollingerBandStrategy creates a Bollinger-Bands mean-reversion strategy.
func NewBollingerBandStrategy(period int, stdDevMult decimal.Decimal) *BollingerBandStrategy {
	return &BollingerBandStrategy{period: period, stdDevMult: stdDevMult}
}

func (s *BollingerBandStrategy) Name() string { return "bollinger_bands" }

func (s *BollingerBandStrategy) RequiredFields() []string { return []string{"close"} }

func (s *BollingerBandStrategy) Generate(data MarketData) ([]types.Signal, error) {
	var signals []types.Signal
	for symbol, bars := range data.Bars {
		if len(bars) < s.period {
			continue
		}

		mean := sma(bars, s.period)
		variance := decimal.Zero
		for i := len(bars) - s.period; i < len(bars); i++ {
			diff := bars[i].Close.Sub(mean)
			variance = variance.Add(diff.Mul(diff))
		}
		variance = variance.Div(decimal.NewFromInt(int64(s.period)))
		stdDev := sqrtDecimal(variance)
		if stdDev.IsZero() {
			continue
		}

		current := bars[len(bars)-1].Close
		upper := mean.Add(stdDev.Mul(s.stdDevMult))
		lower := mean.Sub(stdDev.Mul(s.stdDevMult))

		kind := types.SignalHold
		confidence := decimal.Zero
		switch {
		case current.LessThan(lower):
			kind = types.SignalBuy
			confidence = lower.Sub(current).Div(stdDev).Div(s.stdDevMult)
		case current.GreaterThan(upper):
			kind = types.SignalSell
			confidence = current.Sub(upper).Div(stdDev).Div(s.stdDevMult)
		default:
			continue
		}

		signals = append(signals, types.Signal{
			Symbol:     symbol,
			Kind:       kind,
			Confidence: decimal.Min(confidence, decimal.NewFromInt(1)),
			Source:     s.Name(),
			CreatedAt:  time.Now(),
		}.Normalized())
	}
	return signals, nil
}
