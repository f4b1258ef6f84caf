// Package types provides shared type definitions for the trading orchestrator.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide represents buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// SignalKind is the directional advice carried by a Signal.
type SignalKind string

const (
	SignalBuy  SignalKind = "BUY"
	SignalSell SignalKind = "SELL"
	SignalHold SignalKind = "HOLD"
)

// Value returns the fusion weight for the signal kind: BUY=+1, SELL=-1, HOLD=0.
func (k SignalKind) Value() int {
	switch k {
	case SignalBuy:
		return 1
	case SignalSell:
		return -1
	default:
		return 0
	}
}

// ExecutionStrategy names an order-splitting tactic.
type ExecutionStrategy string

const (
	StrategyAuto    ExecutionStrategy = "auto"
	StrategySimple  ExecutionStrategy = "simple"
	StrategyIceberg ExecutionStrategy = "iceberg"
	StrategyTWAP    ExecutionStrategy = "twap"
	StrategyVWAP    ExecutionStrategy = "vwap"
)

// OHLCV represents a single candlestick.
type OHLCV struct {
	Symbol    string          `json:"symbol"`
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Signal is an advisory instruction for one symbol.
//
// Invariant: HOLD signals never reach sizing; BUY/SELL with confidence 0 are
// normalized to HOLD by whoever constructs them (see strategy.Combiner).
type Signal struct {
	Symbol     string                 `json:"symbol"`
	Kind       SignalKind             `json:"kind"`
	Confidence decimal.Decimal        `json:"confidence"`
	Source     string                 `json:"source"`
	CreatedAt  time.Time              `json:"created_at"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Normalized returns the signal with BUY/SELL confidence==0 collapsed to HOLD.
func (s Signal) Normalized() Signal {
	if s.Kind != SignalHold && s.Confidence.IsZero() {
		s.Kind = SignalHold
	}
	return s
}

// PositionSizing is RiskManager's sized output for a proposed trade.
type PositionSizing struct {
	Symbol            string          `json:"symbol"`
	Side              OrderSide       `json:"side"`
	Quantity          decimal.Decimal `json:"quantity"`
	Notional          decimal.Decimal `json:"notional"`
	PortfolioFraction decimal.Decimal `json:"portfolio_fraction"`
	RiskContribution  decimal.Decimal `json:"risk_contribution"`
	StopPrice         decimal.Decimal `json:"stop_price,omitempty"`
	TargetPrice       decimal.Decimal `json:"target_price,omitempty"`
	ReferencePrice    decimal.Decimal `json:"reference_price"`
}

// PositionState is one symbol's holding inside a PortfolioSnapshot.
type PositionState struct {
	Quantity    decimal.Decimal `json:"quantity"`
	MarketValue decimal.Decimal `json:"market_value"`
	Sector      string          `json:"sector"`
}

// PortfolioSnapshot is the point-in-time account state RiskManager consumes.
type PortfolioSnapshot struct {
	Cash                decimal.Decimal          `json:"cash"`
	Equity              decimal.Decimal          `json:"equity"`
	Positions           map[string]PositionState `json:"positions"`
	DailyRealizedPnL    decimal.Decimal          `json:"daily_realized_pnl"`
	DailyHighWaterMark  decimal.Decimal          `json:"daily_high_water_mark"`
	AsOf                time.Time                `json:"as_of"`
}

// RiskParameters bounds RiskManager's behaviour.
type RiskParameters struct {
	MaxPositionFraction   decimal.Decimal `json:"max_position_fraction"`
	MaxPortfolioRiskDaily decimal.Decimal `json:"max_portfolio_risk_daily"`
	MaxSymbolRisk         decimal.Decimal `json:"max_symbol_risk"`
	MaxSectorExposure     decimal.Decimal `json:"max_sector_exposure"`
	MaxDailyDrawdown      decimal.Decimal `json:"max_daily_drawdown"`
	DefaultStopPct        decimal.Decimal `json:"default_stop_pct"`
	DefaultTargetPct      decimal.Decimal `json:"default_target_pct"`
	VolatilityScaling     bool            `json:"volatility_scaling"`
}

// DefaultRiskParameters returns conservative defaults.
func DefaultRiskParameters() RiskParameters {
	return RiskParameters{
		MaxPositionFraction:   decimal.NewFromFloat(0.10),
		MaxPortfolioRiskDaily: decimal.NewFromFloat(0.06),
		MaxSymbolRisk:         decimal.NewFromFloat(0.02),
		MaxSectorExposure:     decimal.NewFromFloat(0.25),
		MaxDailyDrawdown:      decimal.NewFromFloat(0.05),
		DefaultStopPct:        decimal.NewFromFloat(0.03),
		DefaultTargetPct:      decimal.NewFromFloat(0.06),
		VolatilityScaling:     true,
	}
}

// ProviderKey is one credential for one advisory provider.
//
// Invariant: the plaintext secret is never retained outside the
// decrypt-use span; only EncryptedSecret is held across calls.
type ProviderKey struct {
	ID               string    `json:"id"`
	Provider         string    `json:"provider"`
	EncryptedSecret  []byte    `json:"-"`
	Nonce            [24]byte  `json:"-"`
	LastUsed         time.Time `json:"last_used"`
	ErrorCount       int       `json:"error_count"`
	RateLimitedUntil time.Time `json:"rate_limited_until"`
}

// Available reports whether the key may be used at instant now.
func (k *ProviderKey) Available(now time.Time) bool {
	return k.RateLimitedUntil.IsZero() || !now.Before(k.RateLimitedUntil)
}

// OrderIntent is the ExecutionEngine's input: one decided trade to place.
type OrderIntent struct {
	Symbol         string            `json:"symbol"`
	Side           OrderSide         `json:"side"`
	TotalQuantity  decimal.Decimal   `json:"total_quantity"`
	ReferencePrice decimal.Decimal   `json:"reference_price"`
	Strategy       ExecutionStrategy `json:"strategy"`
}

// ChunkResult is one fragment of an OrderIntent's execution.
type ChunkResult struct {
	Quantity   decimal.Decimal `json:"quantity"`
	FillPrice  decimal.Decimal `json:"fill_price"`
	Success    bool            `json:"success"`
	OrderID    string          `json:"order_id,omitempty"`
	Error      string          `json:"error,omitempty"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// ExecutionResult is ExecutionEngine's output for one OrderIntent.
type ExecutionResult struct {
	Success        bool              `json:"success"`
	FilledQuantity decimal.Decimal   `json:"filled_quantity"`
	StrategyUsed   ExecutionStrategy `json:"strategy_used"`
	ChunkResults   []ChunkResult     `json:"chunk_results"`
	FailureReason  string            `json:"failure_reason,omitempty"`
}

// BreakerScope names the owner of a CircuitBreakerState.
type BreakerScope string

const (
	ScopeGlobal   BreakerScope = "global"
	ScopeProvider BreakerScope = "provider"
	ScopeSymbol   BreakerScope = "symbol"
)

// CircuitBreakerState is the externally observable state of one breaker.
type CircuitBreakerState struct {
	Scope               BreakerScope `json:"scope"`
	Key                 string       `json:"key"`
	Tripped             bool         `json:"tripped"`
	TripExpiry          time.Time    `json:"trip_expiry"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	FailureTimestamps   []time.Time  `json:"failure_timestamps"`
}

// Quote is a point-in-time price/volume/volatility read for a symbol.
type Quote struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	Volume     decimal.Decimal `json:"volume"`
	Volatility decimal.Decimal `json:"volatility"`
	AsOf       time.Time       `json:"as_of"`
}
