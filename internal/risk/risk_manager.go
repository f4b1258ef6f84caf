// Package risk converts advisory signals into sized, risk-checked
// position proposals and tracks portfolio drawdown across the day.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
	"github.com/atlas-desktop/trading-orchestrator/pkg/utils"
)

// Manager implements the confidence-scaled sizing algorithm and the
// portfolio/symbol/sector acceptance checks that gate every proposed trade.
type Manager struct {
	logger *zap.Logger
	params types.RiskParameters

	mu                 sync.Mutex
	dailyRiskUsed      decimal.Decimal
	sectorExposure     map[string]decimal.Decimal
	highWaterMark      decimal.Decimal
	drawdownBreached   bool
	currentDay         int
}

// NewManager builds a RiskManager bounded by params.
func NewManager(logger *zap.Logger, params types.RiskParameters) *Manager {
	return &Manager{
		logger:         logger.Named("risk-manager"),
		params:         params,
		sectorExposure: make(map[string]decimal.Decimal),
		currentDay:     time.Now().YearDay(),
	}
}

// RejectionReason names why a sizing proposal was rejected.
type RejectionReason string

const (
	ReasonNoQuantity      RejectionReason = "no_quantity"
	ReasonDrawdown        RejectionReason = "drawdown_exceeded"
	ReasonPortfolioRisk   RejectionReason = "portfolio_risk_exceeded"
	ReasonSymbolRisk      RejectionReason = "symbol_risk_exceeded"
	ReasonSectorExposure  RejectionReason = "sector_exposure_exceeded"
)

// RejectionError wraps types.ErrRiskRejection with the specific reason.
type RejectionError struct {
	Reason RejectionReason
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", types.ErrRiskRejection.Error(), e.Reason)
}

func (e *RejectionError) Unwrap() error { return types.ErrRiskRejection }

// ResetDaily clears the day's accumulated risk usage and drawdown state,
// invoked by the Scheduler's cron-driven daily boundary callback.
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyRiskUsed = decimal.Zero
	m.sectorExposure = make(map[string]decimal.Decimal)
	m.drawdownBreached = false
	m.highWaterMark = decimal.Zero
	m.currentDay = time.Now().YearDay()
}

// RecordMark updates the day's high-water mark and evaluates drawdown.
// Once max_daily_drawdown is breached, subsequent sizings are rejected
// for the rest of the trading day.
func (m *Manager) RecordMark(equity decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if today := time.Now().YearDay(); today != m.currentDay {
		m.dailyRiskUsed = decimal.Zero
		m.sectorExposure = make(map[string]decimal.Decimal)
		m.drawdownBreached = false
		m.highWaterMark = decimal.Zero
		m.currentDay = today
	}

	if equity.GreaterThan(m.highWaterMark) {
		m.highWaterMark = equity
	}
	if m.highWaterMark.IsZero() {
		return
	}

	drawdown := m.highWaterMark.Sub(equity).Div(m.highWaterMark)
	if drawdown.GreaterThan(m.params.MaxDailyDrawdown) {
		m.drawdownBreached = true
	}
}

// Size runs the confidence-scaled sizing algorithm for signal against
// snapshot, returning an accepted PositionSizing or a *RejectionError.
//
// recentReturns feeds the optional volatility-scaling step; pass nil or
// fewer than 10 observations to skip scaling.
func (m *Manager) Size(signal types.Signal, snapshot types.PortfolioSnapshot, price decimal.Decimal, sector string, recentReturns []float64) (types.PositionSizing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.drawdownBreached {
		return types.PositionSizing{}, &RejectionError{Reason: ReasonDrawdown}
	}

	side := types.OrderSideBuy
	if signal.Kind == types.SignalSell {
		side = types.OrderSideSell
	}

	confidence := signal.Confidence
	baseFraction := m.params.MaxPositionFraction.Mul(confidence)

	if m.params.VolatilityScaling && len(recentReturns) >= 10 {
		sigma := utils.AnnualizedVolatility(recentReturns, 252)
		if sigma > 0 {
			scale := clampFloat(1.0/(sigma/0.20), 0.25, 2.0)
			baseFraction = baseFraction.Mul(decimal.NewFromFloat(scale))
		}
	}

	existing, hasPosition := snapshot.Positions[signal.Symbol]
	currentFraction := decimal.Zero
	if hasPosition && !snapshot.Equity.IsZero() {
		currentFraction = existing.MarketValue.Div(snapshot.Equity)
	}

	var sizeFraction decimal.Decimal
	switch {
	case side == types.OrderSideBuy && hasPosition:
		sizeFraction = decimal.Max(decimal.Zero, baseFraction.Sub(currentFraction))
	case side == types.OrderSideSell && hasPosition:
		sizeFraction = currentFraction
	default:
		sizeFraction = baseFraction
	}

	notional := snapshot.Equity.Mul(sizeFraction)
	if price.IsZero() {
		return types.PositionSizing{}, &RejectionError{Reason: ReasonNoQuantity}
	}
	quantity := notional.Div(price)

	if side == types.OrderSideSell && hasPosition && quantity.GreaterThan(existing.Quantity) {
		quantity = existing.Quantity
		notional = quantity.Mul(price)
	}

	if quantity.LessThanOrEqual(decimal.Zero) {
		return types.PositionSizing{}, &RejectionError{Reason: ReasonNoQuantity}
	}

	stopPrice, targetPrice := stopsFor(side, price, m.params.DefaultStopPct, m.params.DefaultTargetPct)

	riskContribution := decimal.Zero
	if !snapshot.Equity.IsZero() {
		riskContribution = notional.Div(snapshot.Equity)
	}

	if riskContribution.GreaterThan(m.params.MaxSymbolRisk) {
		return types.PositionSizing{}, &RejectionError{Reason: ReasonSymbolRisk}
	}
	if m.dailyRiskUsed.Add(riskContribution).GreaterThan(m.params.MaxPortfolioRiskDaily) {
		return types.PositionSizing{}, &RejectionError{Reason: ReasonPortfolioRisk}
	}

	heldSectorFraction := decimal.Zero
	if !snapshot.Equity.IsZero() {
		for _, pos := range snapshot.Positions {
			if pos.Sector == sector {
				heldSectorFraction = heldSectorFraction.Add(pos.MarketValue.Div(snapshot.Equity))
			}
		}
	}

	projectedSector := heldSectorFraction.Add(m.sectorExposure[sector]).Add(riskContribution)
	if projectedSector.GreaterThan(m.params.MaxSectorExposure) {
		return types.PositionSizing{}, &RejectionError{Reason: ReasonSectorExposure}
	}

	m.dailyRiskUsed = m.dailyRiskUsed.Add(riskContribution)
	m.sectorExposure[sector] = m.sectorExposure[sector].Add(riskContribution)

	return types.PositionSizing{
		Symbol:            signal.Symbol,
		Side:              side,
		Quantity:          quantity,
		Notional:          notional,
		PortfolioFraction: sizeFraction,
		RiskContribution:  riskContribution,
		StopPrice:         stopPrice,
		TargetPrice:       targetPrice,
		ReferencePrice:    price,
	}, nil
}

func stopsFor(side types.OrderSide, price, stopPct, targetPct decimal.Decimal) (stop, target decimal.Decimal) {
	one := decimal.NewFromInt(1)
	if side == types.OrderSideBuy {
		return price.Mul(one.Sub(stopPct)), price.Mul(one.Add(targetPct))
	}
	return price.Mul(one.Add(stopPct)), price.Mul(one.Sub(targetPct))
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
