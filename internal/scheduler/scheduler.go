// Package scheduler drives the outer cooperative tick loop: gate on
// market hours and session caps, fetch market state, decide via the
// strategy combiner, size and execute per symbol, then account for the
// tick's outcome.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-orchestrator/internal/breaker"
	"github.com/atlas-desktop/trading-orchestrator/internal/broker"
	"github.com/atlas-desktop/trading-orchestrator/internal/execution"
	"github.com/atlas-desktop/trading-orchestrator/internal/metrics"
	"github.com/atlas-desktop/trading-orchestrator/internal/risk"
	"github.com/atlas-desktop/trading-orchestrator/internal/strategy"
	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
	"github.com/atlas-desktop/trading-orchestrator/pkg/utils"
)

// Config bounds one Scheduler's session.
type Config struct {
	TickInterval          time.Duration
	MaxTradesPerDay        int
	MaxSessionHours        time.Duration
	GlobalBreakerFail      int
	GlobalBreakerCooldown  time.Duration
	Symbols                []string
	HistoryBars            int
	// SymbolSectors maps a symbol to its sector for exposure accounting.
	// Symbols absent from the map are treated as sector "unassigned".
	SymbolSectors map[string]string
	// DailyResetCron is the cron expression (5-field) for RiskManager's
	// daily boundary reset. Defaults to midnight in the process's local
	// time zone.
	DailyResetCron string
}

// DefaultConfig returns the documented session defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:          15 * time.Minute,
		MaxTradesPerDay:       50,
		MaxSessionHours:       6 * time.Hour,
		GlobalBreakerFail:     3,
		GlobalBreakerCooldown: 300 * time.Second,
		HistoryBars:           60,
		DailyResetCron:        "0 0 * * *",
	}
}

// Scheduler owns the Portfolio/Risk lifecycle and drives ticks against
// a broker, combiner, RiskManager, and ExecutionEngine. One tick runs
// at a time; concurrent ticks are forbidden by construction (Run is a
// single goroutine's loop).
type Scheduler struct {
	logger    *zap.Logger
	cfg       Config
	brokerage broker.Broker
	combiner  *strategy.Combiner
	riskMgr   *risk.Manager
	engine    *execution.Engine
	global     *breaker.Breaker
	cronRunner *cron.Cron
	metrics    *metrics.Registry

	mu         sync.Mutex
	tradeCount int
	startedAt  time.Time
}

// New builds a Scheduler wired to its collaborators.
func New(logger *zap.Logger, cfg Config, brokerage broker.Broker, combiner *strategy.Combiner, riskMgr *risk.Manager, engine *execution.Engine) *Scheduler {
	return &Scheduler{
		logger:    logger.Named("scheduler"),
		cfg:       cfg,
		brokerage: brokerage,
		combiner:  combiner,
		riskMgr:   riskMgr,
		engine:    engine,
		global:    breaker.New(types.ScopeGlobal, "global", cfg.GlobalBreakerFail, cfg.GlobalBreakerCooldown),
	}
}

// WithMetrics attaches a metrics.Registry the scheduler instruments
// every tick. Returns the same Scheduler for chaining at construction.
func (s *Scheduler) WithMetrics(m *metrics.Registry) *Scheduler {
	s.metrics = m
	return s
}

// Run drives ticks until ctx is cancelled, the session cap is reached,
// or the trade cap is reached. It blocks the calling goroutine.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.cronRunner = cron.New()
	if _, err := s.cronRunner.AddFunc(s.dailyResetCron(), s.riskMgr.ResetDaily); err != nil {
		return fmt.Errorf("%w: scheduling daily reset: %v", types.ErrConfigError, err)
	}
	s.cronRunner.Start()
	defer s.cronRunner.Stop()

	s.logger.Info("scheduler starting",
		zap.Duration("tick_interval", s.cfg.TickInterval),
		zap.Int("max_trades_per_day", s.cfg.MaxTradesPerDay),
		zap.Duration("max_session_hours", s.cfg.MaxSessionHours))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", zap.Error(ctx.Err()))
			return nil
		default:
		}

		sleep, terminate := s.gate(ctx)
		if terminate {
			s.logger.Info("session cap reached, terminating")
			return nil
		}
		if sleep > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(sleep):
			}
			continue
		}

		if err := s.tick(ctx); err != nil {
			s.logger.Error("tick failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.TickInterval):
		}
	}
}

func (s *Scheduler) dailyResetCron() string {
	if s.cfg.DailyResetCron != "" {
		return s.cfg.DailyResetCron
	}
	return "0 0 * * *"
}

// gate implements step 1: breaker/market/session checks. Returns a
// sleep duration (60s on a transient gate failure) and whether the
// session should terminate outright.
func (s *Scheduler) gate(ctx context.Context) (sleep time.Duration, terminate bool) {
	now := time.Now()

	if !s.global.Allow(now) {
		s.logger.Warn("global breaker open, sleeping")
		return 60 * time.Second, false
	}

	open, err := s.brokerage.MarketIsOpen(ctx)
	if err != nil || !open {
		return 60 * time.Second, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tradeCount >= s.cfg.MaxTradesPerDay {
		return 0, true
	}
	if s.cfg.MaxSessionHours > 0 && time.Since(s.startedAt) > s.cfg.MaxSessionHours {
		return 0, true
	}
	return 0, false
}

// tick runs one Fetch -> Decide -> Execute -> Account pass.
func (s *Scheduler) tick(ctx context.Context) error {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.TickLatency.Observe(time.Since(start).Seconds())
		}
	}()

	snapshot, bars, err := s.fetch(ctx)
	if err != nil {
		s.recordBrokerError()
		if s.metrics != nil {
			s.metrics.TickErrors.Inc()
		}
		return fmt.Errorf("fetch: %w", err)
	}

	signals := s.decide(bars)

	brokerErrored := false
	for symbol, signal := range signals {
		if signal.Kind == types.SignalHold {
			continue
		}

		quote, err := s.brokerage.GetQuote(ctx, symbol)
		if err != nil {
			s.logger.Warn("quote fetch failed, skipping symbol", zap.String("symbol", symbol), zap.Error(err))
			brokerErrored = true
			continue
		}

		sector := s.sectorFor(symbol)
		recentReturns := returnsFromBars(bars[symbol])

		sizing, err := s.riskMgr.Size(signal, snapshot, quote.Price, sector, recentReturns)
		if err != nil {
			s.logger.Info("sizing rejected", zap.String("symbol", symbol), zap.Error(err))
			if s.metrics != nil {
				reason := "unknown"
				if rejection, ok := err.(*risk.RejectionError); ok {
					reason = string(rejection.Reason)
				}
				s.metrics.RiskRejections.WithLabelValues(reason).Inc()
			}
			continue
		}

		intent := types.OrderIntent{
			Symbol:         symbol,
			Side:           sizing.Side,
			TotalQuantity:  sizing.Quantity,
			ReferencePrice: sizing.ReferencePrice,
			Strategy:       types.StrategyAuto,
		}

		result, err := s.engine.Execute(ctx, intent, quote.Volatility, quote.Volume)
		if err != nil {
			s.logger.Warn("execution skipped", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		s.account(symbol, intent, result)

		if s.TradeCount() >= s.cfg.MaxTradesPerDay {
			s.logger.Info("max trades per day reached mid-tick, stopping symbol loop")
			break
		}
	}

	if brokerErrored {
		s.recordBrokerError()
	} else {
		s.global.RecordSuccess()
	}

	s.riskMgr.RecordMark(snapshot.Equity)
	return nil
}

func (s *Scheduler) fetch(ctx context.Context) (types.PortfolioSnapshot, map[string][]types.OHLCV, error) {
	snapshot, err := s.brokerage.GetPortfolio(ctx)
	if err != nil {
		return types.PortfolioSnapshot{}, nil, err
	}

	symbols := s.cfg.Symbols
	if len(symbols) == 0 {
		watchlist, err := s.brokerage.GetWatchlist(ctx)
		if err != nil {
			return types.PortfolioSnapshot{}, nil, err
		}
		symbols = watchlist
	}

	bars := make(map[string][]types.OHLCV, len(symbols))
	for _, symbol := range symbols {
		history, err := s.brokerage.GetHistorical(ctx, symbol, s.cfg.HistoryBars)
		if err != nil {
			s.logger.Warn("historical fetch failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		bars[symbol] = history
	}

	return snapshot, bars, nil
}

func (s *Scheduler) decide(bars map[string][]types.OHLCV) map[string]types.Signal {
	return s.combiner.Combine(strategy.MarketData{Bars: bars})
}

// account implements step 5: counters and last-trade bookkeeping.
func (s *Scheduler) account(symbol string, intent types.OrderIntent, result types.ExecutionResult) {
	if s.metrics != nil && intent.TotalQuantity.IsPositive() {
		ratio, _ := result.FilledQuantity.Div(intent.TotalQuantity).Float64()
		s.metrics.FillRatio.Set(ratio)
	}
	if !result.Success {
		return
	}
	s.mu.Lock()
	s.tradeCount++
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.TradesPlaced.WithLabelValues(symbol).Inc()
	}
}

func (s *Scheduler) recordBrokerError() {
	if s.global.RecordFailure(time.Now()) {
		s.logger.Error("global breaker tripped on broker errors")
		if s.metrics != nil {
			s.metrics.BreakerTrips.WithLabelValues(string(types.ScopeGlobal), "global").Inc()
		}
	}
}

func (s *Scheduler) sectorFor(symbol string) string {
	if sector, ok := s.cfg.SymbolSectors[symbol]; ok {
		return sector
	}
	return "unassigned"
}

func returnsFromBars(bars []types.OHLCV) []float64 {
	if len(bars) < 2 {
		return nil
	}
	closes := make([]decimal.Decimal, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	decReturns := utils.CalculateReturns(closes)
	out := make([]float64, len(decReturns))
	for i, r := range decReturns {
		f, _ := r.Float64()
		out[i] = f
	}
	return out
}

// TradeCount returns the number of trades accounted so far this session.
func (s *Scheduler) TradeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tradeCount
}

// GlobalBreakerState returns the global breaker's current state, used
// by the status API.
func (s *Scheduler) GlobalBreakerState() types.CircuitBreakerState {
	return s.global.State()
}
