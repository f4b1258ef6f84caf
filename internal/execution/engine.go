// Package execution implements the anti-gaming ExecutionEngine: order
// fragmentation, timing jitter, decoys, and per-symbol circuit breakers
// designed to make the orchestrator's order flow hard to front-run.
package execution

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/atlas-desktop/trading-orchestrator/internal/breaker"
	"github.com/atlas-desktop/trading-orchestrator/internal/broker"
	"github.com/atlas-desktop/trading-orchestrator/internal/metrics"
	"github.com/atlas-desktop/trading-orchestrator/internal/workers"
	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
)

// Config bounds the engine's anti-gaming behaviour.
type Config struct {
	MaxConsecutiveFailures int
	SymbolBreakerCooldown  time.Duration
	JitterRangeMs          [2]int
	SizeVariance           float64
	DecoyProbability       float64
	MinIcebergChunks       int
	MaxIcebergChunks       int
	TWAPSlices             int
	VWAPProfile            []float64
}

// DefaultConfig returns the documented anti-gaming defaults.
func DefaultConfig() Config {
	return Config{
		MaxConsecutiveFailures: 3,
		SymbolBreakerCooldown:  300 * time.Second,
		JitterRangeMs:          [2]int{50, 500},
		SizeVariance:           0.15,
		DecoyProbability:       0.2,
		MinIcebergChunks:       3,
		MaxIcebergChunks:       8,
		TWAPSlices:             5,
		VWAPProfile:            []float64{0.20, 0.18, 0.15, 0.12, 0.12, 0.10, 0.08, 0.05},
	}
}

// Engine places OrderIntents against a Broker while fragmenting,
// jittering, and occasionally decoying the order flow.
type Engine struct {
	logger    *zap.Logger
	cfg       Config
	brokerage broker.Broker
	breakers  *breaker.Registry
	decoyPool *workers.Pool
	rnd       *rand.Rand
	metrics   *metrics.Registry

	mu          sync.Mutex
	executionHistory map[string][]time.Time // symbol -> last N real-execution instants
	disruptedSymbols map[string]bool
}

// NewEngine builds an ExecutionEngine. rnd is the single injectable
// random source for jitter/variance/strategy-selection/decoys, shared
// with the caller so tests can seed it deterministically.
func NewEngine(logger *zap.Logger, cfg Config, brokerage broker.Broker, rnd *rand.Rand) *Engine {
	pool := workers.NewPool(logger.Named("decoy-pool"), workers.DecoyPoolConfig())
	pool.Start()

	return &Engine{
		logger:           logger.Named("execution-engine"),
		cfg:              cfg,
		brokerage:        brokerage,
		breakers:         breaker.NewRegistry(types.ScopeSymbol, cfg.MaxConsecutiveFailures, cfg.SymbolBreakerCooldown),
		decoyPool:        pool,
		rnd:              rnd,
		executionHistory: make(map[string][]time.Time),
		disruptedSymbols: make(map[string]bool),
	}
}

// Close stops the decoy-cancellation pool. Decoy tasks already running
// are not waited for, and queued ones are dropped.
func (e *Engine) Close() error {
	return e.decoyPool.Stop()
}

// WithMetrics attaches a metrics.Registry the engine instruments on
// every symbol breaker trip. Returns the same Engine for chaining at
// construction.
func (e *Engine) WithMetrics(m *metrics.Registry) *Engine {
	e.metrics = m
	return e
}

// BreakerStates returns a snapshot of every per-symbol breaker the
// engine has created so far, for status reporting.
func (e *Engine) BreakerStates() []types.CircuitBreakerState {
	return e.breakers.States()
}

// Execute places intent, fragmenting per its Strategy (or an auto-chosen
// tactic), applying timing jitter and size variance, and occasionally
// scheduling a same-tick decoy. Returns SymbolBreakerOpen without any
// broker call if the symbol's breaker is tripped.
func (e *Engine) Execute(ctx context.Context, intent types.OrderIntent, volatility, volume decimal.Decimal) (types.ExecutionResult, error) {
	now := time.Now()
	b := e.breakers.Get(intent.Symbol)
	if !b.Allow(now) {
		return types.ExecutionResult{}, fmt.Errorf("%w: %s", types.ErrSymbolBreakerOpen, intent.Symbol)
	}

	strategy := intent.Strategy
	if strategy == types.StrategyAuto {
		strategy = e.selectTactic(intent, volatility, volume)
	}

	volFactor := volatilityFactor(volatility)

	var chunks []types.ChunkResult
	var err error
	switch strategy {
	case types.StrategyIceberg:
		chunks, err = e.runIceberg(ctx, intent, volFactor)
	case types.StrategyTWAP:
		chunks, err = e.runTWAP(ctx, intent, volFactor)
	case types.StrategyVWAP:
		chunks, err = e.runVWAP(ctx, intent, volFactor, volume)
	default:
		chunks, err = e.runSimple(ctx, intent)
	}

	filled := decimal.Zero
	anySuccess := false
	for _, c := range chunks {
		if c.Success {
			filled = filled.Add(c.Quantity)
			anySuccess = true
		}
	}

	if anySuccess {
		b.RecordSuccess()
		e.recordExecution(intent.Symbol, now)
	} else if tripped := b.RecordFailure(now); tripped && e.metrics != nil {
		e.metrics.BreakerTrips.WithLabelValues(string(types.ScopeSymbol), intent.Symbol).Inc()
	}

	if anySuccess && e.rnd.Float64() < e.cfg.DecoyProbability {
		e.scheduleDecoy(intent, chunks[0])
	}

	result := types.ExecutionResult{
		Success:        anySuccess,
		FilledQuantity: filled,
		StrategyUsed:   strategy,
		ChunkResults:   chunks,
	}
	if !anySuccess {
		reason := "no chunks filled"
		if err != nil {
			reason = err.Error()
		}
		result.FailureReason = reason
	}
	return result, nil
}

func (e *Engine) runSimple(ctx context.Context, intent types.OrderIntent) ([]types.ChunkResult, error) {
	e.sleepJitter(1.0)
	return []types.ChunkResult{e.placeChunk(ctx, intent, intent.TotalQuantity, e.cfg.SizeVariance)}, nil
}

func (e *Engine) placeChunk(ctx context.Context, intent types.OrderIntent, quantity decimal.Decimal, variance float64) types.ChunkResult {
	quantity = applyVariance(quantity, variance, e.rnd)
	if quantity.LessThanOrEqual(decimal.Zero) {
		return types.ChunkResult{Success: false, Error: "variance collapsed quantity to zero", ExecutedAt: time.Now()}
	}

	ack, err := e.brokerage.PlaceOrder(ctx, intent.Symbol, intent.Side, quantity, intent.ReferencePrice, broker.OrderOptions{})
	if err != nil {
		e.logger.Warn("chunk placement failed", zap.String("symbol", intent.Symbol), zap.Error(err))
		return types.ChunkResult{Quantity: quantity, Success: false, Error: err.Error(), ExecutedAt: time.Now()}
	}
	return types.ChunkResult{Quantity: ack.Filled, FillPrice: ack.FillPrice, Success: true, OrderID: ack.OrderID, ExecutedAt: time.Now()}
}

func applyVariance(quantity decimal.Decimal, variance float64, rnd *rand.Rand) decimal.Decimal {
	if variance <= 0 {
		return quantity
	}
	factor := 1.0 + (rnd.Float64()*2-1)*variance
	if factor < 0 {
		factor = 0
	}
	return quantity.Mul(decimal.NewFromFloat(factor))
}

func (e *Engine) sleepJitter(volFactor float64) {
	lo, hi := e.cfg.JitterRangeMs[0], e.cfg.JitterRangeMs[1]
	span := hi - lo
	if span < 0 {
		span = 0
	}
	ms := float64(lo) + e.rnd.Float64()*float64(span)
	ms /= volFactor
	if ms < 10 {
		ms = 10
	}
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// volatilityFactor scales sleep durations inversely with volatility:
// more volatile markets sleep less. Volatility is expected in the
// 0-1 fractional range; a value of 0 maps to factor 1.
func volatilityFactor(volatility decimal.Decimal) float64 {
	v, _ := volatility.Float64()
	if v <= 0 {
		return 1.0
	}
	return math.Max(0.2, 1.0+v*4)
}

func (e *Engine) recordExecution(symbol string, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	hist := append(e.executionHistory[symbol], at)
	if len(hist) > 10 {
		hist = hist[len(hist)-10:]
	}
	e.executionHistory[symbol] = hist

	if len(hist) < 10 {
		return
	}

	intervals := make([]float64, 0, len(hist)-1)
	for i := 1; i < len(hist); i++ {
		intervals = append(intervals, hist[i].Sub(hist[i-1]).Seconds())
	}
	mean, sd := stat.MeanStdDev(intervals, nil)
	if mean > 0 && sd/mean < 0.20 {
		e.disrupted(symbol)
	}
}

func (e *Engine) disrupted(symbol string) {
	e.disruptedSymbols[symbol] = true
	e.logger.Info("detectable execution cadence flagged, increasing jitter", zap.String("symbol", symbol))
}

// isDisrupted reports whether symbol was flagged for a detectable
// execution cadence, doubling the sleep between its subsequent
// iceberg/TWAP/VWAP slices. The single-order jitter sleep is not affected.
func (e *Engine) isDisrupted(symbol string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disruptedSymbols[symbol]
}

// scheduleDecoy places a small opposite-side post-only order after the
// real order's first fragment and cancels it U(5,30)s later, as a
// fire-and-forget background task on the decoy pool (not waited for by
// engine Close).
func (e *Engine) scheduleDecoy(intent types.OrderIntent, realChunk types.ChunkResult) {
	if !realChunk.Success {
		return
	}

	oppositeSide := types.OrderSideSell
	priceOffset := 1 + 0.01 + e.rnd.Float64()*0.04
	if intent.Side == types.OrderSideSell {
		oppositeSide = types.OrderSideBuy
		priceOffset = 1 - 0.01 - e.rnd.Float64()*0.04
	}

	decoySize := intent.TotalQuantity.Mul(decimal.NewFromFloat(0.01 + e.rnd.Float64()*0.04))
	decoyPrice := intent.ReferencePrice.Mul(decimal.NewFromFloat(priceOffset))
	cancelDelay := time.Duration(5+e.rnd.Float64()*25) * time.Second

	err := e.decoyPool.SubmitFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 35*time.Second)
		defer cancel()

		ack, err := e.brokerage.PlaceOrder(ctx, intent.Symbol, oppositeSide, decoySize, decoyPrice, broker.OrderOptions{PostOnly: true})
		if err != nil {
			e.logger.Debug("decoy placement failed", zap.String("symbol", intent.Symbol), zap.Error(err))
			return nil // decoy failures are logged and ignored; never trip the breaker
		}

		select {
		case <-time.After(cancelDelay):
		case <-ctx.Done():
			return nil
		}
		_, _ = e.brokerage.CancelOrder(ctx, ack.OrderID)
		return nil
	})
	if err != nil {
		e.logger.Debug("decoy scheduling dropped, pool saturated", zap.String("symbol", intent.Symbol))
	}
}

// selectTactic weights iceberg/twap/vwap/simple against order size and
// market conditions, applying a uniform [0.8,1.2] jitter to each weight
// before sampling so selection is not deterministic.
func (e *Engine) selectTactic(intent types.OrderIntent, volatility, volume decimal.Decimal) types.ExecutionStrategy {
	capFraction, _ := intent.TotalQuantity.Mul(intent.ReferencePrice).Div(decimal.NewFromInt(1000000)).Float64()
	vol, _ := volatility.Float64()

	weights := map[types.ExecutionStrategy]float64{
		types.StrategyIceberg: 0,
		types.StrategyTWAP:    0,
		types.StrategyVWAP:    0,
		types.StrategySimple:  0,
	}

	if capFraction > 0.10 {
		weights[types.StrategyIceberg] += 2.0
		if vol > 0.25 {
			weights[types.StrategyVWAP] += 2.0
		}
	} else if capFraction > 0.03 {
		weights[types.StrategyTWAP] += 2.0
	} else if vol < 0.10 {
		weights[types.StrategySimple] += 2.0
	} else {
		weights[types.StrategyTWAP] += 1.0
	}

	best := types.StrategySimple
	bestScore := -1.0
	for tactic, weight := range weights {
		jittered := weight * (0.8 + e.rnd.Float64()*0.4)
		if jittered > bestScore {
			bestScore = jittered
			best = tactic
		}
	}
	return best
}
