package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
)

var (
	buyThreshold  = decimal.NewFromFloat(0.3)
	sellThreshold = decimal.NewFromFloat(-0.3)
)

// Combiner fuses per-strategy signals into one Signal per symbol.
type Combiner struct {
	registry *Registry
}

// NewCombiner wraps a Registry with the fusion algorithm.
func NewCombiner(registry *Registry) *Combiner {
	return &Combiner{registry: registry}
}

// Combine runs every registered strategy over data and fuses the results
// into a single Signal per symbol per the weighted-average formula:
// score(S) = Σ(kind.Value()×weight)/W, with ties at the ±0.3 boundary
// resolving toward HOLD.
func (c *Combiner) Combine(data MarketData) map[string]types.Signal {
	bySymbol := c.registry.GenerateAll(data)

	out := make(map[string]types.Signal, len(bySymbol))
	for symbol, signals := range bySymbol {
		out[symbol] = fuse(symbol, signals)
	}
	return out
}

func fuse(symbol string, signals []weightedSignal) types.Signal {
	totalWeight := 0.0
	scoreNumerator := 0.0
	confidenceNumerator := 0.0

	for _, ws := range signals {
		totalWeight += ws.weight
		confidence, _ := ws.signal.Confidence.Float64()
		scoreNumerator += float64(ws.signal.Kind.Value()) * ws.weight
		confidenceNumerator += confidence * ws.weight
	}

	if totalWeight == 0 {
		return types.Signal{
			Symbol:    symbol,
			Kind:      types.SignalHold,
			Source:    "combiner",
			CreatedAt: time.Now(),
		}
	}

	score := decimal.NewFromFloat(scoreNumerator / totalWeight)
	confidence := decimal.NewFromFloat(confidenceNumerator / totalWeight)

	kind := types.SignalHold
	switch {
	case score.GreaterThan(buyThreshold):
		kind = types.SignalBuy
	case score.LessThan(sellThreshold):
		kind = types.SignalSell
	}

	return types.Signal{
		Symbol:     symbol,
		Kind:       kind,
		Confidence: confidence,
		Source:     "combiner",
		CreatedAt:  time.Now(),
		Metadata: map[string]interface{}{
			"score":            score.String(),
			"contributing_count": len(signals),
		},
	}.Normalized()
}
