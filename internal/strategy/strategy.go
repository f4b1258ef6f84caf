// Package strategy holds the Strategy contract, the registry of named
// strategies, and the weighted-fusion combiner that turns many strategy
// outputs into one Signal per symbol.
package strategy

import (
	"sync"

	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
)

// MarketData is the per-tick bundle handed to every strategy's Generate.
type MarketData struct {
	Bars map[string][]types.OHLCV // symbol -> recent OHLCV history, oldest first
}

// Strategy is the capability set every signal generator implements:
// declare the fields it needs and produce zero or more signals from the
// supplied market-data bundle.
type Strategy interface {
	Name() string
	RequiredFields() []string
	Generate(data MarketData) ([]types.Signal, error)
}

// Registration pairs a strategy with its fusion weight.
type registration struct {
	strategy Strategy
	weight   float64
}

// Registry holds the set of registered strategies and their weights.
// Registration is explicit only, no reflection-based auto-discovery.
type Registry struct {
	logger *zap.Logger

	mu          sync.RWMutex
	order       []string
	registrations map[string]registration
}

// NewRegistry creates an empty strategy registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:        logger.Named("strategy-registry"),
		registrations: make(map[string]registration),
	}
}

// Register appends a strategy with the given fusion weight. weight must
// be >= 0; weights need not sum to 1, they are normalized at fusion time.
func (r *Registry) Register(s Strategy, weight float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.registrations[name]; !exists {
		r.order = append(r.order, name)
	}
	r.registrations[name] = registration{strategy: s, weight: weight}
}

// List returns registered strategy names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// GenerateAll runs every registered strategy over data in registration
// order. A strategy that errors is logged and skipped; its weight is
// excluded from that tick entirely, matching the fusion algorithm's
// treatment of failed generators.
func (r *Registry) GenerateAll(data MarketData) map[string][]weightedSignal {
	r.mu.RLock()
	order := make([]string, len(r.order))
	copy(order, r.order)
	regs := make(map[string]registration, len(r.registrations))
	for k, v := range r.registrations {
		regs[k] = v
	}
	r.mu.RUnlock()

	bySymbol := make(map[string][]weightedSignal)
	for _, name := range order {
		reg := regs[name]
		signals, err := reg.strategy.Generate(data)
		if err != nil {
			r.logger.Warn("strategy generate failed, excluding from fusion",
				zap.String("strategy", name), zap.Error(err))
			continue
		}
		for _, sig := range signals {
			bySymbol[sig.Symbol] = append(bySymbol[sig.Symbol], weightedSignal{
				signal: sig,
				weight: reg.weight,
			})
		}
	}
	return bySymbol
}

type weightedSignal struct {
	signal types.Signal
	weight float64
}
