package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-orchestrator/internal/advisor"
	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
)

// AdvisorStrategy wraps an AdvisorGateway, turning its recommendations
// into Signals for the registry alongside the purely technical strategies.
type AdvisorStrategy struct {
	logger           *zap.Logger
	gateway          *advisor.Gateway
	preferredProvider string
}

// NewAdvisorStrategy wraps gateway as a Strategy, optionally pinning a
// preferred provider for every call.
func NewAdvisorStrategy(logger *zap.Logger, gateway *advisor.Gateway, preferredProvider string) *AdvisorStrategy {
	return &AdvisorStrategy{
		logger:            logger.Named("advisor-strategy"),
		gateway:           gateway,
		preferredProvider: preferredProvider,
	}
}

func (s *AdvisorStrategy) Name() string { return "advisor" }

func (s *AdvisorStrategy) RequiredFields() []string { return []string{"close", "volume"} }

// Generate builds one prompt covering every symbol in data.Bars, asks the
// gateway for a recommendation batch, and maps each valid item to a Signal.
func (s *AdvisorStrategy) Generate(data MarketData) ([]types.Signal, error) {
	symbols := make([]string, 0, len(data.Bars))
	for symbol := range data.Bars {
		symbols = append(symbols, symbol)
	}
	if len(symbols) == 0 {
		return nil, nil
	}

	prompt := buildPrompt(data)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	content, err := s.gateway.Complete(ctx, prompt, s.preferredProvider)
	if err != nil {
		return nil, err
	}

	recs, err := advisor.ParseRecommendations(content)
	if err != nil {
		return nil, err
	}

	signals := make([]types.Signal, 0, len(recs))
	for _, rec := range recs {
		kind, ok := decisionToKind(rec.Decision)
		if !ok {
			continue
		}
		signals = append(signals, types.Signal{
			Symbol:     rec.Symbol,
			Kind:       kind,
			Confidence: decimal.NewFromFloat(rec.Confidence),
			Source:     s.Name(),
			CreatedAt:  time.Now(),
			Metadata: map[string]interface{}{
				"reasoning": rec.Reasoning,
			},
		}.Normalized())
	}
	return signals, nil
}

func decisionToKind(decision string) (types.SignalKind, bool) {
	switch strings.ToLower(decision) {
	case "buy":
		return types.SignalBuy, true
	case "sell":
		return types.SignalSell, true
	case "hold":
		return types.SignalHold, true
	default:
		return types.SignalHold, false
	}
}

func buildPrompt(data MarketData) string {
	var b strings.Builder
	b.WriteString("Analyze the following symbols and respond only with JSON matching ")
	b.WriteString(`{"recommendations":[{"symbol":"...","decision":"buy|sell|hold","confidence":0.0,"reasoning":"..."}]}. `)
	for symbol, bars := range data.Bars {
		if len(bars) == 0 {
			continue
		}
		last := bars[len(bars)-1]
		fmt.Fprintf(&b, "%s last close %s volume %s. ", symbol, last.Close.String(), last.Volume.String())
	}
	return b.String()
}
