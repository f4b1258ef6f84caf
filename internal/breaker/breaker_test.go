package breaker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atlas-desktop/trading-orchestrator/internal/breaker"
	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
)

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := breaker.New(types.ScopeSymbol, "TSLA", 3, time.Second)
	now := time.Now()

	require.True(t, b.Allow(now))
	b.RecordFailure(now)
	b.RecordFailure(now)
	tripped := b.RecordFailure(now)

	require.True(t, tripped)
	require.False(t, b.Allow(now))
}

func TestBreakerResetsAfterCooldown(t *testing.T) {
	b := breaker.New(types.ScopeSymbol, "TSLA", 3, time.Second)
	now := time.Now()

	b.RecordFailure(now)
	b.RecordFailure(now)
	b.RecordFailure(now)
	require.False(t, b.Allow(now))

	later := now.Add(1100 * time.Millisecond)
	require.True(t, b.Allow(later))
}

func TestRegistryCreatesPerKeyBreakers(t *testing.T) {
	r := breaker.NewRegistry(types.ScopeSymbol, 3, time.Second)
	a := r.Get("AAPL")
	b := r.Get("AAPL")
	c := r.Get("MSFT")

	require.Same(t, a, b)
	require.NotSame(t, a, c)
}
