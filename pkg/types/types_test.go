package types_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
)

func TestSignalNormalizedCollapsesZeroConfidenceToHold(t *testing.T) {
	sig := types.Signal{Kind: types.SignalBuy, Confidence: decimal.Zero}.Normalized()
	require.Equal(t, types.SignalHold, sig.Kind)
}

func TestSignalNormalizedLeavesNonZeroConfidenceAlone(t *testing.T) {
	sig := types.Signal{Kind: types.SignalSell, Confidence: decimal.NewFromFloat(0.5)}.Normalized()
	require.Equal(t, types.SignalSell, sig.Kind)
}

func TestProviderKeyAvailableWithNoCooldown(t *testing.T) {
	key := &types.ProviderKey{}
	require.True(t, key.Available(time.Now()))
}

func TestProviderKeyUnavailableDuringCooldown(t *testing.T) {
	now := time.Now()
	key := &types.ProviderKey{RateLimitedUntil: now.Add(time.Minute)}
	require.False(t, key.Available(now))
}

func TestProviderKeyAvailableAfterCooldownElapses(t *testing.T) {
	now := time.Now()
	key := &types.ProviderKey{RateLimitedUntil: now.Add(-time.Second)}
	require.True(t, key.Available(now))
}
