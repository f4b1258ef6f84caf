package execution

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInterChunkSleepFloorsAtOneSecondWhenVolIsNotDivisor(t *testing.T) {
	e := NewEngine(zap.NewNop(), DefaultConfig(), nil, rand.New(rand.NewSource(1)))
	defer e.Close()

	// base in [2,8] divided by a high volatility factor of 5 would
	// otherwise sleep well under 1s (e.g. 2/5 = 0.4s).
	start := time.Now()
	e.interChunkSleep("AAPL", 2.0, 2.0, 5.0, false)
	require.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestInterChunkSleepIcebergHasNoFloor(t *testing.T) {
	e := NewEngine(zap.NewNop(), DefaultConfig(), nil, rand.New(rand.NewSource(1)))
	defer e.Close()

	// base in [0.5,0.5] times a low volatility factor of 0.01 sleeps
	// well under 1s; iceberg chunking (volIsDivisor true) isn't floored.
	start := time.Now()
	e.interChunkSleep("AAPL", 0.5, 0.5, 0.01, true)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}
