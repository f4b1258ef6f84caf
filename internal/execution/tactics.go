package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
)

// runIceberg splits intent into N chunks uniform in [min,max] chunks,
// each with ±10% size variance (capped at Config.SizeVariance, so a zero
// SizeVariance gives equal chunks), the last chunk absorbing rounding.
func (e *Engine) runIceberg(ctx context.Context, intent types.OrderIntent, volFactor float64) ([]types.ChunkResult, error) {
	n := e.cfg.MinIcebergChunks + e.rnd.Intn(e.cfg.MaxIcebergChunks-e.cfg.MinIcebergChunks+1)
	perChunk := intent.TotalQuantity.Div(decimal.NewFromInt(int64(n)))
	variance := 0.10
	if e.cfg.SizeVariance < variance {
		variance = e.cfg.SizeVariance
	}

	results := make([]types.ChunkResult, 0, n)
	remaining := intent.TotalQuantity
	for i := 0; i < n; i++ {
		var qty decimal.Decimal
		if i == n-1 {
			qty = remaining
		} else {
			qty = applyVariance(perChunk, variance, e.rnd)
			if qty.GreaterThan(remaining) {
				qty = remaining
			}
		}

		chunk := e.placeChunk(ctx, intent, qty, 0)
		results = append(results, chunk)
		if chunk.Success {
			remaining = remaining.Sub(chunk.Quantity)
		}

		if i < n-1 {
			e.interChunkSleep(intent.Symbol, 0.5, 3.0, volFactor, true)
		}
	}
	return results, nil
}

// runTWAP slices intent into a fixed number of roughly equal pieces (each
// non-final slice carries ±10% size variance, the last slice absorbing the
// remainder), sleeping between slices for a volatility-scaled interval
// floored at 1s.
func (e *Engine) runTWAP(ctx context.Context, intent types.OrderIntent, volFactor float64) ([]types.ChunkResult, error) {
	n := e.cfg.TWAPSlices
	if n <= 0 {
		n = 1
	}
	perSlice := intent.TotalQuantity.Div(decimal.NewFromInt(int64(n)))

	results := make([]types.ChunkResult, 0, n)
	remaining := intent.TotalQuantity
	for i := 0; i < n; i++ {
		var qty decimal.Decimal
		if i == n-1 {
			qty = remaining
		} else {
			qty = applyVariance(perSlice, 0.10, e.rnd)
			if qty.GreaterThan(remaining) {
				qty = remaining
			}
		}

		chunk := e.placeChunk(ctx, intent, qty, 0)
		results = append(results, chunk)
		if chunk.Success {
			remaining = remaining.Sub(chunk.Quantity)
		}

		if i < n-1 {
			e.interChunkSleep(intent.Symbol, 2.0, 8.0, volFactor, false)
		}
	}
	return results, nil
}

// runVWAP distributes intent according to the configured volume profile,
// sleeping between slices for a volume-scaled interval floored at 1s.
func (e *Engine) runVWAP(ctx context.Context, intent types.OrderIntent, volFactor float64, volume decimal.Decimal) ([]types.ChunkResult, error) {
	profile := e.cfg.VWAPProfile
	if len(profile) == 0 {
		profile = DefaultConfig().VWAPProfile
	}

	volumeFactor := 1.0
	if v, _ := volume.Float64(); v > 0 {
		volumeFactor = math1Max(0.2, v/1_000_000)
	}

	results := make([]types.ChunkResult, 0, len(profile))
	remaining := intent.TotalQuantity
	for i, fraction := range profile {
		target := intent.TotalQuantity.Mul(decimal.NewFromFloat(fraction))
		var qty decimal.Decimal
		if i == len(profile)-1 {
			qty = remaining
		} else {
			qty = applyVariance(target, 0.10, e.rnd)
			if qty.GreaterThan(remaining) {
				qty = remaining
			}
		}

		chunk := e.placeChunk(ctx, intent, qty, 0)
		results = append(results, chunk)
		if chunk.Success {
			remaining = remaining.Sub(chunk.Quantity)
		}

		if i < len(profile)-1 {
			interval := (30 + e.rnd.Float64()*90) / volumeFactor
			e.floorSleep(intent.Symbol, interval)
		}
	}
	return results, nil
}

func math1Max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// interChunkSleep sleeps U(lo,hi) scaled by volFactor seconds, doubled
// if the symbol was previously flagged for a detectable execution
// cadence. When volIsDivisor is false (TWAP), the result is floored at
// 1s; iceberg chunking (volIsDivisor true) has no such floor.
func (e *Engine) interChunkSleep(symbol string, lo, hi, volFactor float64, volIsDivisor bool) {
	base := lo + e.rnd.Float64()*(hi-lo)
	var seconds float64
	if volIsDivisor {
		seconds = base * volFactor
	} else {
		seconds = base / volFactor
		if seconds < 1 {
			seconds = 1
		}
	}
	if e.isDisrupted(symbol) {
		seconds *= 2
	}
	time.Sleep(time.Duration(seconds * float64(time.Second)))
}

func (e *Engine) floorSleep(symbol string, seconds float64) {
	if seconds < 1 {
		seconds = 1
	}
	if e.isDisrupted(symbol) {
		seconds *= 2
	}
	time.Sleep(time.Duration(seconds * float64(time.Second)))
}
