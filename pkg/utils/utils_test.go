package utils_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atlas-desktop/trading-orchestrator/pkg/utils"
)

func TestGenerateIDPrefixAndUniqueness(t *testing.T) {
	a := utils.GenerateOrderID()
	b := utils.GenerateOrderID()

	require.NotEqual(t, a, b)
	require.Contains(t, a, "ord_")
}

func TestGenerateIDWithoutPrefix(t *testing.T) {
	id := utils.GenerateID("")
	require.NotEmpty(t, id)
}

func TestHashPromptIsDeterministic(t *testing.T) {
	require.Equal(t, utils.HashPrompt("same input"), utils.HashPrompt("same input"))
	require.NotEqual(t, utils.HashPrompt("a"), utils.HashPrompt("b"))
}

func TestRoundToTickSize(t *testing.T) {
	price := decimal.NewFromFloat(100.17)
	tick := decimal.NewFromFloat(0.05)

	require.True(t, decimal.NewFromFloat(100.15).Equal(utils.RoundToTickSize(price, tick)))
}

func TestRoundToTickSizeWithZeroTickReturnsPriceUnchanged(t *testing.T) {
	price := decimal.NewFromFloat(100.17)
	require.True(t, price.Equal(utils.RoundToTickSize(price, decimal.Zero)))
}

func TestClampDecimal(t *testing.T) {
	min := decimal.NewFromInt(0)
	max := decimal.NewFromInt(10)

	require.True(t, decimal.NewFromInt(0).Equal(utils.ClampDecimal(decimal.NewFromInt(-5), min, max)))
	require.True(t, decimal.NewFromInt(10).Equal(utils.ClampDecimal(decimal.NewFromInt(50), min, max)))
	require.True(t, decimal.NewFromInt(5).Equal(utils.ClampDecimal(decimal.NewFromInt(5), min, max)))
}
