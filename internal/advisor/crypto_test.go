package advisor_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlas-desktop/trading-orchestrator/internal/advisor"
)

func TestEncryptSecretProducesCiphertext(t *testing.T) {
	var master [32]byte
	copy(master[:], []byte("0123456789abcdef0123456789abcdef"))

	key, err := advisor.EncryptSecret("key-1", "openai", "sk-super-secret", master)
	require.NoError(t, err)
	require.NotEmpty(t, key.EncryptedSecret)
}

func TestParseRecommendationsDropsInvalidItems(t *testing.T) {
	content := `{"recommendations": [
		{"symbol": "AAPL", "decision": "buy", "confidence": 0.8},
		{"decision": "sell", "confidence": 0.5},
		{"symbol": "MSFT", "decision": "hold"}
	]}`

	recs, err := advisor.ParseRecommendations(content)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "AAPL", recs[0].Symbol)
}
