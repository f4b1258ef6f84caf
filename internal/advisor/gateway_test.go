package advisor_test

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-orchestrator/internal/advisor"
)

const testMasterKeyHex = "0123456789abcdef0123456789abcdef"

func testMasterKey() [32]byte {
	var master [32]byte
	copy(master[:], []byte(testMasterKeyHex))
	return master
}

func chatCompletionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}))
}

func failingServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
}

func addKey(t *testing.T, gw *advisor.Gateway, master [32]byte, providerName string) {
	t.Helper()
	key, err := advisor.EncryptSecret(providerName+"-key", providerName, "sk-"+providerName, master)
	require.NoError(t, err)
	require.NoError(t, gw.AddProviderKey(providerName, key))
}

// TestFailoverSkipsFailingProvidersInOrder covers scenario 1: providers A
// and B both raise, C succeeds, and the gateway returns C's content.
func TestFailoverSkipsFailingProvidersInOrder(t *testing.T) {
	serverA := failingServer(t)
	defer serverA.Close()
	serverB := failingServer(t)
	defer serverB.Close()
	serverC := chatCompletionServer(t, `{"recommendations":[{"symbol":"AAPL","decision":"buy","confidence":0.7}]}`)
	defer serverC.Close()

	master := testMasterKey()
	providers := []*advisor.Provider{
		{Name: "provider-a", BaseURL: serverA.URL, Model: "m"},
		{Name: "provider-b", BaseURL: serverB.URL, Model: "m"},
		{Name: "provider-c", BaseURL: serverC.URL, Model: "m"},
	}
	gw := advisor.NewGateway(zap.NewNop(), providers, 600, time.Minute, master, rand.New(rand.NewSource(1)))
	addKey(t, gw, master, "provider-a")
	addKey(t, gw, master, "provider-b")
	addKey(t, gw, master, "provider-c")

	content, err := gw.Complete(context.Background(), "evaluate AAPL", "")
	require.NoError(t, err)

	recs, err := advisor.ParseRecommendations(content)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "AAPL", recs[0].Symbol)
}

// TestCompleteCachesResponseByPrompt covers scenario 6: a second call with
// an identical prompt is served from cache without another HTTP round
// trip to the provider.
func TestCompleteCachesResponseByPrompt(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		body := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": `{"recommendations":[]}`}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}))
	defer server.Close()

	master := testMasterKey()
	providers := []*advisor.Provider{{Name: "provider-a", BaseURL: server.URL, Model: "m"}}
	gw := advisor.NewGateway(zap.NewNop(), providers, 600, time.Minute, master, rand.New(rand.NewSource(2)))
	addKey(t, gw, master, "provider-a")

	_, err := gw.Complete(context.Background(), "evaluate AAPL", "")
	require.NoError(t, err)
	_, err = gw.Complete(context.Background(), "evaluate AAPL", "")
	require.NoError(t, err)

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}
