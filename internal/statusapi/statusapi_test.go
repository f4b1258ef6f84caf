package statusapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-orchestrator/internal/broker"
	"github.com/atlas-desktop/trading-orchestrator/internal/execution"
	"github.com/atlas-desktop/trading-orchestrator/internal/risk"
	"github.com/atlas-desktop/trading-orchestrator/internal/scheduler"
	"github.com/atlas-desktop/trading-orchestrator/internal/statusapi"
	"github.com/atlas-desktop/trading-orchestrator/internal/strategy"
	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func newTestSystem(t *testing.T) (*scheduler.Scheduler, *execution.Engine) {
	t.Helper()
	pb := broker.NewPaperBroker(zap.NewNop(), decimal.NewFromInt(100000), rand.New(rand.NewSource(3)))
	pb.SetMarketOpen(true)
	pb.SeedWatchlist([]string{"AAPL"})
	pb.SeedQuote(types.Quote{Symbol: "AAPL", Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(1000)})

	registry := strategy.NewRegistry(zap.NewNop())
	combiner := strategy.NewCombiner(registry)
	riskMgr := risk.NewManager(zap.NewNop(), types.DefaultRiskParameters())
	engine := execution.NewEngine(zap.NewNop(), execution.DefaultConfig(), pb, rand.New(rand.NewSource(3)))

	cfg := scheduler.DefaultConfig()
	cfg.Symbols = []string{"AAPL"}
	sched := scheduler.New(zap.NewNop(), cfg, pb, combiner, riskMgr, engine)

	return sched, engine
}

func TestHealthzAndStatusEndpoints(t *testing.T) {
	sched, engine := newTestSystem(t)
	defer engine.Close()

	promReg := prometheus.NewRegistry()
	cfg := statusapi.DefaultConfig()
	cfg.Port = freePort(t)
	cfg.BroadcastEvery = 50 * time.Millisecond

	server := statusapi.New(zap.NewNop(), cfg, sched, engine, promReg)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-errCh)
	}()

	baseURL := fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	resp, err := http.Get(baseURL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status statusapi.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.Equal(t, types.ScopeGlobal, status.GlobalBreaker.Scope)

	metricsResp, err := http.Get(baseURL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	require.Equal(t, http.StatusOK, metricsResp.StatusCode)
}

func TestWebSocketBroadcastsStatus(t *testing.T) {
	sched, engine := newTestSystem(t)
	defer engine.Close()

	promReg := prometheus.NewRegistry()
	cfg := statusapi.DefaultConfig()
	cfg.Port = freePort(t)
	cfg.BroadcastEvery = 20 * time.Millisecond

	server := statusapi.New(zap.NewNop(), cfg, sched, engine, promReg)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-errCh)
	}()

	wsURL := fmt.Sprintf("ws://%s:%d/ws", cfg.Host, cfg.Port)
	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 2*time.Second, 20*time.Millisecond)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var status statusapi.Status
	require.NoError(t, json.Unmarshal(payload, &status))
	require.Equal(t, types.ScopeGlobal, status.GlobalBreaker.Scope)
}
