// Package statusapi exposes a read-only HTTP + WebSocket observability
// surface over the running orchestrator: health, point-in-time status,
// Prometheus metrics, and a streaming status feed. It never accepts
// trading commands: all mutation happens inside the Scheduler.
package statusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-orchestrator/internal/advisor"
	"github.com/atlas-desktop/trading-orchestrator/internal/execution"
	"github.com/atlas-desktop/trading-orchestrator/internal/metrics"
	"github.com/atlas-desktop/trading-orchestrator/internal/scheduler"
	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
)

// Status is the point-in-time snapshot served by /status and streamed
// over /ws.
type Status struct {
	Uptime         string                         `json:"uptime"`
	TradeCount     int                            `json:"trade_count"`
	GlobalBreaker  types.CircuitBreakerState      `json:"global_breaker"`
	SymbolBreakers []types.CircuitBreakerState    `json:"symbol_breakers"`
	AdvisorKeys    map[string][]types.ProviderKey `json:"advisor_keys,omitempty"`
	AsOf           time.Time                      `json:"as_of"`
}

// Config configures the status server's listen address and timeouts.
type Config struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	BroadcastEvery time.Duration
}

// DefaultConfig returns the documented status API defaults.
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		BroadcastEvery: 5 * time.Second,
	}
}

// Server is the read-only status/metrics HTTP+WebSocket server.
type Server struct {
	logger     *zap.Logger
	cfg        Config
	sched      *scheduler.Scheduler
	engine     *execution.Engine
	promReg    *prometheus.Registry
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	startedAt  time.Time
	gateway    *advisor.Gateway

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// WithAdvisor attaches an advisor.Gateway whose key rotation stats are
// included in every /status and /ws snapshot. Returns the same Server
// for chaining at construction.
func (s *Server) WithAdvisor(gw *advisor.Gateway) *Server {
	s.gateway = gw
	return s
}

// New builds a status server reporting on sched and engine, exporting
// promReg at /metrics.
func New(logger *zap.Logger, cfg Config, sched *scheduler.Scheduler, engine *execution.Engine, promReg *prometheus.Registry) *Server {
	s := &Server{
		logger:    logger.Named("status-api"),
		cfg:       cfg,
		sched:     sched,
		engine:    engine,
		promReg:   promReg,
		router:    mux.NewRouter(),
		startedAt: time.Now(),
		clients:   make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler(s.promReg)).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Start runs the HTTP server and the periodic WebSocket broadcaster
// until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	go s.broadcastLoop(ctx)

	s.logger.Info("status API listening", zap.String("addr", addr))
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func (s *Server) snapshot() Status {
	status := Status{
		Uptime:         time.Since(s.startedAt).String(),
		TradeCount:     s.sched.TradeCount(),
		GlobalBreaker:  s.sched.GlobalBreakerState(),
		SymbolBreakers: s.engine.BreakerStates(),
		AsOf:           time.Now(),
	}
	if s.gateway != nil {
		status.AdvisorKeys = s.gateway.KeyStats()
	}
	return status
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.snapshot())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// broadcastLoop pushes a status snapshot to every connected client
// every BroadcastEvery, until ctx is cancelled.
func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.BroadcastEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := json.Marshal(s.snapshot())
			if err != nil {
				s.logger.Error("failed to marshal status snapshot", zap.Error(err))
				continue
			}

			s.mu.Lock()
			for conn := range s.clients {
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					conn.Close()
					delete(s.clients, conn)
				}
			}
			s.mu.Unlock()
		}
	}
}
